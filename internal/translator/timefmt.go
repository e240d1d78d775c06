package translator

import "time"

// reportTimeLayouts covers the timestamp shapes the provider emits:
// second-precision ISO for update times, minute-precision ISO for hourly
// records, and a bare local form seen in some responses.
var reportTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// reportTime converts an upstream timestamp to the local
// "YYYY-MM-DD HH:mm:ss" form the fixed client parsers expect. The clients
// cannot handle timezone suffixes, so the zone is applied and dropped. An
// absent timestamp renders "0" like every other missing field; values that
// fit none of the known layouts are returned unchanged.
func reportTime(value string, loc *time.Location) string {
	if value == "" {
		return "0"
	}
	for _, layout := range reportTimeLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err != nil {
			continue
		}
		return t.In(loc).Format("2006-01-02 15:04:05")
	}
	return value
}

// weekdayNumber maps a forecast date to the legacy weekday code: Sunday is 1,
// Monday through Saturday are 2..7.
func weekdayNumber(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "1"
	}
	return [...]string{"1", "2", "3", "4", "5", "6", "7"}[int(t.Weekday())]
}

// chineseWeekday maps a forecast date to the Chinese weekday name used by the
// pre-TV flat format.
func chineseWeekday(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return [...]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}[int(t.Weekday())]
}
