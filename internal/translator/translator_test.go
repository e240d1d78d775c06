package translator

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/xmmwu/weather-proxy/internal/models"
)

// 2026-03-01 is a Sunday.
func sampleSnapshot() models.WeatherSnapshot {
	return models.WeatherSnapshot{
		Now: models.NowConditions{
			Temp:      "22",
			Icon:      "101",
			Humidity:  "65",
			Pressure:  "1013",
			WindDir:   "东南风",
			WindSpeed: "12",
			WindScale: "3",
		},
		Forecast: []models.ForecastDay{
			{
				FxDate: "2026-03-01", TempMin: "15", TempMax: "24",
				IconDay: "100", IconNight: "150",
				WindDirDay: "南风", WindDirNight: "北风",
				WindScaleDay: "3", WindScaleNight: "2",
			},
			{
				FxDate: "2026-03-02", TempMin: "14", TempMax: "21",
				IconDay: "305", IconNight: "305",
				WindDirDay: "东风", WindDirNight: "东风",
				WindScaleDay: "4", WindScaleNight: "3",
			},
			{
				FxDate: "2026-03-03", TempMin: "12", TempMax: "19",
				IconDay: "101", IconNight: "151",
			},
		},
		Hourly: hourlyRecords(24),
		Indices: []models.DailyIndex{
			{Type: "穿衣", Category: "舒适", Text: "建议穿长袖衬衫"},
			{Type: "洗车", Category: "较不宜", Text: "有降水"},
		},
		City: models.City{
			ID: "101280601", Name: "深圳", StationID: "59493",
			Longitude: "114.08", Latitude: "22.54", Postcode: "518000",
			Sunrise: "06:42", Sunset: "18:21",
		},
		Adv:                models.Advertisement{CFFlag: "1", SKFlag: "0", ZUFlag: "1"},
		NowUpdateTime:      "2026-03-01T08:30:00+08:00",
		ForecastUpdateTime: "2026-03-01T07:00:00+08:00",
		HourlyUpdateTime:   "2026-03-01T08:00:00+08:00",
		IndicesUpdateTime:  "2026-03-01T06:00:00+08:00",
	}
}

func hourlyRecords(n int) []models.HourRecord {
	records := make([]models.HourRecord, 0, n)
	for i := 0; i < n; i++ {
		hour := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
		records = append(records, models.HourRecord{
			FxTime:    hour.Format("2006-01-02T15:04-07:00"),
			Temp:      "20",
			Icon:      "101",
			WindDir:   "南风",
			WindScale: "3",
			WindSpeed: "10",
		})
	}
	return records
}

func TestAppTypeFromCode(t *testing.T) {
	tests := []struct {
		code string
		want AppType
	}{
		{"50532E", AppTypeWidget},
		{"1D765B", AppTypeTV},
		{"", AppTypeUnknown},
		{"ABCDEF", AppTypeUnknown},
		{"50532e", AppTypeUnknown},
	}
	for _, tt := range tests {
		if got := AppTypeFromCode(tt.code); got != tt.want {
			t.Errorf("AppTypeFromCode(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestDataTypeClasses(t *testing.T) {
	if !IsRealtime(DataTypeWidgetCurrent) || !IsRealtime(DataTypeTVCurrent) {
		t.Error("current data types should be realtime")
	}
	if IsRealtime(DataTypeMain) || IsRealtime(DataTypeTVForecast) {
		t.Error("main and forecast data types should not be realtime")
	}
	if !IsForecast(DataTypeWidgetForecast) || !IsForecast(DataTypeTVForecast) {
		t.Error("forecast data types should be forecast")
	}
	if IsForecast(DataTypeMain) || IsForecast(DataTypeWidgetCurrent) {
		t.Error("main and current data types should not be forecast")
	}
}

func TestWeatherCode(t *testing.T) {
	tests := []struct{ icon, want string }{
		{"100", "0"},
		{"101", "1"},
		{"305", "13"},
		{"804", "58"},
		{"999", "0"},
		{"", "0"},
	}
	for _, tt := range tests {
		if got := weatherCode(tt.icon); got != tt.want {
			t.Errorf("weatherCode(%q) = %q, want %q", tt.icon, got, tt.want)
		}
	}
}

// The provider icon codes in legacy-code order: the table assigns 0..58 to
// clear/cloud, rain, snow, fog, wind, haze and sand ranges contiguously.
var iconCodesInOrder = []string{
	"100", "101", "102", "103", "104", "150", "151", "152",
	"300", "301", "302", "303", "304", "305", "306", "307", "308", "309",
	"310", "311", "312", "313", "314", "315", "316", "317", "318",
	"400", "401", "402", "403", "404", "405", "406", "407",
	"500", "501", "502", "503", "504", "507", "508",
	"600", "601", "602",
	"700", "701", "702", "703", "704", "705", "706", "707", "708",
	"800", "801", "802", "803", "804",
}

func TestWeatherCode_FullTable(t *testing.T) {
	if len(iconCodesInOrder) != 59 {
		t.Fatalf("fixture holds %d icon codes, want 59", len(iconCodesInOrder))
	}
	for i, icon := range iconCodesInOrder {
		want := strconv.Itoa(i)
		if got := weatherCode(icon); got != want {
			t.Errorf("weatherCode(%q) = %q, want %q", icon, got, want)
		}
	}
}

func TestWindDirCode(t *testing.T) {
	tests := []struct{ dir, want string }{
		{"东北风", "1"},
		{"南风", "4"},
		{"北风", "8"},
		{"无风向", "0"},
		{"45", "45"},
		{"0", "0"},
		{"东南偏南风", "0"},
		{"", "0"},
	}
	for _, tt := range tests {
		if got := windDirCode(tt.dir); got != tt.want {
			t.Errorf("windDirCode(%q) = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestIndexCategoryVal(t *testing.T) {
	tests := []struct{ category, want string }{
		{"舒适", "1"},
		{"适宜", "1"},
		{"较适宜", "2"},
		{"较不宜", "3"},
		{"不宜", "4"},
		{"炎热", "1"},
	}
	for _, tt := range tests {
		if got := indexCategoryVal(tt.category); got != tt.want {
			t.Errorf("indexCategoryVal(%q) = %q, want %q", tt.category, got, tt.want)
		}
	}
}

func TestIndexTypeName(t *testing.T) {
	if got := indexTypeName("穿衣"); got != "CY" {
		t.Errorf("indexTypeName(穿衣) = %q, want CY", got)
	}
	if got := indexTypeName("钓鱼"); got != "钓鱼" {
		t.Errorf("unmapped index type should pass through, got %q", got)
	}
}

func TestReportTime(t *testing.T) {
	cst := time.FixedZone("UTC+8", 8*60*60)
	tests := []struct{ in, want string }{
		{"2026-03-01T08:30:00+08:00", "2026-03-01 08:30:00"},
		{"2026-03-01T00:30:00+00:00", "2026-03-01 08:30:00"},
		{"2026-03-01T09:00+08:00", "2026-03-01 09:00:00"},
		{"2026-03-01 08:30:00", "2026-03-01 08:30:00"},
		{"not-a-time", "not-a-time"},
		{"", "0"},
	}
	for _, tt := range tests {
		if got := reportTime(tt.in, cst); got != tt.want {
			t.Errorf("reportTime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWeekdayNumber(t *testing.T) {
	tests := []struct{ date, want string }{
		{"2026-03-01", "1"}, // Sunday
		{"2026-03-02", "2"}, // Monday
		{"2026-03-07", "7"}, // Saturday
		{"bogus", "1"},
	}
	for _, tt := range tests {
		if got := weekdayNumber(tt.date); got != tt.want {
			t.Errorf("weekdayNumber(%q) = %q, want %q", tt.date, got, tt.want)
		}
	}
}

func TestChineseWeekday(t *testing.T) {
	tests := []struct{ date, want string }{
		{"2026-03-01", "周日"},
		{"2026-03-02", "周一"},
		{"2026-03-07", "周六"},
		{"bogus", ""},
	}
	for _, tt := range tests {
		if got := chineseWeekday(tt.date); got != tt.want {
			t.Errorf("chineseWeekday(%q) = %q, want %q", tt.date, got, tt.want)
		}
	}
}

func TestRenderCurrent(t *testing.T) {
	tr := New(nil)
	xml := tr.Render(sampleSnapshot(), DataTypeTVCurrent, AppTypeTV)

	if !strings.HasPrefix(xml, `<?xml version="1.0" encoding="utf-8"?>`) {
		t.Error("missing XML prolog")
	}
	if !strings.Contains(xml, `<CityMeteor CityName="深圳">`) {
		t.Errorf("missing CityMeteor root:\n%s", xml)
	}
	if !strings.Contains(xml, `<SK ReportTime="2026-03-01 08:30:00">`) {
		t.Errorf("missing SK report time:\n%s", xml)
	}
	if !strings.Contains(xml, `Weather="1" Temperature="22" WindDir="3" WindPower="3" WindSpeed="12" Humidity="65" Pressure="1013"`) {
		t.Errorf("wrong Info attributes:\n%s", xml)
	}
	if strings.Contains(xml, "<CF") || strings.Contains(xml, "<ZU") {
		t.Error("current document should carry only the SK section")
	}
}

func TestRenderCurrent_MissingFieldsRenderZero(t *testing.T) {
	tr := New(nil)
	snap := models.WeatherSnapshot{City: models.City{Name: "深圳"}}
	xml := tr.Render(snap, DataTypeWidgetCurrent, AppTypeWidget)

	if !strings.Contains(xml, `Weather="0" Temperature="0" WindDir="0" WindPower="0" WindSpeed="0" Humidity="0" Pressure="0"`) {
		t.Errorf("empty observation should render zeroes:\n%s", xml)
	}
	if !strings.Contains(xml, `<SK ReportTime="0">`) {
		t.Errorf("missing update time should render ReportTime=\"0\":\n%s", xml)
	}
}

func TestRenderCurrent_UnknownCityName(t *testing.T) {
	tr := New(nil)
	xml := tr.Render(models.WeatherSnapshot{}, DataTypeTVCurrent, AppTypeTV)
	if !strings.Contains(xml, `<CityMeteor CityName="Unknown">`) {
		t.Errorf("empty city should render Unknown:\n%s", xml)
	}
}

func TestRenderWidgetForecast_PadsToTwoPeriods(t *testing.T) {
	tr := New(nil)

	snap := sampleSnapshot()
	snap.Forecast = snap.Forecast[:1]
	xml := tr.Render(snap, DataTypeWidgetForecast, AppTypeWidget)

	if got := strings.Count(xml, "<Period"); got != 2 {
		t.Fatalf("widget forecast should carry exactly 2 Periods, got %d:\n%s", got, xml)
	}
	if !strings.Contains(xml, `Timestart="2026-03-01 00:00:00" Timeend="2026-03-01 23:59:59" Week="1" Weather="0" Tmin="15" Tmax="24"`) {
		t.Errorf("wrong first period:\n%s", xml)
	}
	if !strings.Contains(xml, `Timestart="0" Timeend="0" Week="1" Weather="0" Tmin="0" Tmax="0"`) {
		t.Errorf("missing padded period:\n%s", xml)
	}
}

func TestRenderWidgetForecast_TruncatesToTwoPeriods(t *testing.T) {
	tr := New(nil)
	xml := tr.Render(sampleSnapshot(), DataTypeWidgetForecast, AppTypeWidget)

	if got := strings.Count(xml, "<Period"); got != 2 {
		t.Fatalf("widget forecast should truncate to 2 Periods, got %d", got)
	}
	if strings.Contains(xml, "2026-03-03") {
		t.Error("third day should not appear in widget forecast")
	}
	if strings.Contains(xml, "NightWeather") {
		t.Error("widget forecast should not carry night attributes")
	}
}

func TestRenderTVForecast_NoPadding(t *testing.T) {
	tr := New(nil)
	xml := tr.Render(sampleSnapshot(), DataTypeTVForecast, AppTypeTV)

	if got := strings.Count(xml, "<Period"); got != 3 {
		t.Fatalf("tv forecast should carry one Period per day, got %d", got)
	}
	if !strings.Contains(xml, `<CF ReportTime="2026-03-01 07:00:00">`) {
		t.Errorf("missing CF report time:\n%s", xml)
	}
}

func TestRenderTVForecast_CapsAtSevenPeriods(t *testing.T) {
	tr := New(nil)
	snap := sampleSnapshot()
	for len(snap.Forecast) < 10 {
		snap.Forecast = append(snap.Forecast, models.ForecastDay{FxDate: "2026-03-09"})
	}
	xml := tr.Render(snap, DataTypeTVForecast, AppTypeTV)

	if got := strings.Count(xml, "<Period"); got != 7 {
		t.Fatalf("tv forecast should cap at 7 Periods, got %d", got)
	}
}

func TestRenderMain(t *testing.T) {
	tr := New(nil)
	xml := tr.Render(sampleSnapshot(), DataTypeMain, AppTypeTV)

	if !strings.Contains(xml, `<StationInfo Stationid="59493" Longitude="114.08" Latitude="22.54" Postcode="518000" Sunrise="06:42" Sunset="18:21"/>`) {
		t.Errorf("wrong StationInfo:\n%s", xml)
	}
	if !strings.Contains(xml, "<SK ") || !strings.Contains(xml, "<CF ") {
		t.Error("main document should carry SK and CF sections")
	}
	if !strings.Contains(xml, `NightWeather="5"`) {
		t.Errorf("main CF should carry night attributes:\n%s", xml)
	}
	if !strings.Contains(xml, `NightWindDir="8" NightWindPower="2"`) {
		t.Errorf("wrong night wind attributes:\n%s", xml)
	}
	if !strings.Contains(xml, `<Type Name="CY" Val="1">建议穿长袖衬衫</Type>`) {
		t.Errorf("wrong dressing index:\n%s", xml)
	}
	if !strings.Contains(xml, `<Type Name="XC" Val="3">有降水</Type>`) {
		t.Errorf("wrong car-wash index:\n%s", xml)
	}
	if !strings.Contains(xml, `<Adv Type="CF" Flag="1"/>`) || !strings.Contains(xml, `<Adv Type="SK" Flag="0"/>`) || !strings.Contains(xml, `<Adv Type="ZU" Flag="1"/>`) {
		t.Errorf("wrong AdvFile:\n%s", xml)
	}
}

func TestRenderMain_CF3hEveryThirdHourCapped(t *testing.T) {
	tr := New(nil)
	xml := tr.Render(sampleSnapshot(), DataTypeMain, AppTypeTV)

	start := strings.Index(xml, "<CF3h")
	end := strings.Index(xml, "</CF3h>")
	if start < 0 || end < 0 {
		t.Fatalf("missing CF3h section:\n%s", xml)
	}
	section := xml[start:end]
	if got := strings.Count(section, "<Period"); got != 8 {
		t.Fatalf("CF3h should carry 8 Periods from 24 hourly records, got %d", got)
	}
	// Records start at 09:00 UTC; every third hour in UTC+8 local time.
	if !strings.Contains(section, `Timestart="2026-03-01 17:00:00"`) {
		t.Errorf("first CF3h period should be hour 0 in local time:\n%s", section)
	}
	if !strings.Contains(section, `Timestart="2026-03-01 20:00:00"`) {
		t.Errorf("second CF3h period should be hour 3 in local time:\n%s", section)
	}
	if strings.Contains(section, `Timestart="2026-03-01 18:00:00"`) {
		t.Error("hour 1 should be skipped")
	}
}

func TestRenderMain_StationIDFallsBackToCityID(t *testing.T) {
	tr := New(nil)
	snap := sampleSnapshot()
	snap.City.StationID = ""
	xml := tr.Render(snap, DataTypeMain, AppTypeTV)

	if !strings.Contains(xml, `Stationid="101280601"`) {
		t.Errorf("StationInfo should fall back to city id:\n%s", xml)
	}
}

func TestRenderInvalidCombinations(t *testing.T) {
	tr := New(nil)
	snap := sampleSnapshot()

	tests := []struct {
		dataType DataType
		appType  AppType
	}{
		{"bogus", AppTypeTV},
		{"bogus", AppTypeWidget},
		{"", AppTypeUnknown},
		{DataTypeMain, AppTypeWidget},
	}
	for _, tt := range tests {
		if got := tr.Render(snap, tt.dataType, tt.appType); got != InvalidDataTypeXML {
			t.Errorf("Render(%q, %q) = %q, want invalid marker", tt.dataType, tt.appType, got)
		}
	}
}

func TestRenderFlatCurrent(t *testing.T) {
	tr := New(nil)
	xml := tr.Render(sampleSnapshot(), DataTypeWidgetCurrent, AppTypeUnknown)

	if strings.Contains(xml, "CityMeteor") {
		t.Error("flat document should not carry a CityMeteor root")
	}
	if !strings.Contains(xml, "<weather>\n") {
		t.Errorf("missing flat root:\n%s", xml)
	}
	if !strings.Contains(xml, "<city>深圳</city>") {
		t.Errorf("missing city tag:\n%s", xml)
	}
	if !strings.Contains(xml, "<temp>22</temp>") {
		t.Errorf("missing temp tag:\n%s", xml)
	}
	if !strings.Contains(xml, "<weather>1</weather>") {
		t.Errorf("missing condition tag:\n%s", xml)
	}
	if !strings.Contains(xml, "<reporttime>2026-03-01 08:30:00</reporttime>") {
		t.Errorf("missing reporttime tag:\n%s", xml)
	}
}

func TestRenderFlatForecast(t *testing.T) {
	tr := New(nil)
	xml := tr.Render(sampleSnapshot(), DataTypeTVForecast, AppTypeUnknown)

	if !strings.Contains(xml, "<week1>周日</week1>") {
		t.Errorf("missing week1:\n%s", xml)
	}
	if !strings.Contains(xml, "<week2>周一</week2>") {
		t.Errorf("missing week2:\n%s", xml)
	}
	if !strings.Contains(xml, "<startTime1>2026-03-01 00:00:00</startTime1>") {
		t.Errorf("missing startTime1:\n%s", xml)
	}
	if !strings.Contains(xml, "<tempMin1>15</tempMin1>") || !strings.Contains(xml, "<tempMax2>21</tempMax2>") {
		t.Errorf("missing temperature bounds:\n%s", xml)
	}
	if strings.Contains(xml, "week3") {
		t.Error("flat forecast should carry only two days")
	}
	if strings.Contains(xml, "<temp>") {
		t.Error("flat forecast should not carry current conditions")
	}
}

func TestRenderFlatMain(t *testing.T) {
	tr := New(nil)
	xml := tr.Render(sampleSnapshot(), DataTypeMain, AppTypeUnknown)

	if !strings.Contains(xml, "<temp>22</temp>") {
		t.Errorf("flat main should carry current conditions:\n%s", xml)
	}
	if !strings.Contains(xml, "<condition1>0</condition1>") {
		t.Errorf("flat main should carry the forecast days:\n%s", xml)
	}
}

func TestRenderEscapesMarkup(t *testing.T) {
	tr := New(nil)
	snap := sampleSnapshot()
	snap.City.Name = `A&B "<City>"`
	snap.Indices = []models.DailyIndex{{Type: "穿衣", Category: "舒适", Text: "冷 & 湿 <多穿>"}}

	xml := tr.Render(snap, DataTypeMain, AppTypeTV)
	if !strings.Contains(xml, `CityName="A&amp;B &quot;&lt;City&gt;&quot;"`) {
		t.Errorf("attribute not escaped:\n%s", xml)
	}
	if !strings.Contains(xml, ">冷 &amp; 湿 &lt;多穿&gt;</Type>") {
		t.Errorf("text not escaped:\n%s", xml)
	}

	flat := tr.Render(snap, DataTypeWidgetCurrent, AppTypeUnknown)
	if !strings.Contains(flat, "<city>A&amp;B \"&lt;City&gt;\"</city>") {
		t.Errorf("flat city not escaped:\n%s", flat)
	}
}

func TestNewDefaultsToUTC8(t *testing.T) {
	tr := New(nil)
	snap := sampleSnapshot()
	snap.NowUpdateTime = "2026-03-01T00:00:00Z"
	xml := tr.Render(snap, DataTypeTVCurrent, AppTypeTV)

	if !strings.Contains(xml, `ReportTime="2026-03-01 08:00:00"`) {
		t.Errorf("UTC update time should render in UTC+8:\n%s", xml)
	}
}
