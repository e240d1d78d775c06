// Package translator renders normalized weather snapshots into the legacy
// vendor XML documents consumed by fixed embedded-client parsers. The output
// is byte-exact by contract: attribute order, defaults and element nesting
// must not change, because the clients cannot be updated.
package translator

import (
	"fmt"
	"strings"
	"time"

	"github.com/xmmwu/weather-proxy/internal/models"
)

// DataType selects which legacy XML schema a specific client expects.
type DataType string

const (
	// DataTypeWidgetCurrent is the phone widget current-conditions document.
	DataTypeWidgetCurrent DataType = "ztev3widgetskall"
	// DataTypeWidgetForecast is the phone widget forecast document.
	DataTypeWidgetForecast DataType = "ztev3widgetcfall"
	// DataTypeTVCurrent is the TV widget current-conditions document.
	DataTypeTVCurrent DataType = "ztewidgetsk"
	// DataTypeTVForecast is the TV widget forecast document.
	DataTypeTVForecast DataType = "ztewidgetcf"
	// DataTypeMain is the full TV main-screen document.
	DataTypeMain DataType = "zte"
)

// AppType is the coarse client family, derived from the opaque request code.
type AppType string

const (
	AppTypeWidget  AppType = "weatherwidget"
	AppTypeTV      AppType = "weathertv"
	AppTypeUnknown AppType = "unknown"
)

// Request codes baked into the shipped clients.
const (
	codeWidget = "50532E"
	codeTV     = "1D765B"
)

// AppTypeFromCode resolves the opaque request code to a client family.
// Unrecognized codes map to AppTypeUnknown, which selects the pre-TV flat
// format.
func AppTypeFromCode(code string) AppType {
	switch code {
	case codeWidget:
		return AppTypeWidget
	case codeTV:
		return AppTypeTV
	default:
		return AppTypeUnknown
	}
}

// IsRealtime reports whether the data type carries current conditions, which
// drives the short realtime cache TTL class.
func IsRealtime(dt DataType) bool {
	return dt == DataTypeWidgetCurrent || dt == DataTypeTVCurrent
}

// IsForecast reports whether the data type carries forecast data, which
// drives the long forecast cache TTL class.
func IsForecast(dt DataType) bool {
	return dt == DataTypeWidgetForecast || dt == DataTypeTVForecast
}

const xmlProlog = `<?xml version="1.0" encoding="utf-8"?>`

// InvalidDataTypeXML is returned for any (dataType, appType) combination the
// translator does not recognize. It is a data value, not an error: the
// clients parse it like any other response body.
const InvalidDataTypeXML = `<error>Invalid dataType</error>`

// Translator renders snapshots into legacy XML. The location fixes the zone
// used when report timestamps are rewritten to local time.
type Translator struct {
	loc *time.Location
}

// New creates a Translator emitting report times in loc. A nil loc falls back
// to UTC+8, the zone of every shipped client.
func New(loc *time.Location) *Translator {
	if loc == nil {
		loc = time.FixedZone("UTC+8", 8*60*60)
	}
	return &Translator{loc: loc}
}

// Render maps a snapshot plus a (dataType, appType) pair to one legacy XML
// document. The appType selects the schema family, the dataType the document
// within it.
func (t *Translator) Render(snap models.WeatherSnapshot, dataType DataType, appType AppType) string {
	switch appType {
	case AppTypeTV:
		switch dataType {
		case DataTypeMain:
			return t.renderMain(snap)
		case DataTypeTVCurrent, DataTypeWidgetCurrent:
			return t.renderCurrent(snap)
		case DataTypeTVForecast, DataTypeWidgetForecast:
			return t.renderForecast(snap, 7, false)
		}
	case AppTypeWidget:
		switch dataType {
		case DataTypeTVCurrent, DataTypeWidgetCurrent:
			return t.renderCurrent(snap)
		case DataTypeTVForecast, DataTypeWidgetForecast:
			// The phone widget parser reads exactly two Period elements.
			return t.renderForecast(snap, 2, true)
		}
	default:
		switch dataType {
		case DataTypeTVCurrent, DataTypeWidgetCurrent:
			return t.renderFlatCurrent(snap)
		case DataTypeTVForecast, DataTypeWidgetForecast:
			return t.renderFlatForecast(snap)
		case DataTypeMain:
			return t.renderFlatMain(snap)
		}
	}
	return InvalidDataTypeXML
}

// renderMain produces the full TV main document:
// StationInfo, SK, CF, ZU, CF3h and AdvFile under one CityMeteor root.
func (t *Translator) renderMain(snap models.WeatherSnapshot) string {
	var b strings.Builder
	b.WriteString(xmlProlog)
	b.WriteString("\n")
	fmt.Fprintf(&b, `<CityMeteor CityName="%s">`, escapeAttr(cityName(snap)))
	b.WriteString("\n")
	t.writeStationInfo(&b, snap)
	t.writeSK(&b, snap)
	t.writeCF(&b, snap, 7, false, true)
	t.writeZU(&b, snap)
	t.writeCF3h(&b, snap)
	t.writeAdvFile(&b, snap)
	b.WriteString("</CityMeteor>")
	return b.String()
}

// renderCurrent produces the SK-only CityMeteor document shared by the TV and
// phone widget current-conditions types.
func (t *Translator) renderCurrent(snap models.WeatherSnapshot) string {
	var b strings.Builder
	b.WriteString(xmlProlog)
	b.WriteString("\n")
	fmt.Fprintf(&b, `<CityMeteor CityName="%s">`, escapeAttr(cityName(snap)))
	b.WriteString("\n")
	t.writeSK(&b, snap)
	b.WriteString("</CityMeteor>")
	return b.String()
}

// renderForecast produces the CF-only CityMeteor document. maxPeriods bounds
// the Period count; pad forces exactly maxPeriods Periods even when fewer
// forecast days are available.
func (t *Translator) renderForecast(snap models.WeatherSnapshot, maxPeriods int, pad bool) string {
	var b strings.Builder
	b.WriteString(xmlProlog)
	b.WriteString("\n")
	fmt.Fprintf(&b, `<CityMeteor CityName="%s">`, escapeAttr(cityName(snap)))
	b.WriteString("\n")
	t.writeCF(&b, snap, maxPeriods, pad, false)
	b.WriteString("</CityMeteor>")
	return b.String()
}

func (t *Translator) writeStationInfo(b *strings.Builder, snap models.WeatherSnapshot) {
	city := snap.City
	stationID := city.StationID
	if stationID == "" {
		stationID = city.ID
	}
	fmt.Fprintf(b, "  <StationInfo Stationid=\"%s\" Longitude=\"%s\" Latitude=\"%s\" Postcode=\"%s\" Sunrise=\"%s\" Sunset=\"%s\"/>\n",
		escapeAttr(orZero(stationID)), escapeAttr(orZero(city.Longitude)), escapeAttr(orZero(city.Latitude)),
		escapeAttr(orZero(city.Postcode)), escapeAttr(orZero(city.Sunrise)), escapeAttr(orZero(city.Sunset)))
}

func (t *Translator) writeSK(b *strings.Builder, snap models.WeatherSnapshot) {
	now := snap.Now
	fmt.Fprintf(b, "  <SK ReportTime=\"%s\">\n", escapeAttr(reportTime(snap.NowUpdateTime, t.loc)))
	fmt.Fprintf(b, "    <Info Weather=\"%s\" Temperature=\"%s\" WindDir=\"%s\" WindPower=\"%s\" WindSpeed=\"%s\" Humidity=\"%s\" Pressure=\"%s\"/>\n",
		weatherCode(now.Icon), escapeAttr(orZero(now.Temp)), windDirCode(now.WindDir),
		escapeAttr(orZero(now.WindScale)), escapeAttr(orZero(now.WindSpeed)), escapeAttr(orZero(now.Humidity)), escapeAttr(orZero(now.Pressure)))
	b.WriteString("  </SK>\n")
}

// writeCF emits the daily-forecast section. When full is set the Period
// elements carry the day/night wind attributes the TV main screen renders;
// the widget documents carry only the six attributes their parsers read.
func (t *Translator) writeCF(b *strings.Builder, snap models.WeatherSnapshot, maxPeriods int, pad, full bool) {
	fmt.Fprintf(b, "  <CF ReportTime=\"%s\">\n", escapeAttr(reportTime(snap.ForecastUpdateTime, t.loc)))
	days := snap.Forecast
	if len(days) > maxPeriods {
		days = days[:maxPeriods]
	}
	for _, day := range days {
		t.writePeriod(b, day, full)
	}
	if pad {
		for i := len(days); i < maxPeriods; i++ {
			t.writePeriod(b, models.ForecastDay{}, full)
		}
	}
	b.WriteString("  </CF>\n")
}

func (t *Translator) writePeriod(b *strings.Builder, day models.ForecastDay, full bool) {
	start, end := periodBounds(day.FxDate)
	if full {
		fmt.Fprintf(b, "    <Period Timestart=\"%s\" Timeend=\"%s\" Week=\"%s\" Weather=\"%s\" NightWeather=\"%s\" Tmin=\"%s\" Tmax=\"%s\" WindDir=\"%s\" WindPower=\"%s\" NightWindDir=\"%s\" NightWindPower=\"%s\"/>\n",
			start, end, weekdayNumber(day.FxDate),
			weatherCode(day.IconDay), weatherCode(day.IconNight),
			escapeAttr(orZero(day.TempMin)), escapeAttr(orZero(day.TempMax)),
			windDirCode(day.WindDirDay), escapeAttr(orZero(day.WindScaleDay)),
			windDirCode(day.WindDirNight), escapeAttr(orZero(day.WindScaleNight)))
		return
	}
	fmt.Fprintf(b, "    <Period Timestart=\"%s\" Timeend=\"%s\" Week=\"%s\" Weather=\"%s\" Tmin=\"%s\" Tmax=\"%s\"/>\n",
		start, end, weekdayNumber(day.FxDate),
		weatherCode(day.IconDay), escapeAttr(orZero(day.TempMin)), escapeAttr(orZero(day.TempMax)))
}

// periodBounds expands a forecast date to the day-spanning Timestart/Timeend
// pair. Absent dates render "0" so the attribute list stays structurally
// stable for the fixed parsers.
func periodBounds(fxDate string) (string, string) {
	if fxDate == "" {
		return "0", "0"
	}
	return fxDate + " 00:00:00", fxDate + " 23:59:59"
}

// writeZU emits the daily-indices section: Type elements directly under ZU.
func (t *Translator) writeZU(b *strings.Builder, snap models.WeatherSnapshot) {
	fmt.Fprintf(b, "  <ZU ReportTime=\"%s\">\n", escapeAttr(reportTime(snap.IndicesUpdateTime, t.loc)))
	for _, idx := range snap.Indices {
		fmt.Fprintf(b, "    <Type Name=\"%s\" Val=\"%s\">%s</Type>\n",
			escapeAttr(indexTypeName(idx.Type)), indexCategoryVal(idx.Category), escapeText(idx.Text))
	}
	b.WriteString("  </ZU>\n")
}

// writeCF3h emits the three-hourly section: every third hour record, at most
// eight Periods.
func (t *Translator) writeCF3h(b *strings.Builder, snap models.WeatherSnapshot) {
	fmt.Fprintf(b, "  <CF3h ReportTime=\"%s\">\n", escapeAttr(reportTime(snap.HourlyUpdateTime, t.loc)))
	written := 0
	for i := 0; i < len(snap.Hourly) && written < 8; i += 3 {
		hour := snap.Hourly[i]
		fmt.Fprintf(b, "    <Period Timestart=\"%s\" Weather=\"%s\" Temperature=\"%s\" WindDir=\"%s\" WindPower=\"%s\" WindSpeed=\"%s\"/>\n",
			escapeAttr(reportTime(hour.FxTime, t.loc)), weatherCode(hour.Icon), escapeAttr(orZero(hour.Temp)),
			windDirCode(hour.WindDir), escapeAttr(orZero(hour.WindScale)), escapeAttr(orZero(hour.WindSpeed)))
		written++
	}
	b.WriteString("  </CF3h>\n")
}

func (t *Translator) writeAdvFile(b *strings.Builder, snap models.WeatherSnapshot) {
	b.WriteString("  <AdvFile>\n")
	fmt.Fprintf(b, "    <Adv Type=\"CF\" Flag=\"%s\"/>\n", escapeAttr(orZero(snap.Adv.CFFlag)))
	fmt.Fprintf(b, "    <Adv Type=\"SK\" Flag=\"%s\"/>\n", escapeAttr(orZero(snap.Adv.SKFlag)))
	fmt.Fprintf(b, "    <Adv Type=\"ZU\" Flag=\"%s\"/>\n", escapeAttr(orZero(snap.Adv.ZUFlag)))
	b.WriteString("  </AdvFile>\n")
}

// renderFlatCurrent produces the pre-TV flat current-conditions document.
func (t *Translator) renderFlatCurrent(snap models.WeatherSnapshot) string {
	var b strings.Builder
	b.WriteString(xmlProlog)
	b.WriteString("\n<weather>\n")
	t.writeFlatCurrent(&b, snap)
	b.WriteString("</weather>")
	return b.String()
}

// renderFlatForecast produces the pre-TV flat two-day forecast document.
func (t *Translator) renderFlatForecast(snap models.WeatherSnapshot) string {
	var b strings.Builder
	b.WriteString(xmlProlog)
	b.WriteString("\n<weather>\n")
	fmt.Fprintf(&b, "  <city>%s</city>\n", escapeText(cityName(snap)))
	fmt.Fprintf(&b, "  <reporttime>%s</reporttime>\n", reportTime(snap.ForecastUpdateTime, t.loc))
	t.writeFlatForecastDays(&b, snap)
	b.WriteString("</weather>")
	return b.String()
}

// renderFlatMain produces the flat combined document for legacy clients that
// request the main data type: current tags followed by the two-day forecast
// tags under one root.
func (t *Translator) renderFlatMain(snap models.WeatherSnapshot) string {
	var b strings.Builder
	b.WriteString(xmlProlog)
	b.WriteString("\n<weather>\n")
	t.writeFlatCurrent(&b, snap)
	t.writeFlatForecastDays(&b, snap)
	b.WriteString("</weather>")
	return b.String()
}

func (t *Translator) writeFlatCurrent(b *strings.Builder, snap models.WeatherSnapshot) {
	fmt.Fprintf(b, "  <city>%s</city>\n", escapeText(cityName(snap)))
	fmt.Fprintf(b, "  <temp>%s</temp>\n", orZero(snap.Now.Temp))
	fmt.Fprintf(b, "  <weather>%s</weather>\n", weatherCode(snap.Now.Icon))
	fmt.Fprintf(b, "  <reporttime>%s</reporttime>\n", reportTime(snap.NowUpdateTime, t.loc))
}

func (t *Translator) writeFlatForecastDays(b *strings.Builder, snap models.WeatherSnapshot) {
	for i, day := range snap.Forecast {
		if i >= 2 {
			break
		}
		n := i + 1
		start, end := periodBounds(day.FxDate)
		fmt.Fprintf(b, "  <startTime%d>%s</startTime%d>\n", n, start, n)
		fmt.Fprintf(b, "  <endTime%d>%s</endTime%d>\n", n, end, n)
		fmt.Fprintf(b, "  <week%d>%s</week%d>\n", n, chineseWeekday(day.FxDate), n)
		fmt.Fprintf(b, "  <condition%d>%s</condition%d>\n", n, weatherCode(day.IconDay), n)
		fmt.Fprintf(b, "  <tempMin%d>%s</tempMin%d>\n", n, orZero(day.TempMin), n)
		fmt.Fprintf(b, "  <tempMax%d>%s</tempMax%d>\n", n, orZero(day.TempMax), n)
	}
}

// cityName returns the snapshot's city name, or "Unknown" when the lookup
// carried no name. The parsers require the attribute to be present.
func cityName(snap models.WeatherSnapshot) string {
	if snap.City.Name == "" {
		return "Unknown"
	}
	return snap.City.Name
}

// orZero substitutes "0" for absent upstream fields so attribute lists stay
// positionally stable.
func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}
