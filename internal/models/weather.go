package models

// WeatherSnapshot is the normalized form of one city's weather for a single
// translation call: current conditions, 7-day forecast, 24-hour forecast and
// daily indices, plus city metadata and advertisement flags. A snapshot is
// built fresh per upstream fetch and never mutated afterwards; the caches hold
// rendered XML strings, not snapshots.
type WeatherSnapshot struct {
	Now      NowConditions
	Forecast []ForecastDay
	Hourly   []HourRecord
	Indices  []DailyIndex
	City     City
	Adv      Advertisement

	// Upstream update timestamps, ISO-8601 with zone as delivered.
	NowUpdateTime      string
	ForecastUpdateTime string
	HourlyUpdateTime   string
	IndicesUpdateTime  string
}

// NowConditions holds the current observation. All fields are strings because
// the upstream API delivers them as strings and the legacy XML schemas emit
// them verbatim.
type NowConditions struct {
	Temp      string `json:"temp"`
	Icon      string `json:"icon"`
	Humidity  string `json:"humidity"`
	Pressure  string `json:"pressure"`
	WindDir   string `json:"windDir"`
	WindSpeed string `json:"windSpeed"`
	WindScale string `json:"windScale"`
	Vis       string `json:"vis"`
	FeelsLike string `json:"feelsLike"`
	Cloud     string `json:"cloud"`
	Precip    string `json:"precip"`
	Dew       string `json:"dew"`
}

// ForecastDay is one daily forecast record.
type ForecastDay struct {
	FxDate         string `json:"fxDate"`
	TempMin        string `json:"tempMin"`
	TempMax        string `json:"tempMax"`
	IconDay        string `json:"iconDay"`
	IconNight      string `json:"iconNight"`
	TextDay        string `json:"textDay"`
	TextNight      string `json:"textNight"`
	WindDirDay     string `json:"windDirDay"`
	WindDirNight   string `json:"windDirNight"`
	WindScaleDay   string `json:"windScaleDay"`
	WindScaleNight string `json:"windScaleNight"`
	WindSpeedDay   string `json:"windSpeedDay"`
	WindSpeedNight string `json:"windSpeedNight"`
	Humidity       string `json:"humidity"`
	Precip         string `json:"precip"`
	Pressure       string `json:"pressure"`
	Sunrise        string `json:"sunrise"`
	Sunset         string `json:"sunset"`
}

// HourRecord is one hourly forecast record.
type HourRecord struct {
	FxTime    string `json:"fxTime"`
	Temp      string `json:"temp"`
	Icon      string `json:"icon"`
	Text      string `json:"text"`
	Wind360   string `json:"wind360"`
	WindDir   string `json:"windDir"`
	WindScale string `json:"windScale"`
	WindSpeed string `json:"windSpeed"`
	Humidity  string `json:"humidity"`
	Precip    string `json:"precip"`
}

// DailyIndex is one lifestyle index record (dressing, cold risk, car wash...).
type DailyIndex struct {
	Date     string `json:"date"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Text     string `json:"text"`
	Level    string `json:"level"`
}

// City identifies a provider location plus the station metadata the TV main
// document exposes.
type City struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StationID string `json:"stationId"`
	Longitude string `json:"lon"`
	Latitude  string `json:"lat"`
	Postcode  string `json:"postcode"`
	Sunrise   string `json:"sunrise"`
	Sunset    string `json:"sunset"`
}

// Advertisement carries the per-section ad flags for the TV main document.
type Advertisement struct {
	CFFlag string `json:"cfFlag"`
	SKFlag string `json:"skFlag"`
	ZUFlag string `json:"zuFlag"`
}
