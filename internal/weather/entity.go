// Package weather provides the client for the upstream weather provider's
// historical API and the Go representation of its response schema.
package weather

// Location carries the provider's location metadata block.
type Location struct {
	Name           string  `json:"name"`
	Region         string  `json:"region"`
	Country        string  `json:"country"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	TzID           string  `json:"tz_id"`
	LocaltimeEpoch int64   `json:"localtime_epoch"`
	Localtime      string  `json:"localtime"`
}

// HourObservation carries one hourly metric block from the provider.
type HourObservation struct {
	TimeEpoch  int64   `json:"time_epoch"`
	Time       string  `json:"time"`
	TempC      float64 `json:"temp_c"`
	TempF      float64 `json:"temp_f"`
	Humidity   int32   `json:"humidity"`
	PressureMb float64 `json:"pressure_mb"`
	WindKph    float64 `json:"wind_kph"`
	PrecipMm   float64 `json:"precip_mm"`
	Cloud      int32   `json:"cloud"`
	VisKm      float64 `json:"vis_km"`
	UV         float64 `json:"uv"`
}

// ForecastDay carries one forecast day with its hourly observations.
type ForecastDay struct {
	Date string            `json:"date"`
	Hour []HourObservation `json:"hour"`
}

// Forecast carries the provider's forecast block.
type Forecast struct {
	ForecastDay []ForecastDay `json:"forecastday"`
}

// HistoryResponse is the provider's full historical-weather response for one
// (location, date, hour) query. The raw store persists the provider payload
// verbatim; this type is what the transform step decodes it into.
type HistoryResponse struct {
	Location Location `json:"location"`
	Forecast Forecast `json:"forecast"`
}

// FirstHour returns the first hourly observation of the first forecast day,
// which for a single-hour history query is the requested observation.
// The second return value is false when the response carries no hour block.
func (r *HistoryResponse) FirstHour() (HourObservation, bool) {
	if len(r.Forecast.ForecastDay) == 0 || len(r.Forecast.ForecastDay[0].Hour) == 0 {
		return HourObservation{}, false
	}
	return r.Forecast.ForecastDay[0].Hour[0], true
}

// FirstForecastDate returns the date of the first forecast day, or the empty
// string when the response carries none.
func (r *HistoryResponse) FirstForecastDate() string {
	if len(r.Forecast.ForecastDay) == 0 {
		return ""
	}
	return r.Forecast.ForecastDay[0].Date
}
