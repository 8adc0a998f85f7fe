// Package transform implements the bulk transform step: it reads the raw
// observation objects scheduled by the planner, reshapes each one into a flat
// analytics record, and writes the result as parquet files partitioned by
// (source_date, city_id, hour) in append mode.
package transform

import (
	"github.com/tigerroll/weatherlake/internal/objectkey"
)

// ProcessedRecord is the flat analytics record materialized for one
// observation unit. It carries parquet tags for serialization; the column set
// projects the provider's location metadata and the first forecast day's
// first hourly metrics, plus the unit identity derived from the raw key and a
// processing timestamp.
type ProcessedRecord struct {
	CityName        string  `parquet:"name=city_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	Region          string  `parquet:"name=region,type=BYTE_ARRAY,convertedtype=UTF8"`
	Country         string  `parquet:"name=country,type=BYTE_ARRAY,convertedtype=UTF8"`
	Latitude        float64 `parquet:"name=latitude,type=DOUBLE"`
	Longitude       float64 `parquet:"name=longitude,type=DOUBLE"`
	Timezone        string  `parquet:"name=timezone,type=BYTE_ARRAY,convertedtype=UTF8"`
	ForecastDate    string  `parquet:"name=forecast_date,type=BYTE_ARRAY,convertedtype=UTF8"`
	TimestampEpoch  int64   `parquet:"name=timestamp_epoch,type=INT64"`
	ObservationTime string  `parquet:"name=observation_time,type=BYTE_ARRAY,convertedtype=UTF8"`
	TemperatureC    float64 `parquet:"name=temperature_c,type=DOUBLE"`
	TemperatureF    float64 `parquet:"name=temperature_f,type=DOUBLE"`
	Humidity        int32   `parquet:"name=humidity,type=INT32"`
	PressureMb      float64 `parquet:"name=pressure_mb,type=DOUBLE"`
	WindSpeedKph    float64 `parquet:"name=wind_speed_kph,type=DOUBLE"`
	PrecipitationMm float64 `parquet:"name=precipitation_mm,type=DOUBLE"`
	CloudCover      int32   `parquet:"name=cloud_cover,type=INT32"`
	VisibilityKm    float64 `parquet:"name=visibility_km,type=DOUBLE"`
	UVIndex         float64 `parquet:"name=uv_index,type=DOUBLE"`
	CityID          string  `parquet:"name=city_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	Hour            int32   `parquet:"name=hour,type=INT32"`
	SourceDate      string  `parquet:"name=source_date,type=BYTE_ARRAY,convertedtype=UTF8"`
	ProcessingTime  int64   `parquet:"name=processing_time,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
}

// PartitionKey returns the Hive-style partition key of this record relative
// to the processed root.
func (r ProcessedRecord) PartitionKey() string {
	return objectkey.ProcessedPartitionKey(r.SourceDate, r.CityID, int(r.Hour))
}
