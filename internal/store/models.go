// Package store is the persistence layer: gorm manages the connection
// pool, while every read and write that needs upsert or geospatial
// semantics goes through hand-written parameterized SQL in sql.go.
package store

import "time"

// Source is a spatio-temporally stable producer of observations or
// forecasts. Identity is the (ObservationType, StationCode, Lat, Lon,
// Height) tuple enforced by a unique index; a station that moves yields a
// new row rather than an update to this one.
type Source struct {
	ID              int64   `gorm:"primaryKey;column:id" json:"id"`
	ObservationType string  `gorm:"column:observation_type" json:"observation_type"`
	StationCode     string  `gorm:"column:station_code" json:"dwd_station_id"`
	WMOStationID    *string `gorm:"column:wmo_station_id" json:"wmo_station_id"`
	StationName     string  `gorm:"column:station_name" json:"station_name"`
	Lat             float64 `gorm:"column:lat" json:"lat"`
	Lon             float64 `gorm:"column:lon" json:"lon"`
	Height          float64 `gorm:"column:height" json:"height"`
}

func (Source) TableName() string { return "sources" }

// SourceResult is a Source plus the great-circle distance from the query
// point, populated only in geographic lookup mode.
type SourceResult struct {
	Source
	Distance *float64 `gorm:"column:distance_m" json:"distance,omitempty"`
}

// WeatherRecord is one normalized observation or forecast point, keyed by
// (SourceID, Timestamp). Measurement fields are pointers so a nil value is
// distinguishable from a measured zero.
type WeatherRecord struct {
	SourceID      int64     `gorm:"column:source_id" json:"source_id"`
	Timestamp     time.Time `gorm:"column:timestamp" json:"timestamp"`
	Temperature   *float64  `gorm:"column:temperature" json:"temperature"`
	WindDirection *float64  `gorm:"column:wind_direction" json:"wind_direction"`
	WindSpeed     *float64  `gorm:"column:wind_speed" json:"wind_speed"`
	Precipitation *float64  `gorm:"column:precipitation" json:"precipitation"`
	Sunshine      *float64  `gorm:"column:sunshine" json:"sunshine"`
	PressureMSL   *float64  `gorm:"column:pressure_msl" json:"pressure_msl"`
}

func (WeatherRecord) TableName() string { return "weather" }

// ParsedFile records that a remote file's contents have already been
// committed, keyed by URL, so the poller can skip it on a later pass whose
// fingerprint (LastModified, FileSize) is unchanged.
type ParsedFile struct {
	URL          string    `gorm:"primaryKey;column:url"`
	LastModified time.Time `gorm:"column:last_modified"`
	FileSize     int64     `gorm:"column:file_size"`
	ParsedAt     time.Time `gorm:"column:parsed_at"`
}

func (ParsedFile) TableName() string { return "parsed_files" }

// Fingerprint is the change-detection pair the poller compares against a
// remote directory listing.
type Fingerprint struct {
	LastModified time.Time
	FileSize     int64
}

// weatherFields gives query code uniform access to the nullable measurement
// columns, in the order they appear in the schema.
var weatherFields = []struct {
	name string
	get  func(*WeatherRecord) *float64
	set  func(*WeatherRecord, *float64)
}{
	{"temperature",
		func(r *WeatherRecord) *float64 { return r.Temperature },
		func(r *WeatherRecord, v *float64) { r.Temperature = v }},
	{"wind_direction",
		func(r *WeatherRecord) *float64 { return r.WindDirection },
		func(r *WeatherRecord, v *float64) { r.WindDirection = v }},
	{"wind_speed",
		func(r *WeatherRecord) *float64 { return r.WindSpeed },
		func(r *WeatherRecord, v *float64) { r.WindSpeed = v }},
	{"precipitation",
		func(r *WeatherRecord) *float64 { return r.Precipitation },
		func(r *WeatherRecord, v *float64) { r.Precipitation = v }},
	{"sunshine",
		func(r *WeatherRecord) *float64 { return r.Sunshine },
		func(r *WeatherRecord, v *float64) { r.Sunshine = v }},
	{"pressure_msl",
		func(r *WeatherRecord) *float64 { return r.PressureMSL },
		func(r *WeatherRecord, v *float64) { r.PressureMSL = v }},
}
