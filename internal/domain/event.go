package domain

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"strconv"
	"time"
)

// Measurement indexes the fixed set of numeric readings carried by every record.
type Measurement int

const (
	AQI Measurement = iota
	PM25
	PM10
	O3
	NO2
	SO2
	CO
	NH3
	Temperature
	Humidity
	Pressure
	WindSpeed
	WindDirection
	Visibility

	NumMeasurements
)

var measurementColumns = [NumMeasurements]string{
	"aqi", "pm25", "pm10", "o3", "no2", "so2", "co", "nh3",
	"temperature", "humidity", "pressure", "wind_speed", "wind_direction", "visibility",
}

// Column returns the canonical column name of the measurement.
func (m Measurement) Column() string {
	if m < 0 || m >= NumMeasurements {
		return ""
	}
	return measurementColumns[m]
}

// MeasurementColumns returns the measurement column names in Measurement order.
func MeasurementColumns() []string {
	return append([]string(nil), measurementColumns[:]...)
}

// MeasurementByColumn finds the measurement stored under a column name.
func MeasurementByColumn(name string) (Measurement, bool) {
	for m, col := range measurementColumns {
		if col == name {
			return Measurement(m), true
		}
	}
	return 0, false
}

// Canonical column names.
const (
	ColTimestamp        = "timestamp"
	ColCity             = "city"
	ColProvince         = "province"
	ColCitySource       = "city_source"
	ColSource           = "source"
	ColWeatherCondition = "weather_condition"
	ColStatus           = "status"
	ColLatitude         = "latitude"
	ColLongitude        = "longitude"
)

// Unknown replaces blank categorical values.
const Unknown = "unknown"

// RequiredColumns lists the columns every raw batch must carry, in canonical order.
func RequiredColumns() []string {
	cols := []string{
		ColTimestamp, ColCity, ColProvince, ColSource, ColWeatherCondition,
		ColLatitude, ColLongitude,
	}
	cols = append(cols, measurementColumns[:]...)
	return append(cols, ColStatus)
}

// NullFloat is a float64 that may be absent.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float returns a present NullFloat.
func Float(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// Value implements driver.Valuer so absent values are stored as NULL.
func (n NullFloat) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Float64, nil
}

// Scan implements sql.Scanner.
func (n *NullFloat) Scan(src any) error {
	var f sql.NullFloat64
	if err := f.Scan(src); err != nil {
		return err
	}
	*n = NullFloat{Float64: f.Float64, Valid: f.Valid}
	return nil
}

// String renders the value for delimited text output; absent values are empty.
func (n NullFloat) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Float64, 'f', -1, 64)
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Float64); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// Readings holds one value per Measurement.
type Readings [NumMeasurements]NullFloat

// RawRecord is one observation as supplied by the input collaborator. Empty
// strings and invalid NullFloats are missing values.
type RawRecord struct {
	Timestamp        string
	City             string
	Province         string
	CitySource       string
	Source           string
	WeatherCondition string
	Status           string
	Latitude         NullFloat
	Longitude        NullFloat
	Readings         Readings

	// Extra holds non-canonical columns keyed by column name.
	Extra map[string]string
}

// RawBatch is a tabular batch of raw records together with the header it was read with.
type RawBatch struct {
	Columns []string
	Records []RawRecord
}

// NewRawBatch builds a batch carrying exactly the required columns.
func NewRawBatch(records ...RawRecord) RawBatch {
	return RawBatch{Columns: RequiredColumns(), Records: records}
}

// CleanedRecord is a RawRecord after every cleaning invariant holds.
type CleanedRecord struct {
	Timestamp        time.Time
	City             string
	Province         string
	CitySource       string
	Source           string
	WeatherCondition string
	Status           string
	Latitude         NullFloat
	Longitude        NullFloat
	Readings         Readings
}

// CityKey identifies a city dimension row.
type CityKey struct {
	Name     string
	Province string
}

// City is a row of the City dimension.
type City struct {
	ID        int
	Name      string
	Province  string
	Latitude  NullFloat
	Longitude NullFloat
}

// Source is a row of the Source dimension.
type Source struct {
	ID   int
	Name string
}

// WeatherCondition is a row of the WeatherCondition dimension.
type WeatherCondition struct {
	ID   int
	Name string
}

// AirQualityRecord is a row of the fact table.
type AirQualityRecord struct {
	RecordID    int
	Timestamp   time.Time
	CityID      int
	SourceID    int
	ConditionID int
	Readings    Readings
	Status      string
}
