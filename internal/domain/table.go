package domain

import "slices"

// Table names as written to persistence and archives.
const (
	TableAirQualityRecord = "AirQualityRecord"
	TableCity             = "City"
	TableSource           = "Source"
	TableWeatherCondition = "WeatherCondition"
	TableCleaned          = "cleaned_air_quality"
)

// Table is a named, column-ordered view over one output table.
// Row values are string, int, time.Time or NullFloat.
type Table interface {
	Name() string
	Columns() []string
	Len() int
	Row(i int) []any
}

// Tables bundles the four star-schema tables of one run.
type Tables struct {
	Records    AirQualityRecords
	Cities     Cities
	Sources    Sources
	Conditions WeatherConditions
}

// All returns the tables dimensions first, then facts.
func (t Tables) All() []Table {
	return []Table{t.Cities, t.Sources, t.Conditions, t.Records}
}

func appendReadings(row []any, r Readings) []any {
	for _, v := range r {
		row = append(row, v)
	}
	return row
}

// AirQualityRecords is the fact table.
type AirQualityRecords []AirQualityRecord

func (AirQualityRecords) Name() string { return TableAirQualityRecord }

func (AirQualityRecords) Columns() []string {
	cols := []string{"record_id", "timestamp", "city_id", "source_id", "condition_id"}
	cols = append(cols, measurementColumns[:]...)
	return append(cols, "status")
}

func (t AirQualityRecords) Len() int { return len(t) }

func (t AirQualityRecords) Row(i int) []any {
	r := t[i]
	row := make([]any, 0, 6+int(NumMeasurements))
	row = append(row, r.RecordID, r.Timestamp, r.CityID, r.SourceID, r.ConditionID)
	row = appendReadings(row, r.Readings)
	return append(row, r.Status)
}

// Cities is the City dimension table.
type Cities []City

func (Cities) Name() string { return TableCity }

func (Cities) Columns() []string {
	return []string{"city_id", "city_name", "province", "latitude", "longitude"}
}

func (t Cities) Len() int { return len(t) }

func (t Cities) Row(i int) []any {
	c := t[i]
	return []any{c.ID, c.Name, c.Province, c.Latitude, c.Longitude}
}

// Sources is the Source dimension table.
type Sources []Source

func (Sources) Name() string { return TableSource }

func (Sources) Columns() []string { return []string{"source_id", "source_name"} }

func (t Sources) Len() int { return len(t) }

func (t Sources) Row(i int) []any { return []any{t[i].ID, t[i].Name} }

// WeatherConditions is the WeatherCondition dimension table.
type WeatherConditions []WeatherCondition

func (WeatherConditions) Name() string { return TableWeatherCondition }

func (WeatherConditions) Columns() []string { return []string{"condition_id", "condition_name"} }

func (t WeatherConditions) Len() int { return len(t) }

func (t WeatherConditions) Row(i int) []any { return []any{t[i].ID, t[i].Name} }

// CleanedRecords is the flat cleaned batch.
type CleanedRecords []CleanedRecord

func (CleanedRecords) Name() string { return TableCleaned }

func (CleanedRecords) Columns() []string {
	cols := []string{
		ColTimestamp, ColCity, ColProvince, ColCitySource, ColSource, ColWeatherCondition,
		ColLatitude, ColLongitude,
	}
	cols = append(cols, measurementColumns[:]...)
	return append(cols, ColStatus)
}

func (t CleanedRecords) Len() int { return len(t) }

func (t CleanedRecords) Row(i int) []any {
	r := t[i]
	row := make([]any, 0, 9+int(NumMeasurements))
	row = append(row, r.Timestamp, r.City, r.Province, r.CitySource, r.Source, r.WeatherCondition, r.Latitude, r.Longitude)
	row = appendReadings(row, r.Readings)
	return append(row, r.Status)
}

// citySourcePos is the position of city_source in CleanedRecords columns.
const citySourcePos = 3

// CleanedTable is the cleaned batch as archived. The city_source column is
// carried only when the raw batch had one.
type CleanedTable struct {
	Records    CleanedRecords
	CitySource bool
}

func (CleanedTable) Name() string { return TableCleaned }

func (t CleanedTable) Columns() []string {
	cols := t.Records.Columns()
	if t.CitySource {
		return cols
	}
	return slices.Delete(cols, citySourcePos, citySourcePos+1)
}

func (t CleanedTable) Len() int { return len(t.Records) }

func (t CleanedTable) Row(i int) []any {
	row := t.Records.Row(i)
	if t.CitySource {
		return row
	}
	return slices.Delete(row, citySourcePos, citySourcePos+1)
}
