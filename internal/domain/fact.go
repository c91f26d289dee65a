package domain

import "fmt"

// AssembleFacts resolves each cleaned row's dimension keys and numbers the rows
// from 1 in input order. The lookups must come from BuildDimensions over the
// same cleaned batch; a miss returns a *ConsistencyError.
func AssembleFacts(cleaned []CleanedRecord, lookups Lookups) (AirQualityRecords, error) {
	facts := make(AirQualityRecords, 0, len(cleaned))
	for i, rec := range cleaned {
		row := i + 1

		cityID, ok := lookups.Cities[CityKey{Name: rec.City, Province: rec.Province}]
		if !ok {
			return nil, &ConsistencyError{Dimension: TableCity, Key: fmt.Sprintf("(%q, %q)", rec.City, rec.Province), Row: row}
		}
		sourceID, ok := lookups.Sources[rec.Source]
		if !ok {
			return nil, &ConsistencyError{Dimension: TableSource, Key: fmt.Sprintf("%q", rec.Source), Row: row}
		}
		conditionID, ok := lookups.Conditions[rec.WeatherCondition]
		if !ok {
			return nil, &ConsistencyError{Dimension: TableWeatherCondition, Key: fmt.Sprintf("%q", rec.WeatherCondition), Row: row}
		}

		facts = append(facts, AirQualityRecord{
			RecordID:    row,
			Timestamp:   rec.Timestamp,
			CityID:      cityID,
			SourceID:    sourceID,
			ConditionID: conditionID,
			Readings:    rec.Readings,
			Status:      rec.Status,
		})
	}
	return facts, nil
}
