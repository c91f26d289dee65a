package domain

// Lookups map dimension keys to surrogate IDs.
type Lookups struct {
	Cities     map[CityKey]int
	Sources    map[string]int
	Conditions map[string]int
}

// Dimensions holds the dimension tables of one batch and their lookups.
type Dimensions struct {
	Cities     Cities
	Sources    Sources
	Conditions WeatherConditions
	Lookups    Lookups
}

// BuildDimensions extracts the distinct cities, sources and weather conditions
// of a cleaned batch. Surrogate keys run from 1 in order of first appearance; a
// city keeps the coordinates of its first row.
func BuildDimensions(cleaned []CleanedRecord) Dimensions {
	d := Dimensions{
		Cities:     Cities{},
		Sources:    Sources{},
		Conditions: WeatherConditions{},
		Lookups: Lookups{
			Cities:     make(map[CityKey]int),
			Sources:    make(map[string]int),
			Conditions: make(map[string]int),
		},
	}

	for _, rec := range cleaned {
		key := CityKey{Name: rec.City, Province: rec.Province}
		if _, ok := d.Lookups.Cities[key]; !ok {
			id := len(d.Cities) + 1
			d.Lookups.Cities[key] = id
			d.Cities = append(d.Cities, City{
				ID:        id,
				Name:      rec.City,
				Province:  rec.Province,
				Latitude:  rec.Latitude,
				Longitude: rec.Longitude,
			})
		}

		if _, ok := d.Lookups.Sources[rec.Source]; !ok {
			id := len(d.Sources) + 1
			d.Lookups.Sources[rec.Source] = id
			d.Sources = append(d.Sources, Source{ID: id, Name: rec.Source})
		}

		if _, ok := d.Lookups.Conditions[rec.WeatherCondition]; !ok {
			id := len(d.Conditions) + 1
			d.Lookups.Conditions[rec.WeatherCondition] = id
			d.Conditions = append(d.Conditions, WeatherCondition{ID: id, Name: rec.WeatherCondition})
		}
	}
	return d
}
