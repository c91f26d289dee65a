package domain

import "strings"

// weatherVocabulary maps raw provider labels onto the controlled vocabulary.
var weatherVocabulary = map[string]string{
	"clouds": "cloudy",
	"clear":  "clear",
	"rain":   "rain",
	"snow":   "snow",
	"mist":   "mist",
	"fog":    "fog",
}

// NormalizeCategory lower-cases and trims a categorical value. Blank values
// become "unknown".
func NormalizeCategory(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return Unknown
	}
	return value
}

// NormalizeWeatherCondition canonicalises a weather label: lower/trim, then the
// blank check, then the vocabulary map. Labels outside the vocabulary pass
// through lower-cased and trimmed.
func NormalizeWeatherCondition(value string) string {
	value = NormalizeCategory(value)
	if mapped, ok := weatherVocabulary[value]; ok {
		return mapped
	}
	return value
}
