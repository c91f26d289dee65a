// Package domain models air-quality observations and the cleaning and
// star-schema rules applied to them.
//
// # Data Source
//
// Raw observations come from crawler exports: delimited text files with one row
// per (city, source, timestamp) reading. Different collection sources disagree on
// casing, units and completeness, so every batch is cleaned as a whole before it
// is split into dimension and fact tables.
//
// # Canonical Columns
//
//	timestamp, city, province, source, weather_condition, latitude, longitude,
//	aqi, pm25, pm10, o3, no2, so2, co, nh3, temperature, humidity, pressure,
//	wind_speed, wind_direction, visibility, status
//
// city_source is carried when present. Any other column (uv_index, aqi_cn, ...)
// takes part in duplicate detection and is then dropped.
//
// # Cleaning Order
//
// [Clean] applies its steps in a fixed order because later steps read the output
// of earlier ones:
//
//  1. Imputation: numeric gaps take the column mean over the whole batch,
//     categorical gaps take "unknown".
//  2. Range normalisation: clip to [0, q999] where q999 is the column's own
//     99.9th percentile (linear interpolation between closest ranks), then round
//     to 2 decimals, half to even.
//  3. Timestamp repair: unparseable values are forward-filled from the previous
//     row. The first row has nothing to fill from and must parse.
//  4. Weather conditions are mapped onto the controlled vocabulary.
//  5. city, province, city_source, source and status are lower-cased and trimmed.
//  6. Exact duplicate rows are removed, keeping the first.
//  7. Coordinates outside [-90, 90] / [-180, 180] become missing, then take the
//     mean of the valid coordinates of the same city.
//  8. Non-canonical columns are pruned.
//
// # Star Schema
//
// [BuildDimensions] discovers cities (by name and province), sources and weather
// conditions in first-seen order and numbers them from 1. [AssembleFacts] maps
// every cleaned row onto those keys. Because discovery order drives the keys,
// row order is preserved end to end and only order-preserving containers are
// used for output.
package domain
