package domain

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CleanOptions tunes batch cleaning.
type CleanOptions struct {
	// StrictImputation rejects the batch when a numeric column has no values at
	// all. Otherwise the column is reported unusable and left without values.
	StrictImputation bool
}

// CleanReport summarises what Clean changed in a batch.
type CleanReport struct {
	InputRows              int
	OutputRows             int
	DuplicatesRemoved      int
	ImputedValues          map[string]int
	FlooredValues          map[string]int
	CappedValues           map[string]int
	CategoricalsFilled     int
	TimestampsFilled       int
	CoordinatesInvalidated int
	CoordinatesImputed     int
	CoordinatesMissing     int
	UnusableColumns        []string
	DroppedColumns         []string
}

// CleanResult is the cleaned batch in input order plus its report.
type CleanResult struct {
	Records CleanedRecords
	Report  CleanReport
	// CitySource reports whether the raw batch carried a city_source column.
	CitySource bool
}

// Table returns the cleaned batch in its archived shape.
func (r CleanResult) Table() CleanedTable {
	return CleanedTable{Records: r.Records, CitySource: r.CitySource}
}

// workingRow carries a record through the cleaning steps together with the
// values that only matter until pruning.
type workingRow struct {
	CleanedRecord
	rawTimestamp string
	extra        []string
}

// Clean applies imputation, range normalisation, timestamp repair, categorical
// normalisation, deduplication, coordinate repair and column pruning to a raw
// batch, in that order. The output preserves input order. A missing required
// column rejects the whole batch.
func Clean(batch RawBatch, opts CleanOptions) (CleanResult, error) {
	if err := checkColumns(batch.Columns); err != nil {
		return CleanResult{}, err
	}

	extras := extraColumns(batch.Columns)
	rows := loadRows(batch.Records, extras)
	report := CleanReport{
		InputRows:      len(batch.Records),
		ImputedValues:  make(map[string]int),
		FlooredValues:  make(map[string]int),
		CappedValues:   make(map[string]int),
		DroppedColumns: extras,
	}

	if err := imputeMissing(rows, &report, opts); err != nil {
		return CleanResult{}, err
	}
	normalizeRanges(rows, &report)
	if err := repairTimestamps(rows, &report); err != nil {
		return CleanResult{}, err
	}
	canonicalizeCategories(rows)
	rows = dropDuplicates(rows, &report)
	repairCoordinates(rows, &report)

	records := pruneColumns(rows)
	report.OutputRows = len(records)
	return CleanResult{
		Records:    records,
		Report:     report,
		CitySource: slices.Contains(batch.Columns, ColCitySource),
	}, nil
}

func checkColumns(columns []string) error {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	var missing []string
	for _, c := range RequiredColumns() {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	reason := "required column missing"
	if len(missing) > 1 {
		reason = fmt.Sprintf("required column missing (all missing: %s)", strings.Join(missing, ", "))
	}
	return &InputSchemaError{Column: missing[0], Reason: reason}
}

// extraColumns returns the non-canonical columns in header order.
func extraColumns(columns []string) []string {
	known := map[string]bool{ColCitySource: true}
	for _, c := range RequiredColumns() {
		known[c] = true
	}
	var extras []string
	for _, c := range columns {
		if known[c] {
			continue
		}
		known[c] = true
		extras = append(extras, c)
	}
	return extras
}

func loadRows(records []RawRecord, extras []string) []workingRow {
	rows := make([]workingRow, len(records))
	for i, rec := range records {
		row := workingRow{
			CleanedRecord: CleanedRecord{
				City:             rec.City,
				Province:         rec.Province,
				CitySource:       rec.CitySource,
				Source:           rec.Source,
				WeatherCondition: rec.WeatherCondition,
				Status:           rec.Status,
				Latitude:         rec.Latitude,
				Longitude:        rec.Longitude,
				Readings:         rec.Readings,
			},
			rawTimestamp: rec.Timestamp,
		}
		if len(extras) > 0 {
			row.extra = make([]string, len(extras))
			for j, col := range extras {
				row.extra[j] = rec.Extra[col]
			}
		}
		rows[i] = row
	}
	return rows
}

func (r *workingRow) categoricals() []*string {
	return []*string{&r.City, &r.Province, &r.CitySource, &r.Source, &r.WeatherCondition, &r.Status}
}

func readingColumn(rows []workingRow, m Measurement) []NullFloat {
	col := make([]NullFloat, len(rows))
	for i := range rows {
		col[i] = rows[i].Readings[m]
	}
	return col
}

// imputeMissing fills numeric gaps with the column mean and categorical gaps
// with "unknown". Means are taken before any capping.
func imputeMissing(rows []workingRow, report *CleanReport, opts CleanOptions) error {
	for m := Measurement(0); m < NumMeasurements; m++ {
		mean, ok := columnMean(readingColumn(rows, m))
		if !ok {
			if len(rows) == 0 {
				continue
			}
			if opts.StrictImputation {
				return &ImputationUndefinedError{Column: m.Column()}
			}
			report.UnusableColumns = append(report.UnusableColumns, m.Column())
			continue
		}
		for i := range rows {
			if !rows[i].Readings[m].Valid {
				rows[i].Readings[m] = Float(mean)
				report.ImputedValues[m.Column()]++
			}
		}
	}

	for i := range rows {
		for _, field := range rows[i].categoricals() {
			if *field == "" {
				*field = Unknown
				report.CategoricalsFilled++
			}
		}
	}
	return nil
}

// normalizeRanges clips every numeric column to [0, q999] and rounds to 2
// decimals. Values that would round past q999 are rounded down instead.
func normalizeRanges(rows []workingRow, report *CleanReport) {
	for m := Measurement(0); m < NumMeasurements; m++ {
		q, ok := quantile(readingColumn(rows, m), capQuantile)
		if !ok {
			continue
		}
		upper := math.Max(q, 0)
		for i := range rows {
			r := &rows[i].Readings[m]
			if !r.Valid {
				continue
			}
			v := r.Float64
			switch {
			case v < 0:
				v = 0
				report.FlooredValues[m.Column()]++
			case v > upper:
				v = upper
				report.CappedValues[m.Column()]++
			}
			v = round2(v)
			if v > upper {
				v = floor2(upper)
			}
			r.Float64 = v
		}
	}
}

// repairTimestamps parses timestamps, forward-filling the ones that fail.
func repairTimestamps(rows []workingRow, report *CleanReport) error {
	for i := range rows {
		t, ok := ParseTimestamp(rows[i].rawTimestamp)
		if !ok {
			if i == 0 {
				return &InputSchemaError{
					Column: ColTimestamp,
					Reason: fmt.Sprintf("first row value %q does not parse and there is no earlier row to fill from", rows[i].rawTimestamp),
				}
			}
			t = rows[i-1].Timestamp
			report.TimestampsFilled++
		}
		rows[i].Timestamp = t
	}
	return nil
}

func canonicalizeCategories(rows []workingRow) {
	for i := range rows {
		r := &rows[i]
		r.WeatherCondition = NormalizeWeatherCondition(r.WeatherCondition)
		r.City = NormalizeCategory(r.City)
		r.Province = NormalizeCategory(r.Province)
		r.CitySource = NormalizeCategory(r.CitySource)
		r.Source = NormalizeCategory(r.Source)
		r.Status = NormalizeCategory(r.Status)
	}
}

// dropDuplicates removes rows equal in every field, keeping the first.
func dropDuplicates(rows []workingRow, report *CleanReport) []workingRow {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for i := range rows {
		key := rows[i].key()
		if _, dup := seen[key]; dup {
			report.DuplicatesRemoved++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rows[i])
	}
	return out
}

// key encodes every field of the row, including not-yet-pruned columns.
func (r *workingRow) key() string {
	const sep = '\x1f'
	var b strings.Builder
	b.WriteString(r.Timestamp.UTC().Format(time.RFC3339Nano))
	for _, s := range r.categoricals() {
		b.WriteByte(sep)
		b.WriteString(*s)
	}
	writeFloat := func(n NullFloat) {
		b.WriteByte(sep)
		if !n.Valid {
			b.WriteByte('-')
			return
		}
		v := n.Float64
		if v == 0 {
			v = 0 // fold -0 into +0
		}
		b.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
	}
	writeFloat(r.Latitude)
	writeFloat(r.Longitude)
	for _, v := range r.Readings {
		writeFloat(v)
	}
	for _, e := range r.extra {
		b.WriteByte(sep)
		b.WriteString(e)
	}
	return b.String()
}

// repairCoordinates drops out-of-range coordinates and fills gaps with the
// mean of the valid coordinates of the same city.
func repairCoordinates(rows []workingRow, report *CleanReport) {
	for i := range rows {
		r := &rows[i]
		if r.Latitude.Valid && !(r.Latitude.Float64 >= -90 && r.Latitude.Float64 <= 90) {
			r.Latitude = NullFloat{}
			report.CoordinatesInvalidated++
		}
		if r.Longitude.Valid && !(r.Longitude.Float64 >= -180 && r.Longitude.Float64 <= 180) {
			r.Longitude = NullFloat{}
			report.CoordinatesInvalidated++
		}
	}

	latMeans := cityMeans(rows, func(r *workingRow) NullFloat { return r.Latitude })
	lonMeans := cityMeans(rows, func(r *workingRow) NullFloat { return r.Longitude })

	fill := func(v *NullFloat, means map[string]float64, city string) {
		if v.Valid {
			return
		}
		if mean, ok := means[city]; ok {
			*v = Float(mean)
			report.CoordinatesImputed++
			return
		}
		report.CoordinatesMissing++
	}
	for i := range rows {
		r := &rows[i]
		fill(&r.Latitude, latMeans, r.City)
		fill(&r.Longitude, lonMeans, r.City)
	}
}

func cityMeans(rows []workingRow, get func(*workingRow) NullFloat) map[string]float64 {
	type acc struct {
		sum float64
		n   int
	}
	groups := make(map[string]*acc)
	for i := range rows {
		v := get(&rows[i])
		if !v.Valid {
			continue
		}
		a, ok := groups[rows[i].City]
		if !ok {
			a = &acc{}
			groups[rows[i].City] = a
		}
		a.sum += v.Float64
		a.n++
	}
	means := make(map[string]float64, len(groups))
	for city, a := range groups {
		means[city] = a.sum / float64(a.n)
	}
	return means
}

func pruneColumns(rows []workingRow) CleanedRecords {
	records := make(CleanedRecords, len(rows))
	for i := range rows {
		records[i] = rows[i].CleanedRecord
	}
	return records
}
