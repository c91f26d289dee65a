// Package csvfile reads crawler CSV exports into raw batches and archives
// output tables as CSV files.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// BOM is the UTF-8 byte order mark spreadsheet tools expect on CSV exports.
const BOM = "\ufeff"

type setter func(rec *domain.RawRecord, value string)

// ReadBatch parses CSV with a header row. Header names are matched exactly;
// empty cells and cells that do not parse as numbers are missing values.
// Columns outside the canonical set are kept in RawRecord.Extra.
func ReadBatch(r io.Reader) (domain.RawBatch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.RawBatch{}, &domain.InputSchemaError{Reason: "input has no header row"}
	}
	if err != nil {
		return domain.RawBatch{}, &domain.InputSchemaError{Reason: fmt.Sprintf("read header: %v", err)}
	}

	columns := make([]string, len(header))
	setters := make([]setter, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, BOM)
		}
		if seen[name] {
			return domain.RawBatch{}, &domain.InputSchemaError{Column: name, Reason: "duplicate column in header"}
		}
		seen[name] = true
		columns[i] = name
		setters[i] = setterFor(name)
	}

	batch := domain.RawBatch{Columns: columns}
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.RawBatch{}, &domain.InputSchemaError{Reason: fmt.Sprintf("read row: %v", err)}
		}
		if len(fields) > len(columns) {
			return domain.RawBatch{}, &domain.InputSchemaError{
				Reason: fmt.Sprintf("line %d has %d fields, header has %d", line, len(fields), len(columns)),
			}
		}
		var rec domain.RawRecord
		for i, v := range fields {
			setters[i](&rec, v)
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

func setterFor(column string) setter {
	switch column {
	case domain.ColTimestamp:
		return func(r *domain.RawRecord, v string) { r.Timestamp = v }
	case domain.ColCity:
		return func(r *domain.RawRecord, v string) { r.City = v }
	case domain.ColProvince:
		return func(r *domain.RawRecord, v string) { r.Province = v }
	case domain.ColCitySource:
		return func(r *domain.RawRecord, v string) { r.CitySource = v }
	case domain.ColSource:
		return func(r *domain.RawRecord, v string) { r.Source = v }
	case domain.ColWeatherCondition:
		return func(r *domain.RawRecord, v string) { r.WeatherCondition = v }
	case domain.ColStatus:
		return func(r *domain.RawRecord, v string) { r.Status = v }
	case domain.ColLatitude:
		return func(r *domain.RawRecord, v string) { r.Latitude = parseNumber(v) }
	case domain.ColLongitude:
		return func(r *domain.RawRecord, v string) { r.Longitude = parseNumber(v) }
	}
	if m, ok := domain.MeasurementByColumn(column); ok {
		return func(r *domain.RawRecord, v string) { r.Readings[m] = parseNumber(v) }
	}
	return func(r *domain.RawRecord, v string) {
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[column] = v
	}
}

func parseNumber(raw string) domain.NullFloat {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.NullFloat{}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.NullFloat{}
	}
	return domain.Float(v)
}

// ReadFile parses one CSV file.
func ReadFile(path string) (domain.RawBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RawBatch{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	batch, err := ReadBatch(f)
	if err != nil {
		return domain.RawBatch{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return batch, nil
}

// LoadDir concatenates every *.csv file in dir in lexical order. The batch
// columns are the union of the file headers in first-seen order. It returns the
// files read.
func LoadDir(dir string) (domain.RawBatch, []string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return domain.RawBatch{}, nil, fmt.Errorf("list csv files: %w", err)
	}
	if len(files) == 0 {
		return domain.RawBatch{}, nil, fmt.Errorf("no csv files in %s", dir)
	}
	sort.Strings(files)

	var merged domain.RawBatch
	known := make(map[string]bool)
	for _, path := range files {
		batch, err := ReadFile(path)
		if err != nil {
			return domain.RawBatch{}, nil, err
		}
		for _, c := range batch.Columns {
			if !known[c] {
				known[c] = true
				merged.Columns = append(merged.Columns, c)
			}
		}
		merged.Records = append(merged.Records, batch.Records...)
	}
	return merged, files, nil
}
