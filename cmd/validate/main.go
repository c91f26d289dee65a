// Command validate checks an archived run for star-schema integrity: table
// headers, contiguous surrogate keys, unique dimension rows, fact foreign keys,
// and the invariants of the cleaned batch.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -cleaned data/data_cleaned/cleaned_air_quality.csv \
//	  -transform-dir data/data_transform
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// tableSpec names an archived table and the key column its rows are numbered by.
type tableSpec struct {
	name    string
	columns []string
	key     string
}

var specs = []tableSpec{
	{name: domain.TableCity, columns: domain.Cities{}.Columns(), key: "city_id"},
	{name: domain.TableSource, columns: domain.Sources{}.Columns(), key: "source_id"},
	{name: domain.TableWeatherCondition, columns: domain.WeatherConditions{}.Columns(), key: "condition_id"},
	{name: domain.TableAirQualityRecord, columns: domain.AirQualityRecords{}.Columns(), key: "record_id"},
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	cleaned := flag.String("cleaned", "", "path to the cleaned batch CSV")
	transformDir := flag.String("transform-dir", "", "directory holding the star-schema CSVs")
	flag.Parse()

	if *cleaned == "" || *transformDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(os.Stdout, *cleaned, *transformDir); code != 0 {
		os.Exit(code)
	}
}

func run(out io.Writer, cleanedPath, transformDir string) int {
	fmt.Fprintln(out, "=== Air Quality Archive Validation ===")

	tables := make(map[string]csvTable, len(specs))
	for _, s := range specs {
		t, err := loadCSV(filepath.Join(transformDir, s.name+".csv"))
		if err != nil {
			fmt.Fprintf(out, "FATAL: load %s: %v\n", s.name, err)
			return 1
		}
		tables[s.name] = t
	}
	cleaned, err := loadCSV(cleanedPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load cleaned batch: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateHeaders(tables, cleaned),
		validateKeys(tables),
		validateDimensions(tables),
		validateReferences(tables, cleaned),
		validateCleaned(cleaned),
	}

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintf(out, "\nRows: %d cleaned, %d facts, %d cities, %d sources, %d conditions\n",
		len(cleaned.rows),
		len(tables[domain.TableAirQualityRecord].rows),
		len(tables[domain.TableCity].rows),
		len(tables[domain.TableSource].rows),
		len(tables[domain.TableWeatherCondition].rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Data loading ──

// csvRow is a parsed CSV row with field values keyed by header name.
type csvRow struct {
	lineNum int
	fields  map[string]string
}

type csvTable struct {
	header []string
	rows   []csvRow
}

func loadCSV(path string) (csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return csvTable{}, err
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return csvTable{}, err
	}
	if len(all) == 0 {
		return csvTable{}, fmt.Errorf("no header in %s", path)
	}

	header := all[0]
	header[0] = strings.TrimPrefix(header[0], csvfile.BOM)
	t := csvTable{header: header}
	for i, row := range all[1:] {
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(row) {
				fields[h] = row[j]
			}
		}
		t.rows = append(t.rows, csvRow{lineNum: i + 2, fields: fields})
	}
	return t, nil
}

// ── Phase 1: Headers ──

func validateHeaders(tables map[string]csvTable, cleaned csvTable) *phase {
	p := &phase{name: "Phase 1: Table headers"}
	for _, s := range specs {
		if got := tables[s.name].header; !slices.Equal(got, s.columns) {
			p.errorf("%s: header %v, want %v", s.name, got, s.columns)
		}
	}
	want := domain.CleanedTable{CitySource: slices.Contains(cleaned.header, domain.ColCitySource)}.Columns()
	if !slices.Equal(cleaned.header, want) {
		p.errorf("%s: header %v, want %v", domain.TableCleaned, cleaned.header, want)
	}
	return p
}

// ── Phase 2: Surrogate keys ──
// Keys must run 1..n in row order.

func validateKeys(tables map[string]csvTable) *phase {
	p := &phase{name: "Phase 2: Contiguous surrogate keys"}
	for _, s := range specs {
		for i, row := range tables[s.name].rows {
			id, err := strconv.Atoi(row.fields[s.key])
			if err != nil || id != i+1 {
				p.errorf("%s line %d: %s=%q, want %d", s.name, row.lineNum, s.key, row.fields[s.key], i+1)
			}
		}
	}
	return p
}

// ── Phase 3: Dimension uniqueness ──

func validateDimensions(tables map[string]csvTable) *phase {
	p := &phase{name: "Phase 3: Unique dimension rows"}
	checkUnique(p, tables[domain.TableCity], domain.TableCity, "city_name", "province")
	checkUnique(p, tables[domain.TableSource], domain.TableSource, "source_name")
	checkUnique(p, tables[domain.TableWeatherCondition], domain.TableWeatherCondition, "condition_name")
	return p
}

func checkUnique(p *phase, t csvTable, name string, cols ...string) {
	seen := make(map[string]int, len(t.rows))
	for _, row := range t.rows {
		parts := make([]string, len(cols))
		for i, c := range cols {
			parts[i] = row.fields[c]
		}
		key := strings.Join(parts, "\x1f")
		if first, dup := seen[key]; dup {
			p.errorf("%s line %d: %v repeats line %d", name, row.lineNum, parts, first)
			continue
		}
		seen[key] = row.lineNum
	}
}

// ── Phase 4: Referential integrity ──

func validateReferences(tables map[string]csvTable, cleaned csvTable) *phase {
	p := &phase{name: "Phase 4: Fact foreign keys"}

	facts := tables[domain.TableAirQualityRecord].rows
	if len(facts) != len(cleaned.rows) {
		p.errorf("%d fact rows for %d cleaned rows", len(facts), len(cleaned.rows))
	}

	refs := []struct {
		column string
		table  string
	}{
		{"city_id", domain.TableCity},
		{"source_id", domain.TableSource},
		{"condition_id", domain.TableWeatherCondition},
	}
	for _, row := range facts {
		for _, ref := range refs {
			id, err := strconv.Atoi(row.fields[ref.column])
			if err != nil || id < 1 || id > len(tables[ref.table].rows) {
				p.errorf("%s line %d: %s=%q does not resolve in %s",
					domain.TableAirQualityRecord, row.lineNum, ref.column, row.fields[ref.column], ref.table)
			}
		}
	}
	return p
}

// ── Phase 5: Cleaned batch ──

func validateCleaned(cleaned csvTable) *phase {
	p := &phase{name: "Phase 5: Cleaned batch invariants"}

	seen := make(map[string]int, len(cleaned.rows))
	for _, row := range cleaned.rows {
		f := row.fields
		if _, ok := domain.ParseTimestamp(f[domain.ColTimestamp]); !ok {
			p.errorf("line %d: timestamp %q does not parse", row.lineNum, f[domain.ColTimestamp])
		}
		for _, c := range []string{domain.ColCity, domain.ColProvince, domain.ColSource, domain.ColWeatherCondition, domain.ColStatus} {
			if strings.TrimSpace(f[c]) == "" {
				p.errorf("line %d: %s is blank", row.lineNum, c)
			}
		}
		checkRange(p, row, domain.ColLatitude, 90)
		checkRange(p, row, domain.ColLongitude, 180)
		for _, c := range domain.MeasurementColumns() {
			if v, ok := parseValue(f[c]); ok && v < 0 {
				p.errorf("line %d: %s=%g is negative", row.lineNum, c, v)
			}
		}

		key := rowKey(cleaned.header, row)
		if first, dup := seen[key]; dup {
			p.errorf("line %d: duplicates line %d", row.lineNum, first)
			continue
		}
		seen[key] = row.lineNum
	}
	return p
}

func checkRange(p *phase, row csvRow, col string, limit float64) {
	v, ok := parseValue(row.fields[col])
	if ok && (v < -limit || v > limit) {
		p.errorf("line %d: %s=%g outside [-%g, %g]", row.lineNum, col, v, limit, limit)
	}
}

func parseValue(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

func rowKey(header []string, row csvRow) string {
	var b strings.Builder
	for _, h := range header {
		b.WriteString(row.fields[h])
		b.WriteByte('\x1f')
	}
	return b.String()
}
