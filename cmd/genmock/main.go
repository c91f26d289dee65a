// Command genmock generates a reproducible dirty crawler export for exercising
// the cleaner. It then runs the actual pipeline stages over the generated batch
// and prints the resulting counts for updating test assertions.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/generated_air_quality.csv \
//	  -rows 500 -seed 42 -dirty 0.05
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

var baseDate = time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)

type city struct {
	name     string
	province string
	lat, lon float64
}

var cities = []city{
	{"Hanoi", "Ha Noi", 21.0285, 105.8542},
	{"Ho Chi Minh City", "Ho Chi Minh", 10.8231, 106.6297},
	{"Da Nang", "Da Nang", 16.0544, 108.2022},
	{"Hue", "Thua Thien Hue", 16.4637, 107.5909},
	{"Hai Phong", "Hai Phong", 20.8449, 106.6881},
	{"Can Tho", "Can Tho", 10.0452, 105.7469},
}

var (
	sources    = []string{"OpenWeather", "IQAir", "AQICN"}
	conditions = []string{"Clouds", "Clear", "Rain", "Mist", "Haze", "Drizzle", "Thunderstorm"}
	statuses   = []string{"Good", "Moderate", "Unhealthy for Sensitive Groups", "Unhealthy"}
)

// measurementRange gives the plausible [lo, hi) band per reading.
var measurementRange = map[string][2]float64{
	"aqi": {10, 200}, "pm25": {2, 120}, "pm10": {5, 180}, "o3": {5, 120},
	"no2": {1, 80}, "so2": {0.5, 40}, "co": {100, 1500}, "nh3": {0.1, 20},
	"temperature": {18, 38}, "humidity": {40, 100}, "pressure": {995, 1020},
	"wind_speed": {0, 12}, "wind_direction": {0, 360}, "visibility": {1000, 10000},
}

var header = append(append([]string{
	domain.ColTimestamp, domain.ColCity, domain.ColProvince, domain.ColCitySource, domain.ColSource,
	domain.ColWeatherCondition, domain.ColLatitude, domain.ColLongitude,
}, domain.MeasurementColumns()...), domain.ColStatus, "uv_index")

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock/generated_air_quality.csv", "output path for the generated CSV")
	rows := flag.Int("rows", 500, "number of rows before duplicates are injected")
	seed := flag.Uint64("seed", 42, "random seed")
	dirty := flag.Float64("dirty", 0.05, "probability of corrupting each cell")
	flag.Parse()

	if *rows < 1 || *dirty < 0 || *dirty > 1 {
		flag.Usage()
		return fmt.Errorf("-rows must be positive and -dirty within [0, 1]")
	}

	g := newGenerator(*seed, *dirty)
	records := g.generate(*rows)

	if err := writeCSV(*out, records); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d rows to %s", len(records), *out)

	// Set a fixed clock for a reproducible run start.
	domain.SetClock(clockwork.NewFakeClockAt(baseDate.Add(24 * time.Hour)))
	defer domain.SetClock(nil)

	batch, err := csvfile.ReadFile(*out)
	if err != nil {
		return fmt.Errorf("reading fixture back: %w", err)
	}
	p := pipeline.New(slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	res, err := p.Transform(batch, domain.CleanOptions{})
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	printStats(os.Stdout, res)
	return nil
}

type generator struct {
	rng   *rand.Rand
	dirty float64
}

func newGenerator(seed uint64, dirty float64) *generator {
	return &generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), dirty: dirty}
}

func (g *generator) corrupt() bool { return g.rng.Float64() < g.dirty }

func (g *generator) pick(values []string) string { return values[g.rng.IntN(len(values))] }

// generate produces n rows, one city per row in rotation with hourly
// timestamps, then re-appends a few rows verbatim as duplicates.
func (g *generator) generate(n int) [][]string {
	records := make([][]string, 0, n+n/20)
	for i := range n {
		c := cities[i%len(cities)]
		ts := baseDate.Add(time.Duration(i/len(cities)) * time.Hour)
		records = append(records, g.row(c, ts, i == 0))
	}
	for range n / 20 {
		dup := records[g.rng.IntN(n)]
		records = append(records, append([]string(nil), dup...))
	}
	return records
}

// row builds one record. The first row always keeps a valid timestamp so
// forward-filling has a starting point.
func (g *generator) row(c city, ts time.Time, first bool) []string {
	row := make([]string, 0, len(header))

	stamp := ts.Format(csvfile.TimeLayout)
	if g.corrupt() && !first {
		stamp = "not-a-time"
	}
	row = append(row, stamp, g.cityName(c), c.province, g.blankOr(g.pick(sources)), g.pick(sources), g.condition())
	row = append(row, g.coordinate(c.lat, 90), g.coordinate(c.lon, 180))

	for _, col := range domain.MeasurementColumns() {
		row = append(row, g.reading(measurementRange[col]))
	}
	return append(row, g.blankOr(g.pick(statuses)), strconv.Itoa(g.rng.IntN(11)))
}

// cityName sometimes varies case and whitespace the way crawler exports do.
func (g *generator) cityName(c city) string {
	if !g.corrupt() {
		return c.name
	}
	switch g.rng.IntN(3) {
	case 0:
		return "  " + c.name + " "
	case 1:
		return strings.ToUpper(c.name)
	}
	return ""
}

func (g *generator) condition() string {
	cond := g.pick(conditions)
	if !g.corrupt() {
		return cond
	}
	switch g.rng.IntN(3) {
	case 0:
		return " " + strings.ToUpper(cond) + " "
	case 1:
		return "overcast clouds"
	}
	return ""
}

func (g *generator) coordinate(v, limit float64) string {
	if g.corrupt() {
		if g.rng.IntN(2) == 0 {
			return ""
		}
		return formatFloat(limit + 1 + g.rng.Float64()*10)
	}
	return formatFloat(v)
}

func (g *generator) reading(r [2]float64) string {
	v := r[0] + g.rng.Float64()*(r[1]-r[0])
	if g.corrupt() {
		switch g.rng.IntN(4) {
		case 0:
			return ""
		case 1:
			return "n/a"
		case 2:
			return formatFloat(-v)
		default:
			return formatFloat(r[1] * 50)
		}
	}
	return formatFloat(v)
}

func (g *generator) blankOr(v string) string {
	if g.corrupt() {
		return ""
	}
	return v
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func writeCSV(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return f.Close()
}

func printStats(w io.Writer, res pipeline.Result) {
	r := res.Report
	fmt.Fprintln(w, "\n=== Stats for updating test assertions ===")
	fmt.Fprintf(w, "Rows: in=%d, out=%d, duplicates=%d\n", r.InputRows, r.OutputRows, r.DuplicatesRemoved)
	fmt.Fprintf(w, "Dimensions: cities=%d, sources=%d, conditions=%d\n",
		len(res.Tables.Cities), len(res.Tables.Sources), len(res.Tables.Conditions))
	printCounts(w, "Imputed", r.ImputedValues)
	printCounts(w, "Floored", r.FlooredValues)
	printCounts(w, "Capped", r.CappedValues)
}

func printCounts(w io.Writer, label string, counts map[string]int) {
	cols := make([]string, 0, len(counts))
	for c := range counts {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	fmt.Fprintf(w, "%s:", label)
	for _, c := range cols {
		fmt.Fprintf(w, " %s=%d", c, counts[c])
	}
	fmt.Fprintln(w)
}
