package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrUnknownTable is returned for table names outside the star schema.
var ErrUnknownTable = errors.New("unknown table")

// readableTables are the only tables exposed by name.
var readableTables = map[string]bool{
	domain.TableAirQualityRecord: true,
	domain.TableCity:             true,
	domain.TableSource:           true,
	domain.TableWeatherCondition: true,
}

const (
	latestLimit   = 100
	filteredLimit = 200
)

// FactRow is one AirQualityRecord row.
type FactRow struct {
	RecordID      int              `db:"record_id" json:"record_id"`
	Timestamp     time.Time        `db:"timestamp" json:"timestamp"`
	CityID        int              `db:"city_id" json:"city_id"`
	SourceID      int              `db:"source_id" json:"source_id"`
	ConditionID   int              `db:"condition_id" json:"condition_id"`
	AQI           domain.NullFloat `db:"aqi" json:"aqi"`
	PM25          domain.NullFloat `db:"pm25" json:"pm25"`
	PM10          domain.NullFloat `db:"pm10" json:"pm10"`
	O3            domain.NullFloat `db:"o3" json:"o3"`
	NO2           domain.NullFloat `db:"no2" json:"no2"`
	SO2           domain.NullFloat `db:"so2" json:"so2"`
	CO            domain.NullFloat `db:"co" json:"co"`
	NH3           domain.NullFloat `db:"nh3" json:"nh3"`
	Temperature   domain.NullFloat `db:"temperature" json:"temperature"`
	Humidity      domain.NullFloat `db:"humidity" json:"humidity"`
	Pressure      domain.NullFloat `db:"pressure" json:"pressure"`
	WindSpeed     domain.NullFloat `db:"wind_speed" json:"wind_speed"`
	WindDirection domain.NullFloat `db:"wind_direction" json:"wind_direction"`
	Visibility    domain.NullFloat `db:"visibility" json:"visibility"`
	Status        string           `db:"status" json:"status"`
}

// KPISummary aggregates the latest readings.
type KPISummary struct {
	AvgAQI    domain.NullFloat `json:"avg_aqi"`
	AvgPM25   domain.NullFloat `json:"avg_pm25"`
	TopCityID string           `json:"top_city_id"`
}

type kpiRow struct {
	AQI    domain.NullFloat `db:"aqi"`
	PM25   domain.NullFloat `db:"pm25"`
	CityID int              `db:"city_id"`
}

// ProvinceAQI is the mean AQI of one province.
type ProvinceAQI struct {
	Province string           `db:"province" json:"province"`
	AvgAQI   domain.NullFloat `db:"avg_aqi" json:"avg_aqi"`
}

// TimePoint is one AQI reading of a city.
type TimePoint struct {
	Timestamp time.Time        `db:"timestamp" json:"timestamp"`
	AQI       domain.NullFloat `db:"aqi" json:"aqi"`
}

// MapPoint places one reading on a map.
type MapPoint struct {
	AQI       domain.NullFloat `db:"aqi" json:"aqi"`
	CityName  string           `db:"city_name" json:"city_name"`
	Latitude  domain.NullFloat `db:"latitude" json:"latitude"`
	Longitude domain.NullFloat `db:"longitude" json:"longitude"`
}

// SourceCount counts the records of one source.
type SourceCount struct {
	SourceName string `db:"source_name" json:"source_name"`
	Total      int    `db:"total" json:"total"`
}

// DailyAQI aggregates AQI per city and day.
type DailyAQI struct {
	CityID int              `db:"city_id" json:"city_id"`
	Day    time.Time        `db:"day" json:"day"`
	AvgAQI domain.NullFloat `db:"avg_aqi" json:"avg_aqi"`
	MaxAQI domain.NullFloat `db:"max_aqi" json:"max_aqi"`
}

// Filter narrows fact rows. Nil fields are ignored; the time range applies only
// when both ends are set.
type Filter struct {
	CityID   *int
	SourceID *int
	Start    *time.Time
	End      *time.Time
}

// QueryRepository runs the read-side queries. Every query is bounded by the
// configured timeout and takes its inputs as bind parameters.
type QueryRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewQueryRepository creates a QueryRepository.
func NewQueryRepository(db *sqlx.DB, timeout time.Duration) *QueryRepository {
	return &QueryRepository{db: db, timeout: timeout}
}

func (r *QueryRepository) selectRows(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.db.SelectContext(ctx, dest, query, args...); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

var factTable = pq.QuoteIdentifier(domain.TableAirQualityRecord)

// LatestRecords returns the newest fact rows.
func (r *QueryRepository) LatestRecords(ctx context.Context) ([]FactRow, error) {
	rows := []FactRow{}
	err := r.selectRows(ctx, &rows, `SELECT * FROM `+factTable+` ORDER BY "timestamp" DESC LIMIT $1`, latestLimit)
	return rows, err
}

// KPISummary averages AQI and PM2.5 over the newest rows and names the city
// with the highest AQI among them.
func (r *QueryRepository) KPISummary(ctx context.Context) (KPISummary, error) {
	var rows []kpiRow
	err := r.selectRows(ctx, &rows, `SELECT aqi, pm25, city_id FROM `+factTable+` ORDER BY "timestamp" DESC LIMIT $1`, latestLimit)
	if err != nil {
		return KPISummary{}, err
	}
	return summarize(rows), nil
}

func summarize(rows []kpiRow) KPISummary {
	var summary KPISummary
	var aqiSum, pm25Sum float64
	var aqiCount, pm25Count int
	maxAQI := math.Inf(-1)
	for _, row := range rows {
		if row.AQI.Valid {
			aqiSum += row.AQI.Float64
			aqiCount++
			if row.AQI.Float64 > maxAQI {
				maxAQI = row.AQI.Float64
				summary.TopCityID = fmt.Sprint(row.CityID)
			}
		}
		if row.PM25.Valid {
			pm25Sum += row.PM25.Float64
			pm25Count++
		}
	}
	if aqiCount > 0 {
		summary.AvgAQI = domain.Float(round1(aqiSum / float64(aqiCount)))
	}
	if pm25Count > 0 {
		summary.AvgPM25 = domain.Float(round1(pm25Sum / float64(pm25Count)))
	}
	return summary
}

func round1(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}

// CityIDs lists the cities that have records.
func (r *QueryRepository) CityIDs(ctx context.Context) ([]int, error) {
	ids := []int{}
	err := r.selectRows(ctx, &ids, `SELECT DISTINCT city_id FROM `+factTable+` ORDER BY city_id`)
	return ids, err
}

// ProvinceSummary ranks provinces by mean AQI.
func (r *QueryRepository) ProvinceSummary(ctx context.Context) ([]ProvinceAQI, error) {
	rows := []ProvinceAQI{}
	err := r.selectRows(ctx, &rows, `
		SELECT c.province, AVG(a.aqi) AS avg_aqi
		FROM `+factTable+` a
		JOIN "City" c ON a.city_id = c.city_id
		GROUP BY c.province
		ORDER BY avg_aqi DESC NULLS LAST`)
	return rows, err
}

// TimeSeries returns the AQI history of one city, oldest first.
func (r *QueryRepository) TimeSeries(ctx context.Context, cityID int) ([]TimePoint, error) {
	rows := []TimePoint{}
	err := r.selectRows(ctx, &rows, `
		SELECT "timestamp", aqi
		FROM `+factTable+`
		WHERE city_id = $1
		ORDER BY "timestamp" ASC`, cityID)
	return rows, err
}

// MapData returns the newest readings with their city coordinates.
func (r *QueryRepository) MapData(ctx context.Context) ([]MapPoint, error) {
	rows := []MapPoint{}
	err := r.selectRows(ctx, &rows, `
		SELECT a.aqi, c.city_name, c.latitude, c.longitude
		FROM `+factTable+` a
		JOIN "City" c ON a.city_id = c.city_id
		ORDER BY a."timestamp" DESC
		LIMIT $1`, filteredLimit)
	return rows, err
}

// SourceBreakdown counts records per source.
func (r *QueryRepository) SourceBreakdown(ctx context.Context) ([]SourceCount, error) {
	rows := []SourceCount{}
	err := r.selectRows(ctx, &rows, `
		SELECT s.source_name, COUNT(*) AS total
		FROM `+factTable+` a
		JOIN "Source" s ON a.source_id = s.source_id
		GROUP BY s.source_name
		ORDER BY total DESC, s.source_name`)
	return rows, err
}

// Filtered returns fact rows matching f, newest first.
func (r *QueryRepository) Filtered(ctx context.Context, f Filter) ([]FactRow, error) {
	query, args := buildFilterQuery(f)
	rows := []FactRow{}
	err := r.selectRows(ctx, &rows, query, args...)
	return rows, err
}

func buildFilterQuery(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, vals ...any) {
		for _, v := range vals {
			args = append(args, v)
			cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(args)), 1)
		}
		conds = append(conds, cond)
	}
	if f.CityID != nil {
		add("city_id = ?", *f.CityID)
	}
	if f.SourceID != nil {
		add("source_id = ?", *f.SourceID)
	}
	if f.Start != nil && f.End != nil {
		add(`"timestamp" BETWEEN ? AND ?`, f.Start.UTC(), f.End.UTC())
	}

	limit := latestLimit
	query := `SELECT * FROM ` + factTable
	if len(conds) > 0 {
		limit = filteredLimit
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY "timestamp" DESC LIMIT $%d`, len(args))
	return query, args
}

// Realtime returns fact rows from the last hour, newest first.
func (r *QueryRepository) Realtime(ctx context.Context) ([]FactRow, error) {
	since := domain.Now().Add(-time.Hour)
	rows := []FactRow{}
	err := r.selectRows(ctx, &rows, `
		SELECT * FROM `+factTable+`
		WHERE "timestamp" >= $1
		ORDER BY "timestamp" DESC`, since)
	return rows, err
}

// DailyAggregates returns mean and max AQI per city and day, newest day first.
func (r *QueryRepository) DailyAggregates(ctx context.Context) ([]DailyAQI, error) {
	rows := []DailyAQI{}
	err := r.selectRows(ctx, &rows, `
		SELECT city_id, date_trunc('day', "timestamp") AS day, AVG(aqi) AS avg_aqi, MAX(aqi) AS max_aqi
		FROM `+factTable+`
		GROUP BY city_id, day
		ORDER BY day DESC, city_id
		LIMIT $1`, filteredLimit)
	return rows, err
}

// LatestByCity returns the newest fact row of every city.
func (r *QueryRepository) LatestByCity(ctx context.Context) ([]FactRow, error) {
	rows := []FactRow{}
	err := r.selectRows(ctx, &rows, `
		SELECT DISTINCT ON (city_id) *
		FROM `+factTable+`
		ORDER BY city_id, "timestamp" DESC`)
	return rows, err
}

// Table returns every row of one star-schema table as column/value maps.
func (r *QueryRepository) Table(ctx context.Context, name string) ([]map[string]any, error) {
	if !readableTables[name] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `SELECT * FROM `+pq.QuoteIdentifier(name))
	if err != nil {
		return nil, fmt.Errorf("query table: %w", err)
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
