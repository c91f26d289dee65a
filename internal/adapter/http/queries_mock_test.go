package http_test

import (
	"context"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/postgres"
)

// mockQueries records which query ran and with what arguments.
type mockQueries struct {
	calls    []string
	facts    []postgres.FactRow
	cityID   int
	filter   postgres.Filter
	table    string
	tableErr error
	err      error
}

func (m *mockQueries) record(name string) { m.calls = append(m.calls, name) }

func (m *mockQueries) LatestRecords(context.Context) ([]postgres.FactRow, error) {
	m.record("LatestRecords")
	return m.facts, m.err
}

func (m *mockQueries) KPISummary(context.Context) (postgres.KPISummary, error) {
	m.record("KPISummary")
	return postgres.KPISummary{}, m.err
}

func (m *mockQueries) CityIDs(context.Context) ([]int, error) {
	m.record("CityIDs")
	return []int{1, 2}, m.err
}

func (m *mockQueries) ProvinceSummary(context.Context) ([]postgres.ProvinceAQI, error) {
	m.record("ProvinceSummary")
	return nil, m.err
}

func (m *mockQueries) TimeSeries(_ context.Context, cityID int) ([]postgres.TimePoint, error) {
	m.record("TimeSeries")
	m.cityID = cityID
	return nil, m.err
}

func (m *mockQueries) MapData(context.Context) ([]postgres.MapPoint, error) {
	m.record("MapData")
	return nil, m.err
}

func (m *mockQueries) SourceBreakdown(context.Context) ([]postgres.SourceCount, error) {
	m.record("SourceBreakdown")
	return nil, m.err
}

func (m *mockQueries) Filtered(_ context.Context, f postgres.Filter) ([]postgres.FactRow, error) {
	m.record("Filtered")
	m.filter = f
	return m.facts, m.err
}

func (m *mockQueries) Realtime(context.Context) ([]postgres.FactRow, error) {
	m.record("Realtime")
	return m.facts, m.err
}

func (m *mockQueries) DailyAggregates(context.Context) ([]postgres.DailyAQI, error) {
	m.record("DailyAggregates")
	return nil, m.err
}

func (m *mockQueries) LatestByCity(context.Context) ([]postgres.FactRow, error) {
	m.record("LatestByCity")
	return m.facts, m.err
}

func (m *mockQueries) Table(_ context.Context, name string) ([]map[string]any, error) {
	m.record("Table")
	m.table = name
	if m.tableErr != nil {
		return nil, m.tableErr
	}
	return []map[string]any{{"source_id": 1, "source_name": "IQAir"}}, m.err
}
