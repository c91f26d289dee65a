package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSink struct {
	name    string
	failOn  string
	err     error
	mu      sync.Mutex
	written []string
	rows    map[string]int
	columns map[string][]string
	runIDs  []string
}

func newMockSink(name string) *mockSink {
	return &mockSink{name: name, rows: make(map[string]int), columns: make(map[string][]string)}
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) WriteTable(ctx context.Context, table domain.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if table.Name() == m.failOn {
		return m.err
	}
	m.written = append(m.written, table.Name())
	m.rows[table.Name()] = table.Len()
	m.columns[table.Name()] = table.Columns()
	m.runIDs = append(m.runIDs, pipeline.RunIDFromContext(ctx))
	return nil
}

func newTestPipeline() (*pipeline.Pipeline, *observability.Metrics) {
	// Use a fresh registry to avoid "already registered" panics in tests.
	metrics := observability.NewMetricsForTesting()
	return pipeline.New(slog.Default(), metrics), metrics
}

func loadMockBatch(t *testing.T) domain.RawBatch {
	t.Helper()
	batch, err := csvfile.ReadFile(filepath.Join("..", "..", "data", "mock", "raw_air_quality.csv"))
	require.NoError(t, err)
	return batch
}

var starTables = []string{
	domain.TableCity, domain.TableSource, domain.TableWeatherCondition, domain.TableAirQualityRecord,
}

// --- tests ---

func TestPipeline_Run_ArchivesCitySourceOnlyWhenPresent(t *testing.T) {
	p, _ := newTestPipeline()

	withColumn := loadMockBatch(t)
	archive := newMockSink("csv")
	res, err := p.Run(context.Background(), withColumn, pipeline.RunConfig{Archives: []pipeline.Sink{archive}})
	require.NoError(t, err)
	assert.True(t, res.CitySource)
	assert.Contains(t, archive.columns[domain.TableCleaned], domain.ColCitySource)

	withoutColumn := domain.NewRawBatch(withColumn.Records...)
	archive = newMockSink("csv")
	res, err = p.Run(context.Background(), withoutColumn, pipeline.RunConfig{Archives: []pipeline.Sink{archive}})
	require.NoError(t, err)
	assert.False(t, res.CitySource)
	assert.NotContains(t, archive.columns[domain.TableCleaned], domain.ColCitySource)
	assert.Len(t, archive.columns[domain.TableCleaned], len(domain.RequiredColumns()))
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	fixed := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	defer domain.SetClock(nil)

	p, metrics := newTestPipeline()
	store := newMockSink("postgres")
	archive := newMockSink("csv")

	res, err := p.Run(context.Background(), loadMockBatch(t), pipeline.RunConfig{
		Stores:   []pipeline.Sink{store},
		Archives: []pipeline.Sink{archive},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, fixed, res.StartedAt)
	assert.Equal(t, 9, res.Report.InputRows)
	assert.Equal(t, 8, res.Report.OutputRows)
	assert.Equal(t, 1, res.Report.DuplicatesRemoved)
	assert.Equal(t, []string{"uv_index", "aqi_cn"}, res.Report.DroppedColumns)

	assert.Len(t, res.Tables.Cities, 4)
	assert.Len(t, res.Tables.Sources, 2)
	assert.Len(t, res.Tables.Conditions, 7)
	assert.Len(t, res.Tables.Records, 8)

	assert.Equal(t, starTables, store.written)
	assert.Equal(t, append([]string{domain.TableCleaned}, starTables...), archive.written)
	assert.Equal(t, 8, archive.rows[domain.TableCleaned])
	for _, id := range append(store.runIDs, archive.runIDs...) {
		assert.Equal(t, res.RunID, id)
	}

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 9, testutil.ToFloat64(metrics.RowsConsumed), 0)
	assert.InDelta(t, 8, testutil.ToFloat64(metrics.RowsProduced), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.DuplicatesRemoved), 0)
	assert.InDelta(t, 16, testutil.ToFloat64(metrics.RowsWritten.WithLabelValues(domain.TableAirQualityRecord)), 0)
}

func TestPipeline_Run_CleanedValues(t *testing.T) {
	p, _ := newTestPipeline()

	res, err := p.Run(context.Background(), loadMockBatch(t), pipeline.RunConfig{})
	require.NoError(t, err)

	byCity := make(map[string]domain.City)
	for _, c := range res.Tables.Cities {
		byCity[c.Name] = c
	}
	assert.Equal(t, domain.Float(21.0285), byCity["hanoi"].Latitude)
	assert.Equal(t, "da nang", byCity["da nang"].Province)
	assert.False(t, byCity["hue"].Latitude.Valid)

	// Row 3 of the file: longitude 200 repaired from the other Hanoi rows.
	assert.Equal(t, domain.Float(105.8542), res.Cleaned[1].Longitude)
	assert.Equal(t, "cloudy", res.Cleaned[1].WeatherCondition)
	// Da Nang latitude 95 repaired from its first row.
	assert.Equal(t, domain.Float(16.0544), res.Cleaned[6].Latitude)
	// Negative pm25 floored.
	assert.Zero(t, res.Cleaned[5].Readings[domain.PM25].Float64)
	// Unparseable timestamp filled from the previous row.
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), res.Cleaned[3].Timestamp)
	assert.Equal(t, domain.Unknown, res.Cleaned[4].CitySource)
	assert.Equal(t, domain.Unknown, res.Cleaned[5].WeatherCondition)
}

func TestPipeline_Run_ReferentialIntegrity(t *testing.T) {
	p, _ := newTestPipeline()

	res, err := p.Run(context.Background(), loadMockBatch(t), pipeline.RunConfig{})
	require.NoError(t, err)

	for i, f := range res.Tables.Records {
		assert.Equal(t, i+1, f.RecordID)
		assert.GreaterOrEqual(t, f.CityID, 1)
		assert.LessOrEqual(t, f.CityID, len(res.Tables.Cities))
		assert.LessOrEqual(t, f.SourceID, len(res.Tables.Sources))
		assert.LessOrEqual(t, f.ConditionID, len(res.Tables.Conditions))
		assert.Equal(t, res.Cleaned[i].Status, f.Status)
	}
}

func TestPipeline_Transform_Deterministic(t *testing.T) {
	p, _ := newTestPipeline()
	batch := loadMockBatch(t)

	first, err := p.Transform(batch, domain.CleanOptions{})
	require.NoError(t, err)
	second, err := p.Transform(batch, domain.CleanOptions{})
	require.NoError(t, err)

	if diff := cmp.Diff(first.Tables, second.Tables); diff != "" {
		t.Errorf("tables differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Cleaned, second.Cleaned); diff != "" {
		t.Errorf("cleaned batch differs between runs (-first +second):\n%s", diff)
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestPipeline_Run_SchemaErrorWritesNothing(t *testing.T) {
	p, metrics := newTestPipeline()
	store := newMockSink("postgres")
	archive := newMockSink("csv")

	batch := loadMockBatch(t)
	batch.Columns = batch.Columns[1:]

	_, err := p.Run(context.Background(), batch, pipeline.RunConfig{
		Stores:   []pipeline.Sink{store},
		Archives: []pipeline.Sink{archive},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInputSchema)

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, pipeline.StageClean, stageErr.Stage)

	assert.Empty(t, store.written)
	assert.Empty(t, archive.written)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("error")), 0)
}

func TestPipeline_Run_StrictImputation(t *testing.T) {
	p, _ := newTestPipeline()
	store := newMockSink("postgres")

	batch := loadMockBatch(t)
	for i := range batch.Records {
		batch.Records[i].Readings[domain.Visibility] = domain.NullFloat{}
	}

	_, err := p.Run(context.Background(), batch, pipeline.RunConfig{
		Stores: []pipeline.Sink{store},
		Clean:  domain.CleanOptions{StrictImputation: true},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrImputationUndefined)
	assert.Empty(t, store.written)

	res, err := p.Run(context.Background(), batch, pipeline.RunConfig{Stores: []pipeline.Sink{store}})
	require.NoError(t, err)
	assert.Equal(t, []string{"visibility"}, res.Report.UnusableColumns)
}

func TestPipeline_Run_SinkFailure(t *testing.T) {
	p, metrics := newTestPipeline()
	store := newMockSink("postgres")
	store.failOn = domain.TableWeatherCondition
	store.err = errors.New("connection reset")
	archive := newMockSink("csv")

	_, err := p.Run(context.Background(), loadMockBatch(t), pipeline.RunConfig{
		Stores:   []pipeline.Sink{store},
		Archives: []pipeline.Sink{archive},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "postgres", perr.Sink)
	assert.Equal(t, domain.TableWeatherCondition, perr.Table)
	assert.Contains(t, err.Error(), "connection reset")

	assert.Equal(t, []string{domain.TableCity, domain.TableSource}, store.written)
	assert.Empty(t, archive.written, "archives are not written after a store failure")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SinkWrites.WithLabelValues("postgres", domain.TableWeatherCondition, "error")), 0)
}

func TestPipeline_Run_ContextCancelled(t *testing.T) {
	p, _ := newTestPipeline()
	store := newMockSink("postgres")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, loadMockBatch(t), pipeline.RunConfig{Stores: []pipeline.Sink{store}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.written)
}

func TestPipeline_Run_EmptyBatch(t *testing.T) {
	p, _ := newTestPipeline()
	store := newMockSink("postgres")

	res, err := p.Run(context.Background(), domain.NewRawBatch(), pipeline.RunConfig{Stores: []pipeline.Sink{store}})
	require.NoError(t, err)

	assert.Empty(t, res.Tables.Records)
	assert.Equal(t, starTables, store.written)
	for _, name := range starTables {
		assert.Zero(t, store.rows[name])
	}
}

func TestPipeline_Run_Concurrent(t *testing.T) {
	p, _ := newTestPipeline()
	batch := loadMockBatch(t)

	var wg sync.WaitGroup
	results := make([]pipeline.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.Run(context.Background(), batch, pipeline.RunConfig{})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results[1:] {
		assert.Equal(t, results[0].Tables, res.Tables)
	}
}
