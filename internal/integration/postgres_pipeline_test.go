//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/postgres"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPostgresStoreAndQueries writes a run to Postgres, reads it back through
// the query repository, and checks a second run replaces the tables.
func TestPostgresStoreAndQueries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := startPostgres(ctx, t)
	db, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	writer := postgres.NewTableWriter(db, 3, discardLogger())
	require.NoError(t, writer.CheckReadiness(ctx))

	p := newPipeline()
	cfg := pipeline.RunConfig{Stores: []pipeline.Sink{writer}}
	_, err = p.Run(ctx, loadMockBatch(t), cfg)
	require.NoError(t, err)

	repo := postgres.NewQueryRepository(db, 10*time.Second)

	latest, err := repo.LatestRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, latest, 8)

	cities, err := repo.Table(ctx, domain.TableCity)
	require.NoError(t, err)
	assert.Len(t, cities, 4)

	_, err = repo.Table(ctx, "pg_user")
	assert.ErrorIs(t, err, postgres.ErrUnknownTable)

	ids, err := repo.CityIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, ids)

	byCity, err := repo.LatestByCity(ctx)
	require.NoError(t, err)
	assert.Len(t, byCity, 4)

	cityID := 1
	filtered, err := repo.Filtered(ctx, postgres.Filter{CityID: &cityID})
	require.NoError(t, err)
	require.NotEmpty(t, filtered)
	for _, r := range filtered {
		assert.Equal(t, 1, r.CityID)
	}

	sources, err := repo.SourceBreakdown(ctx)
	require.NoError(t, err)
	total := 0
	for _, s := range sources {
		total += s.Total
	}
	assert.Equal(t, 8, total)

	_, err = repo.KPISummary(ctx)
	require.NoError(t, err)
	_, err = repo.ProvinceSummary(ctx)
	require.NoError(t, err)
	_, err = repo.MapData(ctx)
	require.NoError(t, err)
	_, err = repo.DailyAggregates(ctx)
	require.NoError(t, err)
	_, err = repo.TimeSeries(ctx, 1)
	require.NoError(t, err)

	// Realtime is relative to the clock; pin it just after the newest reading.
	domain.SetClock(clockwork.NewFakeClockAt(latest[0].Timestamp.Add(30 * time.Minute)))
	t.Cleanup(func() { domain.SetClock(nil) })
	recent, err := repo.Realtime(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, recent)

	// A second run replaces rather than appends.
	_, err = p.Run(ctx, loadMockBatch(t), cfg)
	require.NoError(t, err)
	latest, err = repo.LatestRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, latest, 8)
}
