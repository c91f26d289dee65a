package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/google/uuid"
)

// Stage names reported in *domain.StageError.
const (
	StageClean   = "clean"
	StageFacts   = "facts"
	StagePersist = "persist"
)

// Sink persists whole tables. Writing a table replaces any previous copy.
type Sink interface {
	Name() string
	WriteTable(ctx context.Context, table domain.Table) error
}

// RunConfig names the persistence targets and cleaning options for one run.
type RunConfig struct {
	// Stores receive the four star-schema tables.
	Stores []Sink
	// Archives receive the cleaned batch followed by the four star-schema tables.
	Archives []Sink
	Clean    domain.CleanOptions
}

// Result is everything one run produced.
type Result struct {
	RunID     string
	StartedAt time.Time
	Cleaned   domain.CleanedRecords
	Tables    domain.Tables
	Report    domain.CleanReport
	// CitySource reports whether the raw batch carried a city_source column.
	CitySource bool
}

// CleanedTable returns the cleaned batch in the shape archives receive.
func (r Result) CleanedTable() domain.CleanedTable {
	return domain.CleanedTable{Records: r.Cleaned, CitySource: r.CitySource}
}

// Pipeline runs clean, dimension, fact and persist stages over raw batches.
// It keeps no per-run state, so concurrent runs are safe.
type Pipeline struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Pipeline with the given observability.
func New(logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{logger: logger, metrics: metrics}
}

// Transform runs the pure stages over a batch without persisting anything.
func (p *Pipeline) Transform(batch domain.RawBatch, opts domain.CleanOptions) (Result, error) {
	res := Result{RunID: uuid.NewString(), StartedAt: domain.Now()}

	cleaned, err := domain.Clean(batch, opts)
	if err != nil {
		return res, &domain.StageError{Stage: StageClean, Err: err}
	}
	res.Cleaned = cleaned.Records
	res.Report = cleaned.Report
	res.CitySource = cleaned.CitySource

	dims := domain.BuildDimensions(cleaned.Records)

	facts, err := domain.AssembleFacts(cleaned.Records, dims.Lookups)
	if err != nil {
		return res, &domain.StageError{Stage: StageFacts, Err: err}
	}

	res.Tables = domain.Tables{
		Records:    facts,
		Cities:     dims.Cities,
		Sources:    dims.Sources,
		Conditions: dims.Conditions,
	}
	return res, nil
}

// Run transforms the batch and, only if every stage succeeds, writes the tables
// to the configured sinks. Stores are written before archives. The first sink
// failure aborts the run with a *domain.PersistenceError.
func (p *Pipeline) Run(ctx context.Context, batch domain.RawBatch, cfg RunConfig) (Result, error) {
	start := time.Now()
	p.metrics.RunsInFlight.Inc()
	defer p.metrics.RunsInFlight.Dec()

	res, err := p.Transform(batch, cfg.Clean)
	if err == nil {
		p.recordReport(res)
		err = p.persist(WithRunID(ctx, res.RunID), res, cfg)
	}

	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("error").Inc()
		p.logger.Error("pipeline run failed", "run_id", res.RunID, "error", err)
		return res, err
	}
	p.metrics.RunsTotal.WithLabelValues("success").Inc()

	p.logger.Info("pipeline run completed",
		"run_id", res.RunID,
		"rows_in", res.Report.InputRows,
		"rows_out", res.Report.OutputRows,
		"duplicates_removed", res.Report.DuplicatesRemoved,
		"cities", len(res.Tables.Cities),
		"sources", len(res.Tables.Sources),
		"conditions", len(res.Tables.Conditions),
		"duration", time.Since(start),
	)
	return res, nil
}

func (p *Pipeline) recordReport(res Result) {
	r := res.Report
	p.metrics.RowsConsumed.Add(float64(r.InputRows))
	p.metrics.RowsProduced.Add(float64(r.OutputRows))
	p.metrics.DuplicatesRemoved.Add(float64(r.DuplicatesRemoved))
	for col, n := range r.ImputedValues {
		p.metrics.ImputedValues.WithLabelValues(col).Add(float64(n))
	}
	for col, n := range r.CappedValues {
		p.metrics.CappedValues.WithLabelValues(col).Add(float64(n))
	}
	if len(r.UnusableColumns) > 0 {
		p.logger.Warn("numeric columns without any values left empty",
			"run_id", res.RunID, "columns", r.UnusableColumns)
	}
	if len(r.DroppedColumns) > 0 {
		p.logger.Debug("extra columns dropped", "run_id", res.RunID, "columns", r.DroppedColumns)
	}
}

func (p *Pipeline) persist(ctx context.Context, res Result, cfg RunConfig) error {
	stars := res.Tables.All()
	for _, sink := range cfg.Stores {
		if err := p.writeTables(ctx, sink, stars); err != nil {
			return err
		}
	}

	archived := append([]domain.Table{res.CleanedTable()}, stars...)
	for _, sink := range cfg.Archives {
		if err := p.writeTables(ctx, sink, archived); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) writeTables(ctx context.Context, sink Sink, tables []domain.Table) error {
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return &domain.StageError{Stage: StagePersist, Err: fmt.Errorf("write %s: %w", table.Name(), err)}
		}
		if err := sink.WriteTable(ctx, table); err != nil {
			p.metrics.SinkWrites.WithLabelValues(sink.Name(), table.Name(), "error").Inc()
			return &domain.StageError{
				Stage: StagePersist,
				Err:   &domain.PersistenceError{Sink: sink.Name(), Table: table.Name(), Err: err},
			}
		}
		p.metrics.SinkWrites.WithLabelValues(sink.Name(), table.Name(), "success").Inc()
		p.metrics.RowsWritten.WithLabelValues(table.Name()).Add(float64(table.Len()))
		p.logger.Info("table written", "sink", sink.Name(), "table", table.Name(), "rows", table.Len())
	}
	return nil
}
