// Package app wires configuration into the pipeline's sinks and query side.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkaadapter "github.com/couchcryptid/air-quality-etl/internal/adapter/kafka"
	minioadapter "github.com/couchcryptid/air-quality-etl/internal/adapter/minio"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/postgres"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/ingest"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jmoiron/sqlx"
)

const (
	connectAttempts = 5
	initialBackoff  = 500 * time.Millisecond
	maxBackoff      = 8 * time.Second
)

// Sinks holds the persistence targets built from configuration.
type Sinks struct {
	Stores   []pipeline.Sink
	Archives []pipeline.Sink
	// Queries is nil when no database is configured.
	Queries *postgres.QueryRepository

	checkers []sharedobs.ReadinessChecker
	closers  []func() error
}

// NewSinks connects every configured backend. The CSV archive is added per run
// by the ingest service and is not part of Sinks.
func NewSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Sinks, error) {
	s := &Sinks{}

	if cfg.DatabaseEnabled() {
		db, err := connectWithRetry(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		writer := postgres.NewTableWriter(db, cfg.DBWriteChunkSize, logger)
		s.Stores = append(s.Stores, writer)
		s.Queries = postgres.NewQueryRepository(db, cfg.QueryTimeout)
		s.checkers = append(s.checkers, writer)
		s.closers = append(s.closers, db.Close)
		logger.Info("postgres store enabled", "chunk_size", cfg.DBWriteChunkSize)
	} else {
		logger.Info("postgres store disabled")
	}

	if cfg.KafkaEnabled() {
		pub := kafkaadapter.NewTablePublisher(cfg, logger)
		s.Archives = append(s.Archives, pub)
		s.closers = append(s.closers, pub.Close)
		logger.Info("kafka table stream enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if cfg.MinioEnabled() {
		store, err := minioadapter.NewArtifactStore(ctx, cfg, logger)
		if err != nil {
			s.Close() //nolint:errcheck // already failing
			return nil, err
		}
		s.Archives = append(s.Archives, store)
		logger.Info("minio archive enabled", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
	}

	return s, nil
}

// CheckReadiness reports the first backend that is not reachable.
func (s *Sinks) CheckReadiness(ctx context.Context) error {
	for _, c := range s.checkers {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every backend connection.
func (s *Sinks) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IngestOptions returns the ingest configuration for these sinks.
func (s *Sinks) IngestOptions(cfg *config.Config) ingest.Options {
	return ingest.Options{
		InputDir:     cfg.InputDir,
		CleanedDir:   cfg.CleanedDir,
		TransformDir: cfg.TransformDir,
		Stores:       s.Stores,
		Archives:     s.Archives,
		Clean:        domain.CleanOptions{StrictImputation: cfg.StrictImputation},
	}
}

func connectWithRetry(ctx context.Context, dsn string, logger *slog.Logger) (*sqlx.DB, error) {
	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := postgres.Connect(ctx, dsn)
		if err == nil {
			return db, nil
		}
		lastErr = err
		logger.Warn("postgres not reachable, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return nil, fmt.Errorf("connect postgres after %d attempts: %w", connectAttempts, lastErr)
}
