// Command clean runs the pipeline once over every CSV in the input directory.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/air-quality-etl/internal/app"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/ingest"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
	logger.Info("data processing pipeline completed successfully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sinks, err := app.NewSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Error("sink close error", "error", err)
		}
	}()

	p := pipeline.New(logger, observability.NewMetrics())
	svc := ingest.NewService(p, sinks.IngestOptions(cfg), logger)

	out, err := svc.RunDir(ctx)
	if err != nil {
		return err
	}
	logger.Info("run summary",
		"run_id", out.Result.RunID,
		"records", out.Records,
		"cleaned_file", out.CleanedFile,
		"cities", len(out.Result.Tables.Cities),
		"sources", len(out.Result.Tables.Sources),
		"conditions", len(out.Result.Tables.Conditions),
	)
	return nil
}
