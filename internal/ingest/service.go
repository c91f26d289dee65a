// Package ingest turns uploaded or on-disk crawler CSVs into pipeline runs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
)

var (
	// ErrBadRequest marks requests that name no input or an input outside the
	// allowed directory.
	ErrBadRequest = errors.New("bad request")
	// ErrNotFound marks a csv_file that does not exist.
	ErrNotFound = errors.New("csv file not found")
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, batch domain.RawBatch, cfg pipeline.RunConfig) (pipeline.Result, error)
}

// Request names the CSV to process. CSVContent takes precedence over CSVFile.
type Request struct {
	CSVFile    string `json:"csv_file"`
	CSVContent string `json:"csv_content"`
}

// Outcome summarises a completed ingest.
type Outcome struct {
	Records     int
	CleanedFile string
	Result      pipeline.Result
}

// Options configures a Service.
type Options struct {
	InputDir     string
	CleanedDir   string
	TransformDir string
	// Stores and Archives are added to every run next to the CSV archive.
	Stores   []pipeline.Sink
	Archives []pipeline.Sink
	Clean    domain.CleanOptions
}

// Service runs the pipeline over CSV input and archives the results on disk.
type Service struct {
	runner Runner
	opts   Options
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(runner Runner, opts Options, logger *slog.Logger) *Service {
	return &Service{runner: runner, opts: opts, logger: logger}
}

// Ingest processes a single CSV given inline or by path. A csv_file path is
// resolved under the input directory; its cleaned output is written to a
// sub-directory of the cleaned directory named after the file's parent.
func (s *Service) Ingest(ctx context.Context, req Request) (Outcome, error) {
	var (
		batch      domain.RawBatch
		cleanedDir = s.opts.CleanedDir
		err        error
	)
	switch {
	case strings.TrimSpace(req.CSVContent) != "":
		batch, err = csvfile.ReadBatch(strings.NewReader(req.CSVContent))
		if err != nil {
			return Outcome{}, fmt.Errorf("parse csv content: %w", err)
		}
	case req.CSVFile != "":
		path, err := s.resolve(req.CSVFile)
		if err != nil {
			return Outcome{}, err
		}
		batch, err = csvfile.ReadFile(path)
		if err != nil {
			return Outcome{}, err
		}
		if parent := filepath.Dir(path); parent != filepath.Clean(s.absInputDir()) {
			cleanedDir = filepath.Join(s.opts.CleanedDir, filepath.Base(parent))
		}
	default:
		return Outcome{}, fmt.Errorf("%w: csv_file or csv_content is required", ErrBadRequest)
	}

	return s.run(ctx, batch, cleanedDir)
}

// RunDir processes every CSV in the input directory as one batch.
func (s *Service) RunDir(ctx context.Context) (Outcome, error) {
	batch, files, err := csvfile.LoadDir(s.opts.InputDir)
	if err != nil {
		return Outcome{}, fmt.Errorf("load input: %w", err)
	}
	s.logger.Info("input loaded", "files", len(files), "rows", len(batch.Records), "dir", s.opts.InputDir)
	return s.run(ctx, batch, s.opts.CleanedDir)
}

func (s *Service) run(ctx context.Context, batch domain.RawBatch, cleanedDir string) (Outcome, error) {
	archive := csvfile.NewDirWriter(cleanedDir, s.opts.TransformDir)
	cfg := pipeline.RunConfig{
		Stores:   s.opts.Stores,
		Archives: append([]pipeline.Sink{archive}, s.opts.Archives...),
		Clean:    s.opts.Clean,
	}

	res, err := s.runner.Run(ctx, batch, cfg)
	if err != nil {
		return Outcome{Result: res}, err
	}
	out := Outcome{
		Records:     len(res.Cleaned),
		CleanedFile: archive.PathFor(domain.TableCleaned),
		Result:      res,
	}
	s.logger.Info("cleaned data saved", "run_id", res.RunID, "records", out.Records, "cleaned_file", out.CleanedFile)
	return out, nil
}

func (s *Service) absInputDir() string {
	abs, err := filepath.Abs(s.opts.InputDir)
	if err != nil {
		return s.opts.InputDir
	}
	return abs
}

// resolve maps a csv_file value onto an existing file inside the input directory.
func (s *Service) resolve(name string) (string, error) {
	root := s.absInputDir()
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: csv file outside allowed directory", ErrBadRequest)
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	return path, nil
}
