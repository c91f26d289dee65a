package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/postgres"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/ingest"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds POST /main request bodies.
const maxBodyBytes = 100 << 20

// Ingester runs the pipeline for a POST /main request.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Outcome, error)
}

// Queries serves the read-side endpoints.
type Queries interface {
	LatestRecords(ctx context.Context) ([]postgres.FactRow, error)
	KPISummary(ctx context.Context) (postgres.KPISummary, error)
	CityIDs(ctx context.Context) ([]int, error)
	ProvinceSummary(ctx context.Context) ([]postgres.ProvinceAQI, error)
	TimeSeries(ctx context.Context, cityID int) ([]postgres.TimePoint, error)
	MapData(ctx context.Context) ([]postgres.MapPoint, error)
	SourceBreakdown(ctx context.Context) ([]postgres.SourceCount, error)
	Filtered(ctx context.Context, f postgres.Filter) ([]postgres.FactRow, error)
	Realtime(ctx context.Context) ([]postgres.FactRow, error)
	DailyAggregates(ctx context.Context) ([]postgres.DailyAQI, error)
	LatestByCity(ctx context.Context) ([]postgres.FactRow, error)
	Table(ctx context.Context, name string) ([]map[string]any, error)
}

var _ Queries = (*postgres.QueryRepository)(nil)

// Options wires the server's collaborators. A nil Queries disables the read
// endpoints, which then answer 503.
type Options struct {
	Addr           string
	AllowedOrigins []string
	Ready          sharedobs.ReadinessChecker
	Ingester       Ingester
	Queries        Queries
}

// Server exposes the ingest endpoint, the read-side query API, and the
// health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	ingester   Ingester
	queries    Queries
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(opts Options, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		ingester: opts.Ingester,
		queries:  opts.Queries,
		logger:   logger,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(opts.Ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/main", s.handleIngest)

	r.Group(func(r chi.Router) {
		r.Use(s.requireQueries)
		r.Get("/air-quality", s.handleLatest)
		r.Get("/kpi-summary", s.handleKPISummary)
		r.Get("/cities", s.handleCities)
		r.Get("/province-summary", s.handleProvinceSummary)
		r.Get("/time-series", s.handleTimeSeries)
		r.Get("/map-data", s.handleMapData)
		r.Get("/source-breakdown", s.handleSourceBreakdown)
		r.Get("/filter", s.handleFilter)
		r.Get("/table/{name}", s.handleTable)
		r.Get("/realtime-tab", s.handleRealtime)
		r.Get("/calculation-tab", s.handleDailyAggregates)
		r.Get("/latest-by-city", s.handleLatestByCity)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) requireQueries(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.queries == nil {
			writeError(w, http.StatusServiceUnavailable, "database not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ingestResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	CleanedFile string `json:"cleaned_file,omitempty"`
	RunID       string `json:"run_id,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	out, err := s.ingester.Ingest(r.Context(), req)
	if err != nil {
		status := ingestStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("ingest failed", "error", err)
		} else {
			s.logger.Warn("ingest rejected", "status", status, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	sharedobs.WriteJSON(w, http.StatusOK, ingestResponse{
		Status:      "success",
		Message:     fmt.Sprintf("Processed %d records", out.Records),
		CleanedFile: out.CleanedFile,
		RunID:       out.Result.RunID,
	})
}

func ingestStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrBadRequest),
		errors.Is(err, domain.ErrInputSchema),
		errors.Is(err, domain.ErrImputationUndefined):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, ingestResponse{Status: "error", Message: msg})
}
