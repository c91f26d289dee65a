package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/postgres"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
)

// respond writes v as JSON, or a 500 if the query failed.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		s.logger.Error("query failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, v)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	rows, err := s.queries.LatestRecords(r.Context())
	s.respond(w, r, rows, err)
}

func (s *Server) handleKPISummary(w http.ResponseWriter, r *http.Request) {
	kpi, err := s.queries.KPISummary(r.Context())
	s.respond(w, r, kpi, err)
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	ids, err := s.queries.CityIDs(r.Context())
	s.respond(w, r, ids, err)
}

func (s *Server) handleProvinceSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := s.queries.ProvinceSummary(r.Context())
	s.respond(w, r, rows, err)
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	cityID, err := intParam(r, "city_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cityID == nil {
		writeError(w, http.StatusBadRequest, "city_id is required")
		return
	}
	rows, err := s.queries.TimeSeries(r.Context(), *cityID)
	s.respond(w, r, rows, err)
}

func (s *Server) handleMapData(w http.ResponseWriter, r *http.Request) {
	rows, err := s.queries.MapData(r.Context())
	s.respond(w, r, rows, err)
}

func (s *Server) handleSourceBreakdown(w http.ResponseWriter, r *http.Request) {
	rows, err := s.queries.SourceBreakdown(r.Context())
	s.respond(w, r, rows, err)
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.queries.Filtered(r.Context(), f)
	s.respond(w, r, rows, err)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rows, err := s.queries.Table(r.Context(), name)
	if errors.Is(err, postgres.ErrUnknownTable) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown table %q", name))
		return
	}
	s.respond(w, r, rows, err)
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	rows, err := s.queries.Realtime(r.Context())
	s.respond(w, r, rows, err)
}

func (s *Server) handleDailyAggregates(w http.ResponseWriter, r *http.Request) {
	rows, err := s.queries.DailyAggregates(r.Context())
	s.respond(w, r, rows, err)
}

func (s *Server) handleLatestByCity(w http.ResponseWriter, r *http.Request) {
	rows, err := s.queries.LatestByCity(r.Context())
	s.respond(w, r, rows, err)
}

// parseFilter reads the /filter query parameters. Zero ids are ignored and the
// time range applies only when both ends are given.
func parseFilter(r *http.Request) (postgres.Filter, error) {
	var f postgres.Filter
	var err error

	if f.CityID, err = intParam(r, "city_id"); err != nil {
		return f, err
	}
	if f.SourceID, err = intParam(r, "source_id"); err != nil {
		return f, err
	}
	if f.CityID != nil && *f.CityID == 0 {
		f.CityID = nil
	}
	if f.SourceID != nil && *f.SourceID == 0 {
		f.SourceID = nil
	}

	start, end := r.URL.Query().Get("start_time"), r.URL.Query().Get("end_time")
	if start == "" || end == "" {
		return f, nil
	}
	from, ok := domain.ParseTimestamp(start)
	if !ok {
		return f, fmt.Errorf("invalid start_time %q", start)
	}
	to, ok := domain.ParseTimestamp(end)
	if !ok {
		return f, fmt.Errorf("invalid end_time %q", end)
	}
	f.Start, f.End = &from, &to
	return f, nil
}

func intParam(r *http.Request, key string) (*int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", key, raw)
	}
	return &n, nil
}
