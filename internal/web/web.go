package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"racesched/internal/config"
	"racesched/internal/ics"
	appLog "racesched/internal/log"
	"racesched/internal/model"
	"racesched/internal/pipeline"
)

// Runner is the part of the pipeline the API can trigger.
type Runner interface {
	RunSeason(ctx context.Context, year int) (pipeline.SeasonResult, error)
	RunAll(ctx context.Context, years []int) ([]pipeline.SeasonResult, error)
}

// Server exposes the latest season results over HTTP.
type Server struct {
	cfg     *config.Config
	catalog *pipeline.Catalog
	runner  Runner
	mux     *http.ServeMux

	// Years used by a refresh without ?year=.
	years func() []int
}

// NewServer constructs a new Server. runner may be nil, in which case
// POST /api/refresh answers 503. years is the season list a refresh without
// ?year= runs; nil means the configured seasons.
func NewServer(cfg *config.Config, catalog *pipeline.Catalog, runner Runner, years []int) *Server {
	s := &Server{
		cfg:     cfg,
		catalog: catalog,
		runner:  runner,
		mux:     http.NewServeMux(),
		years:   func() []int { return cfg.Years(time.Now()) },
	}
	if years != nil {
		fixed := append([]int(nil), years...)
		s.years = func() []int { return fixed }
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="racesched", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/seasons", s.handleSeasons)
	s.mux.HandleFunc("GET /api/seasons/{year}", s.handleSeason)
	s.mux.HandleFunc("GET /api/seasons/{year}/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// seasonSummary is the JSON shape of one entry in /api/seasons.
type seasonSummary struct {
	Year       int       `json:"year"`
	EventCount int       `json:"event_count"`
	Skipped    []string  `json:"skipped,omitempty"`
	FromCache  bool      `json:"from_cache"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func summarize(r pipeline.SeasonResult) seasonSummary {
	return seasonSummary{
		Year:       r.Year,
		EventCount: len(r.Events),
		Skipped:    r.Skipped,
		FromCache:  r.FromCache,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (s *Server) handleSeasons(w http.ResponseWriter, _ *http.Request) {
	years := s.catalog.Years()
	out := make([]seasonSummary, 0, len(years))
	for _, y := range years {
		if r, ok := s.catalog.Get(y); ok {
			out = append(out, summarize(r))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// seasonFromPath resolves {year}; it writes the error response itself.
func (s *Server) seasonFromPath(w http.ResponseWriter, r *http.Request) (pipeline.SeasonResult, bool) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer")
		return pipeline.SeasonResult{}, false
	}
	res, ok := s.catalog.Get(year)
	if !ok {
		writeError(w, http.StatusNotFound, "season not loaded")
		return pipeline.SeasonResult{}, false
	}
	return res, true
}

func (s *Server) handleSeason(w http.ResponseWriter, r *http.Request) {
	res, ok := s.seasonFromPath(w, r)
	if !ok {
		return
	}
	events := res.Events
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	res, ok := s.seasonFromPath(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics.Render(res.Year, res.Events, "")))
}

// handleRefresh runs the pipeline synchronously.
//
// POST /api/refresh?year=2024
//   - year: one season; without it every configured season is run.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	ctx := r.Context()

	if q := r.URL.Query().Get("year"); q != "" {
		year, err := strconv.Atoi(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
		appLog.Info("api refresh request", "year", year)
		res, err := s.runner.RunSeason(ctx, year)
		if err != nil {
			appLog.Error("api refresh failed", err, "year", year)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, []seasonSummary{summarize(res)})
		return
	}

	years := s.years()
	appLog.Info("api refresh request", "years", years)
	results, err := s.runner.RunAll(ctx, years)
	out := make([]seasonSummary, 0, len(results))
	for _, res := range results {
		out = append(out, summarize(res))
	}
	if err != nil {
		type partialResp struct {
			Error   string          `json:"error"`
			Seasons []seasonSummary `json:"seasons"`
		}
		writeJSON(w, http.StatusBadGateway, partialResp{Error: err.Error(), Seasons: out})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
