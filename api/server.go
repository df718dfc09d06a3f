// Package api provides the HTTP API server for the factory planner.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"factory-planner/db/clickhouse"
	"factory-planner/decision/catalog"
	"factory-planner/decision/planning"
	"factory-planner/decision/resolution"
	planerrors "factory-planner/pkg/errors"
	"factory-planner/pkg/platform"
	"factory-planner/pkg/units"
)

var version = "0.1.0"

// History is the run store the server records plans in.
type History interface {
	Ping(ctx context.Context) error
	RecordRun(ctx context.Context, run *clickhouse.PlanRun) error
	ListRuns(ctx context.Context, limit int) ([]*clickhouse.PlanRun, error)
}

// Server is the HTTP API server
type Server struct {
	httpServer  *http.Server
	setup       *planning.Setup
	catalogName string
	history     History
	validate    *validator.Validate
	config      *Config
	logger      zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
	APIKey         string
	// Period used by /plan when the request names none.
	DefaultPer units.Time
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxRequestSize: 1 << 20,
		CORSOrigins:    []string{"*"},
		DefaultPer:     units.Of(1, units.Second),
	}
}

// NewServer creates a server planning with setup. history may be nil, in
// which case runs are not recorded and /api/v1/runs answers 503.
func NewServer(setup *planning.Setup, catalogName string, history History, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		setup:       setup,
		catalogName: catalogName,
		history:     history,
		validate:    validator.New(),
		config:      config,
		logger:      zerolog.Nop(),
	}
}

// WithLogger sets the request and error logger.
func (s *Server) WithLogger(logger zerolog.Logger) *Server {
	s.logger = logger
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platform.APIKeyMiddleware(s.config.APIKey))

		r.Get("/catalog/items", s.handleItems)
		r.Get("/catalog/recipes", s.handleRecipes)
		r.Post("/resolve", s.handleResolve)
		r.Post("/tree", s.handleTree)
		r.Post("/plan", s.handlePlan)
		r.Get("/runs", s.handleListRuns)
	})
	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info().
		Int("port", s.config.Port).
		Str("catalog", s.catalogName).
		Str("version", version).
		Msg("Starting factory planner API server")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown serves until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.history.Ping(ctx); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "history database not ready")
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ready",
		"catalog": s.catalogName,
	})
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.setup.Resolver().Catalog().Items())
}

func (s *Server) handleRecipes(w http.ResponseWriter, r *http.Request) {
	cat := s.setup.Resolver().Catalog()
	if item := r.URL.Query().Get("item"); item != "" {
		if _, ok := cat.Item(catalog.ItemID(item)); !ok {
			s.plannerError(w, planerrors.NewUnknownItemError(item))
			return
		}
		s.jsonResponse(w, http.StatusOK, cat.RecipesFor(catalog.ItemID(item)))
		return
	}
	s.jsonResponse(w, http.StatusOK, cat.Recipes())
}

// =============================================================================
// PLANNER ENDPOINTS
// =============================================================================

// Target is one requested item and quantity.
type Target struct {
	Item     string         `json:"item" validate:"required"`
	Quantity units.Quantity `json:"quantity"`
}

// TargetsRequest is the body shared by /resolve and /tree.
type TargetsRequest struct {
	Targets []Target `json:"targets" validate:"required,min=1,dive"`
	// OneStep limits /resolve to a single substitution.
	OneStep bool `json:"one_step,omitempty"`
}

// PlanRequest is the body of /plan.
type PlanRequest struct {
	Targets []Target `json:"targets" validate:"required,min=1,dive"`
	// Per defaults to the server's period, e.g. "1sec".
	Per  string `json:"per,omitempty"`
	Belt string `json:"belt,omitempty"`
}

// ResolveResponse lists every set from the request to the primaries.
type ResolveResponse struct {
	Iterations []resolution.RequirementSet `json:"iterations"`
	Final      resolution.RequirementSet   `json:"final"`
	Warnings   []*planerrors.PlannerError  `json:"warnings,omitempty"`
	Error      *planerrors.PlannerError    `json:"error,omitempty"`
}

// PlanResponse is a plan with the ID it was recorded under, if any.
type PlanResponse struct {
	*planning.Plan
	RunID string `json:"run_id,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req TargetsRequest
	if !s.decode(w, r, &req) {
		return
	}
	set, ok := s.targets(w, req.Targets)
	if !ok {
		return
	}
	resolver := s.setup.Resolver()

	if req.OneStep {
		steps, err := resolver.ResolveOneStepForSet(set)
		if err != nil {
			s.plannerError(w, err)
			return
		}
		next := resolution.Inputs(steps)
		s.jsonResponse(w, http.StatusOK, ResolveResponse{
			Iterations: []resolution.RequirementSet{set, next},
			Final:      next,
			Warnings:   resolution.Warnings(steps),
		})
		return
	}

	res, err := resolver.ResolveDeep(set)
	if err != nil {
		var pe *planerrors.PlannerError
		if res != nil && errors.As(err, &pe) && pe.Code == planerrors.ErrCodeNonTerminating {
			s.jsonResponse(w, http.StatusUnprocessableEntity, ResolveResponse{
				Iterations: res.Iterations,
				Final:      res.Final(),
				Warnings:   res.Warnings,
				Error:      pe,
			})
			return
		}
		s.plannerError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ResolveResponse{
		Iterations: res.Iterations,
		Final:      res.Final(),
		Warnings:   res.Warnings,
	})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	var req TargetsRequest
	if !s.decode(w, r, &req) {
		return
	}
	set, ok := s.targets(w, req.Targets)
	if !ok {
		return
	}

	forest, err := s.setup.Resolver().BuildTree(set)
	if err != nil {
		s.plannerError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, forest)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if !s.decode(w, r, &req) {
		return
	}
	set, ok := s.targets(w, req.Targets)
	if !ok {
		return
	}

	per := s.config.DefaultPer
	if req.Per != "" {
		parsed, err := units.ParseTime(req.Per)
		if err != nil {
			s.plannerError(w, err)
			return
		}
		per = parsed
	}

	var belt *catalog.Belt
	if req.Belt != "" {
		b, found := s.setup.Resolver().Catalog().Belt(catalog.BeltID(req.Belt))
		if !found {
			s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("unknown belt %q", req.Belt))
			return
		}
		belt = b
	}

	plan, err := s.setup.PlanDeep(set, per)
	converged := err == nil
	if err != nil && !errors.Is(err, planerrors.ErrNonTerminating) {
		s.plannerError(w, err)
		return
	}
	if belt != nil {
		loads, berr := planning.BeltsFor(plan.Inputs, plan.Per, belt)
		if berr != nil {
			s.plannerError(w, berr)
			return
		}
		plan.Belt, plan.Belts = belt.ID, loads
	}

	resp := PlanResponse{Plan: plan}
	if s.history != nil {
		run := clickhouse.NewRun(s.catalogName, set, s.setup.Resolver().Policy(), plan, converged)
		if herr := s.history.RecordRun(r.Context(), run); herr != nil {
			s.logger.Error().Err(herr).Msg("failed to record plan run")
		} else {
			resp.RunID = run.ID.String()
		}
	}

	if !converged {
		s.jsonResponse(w, http.StatusUnprocessableEntity, resp)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// HISTORY ENDPOINT
// =============================================================================

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*clickhouse.PlanRun{}
	}
	s.jsonResponse(w, http.StatusOK, runs)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return false
	}
	return true
}

func (s *Server) targets(w http.ResponseWriter, targets []Target) (resolution.RequirementSet, bool) {
	set := make(resolution.RequirementSet, 0, len(targets))
	for _, t := range targets {
		if !t.Quantity.IsPositive() {
			s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("quantity of %s must be positive", t.Item))
			return nil, false
		}
		set = append(set, resolution.NewRequirement(catalog.ItemID(t.Item), t.Quantity))
	}
	return set, true
}

// statusFor maps planner error codes to HTTP statuses.
func statusFor(code string) int {
	switch code {
	case planerrors.ErrCodeUnknownItem, planerrors.ErrCodeUnknownUnit,
		planerrors.ErrCodeInvalidTime, planerrors.ErrCodeInvalidRate:
		return http.StatusBadRequest
	case planerrors.ErrCodeAmbiguousRecipe, planerrors.ErrCodeUnassignableBuilding,
		planerrors.ErrCodeCyclicRecipe, planerrors.ErrCodeNonTerminating:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) plannerError(w http.ResponseWriter, err error) {
	var pe *planerrors.PlannerError
	if !errors.As(err, &pe) {
		s.logger.Error().Err(err).Msg("planner failed")
		s.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, statusFor(pe.Code), map[string]any{
		"error":   pe.Error(),
		"code":    pe.Code,
		"subject": pe.Subject,
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
