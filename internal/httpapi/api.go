// Package httpapi maps the transport-agnostic service operations onto an
// HTTP surface. Authentication, scope, permission and audit all happen in
// the layers below; this package only decodes, validates and encodes.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"caseshare.org/internal/actor"
	"caseshare.org/internal/cases"
	"caseshare.org/internal/obs"
	"caseshare.org/internal/service"
)

// ReadyProbe reports readiness, pinging the database when one is wired.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options tunes the API surface.
type Options struct {
	Version        string
	TokenTTL       time.Duration
	ExportPageSize int
	RateLimitRPS   int
	RateLimitBurst int
}

// API is the HTTP layer.
type API struct {
	svc       *service.Service
	directory actor.Directory
	probe     ReadyProbe
	opts      Options
	validate  *validator.Validate
	router    chi.Router
}

// New builds the router. All /v1 case and audit routes require a bearer
// token; health, readiness and metrics stay open.
func New(svc *service.Service, directory actor.Directory, probe ReadyProbe, opts Options) *API {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	if opts.ExportPageSize <= 0 {
		opts.ExportPageSize = 500
	}
	a := &API{
		svc:       svc,
		directory: directory,
		probe:     probe,
		opts:      opts,
		validate:  validator.New(),
	}

	r := chi.NewRouter()
	r.Use(Logging)
	r.Use(SecurityHeaders)
	if opts.RateLimitRPS > 0 {
		r.Use(RateLimit(opts.RateLimitBurst, opts.RateLimitRPS))
	}
	r.Use(MaxBodyBytes(1 << 20))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Post("/v1/auth/login", a.Login)

	r.Group(func(r chi.Router) {
		r.Use(a.Authenticate)

		r.Get("/v1/cases", a.ListCases)
		r.Post("/v1/cases", a.CreateCase)
		r.Get("/v1/cases/{caseID}", a.GetCase)
		r.Put("/v1/cases/{caseID}", a.UpdateCase)

		r.Get("/v1/cases/{caseID}/plan", a.PlanVersions)
		r.Post("/v1/cases/{caseID}/plan", a.CreatePlanDraft)
		r.Put("/v1/cases/{caseID}/plan/{version}", a.UpdatePlanDraft)
		r.Get("/v1/cases/{caseID}/plan/compare", a.ComparePlanVersions)
		r.Post("/v1/cases/{caseID}/plan/{version}/approve", a.ApprovePlan)

		r.Put("/v1/cases/{caseID}/share", a.SetSharePolicy)

		r.Get("/v1/audit/export", a.ExportAudit)
	})

	a.router = r
	return a
}

// Handler returns the instrumented root handler.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "caseshare-api",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto status codes. Denials and
// unknown entities share the same uninformative body shape.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cases.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	case errors.Is(err, cases.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "forbidden"})
	case errors.Is(err, cases.ErrStaleWrite):
		writeJSON(w, http.StatusPreconditionFailed, map[string]any{"error": "stale write"})
	case errors.Is(err, cases.ErrAlreadyApproved):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "already approved"})
	case errors.Is(err, cases.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "conflict"})
	case errors.Is(err, cases.ErrRetryable):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "busy, retry"})
	case errors.Is(err, cases.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid input"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func (a *API) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return a.validate.Struct(dst)
}
