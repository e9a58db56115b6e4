package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rukunwarga/rukun/internal/announcements"
	"github.com/rukunwarga/rukun/internal/auth"
	"github.com/rukunwarga/rukun/internal/documents"
	"github.com/rukunwarga/rukun/internal/observability"
	"github.com/rukunwarga/rukun/internal/payments"
	"github.com/rukunwarga/rukun/internal/platform/httpx"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
	"github.com/rukunwarga/rukun/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	Resolver             auth.Resolver
	Capabilities         rbac.Checker
	AuthHandler          *auth.Handler
	CapabilitiesHandler  *rbac.Handler
	DocumentsHandler     *documents.Handler
	AnnouncementsHandler *announcements.Handler
	PaymentsHandler      *payments.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Resolver: params.Resolver,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.Config != nil && !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.CapabilitiesHandler != nil {
		r.Route("/me", params.CapabilitiesHandler.MountRoutes)
	}
	if params.DocumentsHandler != nil {
		r.Route("/documents", params.DocumentsHandler.MountRoutes)
	}
	if params.AnnouncementsHandler != nil {
		r.Route("/announcements", params.AnnouncementsHandler.MountRoutes)
	}
	if params.PaymentsHandler != nil {
		r.Route("/payments", params.PaymentsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		caps := params.Capabilities
		if caps == nil {
			caps = rbac.DefaultModel()
		}
		guard := rbac.Middleware{Model: caps, Logger: params.Logger}
		r.Route("/jobs", func(r chi.Router) {
			r.Use(guard.RequireAny(shared.CapFinancesManage, shared.CapActivityView))
			params.JobHandler.MountRoutes(r)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})
	return r
}
