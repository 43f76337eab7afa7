package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/warelog/warelog/internal/audit"
	"github.com/warelog/warelog/internal/batch"
	"github.com/warelog/warelog/internal/catalog"
	"github.com/warelog/warelog/internal/drafts"
	"github.com/warelog/warelog/internal/observability"
	"github.com/warelog/warelog/internal/ops"
	"github.com/warelog/warelog/internal/reports"
	"github.com/warelog/warelog/internal/users"
	"github.com/warelog/warelog/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	CatalogHandler *catalog.Handler
	OpsHandler     *ops.Handler
	BatchHandler   *batch.Handler
	DraftsHandler  *drafts.Handler
	ReportsHandler *reports.Handler
	UsersHandler   *users.Handler
	AuditHandler   *audit.Handler
	JobsHandler    *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		params.CatalogHandler.RegisterRoutes(r)
		r.Route("/operations", params.OpsHandler.RegisterRoutes)
		r.Route("/batches", params.BatchHandler.RegisterRoutes)
		r.Route("/drafts", params.DraftsHandler.RegisterRoutes)
		r.Route("/reports", params.ReportsHandler.RegisterRoutes)
		r.Route("/users", params.UsersHandler.RegisterRoutes)
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.RegisterRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.RegisterRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
