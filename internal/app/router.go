package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/userhub/userhub-web/internal/admin"
	"github.com/userhub/userhub-web/internal/auth"
	"github.com/userhub/userhub-web/internal/dashboard"
	"github.com/userhub/userhub-web/internal/observability"
	"github.com/userhub/userhub-web/internal/platform/httpx"
	"github.com/userhub/userhub-web/internal/profile"
	"github.com/userhub/userhub-web/internal/rbac"
	"github.com/userhub/userhub-web/internal/shared"
	"github.com/userhub/userhub-web/web"
)

// HealthCheck probes one dependency for /healthz.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthStore        *auth.Store
	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	ProfileHandler   *profile.Handler
	AdminHandler     *admin.Handler
	RBACMiddleware   rbac.Middleware
	Metrics          *observability.Metrics
	HealthChecks     map[string]HealthCheck
	// RequestLog toggles chi's request logger.
	RequestLog bool
}

// NewRouter constructs the chi.Router with UserHub defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		AuthStore:      params.AuthStore,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.RequestLog {
		r.Use(chimw.Logger)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, shared.ErrNotFound)
	})

	r.Get("/healthz", healthHandler(params.HealthChecks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	params.AuthHandler.MountRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireSession())
		params.DashboardHandler.MountRoutes(r)
		r.Route("/profile", params.ProfileHandler.MountRoutes)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireRole(shared.RoleAdmin))
		params.AdminHandler.MountRoutes(r)
	})

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler answers 200 when every check passes and 503 otherwise.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		report := healthReport{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			report.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				report.Checks[name] = "down"
				report.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			report.Checks[name] = "up"
		}
		httpx.JSON(w, status, report)
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
