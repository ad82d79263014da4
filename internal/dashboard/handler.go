// Package dashboard serves the landing page for signed-in users.
package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/userhub/userhub-web/internal/shared"
	"github.com/userhub/userhub-web/internal/view"
)

// Handler serves /dashboard.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, templates: templates, csrf: csrf}
}

// MountRoutes registers the dashboard. Callers guard it with a session.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.show)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	data := view.BaseData(r, h.csrf, "Dashboard")
	if err := h.templates.Render(w, "pages/dashboard.html", data); err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
