package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/userhub/userhub-web/internal/auth"
	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/confirm"
	"github.com/userhub/userhub-web/internal/shared"
	"github.com/userhub/userhub-web/internal/view"
)

// PendingSessionKey holds the action awaiting confirmation.
const PendingSessionKey = "admin_pending"

// Handler serves the admin panel.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	store     *auth.Store
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds the admin handler and registers the pending action
// slot with store so it is dropped on logout.
func NewHandler(logger *slog.Logger, service *Service, store *auth.Store, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	store.OwnKeys(PendingSessionKey)
	return &Handler{logger: logger, service: service, store: store, templates: templates, csrf: csrf}
}

// MountRoutes registers admin routes. Callers guard them with the admin role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/users/{id}/{kind}", h.request)
	r.Post("/actions/confirm", h.confirm)
	r.Post("/actions/cancel", h.cancel)
}

type pageData struct {
	Users      []backend.User
	Pagination shared.Pagination
	Dialog     *confirm.Dialog
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	m := h.service.Machine(h.store.Token(sess), h.pending(sess))
	if err := m.Dispatch(r.Context(), LoadPage{Page: pageParam(r.URL.Query().Get("page"))}); err != nil {
		h.store.HandleAPIError(w, r, err)
		return
	}
	h.render(w, r, m)
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	kind, ok := ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}
	page := pageParam(r.PostFormValue("page"))

	sess := shared.SessionFromContext(r.Context())
	m := h.service.Machine(h.store.Token(sess), h.pending(sess))
	_ = m.Dispatch(r.Context(), Request{
		TargetID:   id,
		Kind:       kind,
		TargetName: strings.TrimSpace(r.PostFormValue("name")),
		Page:       page,
	})
	if pending, ok := m.Pending(); ok {
		h.savePending(sess, pending)
		page = pending.Page
	}
	http.Redirect(w, r, adminPath(page), http.StatusSeeOther)
}

// confirm renders the refreshed list directly so the page is fetched once.
func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	pending := h.pending(sess)
	if pending == nil {
		http.Redirect(w, r, adminPath(1), http.StatusSeeOther)
		return
	}
	sess.Delete(PendingSessionKey)

	m := h.service.Machine(h.store.Token(sess), pending)
	if err := m.Dispatch(r.Context(), Confirm{}); err != nil {
		h.store.HandleAPIError(w, r, err)
		return
	}
	if _, ok := m.List().(Loaded); !ok {
		if banner := m.Banner(h.service.now()); banner != nil {
			sess.AddFlash(*banner)
		}
		http.Redirect(w, r, adminPath(pending.Page), http.StatusSeeOther)
		return
	}
	h.render(w, r, m)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	page := 1
	if pending := h.pending(sess); pending != nil {
		page = pending.Page
		m := h.service.Machine(h.store.Token(sess), pending)
		_ = m.Dispatch(r.Context(), Cancel{})
	}
	sess.Delete(PendingSessionKey)
	http.Redirect(w, r, adminPath(page), http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, m *Machine) {
	data := pageData{}
	if loaded, ok := m.List().(Loaded); ok {
		data.Users = loaded.Users
		data.Pagination = loaded.Pagination
	}
	if pending, ok := m.Pending(); ok {
		dialog := pending.Dialog()
		data.Dialog = &dialog
	}

	viewData := view.BaseData(r, h.csrf, "Admin Panel")
	if banner := m.Banner(h.service.now()); banner != nil {
		viewData.Flash = banner
	}
	viewData.Data = data
	if err := h.templates.Render(w, "pages/admin.html", viewData); err != nil {
		h.logger.Error("render admin", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) pending(sess *shared.Session) *PendingAction {
	if sess == nil {
		return nil
	}
	var p PendingAction
	if !sess.GetJSON(PendingSessionKey, &p) || p.TargetID == 0 {
		return nil
	}
	return &p
}

func (h *Handler) savePending(sess *shared.Session, p PendingAction) {
	if sess == nil {
		return
	}
	if err := sess.SetJSON(PendingSessionKey, p); err != nil {
		h.logger.Error("store pending action", slog.Any("error", err))
	}
}

func pageParam(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func adminPath(page int) string {
	if page <= 1 {
		return "/admin"
	}
	return "/admin?page=" + strconv.Itoa(page)
}
