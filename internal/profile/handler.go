package profile

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/userhub/userhub-web/internal/auth"
	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/shared"
	"github.com/userhub/userhub-web/internal/view"
)

// Handler serves /profile.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	store     *auth.Store
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, store *auth.Store, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, store: store, templates: templates, csrf: csrf}
}

// MountRoutes registers profile routes. Callers guard them with a session.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
	r.Post("/", h.update)
	r.Post("/password", h.changePassword)
}

type profileFields struct {
	FullName string
	Email    string
}

type pageData struct {
	Editing        bool
	Profile        profileFields
	ProfileErrors  map[string]string
	PasswordErrors map[string]string
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	data := pageData{
		Editing: r.URL.Query().Get("mode") == "edit",
		Profile: profileFields{FullName: id.FullName, Email: id.Email},
	}
	h.render(w, r, data, nil, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	sess.ClearFlashes()

	in := ProfileInput{FullName: r.PostFormValue("full_name"), Email: r.PostFormValue("email")}
	id, err := h.service.UpdateProfile(r.Context(), h.store.Token(sess), in)
	if err == nil {
		h.store.UpdateUser(sess, id)
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Profile updated successfully!"})
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	if h.store.HandleAPIError(w, r, err) {
		return
	}

	data := pageData{Editing: true, Profile: profileFields{FullName: in.FullName, Email: in.Email}}
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		data.ProfileErrors = verr.Fields
		h.render(w, r, data, nil, http.StatusBadRequest)
		return
	}
	h.logger.Warn("update profile", slog.Any("error", err))
	h.render(w, r, data, errorBanner(err, updateFailedMessage), failureStatus(err))
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	sess.ClearFlashes()

	in := PasswordInput{
		CurrentPassword: r.PostFormValue("current_password"),
		NewPassword:     r.PostFormValue("new_password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	err := h.service.ChangePassword(r.Context(), h.store.Token(sess), in)
	if err == nil {
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Password changed successfully!"})
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	if h.store.HandleAPIError(w, r, err) {
		return
	}

	id, _ := shared.IdentityFromContext(r.Context())
	data := pageData{Profile: profileFields{FullName: id.FullName, Email: id.Email}}
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		data.PasswordErrors = verr.Fields
		var banner *shared.FlashMessage
		if msg, ok := verr.Fields["ConfirmPassword"]; ok && msg == passwordMismatch {
			banner = &shared.FlashMessage{Kind: shared.FlashError, Message: passwordMismatch}
		}
		h.render(w, r, data, banner, http.StatusBadRequest)
		return
	}
	h.logger.Warn("change password", slog.Any("error", err))
	h.render(w, r, data, errorBanner(err, passwordFailedMessage), failureStatus(err))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data pageData, banner *shared.FlashMessage, status int) {
	viewData := view.BaseData(r, h.csrf, "Profile")
	if banner != nil {
		viewData.Flash = banner
	}
	viewData.Data = data
	if err := h.templates.RenderStatus(w, status, "pages/profile.html", viewData); err != nil {
		h.logger.Error("render profile", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func errorBanner(err error, fallback string) *shared.FlashMessage {
	return &shared.FlashMessage{Kind: shared.FlashError, Message: shared.UserSafeMessage(err, fallback)}
}

func failureStatus(err error) int {
	if code := backend.StatusCode(err); code >= 400 && code < 500 {
		return code
	}
	return http.StatusBadGateway
}
