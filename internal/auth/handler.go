package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/shared"
	"github.com/userhub/userhub-web/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	store       *Store
	templates   *view.Engine
	csrfManager *shared.CSRFManager
	validator   *validator.Validate
	formLimit   int
}

// NewHandler constructs a Handler instance. formLimit caps login and signup
// submissions per IP and minute; zero disables the limiter.
func NewHandler(logger *slog.Logger, store *Store, templates *view.Engine, csrf *shared.CSRFManager, formLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		store:       store,
		templates:   templates,
		csrfManager: csrf,
		validator:   validator.New(),
		formLimit:   formLimit,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Get("/signup", h.showSignup)
	r.Group(func(r chi.Router) {
		if h.formLimit > 0 {
			r.Use(httprate.Limit(h.formLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post("/login", h.handleLogin)
		r.Post("/signup", h.handleSignup)
	})
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
	Next   string
}

type signupForm struct {
	FullName        string `validate:"required"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

type signupPageData struct {
	Form   signupForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.IdentityFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	next := r.URL.Query().Get("next")
	if !SafeNext(next) {
		next = ""
	}
	h.render(w, r, "pages/login.html", "Log in", loginPageData{Next: next}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		sess.ClearFlashes()
	}

	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	next := r.PostFormValue("next")
	if !SafeNext(next) {
		next = ""
	}
	errs := h.validate(form, loginMessages)
	status := http.StatusBadRequest

	if len(errs) == 0 {
		_, err := h.store.Login(r.Context(), sess, backend.Credentials{Email: form.Email, Password: form.Password})
		if err == nil {
			target := "/dashboard"
			if next != "" {
				target = next
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		if !errors.Is(err, ErrAuth) {
			h.logger.Warn("login failed", slog.Any("error", err))
		}
		errs["general"] = shared.UserSafeMessage(err, "Login failed. Please try again.")
		status = failureStatus(err)
	}

	form.Password = ""
	h.render(w, r, "pages/login.html", "Log in", loginPageData{Form: form, Errors: errs, Next: next}, status)
}

func (h *Handler) showSignup(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.IdentityFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/signup.html", "Sign up", signupPageData{}, http.StatusOK)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		sess.ClearFlashes()
	}

	form := signupForm{
		FullName:        strings.TrimSpace(r.PostFormValue("full_name")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	errs := h.validate(form, signupMessages)
	status := http.StatusBadRequest

	if len(errs) == 0 {
		_, err := h.store.Signup(r.Context(), sess, backend.SignupRequest{
			FullName: form.FullName,
			Email:    form.Email,
			Password: form.Password,
		})
		if err == nil {
			sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Account created. Welcome to UserHub!"})
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		h.logger.Warn("signup failed", slog.Any("error", err))
		errs["general"] = shared.UserSafeMessage(err, "Signup failed. Please try again.")
		status = failureStatus(err)
	}

	form.Password, form.ConfirmPassword = "", ""
	h.render(w, r, "pages/signup.html", "Sign up", signupPageData{Form: form, Errors: errs}, status)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.store.Logout(r.Context(), shared.SessionFromContext(r.Context()))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

var loginMessages = map[string]string{
	"Email.required":    "Email is required",
	"Email.email":       "Enter a valid email address",
	"Password.required": "Password is required",
}

var signupMessages = map[string]string{
	"FullName.required":        "Full name is required",
	"Email.required":           "Email is required",
	"Email.email":              "Enter a valid email address",
	"Password.required":        "Password is required",
	"ConfirmPassword.required": "Please confirm your password",
	"ConfirmPassword.eqfield":  "Passwords do not match",
}

func (h *Handler) validate(form any, messages map[string]string) map[string]string {
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			errs["general"] = "Invalid form submission"
			return errs
		}
		for _, fieldErr := range fieldErrs {
			msg, ok := messages[fieldErr.Field()+"."+fieldErr.Tag()]
			if !ok {
				msg = fieldErr.Error()
			}
			if _, exists := errs[fieldErr.Field()]; !exists {
				errs[fieldErr.Field()] = msg
			}
		}
	}
	return errs
}

// failureStatus mirrors backend rejections; transport failures map to 502.
func failureStatus(err error) int {
	if errors.Is(err, ErrAuth) {
		return http.StatusUnauthorized
	}
	if code := backend.StatusCode(err); code >= 400 && code < 500 {
		return code
	}
	return http.StatusBadGateway
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	viewData := view.BaseData(r, h.csrfManager, title)
	viewData.Data = data
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render auth page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
