// Package rbac guards routes by sign-in state and role.
package rbac

import (
	"log/slog"
	"net/http"

	"github.com/userhub/userhub-web/internal/auth"
	"github.com/userhub/userhub-web/internal/shared"
)

const (
	deniedRedirect = "/dashboard"
	deniedMessage  = "You do not have access to that page"
)

// Middleware wires route guard helpers for HTTP handlers. It relies on the
// identity placed in the request context by auth.Store.Middleware.
type Middleware struct {
	Logger *slog.Logger
}

// RequireSession sends anonymous visitors to the login page.
func (m Middleware) RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := shared.IdentityFromContext(r.Context()); !ok {
				http.Redirect(w, r, auth.LoginPathFor(r), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole ensures the current user holds one of roles. Anonymous
// visitors go to login, signed-in users without the role to the dashboard.
func (m Middleware) RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				http.Redirect(w, r, auth.LoginPathFor(r), http.StatusSeeOther)
				return
			}
			if hasRole(id, roles) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("route denied",
					slog.Int64("user_id", id.UserID),
					slog.String("role", string(id.Role)),
					slog.String("path", r.URL.Path))
			}
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: shared.FlashInfo, Message: deniedMessage})
			}
			http.Redirect(w, r, deniedRedirect, http.StatusSeeOther)
		})
	}
}

func hasRole(id shared.Identity, roles []shared.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if id.Role == role {
			return true
		}
	}
	return false
}
