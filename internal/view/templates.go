package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/userhub/userhub-web/internal/backend"
	"github.com/userhub/userhub-web/internal/shared"
	"github.com/userhub/userhub-web/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	// Identity is nil for anonymous visitors; the navbar hides itself then.
	Identity *shared.Identity
	Data     any
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	titler := cases.Title(language.English)
	funcMap := template.FuncMap{
		"formatDate": formatDate,
		"title": func(s any) string {
			return titler.String(fmt.Sprint(s))
		},
		"statusBadge": func(status any) string {
			if fmt.Sprint(status) == string(shared.StatusActive) {
				return "badge-success"
			}
			return "badge-danger"
		},
		"roleBadge": func(role any) string {
			if fmt.Sprint(role) == string(shared.RoleAdmin) {
				return "badge-secondary"
			}
			return "badge-primary"
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData. The output is
// buffered so a failing template never leaves a half written page.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus is Render with an explicit status code.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// BaseData collects the values every page needs: CSRF token, pending flash,
// current path and the signed-in identity.
func BaseData(r *http.Request, csrf *shared.CSRFManager, title string) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	data := TemplateData{Title: title, CurrentPath: r.URL.Path}
	if csrf != nil {
		data.CSRFToken, _ = csrf.EnsureToken(r.Context(), sess)
	}
	if sess != nil {
		data.Flash = sess.PopFlash()
	}
	if id, ok := shared.IdentityFromContext(r.Context()); ok {
		data.Identity = &id
	}
	return data
}

func formatDate(v any) string {
	var t time.Time
	switch value := v.(type) {
	case time.Time:
		t = value
	case *time.Time:
		if value != nil {
			t = *value
		}
	case backend.Timestamp:
		t = value.Time
	case *backend.Timestamp:
		t = value.Value()
	}
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006")
}
