package api

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"diary/internal/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pages = []string{"login.html", "register.html", "dashboard.html", "entry.html"}

func parseViews() map[string]*template.Template {
	views := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		views[p] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+p))
	}
	return views
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}

type pageData struct {
	Title    string
	CSRF     string
	Username string
	Flashes  []auth.Flash
	Data     any
}

// render executes a page into a buffer first so template errors become a 500
// instead of a half-written page.
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	pd := pageData{Title: title, Data: data}
	if s := auth.SessionFromContext(r.Context()); s != nil {
		pd.CSRF = s.CSRF()
		pd.Username = s.Username
		pd.Flashes = s.PopFlashes()
	}

	var buf bytes.Buffer
	if err := h.views[page].ExecuteTemplate(&buf, "layout", pd); err != nil {
		h.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h *Handlers) flash(r *http.Request, category, message string) {
	if s := auth.SessionFromContext(r.Context()); s != nil {
		s.AddFlash(category, message)
	}
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
