package api

import (
	"log/slog"
	"net/http"

	"diary/internal/auth"
	"diary/internal/diary"
	"diary/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options wires the HTTP surface.
type Options struct {
	Service      *diary.Service
	Sessions     *auth.Manager
	Logger       *slog.Logger
	MaxBodyBytes int64
	// MCP is mounted at /mcp when non-nil.
	MCP http.Handler
}

func NewRouter(h *Handlers, mcpHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics)

	r.HandleFunc("/register", h.RegisterHandler).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/login", h.LoginHandler).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout", h.LogoutHandler).Methods(http.MethodGet)

	r.HandleFunc("/", h.DashboardHandler).Methods(http.MethodGet)
	r.HandleFunc("/entry", h.EntryHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/events", h.EventsHandler).Methods(http.MethodGet)
	r.HandleFunc("/entry/save", h.SaveEntryHandler).Methods(http.MethodPost)
	r.HandleFunc("/entry/delete", h.DeleteEntryHandler).Methods(http.MethodPost)
	r.HandleFunc("/entry/upload", h.UploadHandler).Methods(http.MethodPost)
	r.HandleFunc("/image/delete", h.DeleteImageHandler).Methods(http.MethodPost)

	// Serve uploaded images with authentication
	r.HandleFunc("/uploads/{key:.+}", h.ServeImageHandler).Methods(http.MethodGet, http.MethodHead)

	r.PathPrefix("/static/").Handler(staticHandler())
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if mcpHandler != nil {
		r.Handle("/mcp", mcpHandler)
	}
	return r
}

// NewServer builds the complete handler chain.
func NewServer(opts Options) http.Handler {
	h := NewHandlers(opts.Service, opts.Logger)
	router := NewRouter(h, opts.MCP)

	// Apply middleware: Logging -> Sessions -> Auth -> LimitBody -> CSRF
	handler := middleware.CSRF(router)
	handler = middleware.LimitBody(opts.MaxBodyBytes)(handler)
	handler = middleware.Auth(handler)
	handler = middleware.Sessions(opts.Sessions, opts.Logger)(handler)
	return middleware.Logging(opts.Logger)(handler)
}
