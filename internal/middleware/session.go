package middleware

import (
	"log/slog"
	"net/http"

	"diary/internal/auth"
)

// Sessions loads the browser session into the request context and saves it
// back, setting the cookie, just before the response header goes out.
func Sessions(m *auth.Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := m.Load(r)
			if err != nil {
				logger.ErrorContext(r.Context(), "loading session", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			ctx := auth.WithSession(r.Context(), s)

			sw := &sessionWriter{ResponseWriter: w}
			sw.commit = func() {
				if err := m.Commit(ctx, w, s); err != nil {
					logger.ErrorContext(ctx, "saving session", "error", err)
				}
			}
			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.before()
		})
	}
}

type sessionWriter struct {
	http.ResponseWriter
	commit func()
	done   bool
}

func (w *sessionWriter) before() {
	if !w.done {
		w.done = true
		w.commit()
	}
}

func (w *sessionWriter) WriteHeader(code int) {
	w.before()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.before()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Flush() {
	w.before()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
