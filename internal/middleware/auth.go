package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"diary/internal/auth"
	"diary/internal/logging"
)

// Auth redirects requests without a logged-in user to the login page and
// adds the user ID to the logging context.
func Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for public endpoints
		if isPublicEndpoint(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		userID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}

		ctx := logging.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isPublicEndpoint(path string) bool {
	// Exact match paths
	exactPaths := []string{"/register", "/login", "/logout", "/metrics"}
	for _, p := range exactPaths {
		if path == p {
			return true
		}
	}
	// Prefix match paths
	prefixPaths := []string{"/static/"}
	for _, p := range prefixPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// SafeNext returns next when it is a local absolute path, otherwise "/".
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return next
}
