package middleware

import (
	"crypto/subtle"
	"errors"
	"mime"
	"net/http"
	"strings"

	"diary/internal/auth"
)

const (
	CSRFField = "_csrf"

	multipartMemory = 8 << 20
)

// LimitBody caps request bodies at maxBytes.
func LimitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRF rejects POST requests whose _csrf form field does not match the
// session token. The form is parsed here so handlers can read it afterwards.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || isCSRFExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if err := parseForm(r); err != nil {
			if tooLarge(err) {
				http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Invalid form", http.StatusBadRequest)
			return
		}

		s := auth.SessionFromContext(r.Context())
		submitted := r.PostFormValue(CSRFField)
		if s == nil || s.CSRFToken == "" || submitted == "" ||
			subtle.ConstantTimeCompare([]byte(s.CSRFToken), []byte(submitted)) != 1 {
			http.Error(w, "Invalid CSRF token", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MCP clients authenticate with the session cookie but do not post forms.
func isCSRFExempt(path string) bool {
	return path == "/mcp"
}

func parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
