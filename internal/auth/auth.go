package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const sessionKey contextKey = "session"

// CookieSigner signs session IDs so the browser cannot forge or extend them.
type CookieSigner struct {
	secret []byte
}

func NewCookieSigner(secret string) *CookieSigner {
	return &CookieSigner{secret: []byte(secret)}
}

// Sign creates a signed cookie value containing the session ID and expiration
func (c *CookieSigner) Sign(sessionID string, expiration time.Time) string {
	// Cookie format: sessionID.expiration.signature
	data := fmt.Sprintf("%s.%d", sessionID, expiration.Unix())
	signature := c.signData(data)
	return base64.URLEncoding.EncodeToString([]byte(fmt.Sprintf("%s.%s", data, signature)))
}

// Verify validates the cookie and returns the session ID if valid
func (c *CookieSigner) Verify(cookieValue string, now time.Time) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(cookieValue)
	if err != nil {
		return "", fmt.Errorf("invalid cookie encoding")
	}

	parts := strings.Split(string(decoded), ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid cookie format")
	}

	sessionID, expirationStr, signature := parts[0], parts[1], parts[2]

	data := fmt.Sprintf("%s.%s", sessionID, expirationStr)
	if !c.verifySignature(data, signature) {
		return "", fmt.Errorf("invalid signature")
	}

	expiration, err := strconv.ParseInt(expirationStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid expiration")
	}
	if now.Unix() > expiration {
		return "", fmt.Errorf("cookie expired")
	}
	if sessionID == "" {
		return "", fmt.Errorf("empty session ID")
	}

	return sessionID, nil
}

func (c *CookieSigner) signData(data string) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func (c *CookieSigner) verifySignature(data, signature string) bool {
	expectedSig := c.signData(data)
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// WithSession stores the request's session in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the request's session, or nil outside the session middleware.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}

// GetUserIDFromContext retrieves the logged-in user's ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	s := SessionFromContext(ctx)
	if s == nil || s.UserID == 0 {
		return 0, false
	}
	return s.UserID, true
}
