package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const CookieName = "diary_session"

// Manager ties the session store to the signed browser cookie.
type Manager struct {
	store  SessionStore
	signer *CookieSigner
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(store SessionStore, secret string, ttl time.Duration, secure bool) *Manager {
	return &Manager{
		store:  store,
		signer: NewCookieSigner(secret),
		ttl:    ttl,
		secure: secure,
		now:    time.Now,
	}
}

// Load returns the session named by the request cookie, or a fresh unsaved one
// when the cookie is missing, tampered with, expired or unknown to the store.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return newSession(), nil
	}
	id, err := m.signer.Verify(c.Value, m.now())
	if err != nil {
		return newSession(), nil
	}
	s, err := m.store.Load(r.Context(), id)
	if errors.Is(err, ErrNoSession) {
		return newSession(), nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Commit persists a changed session and sets or expires the cookie.
// It must run before the response header is written.
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if !s.changed {
		return nil
	}
	if s.previous != "" {
		if err := m.store.Delete(ctx, s.previous); err != nil {
			return err
		}
		s.previous = ""
	}

	if s.destroyed {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
		})
		s.changed = false
		return nil
	}

	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    m.signer.Sign(s.ID, m.now().Add(m.ttl)),
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
	s.changed = false
	return nil
}
