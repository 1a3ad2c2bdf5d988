package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNoSession = errors.New("session not found")

type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Session is the server-side state of one browser session.
type Session struct {
	ID        string  `json:"-"`
	UserID    int64   `json:"user_id,omitempty"`
	Username  string  `json:"username,omitempty"`
	CSRFToken string  `json:"csrf,omitempty"`
	Flashes   []Flash `json:"flashes,omitempty"`

	changed   bool
	destroyed bool
	previous  string
}

func newSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// CSRF returns the session's anti-forgery token, generating it on first use.
func (s *Session) CSRF() string {
	if s.CSRFToken == "" {
		s.CSRFToken = newToken()
		s.changed = true
	}
	return s.CSRFToken
}

// SetUser logs the user in. The session ID and CSRF token are rotated so
// pre-login values cannot be reused.
func (s *Session) SetUser(id int64, username string) {
	s.Flashes = nil
	s.CSRFToken = ""
	s.UserID = id
	s.Username = username
	s.rotate()
	s.changed = true
}

func (s *Session) rotate() {
	if s.previous == "" {
		s.previous = s.ID
	}
	s.ID = uuid.NewString()
}

// Destroy drops all session state; the cookie is expired on response.
func (s *Session) Destroy() {
	*s = Session{ID: s.ID, destroyed: true, changed: true}
}

func (s *Session) AddFlash(category, message string) {
	s.Flashes = append(s.Flashes, Flash{Category: category, Message: message})
	s.changed = true
}

// PopFlashes returns and clears pending flash messages.
func (s *Session) PopFlashes() []Flash {
	flashes := s.Flashes
	if len(flashes) > 0 {
		s.Flashes = nil
		s.changed = true
	}
	return flashes
}

func (s *Session) Changed() bool {
	return s.changed
}

func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// SessionStore persists sessions between requests.
type SessionStore interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore keeps sessions in process memory. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || m.now().After(entry.expires) {
		return nil, ErrNoSession
	}
	s := &Session{ID: id}
	if err := json.Unmarshal(entry.data, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = memoryEntry{data: data, expires: m.now().Add(ttl)}
	// opportunistic sweep of expired sessions
	for id, e := range m.sessions {
		if m.now().After(e.expires) {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}
