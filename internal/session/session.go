// Package session holds the signed-in admin's bearer token.
//
// Two scopes are available. ScopeSession keeps the token in memory for the
// life of the process. ScopePersistent stores it in the journal database so
// it survives restarts. Either way an expired session is dropped the first
// time it is read.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/qsync/internal/clock"
	"github.com/roach88/qsync/internal/journal"
)

// DefaultTTL is the lifetime of a session saved without an expiry.
const DefaultTTL = 10 * time.Minute

// Scope selects where the token lives.
type Scope string

const (
	ScopeSession    Scope = "session"
	ScopePersistent Scope = "persistent"
)

// Admin identifies the signed-in administrator.
type Admin struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Session is one sign-in.
type Session struct {
	Token     string
	Admin     Admin
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Store persists the current session. Implementations also satisfy
// api.TokenSource.
type Store interface {
	// Load returns the current session; false when none or expired.
	Load(ctx context.Context) (Session, bool, error)
	// Save replaces the current session. A zero ExpiresAt gets DefaultTTL.
	Save(ctx context.Context, s Session) error
	// Clear signs out.
	Clear(ctx context.Context) error
	// Token returns the bearer token, or "" when signed out.
	Token(ctx context.Context) (string, error)
}

// Option configures a Store.
type Option func(*options)

type options struct {
	wall clock.Wall
	name string
}

// WithWall sets the clock used for expiry.
func WithWall(w clock.Wall) Option {
	return func(o *options) { o.wall = w }
}

// WithName stores the persistent session under name instead of "default".
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Open returns the Store for scope. j is required for ScopePersistent and
// ignored otherwise.
func Open(scope Scope, j *journal.Journal, opts ...Option) (Store, error) {
	o := options{wall: clock.System{}, name: "default"}
	for _, opt := range opts {
		opt(&o)
	}

	switch scope {
	case ScopeSession, "":
		return &Memory{wall: o.wall}, nil
	case ScopePersistent:
		if j == nil {
			return nil, fmt.Errorf("session scope %q requires a journal", scope)
		}
		return &Persistent{journal: j, name: o.name, wall: o.wall}, nil
	default:
		return nil, fmt.Errorf("unknown session scope %q", scope)
	}
}

// Memory keeps the session in process memory.
type Memory struct {
	mu   sync.Mutex
	cur  *Session
	wall clock.Wall
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...Option) *Memory {
	o := options{wall: clock.System{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Memory{wall: o.wall}
}

func (m *Memory) Load(context.Context) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Session{}, false, nil
	}
	if m.cur.Expired(m.wall.Now()) {
		m.cur = nil
		return Session{}, false, nil
	}
	return *m.cur, true, nil
}

func (m *Memory) Save(_ context.Context, s Session) error {
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = m.wall.Now().Add(DefaultTTL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = &s
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = nil
	return nil
}

func (m *Memory) Token(ctx context.Context) (string, error) {
	return token(ctx, m)
}

// Persistent keeps the session in the journal's sessions table.
type Persistent struct {
	journal *journal.Journal
	name    string
	wall    clock.Wall
}

func (p *Persistent) Load(ctx context.Context) (Session, bool, error) {
	row, ok, err := p.journal.GetSession(ctx, p.name)
	if err != nil || !ok {
		return Session{}, false, err
	}
	s := Session{
		Token:     row.Token,
		Admin:     Admin{ID: row.AdminID, Username: row.Username, Email: row.Email},
		ExpiresAt: row.ExpiresAt,
	}
	if s.Expired(p.wall.Now()) {
		if err := p.journal.DeleteSession(ctx, p.name); err != nil {
			return Session{}, false, err
		}
		return Session{}, false, nil
	}
	return s, true, nil
}

func (p *Persistent) Save(ctx context.Context, s Session) error {
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = p.wall.Now().Add(DefaultTTL)
	}
	return p.journal.PutSession(ctx, journal.SessionRow{
		Name:      p.name,
		Token:     s.Token,
		AdminID:   s.Admin.ID,
		Username:  s.Admin.Username,
		Email:     s.Admin.Email,
		ExpiresAt: s.ExpiresAt,
	})
}

func (p *Persistent) Clear(ctx context.Context) error {
	return p.journal.DeleteSession(ctx, p.name)
}

func (p *Persistent) Token(ctx context.Context) (string, error) {
	return token(ctx, p)
}

func token(ctx context.Context, s Store) (string, error) {
	cur, ok, err := s.Load(ctx)
	if err != nil || !ok {
		return "", err
	}
	return cur.Token, nil
}
