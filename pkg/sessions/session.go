// Package sessions stores the login sessions behind the connect_session
// cookie.
//
// Two stores implement Store: MemoryStore for single-process development and
// tests, and RedisStore, which keeps each session under its own key with a
// TTL so every server instance sees the same sessions.
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// CookieName is the cookie carrying the session id
const CookieName = "connect_session"

// DefaultTTL is the lifetime of a new session
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned for unknown and expired sessions
var ErrNotFound = errors.New("session not found")

// Session is an authenticated login
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session has lapsed at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions. Implementations are safe for concurrent use.
type Store interface {
	// Create starts a session for userID that lasts ttl
	Create(ctx context.Context, userID string, ttl time.Duration) (*Session, error)
	// Get returns a live session or ErrNotFound
	Get(ctx context.Context, id string) (*Session, error)
	// Delete ends a session. Deleting an unknown session is not an error.
	Delete(ctx context.Context, id string) error
	// Cleanup drops expired sessions and reports how many were removed
	Cleanup(ctx context.Context) (int, error)
}

// newID returns an unguessable session id
func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
