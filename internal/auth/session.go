/*-------------------------------------------------------------------------
 *
 * session.go
 *    Approver session tokens
 *
 * Provides an in-memory store of opaque session tokens issued after a
 * successful password login, each expiring after the configured TTL.
 * Tokens are random and stateful, so a session can be revoked by
 * restarting the process without key management.
 *
 * IDENTIFICATION
 *    internal/auth/session.go
 *
 *-------------------------------------------------------------------------
 */

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	ttl      time.Duration
}

func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]time.Time),
		ttl:      ttl,
	}
}

/* Issue creates a new session token, returning the token and its expiry */
func (m *SessionManager) Issue() (string, time.Time, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate session token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(raw)
	expires := time.Now().Add(m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	/* Drop expired sessions while we hold the lock */
	now := time.Now()
	for t, exp := range m.sessions {
		if now.After(exp) {
			delete(m.sessions, t)
		}
	}

	m.sessions[token] = expires
	return token, expires, nil
}

/* Validate reports whether the token identifies a live session */
func (m *SessionManager) Validate(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	expires, exists := m.sessions[token]
	if !exists {
		return false
	}
	if time.Now().After(expires) {
		delete(m.sessions, token)
		return false
	}
	return true
}
