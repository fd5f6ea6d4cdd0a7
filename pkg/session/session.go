// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements first-party login sessions: opaque bearer
// tokens whose SHA-256 hash is the session id, with a sliding expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
	"github.com/kokoro-labs/kokoro-auth/pkg/metrics"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
	"github.com/kokoro-labs/kokoro-auth/pkg/token"
)

const (
	// DefaultLifetime is how long a new or refreshed session stays valid.
	DefaultLifetime = 30 * 24 * time.Hour
	// DefaultRefreshThreshold is the remaining lifetime under which a
	// validated session is extended.
	DefaultRefreshThreshold = 15 * 24 * time.Hour
)

// Validation results recorded in metrics.
const (
	resultAnonymous = "anonymous"
	resultExpired   = "expired"
	resultRefreshed = "refreshed"
	resultValid     = "valid"
)

// Result is the outcome of validating a session token. Session and User are
// nil when the token does not identify a live session.
type Result struct {
	Session *storage.Session
	User    *storage.User
	// Refreshed is set when validation extended Session.ExpiresAt.
	Refreshed bool
	// Expired is set when the token named a session that had expired and
	// was deleted.
	Expired bool
}

// Anonymous reports whether no session was found.
func (r Result) Anonymous() bool {
	return r.Session == nil
}

// Manager creates, validates and invalidates sessions.
type Manager struct {
	store            storage.Querier
	metrics          *metrics.Metrics
	now              func() time.Time
	lifetime         time.Duration
	refreshThreshold time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLifetime overrides DefaultLifetime.
func WithLifetime(d time.Duration) Option {
	return func(m *Manager) {
		m.lifetime = d
	}
}

// WithRefreshThreshold overrides DefaultRefreshThreshold.
func WithRefreshThreshold(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshThreshold = d
	}
}

// WithMetrics records validation outcomes.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager returns a Manager backed by store.
func NewManager(store storage.Querier, opts ...Option) *Manager {
	m := &Manager{
		store:            store,
		now:              time.Now,
		lifetime:         DefaultLifetime,
		refreshThreshold: DefaultRefreshThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a session for userID and returns the raw token to hand to
// the client. Only the hash of the token is stored.
func (m *Manager) Create(ctx context.Context, userID string) (string, *storage.Session, error) {
	return m.CreateWith(ctx, m.store, userID)
}

// CreateWith is Create running against q, typically a transaction.
func (m *Manager) CreateWith(ctx context.Context, q storage.Querier, userID string) (string, *storage.Session, error) {
	raw := token.GenerateOpaqueToken()
	sess := &storage.Session{
		ID:        token.HashToken(raw),
		UserID:    userID,
		ExpiresAt: m.now().Add(m.lifetime),
	}
	if err := q.CreateSession(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}
	return raw, sess, nil
}

// Validate resolves a raw session token. Unknown and expired tokens yield an
// anonymous Result and no error; expired sessions are deleted. Sessions close
// to expiry are extended.
func (m *Manager) Validate(ctx context.Context, rawToken string) (Result, error) {
	if rawToken == "" {
		m.metrics.SessionValidation(resultAnonymous)
		return Result{}, nil
	}

	id := token.HashToken(rawToken)
	sess, user, err := m.store.GetSessionWithUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		m.metrics.SessionValidation(resultAnonymous)
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to load session: %w", err)
	}

	now := m.now()
	if sess.IsExpired(now) {
		if err := m.store.DeleteSession(ctx, id); err != nil {
			return Result{}, fmt.Errorf("failed to delete expired session: %w", err)
		}
		logger.Debugw("expired session removed", "user_id", sess.UserID)
		m.metrics.SessionValidation(resultExpired)
		return Result{Expired: true}, nil
	}

	if sess.ExpiresAt.Sub(now) < m.refreshThreshold {
		expiresAt := now.Add(m.lifetime)
		err := m.store.UpdateSessionExpiry(ctx, id, expiresAt)
		if errors.Is(err, storage.ErrNotFound) {
			// Invalidated concurrently.
			m.metrics.SessionValidation(resultAnonymous)
			return Result{}, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("failed to extend session: %w", err)
		}
		sess.ExpiresAt = expiresAt
		m.metrics.SessionValidation(resultRefreshed)
		return Result{Session: sess, User: user, Refreshed: true}, nil
	}

	m.metrics.SessionValidation(resultValid)
	return Result{Session: sess, User: user}, nil
}

// Invalidate deletes a session by id. Missing sessions are ignored.
func (m *Manager) Invalidate(ctx context.Context, sessionID string) error {
	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// InvalidateUserSessions deletes every session of a user.
func (m *Manager) InvalidateUserSessions(ctx context.Context, userID string) error {
	if err := m.store.DeleteUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("failed to invalidate sessions of user: %w", err)
	}
	return nil
}
