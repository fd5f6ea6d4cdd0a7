// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package testkit provides fixtures shared by the kokoro-auth test suites:
// a migrated SQLite store in a temporary directory, seeded users and OAuth
// clients, and a fake upstream OAuth provider served over httptest.
package testkit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage/sqlite"
)

// NewStore opens a fresh, migrated database that is removed when t ends.
func NewStore(t testing.TB) *sqlite.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "kokoro-test.db")
	store, err := sqlite.Open(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// UserOption customizes a seeded user.
type UserOption func(*storage.User)

// WithSubscription marks the user as subscribed until the given time.
func WithSubscription(until time.Time) UserOption {
	return func(u *storage.User) {
		u.SubscribedUntil = &until
	}
}

// WithEmail sets the user's email.
func WithEmail(email string) UserOption {
	return func(u *storage.User) {
		u.Email = email
	}
}

// CreateUser seeds a user row.
func CreateUser(t testing.TB, store storage.Querier, opts ...UserOption) *storage.User {
	t.Helper()
	id := uuid.NewString()
	u := &storage.User{
		ID:    id,
		Email: id + "@example.com",
		Name:  "Test User",
		Role:  storage.RoleUser,
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

// CreateClient seeds an OAuth client. An empty secret registers a public client.
func CreateClient(t testing.TB, store storage.Querier, secret string, redirectURIs ...string) *storage.OAuthClient {
	t.Helper()
	if len(redirectURIs) == 0 {
		redirectURIs = []string{"https://app.example.com/callback"}
	}
	c := &storage.OAuthClient{
		ID:           uuid.NewString(),
		ClientID:     "client-" + uuid.NewString(),
		ClientSecret: secret,
		Name:         "Example App",
		RedirectURIs: redirectURIs,
		Scopes:       []string{"profile", "calendar:read"},
	}
	require.NoError(t, store.CreateOAuthClient(context.Background(), c))
	return c
}
