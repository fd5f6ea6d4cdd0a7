// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokoro-labs/kokoro-auth/pkg/session"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
	"github.com/kokoro-labs/kokoro-auth/pkg/testkit"
	"github.com/kokoro-labs/kokoro-auth/pkg/token"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestManager_CreateStoresHashOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testkit.NewStore(t)
	u := testkit.CreateUser(t, store)
	clk := newClock()
	m := session.NewManager(store, session.WithClock(clk.Now))

	raw, sess, err := m.Create(ctx, u.ID)
	require.NoError(t, err)

	assert.Len(t, raw, 32)
	assert.Equal(t, token.HashToken(raw), sess.ID)
	assert.NotEqual(t, raw, sess.ID)
	assert.True(t, clk.now.Add(session.DefaultLifetime).Equal(sess.ExpiresAt))

	_, _, err = store.GetSessionWithUser(ctx, raw)
	assert.ErrorIs(t, err, storage.ErrNotFound, "raw token must not be a lookup key")
}

func TestManager_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		advance     time.Duration
		wantAnon    bool
		wantExpires func(created, now time.Time) time.Time
		wantRefresh bool
		wantDeleted bool
	}{
		{
			name:    "fresh session is returned unchanged",
			advance: 24 * time.Hour,
			wantExpires: func(created, _ time.Time) time.Time {
				return created.Add(session.DefaultLifetime)
			},
		},
		{
			name:    "exactly at refresh threshold is unchanged",
			advance: session.DefaultLifetime - session.DefaultRefreshThreshold,
			wantExpires: func(created, _ time.Time) time.Time {
				return created.Add(session.DefaultLifetime)
			},
		},
		{
			name:    "close to expiry slides forward",
			advance: 20 * 24 * time.Hour,
			wantExpires: func(_, now time.Time) time.Time {
				return now.Add(session.DefaultLifetime)
			},
			wantRefresh: true,
		},
		{
			name:        "at expiry is anonymous and deleted",
			advance:     session.DefaultLifetime,
			wantAnon:    true,
			wantDeleted: true,
		},
		{
			name:        "past expiry is anonymous and deleted",
			advance:     session.DefaultLifetime + time.Hour,
			wantAnon:    true,
			wantDeleted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := testkit.NewStore(t)
			u := testkit.CreateUser(t, store)
			clk := newClock()
			m := session.NewManager(store, session.WithClock(clk.Now))

			created := clk.now
			raw, sess, err := m.Create(ctx, u.ID)
			require.NoError(t, err)

			clk.now = clk.now.Add(tt.advance)
			res, err := m.Validate(ctx, raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRefresh, res.Refreshed)
			assert.Equal(t, tt.wantDeleted, res.Expired)

			if tt.wantAnon {
				assert.True(t, res.Anonymous())
				assert.Nil(t, res.User)
			} else {
				require.False(t, res.Anonymous())
				assert.Equal(t, u.ID, res.User.ID)
				want := tt.wantExpires(created, clk.now)
				assert.True(t, want.Equal(res.Session.ExpiresAt), "got %s want %s", res.Session.ExpiresAt, want)

				stored, _, err := store.GetSessionWithUser(ctx, sess.ID)
				require.NoError(t, err)
				assert.True(t, want.Equal(stored.ExpiresAt), "expiry must be persisted")
			}

			_, _, err = store.GetSessionWithUser(ctx, sess.ID)
			if tt.wantDeleted {
				assert.ErrorIs(t, err, storage.ErrNotFound)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestManager_ValidateUnknownToken(t *testing.T) {
	t.Parallel()
	m := session.NewManager(testkit.NewStore(t))

	for _, raw := range []string{"", "not-a-session", token.GenerateOpaqueToken()} {
		res, err := m.Validate(context.Background(), raw)
		require.NoError(t, err)
		assert.True(t, res.Anonymous())
		assert.False(t, res.Expired)
	}
}

func TestManager_Invalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testkit.NewStore(t)
	u := testkit.CreateUser(t, store)
	m := session.NewManager(store)

	raw, sess, err := m.Create(ctx, u.ID)
	require.NoError(t, err)
	other, _, err := m.Create(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, m.Invalidate(ctx, sess.ID))
	require.NoError(t, m.Invalidate(ctx, sess.ID))

	res, err := m.Validate(ctx, raw)
	require.NoError(t, err)
	assert.True(t, res.Anonymous())

	require.NoError(t, m.InvalidateUserSessions(ctx, u.ID))
	res, err = m.Validate(ctx, other)
	require.NoError(t, err)
	assert.True(t, res.Anonymous())
}

func TestCookieConfig(t *testing.T) {
	t.Parallel()

	cfg := session.CookieConfig{Name: "kokoro_session", Domain: "kokoro.example", Secure: true}
	expires := time.Now().Add(time.Hour)

	rec := httptest.NewRecorder()
	cfg.SetCookie(rec, "raw-token", expires)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	ck := cookies[0]
	assert.Equal(t, "kokoro_session", ck.Name)
	assert.Equal(t, "raw-token", ck.Value)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	assert.Equal(t, "/", ck.Path)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(ck)
	assert.Equal(t, "raw-token", cfg.Token(req))

	rec = httptest.NewRecorder()
	cfg.ClearCookie(rec)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}
