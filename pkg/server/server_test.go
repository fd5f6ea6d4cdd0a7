// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokoro-labs/kokoro-auth/pkg/config"
	"github.com/kokoro-labs/kokoro-auth/pkg/jobs"
	"github.com/kokoro-labs/kokoro-auth/pkg/session"
	"github.com/kokoro-labs/kokoro-auth/pkg/testkit"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Database.Path = filepath.Join(t.TempDir(), "server.db")
	cfg.Server.Address = "127.0.0.1:0"
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	s, err := New(context.Background(), cfg, WithQueue(jobs.NoopQueue{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(newTestServer(t, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_TokenEndpointRateLimitedAndCounted(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(c *config.Config) {
		c.Server.TokenRateLimit = 0.001
		c.Server.TokenRateBurst = 1
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	form := url.Values{"grant_type": {"password"}, "client_id": {"nobody"}}
	post := func() *http.Response {
		resp, err := http.PostForm(srv.URL+"/oauth/token", form)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp
	}

	first := post()
	assert.NotEqual(t, http.StatusTooManyRequests, first.StatusCode)
	second := post()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kokoro_auth_token_grants_total")
}

func TestServer_MeResolvesSessionBearer(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	user := testkit.CreateUser(t, s.store)
	raw, _, err := session.NewManager(s.store).Create(context.Background(), user.ID)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/me")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+raw)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me meResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, user.ID, me.ID)
	assert.Equal(t, "session", me.Via)
}

func TestServer_MeSyncsSessionCookie(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	tests := []struct {
		name       string
		createdAgo time.Duration
		wantStatus int
		check      func(t *testing.T, raw string, ck *http.Cookie)
	}{
		{
			name:       "fresh session leaves cookie alone",
			createdAgo: time.Hour,
			wantStatus: http.StatusOK,
		},
		{
			name:       "session near expiry slides cookie forward",
			createdAgo: 20 * 24 * time.Hour,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, raw string, ck *http.Cookie) {
				t.Helper()
				assert.Equal(t, raw, ck.Value)
				assert.WithinDuration(t, time.Now().Add(session.DefaultLifetime), ck.Expires, time.Minute)
				assert.True(t, ck.HttpOnly)
			},
		},
		{
			name:       "expired session clears cookie",
			createdAgo: 31 * 24 * time.Hour,
			wantStatus: http.StatusUnauthorized,
			check: func(t *testing.T, _ string, ck *http.Cookie) {
				t.Helper()
				assert.Empty(t, ck.Value)
				assert.Negative(t, ck.MaxAge)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			user := testkit.CreateUser(t, s.store)
			created := time.Now().Add(-tt.createdAgo)
			raw, _, err := session.NewManager(s.store,
				session.WithClock(func() time.Time { return created }),
			).Create(context.Background(), user.ID)
			require.NoError(t, err)

			req, err := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
			require.NoError(t, err)
			req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: raw})
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var got *http.Cookie
			for _, ck := range resp.Cookies() {
				if ck.Name == session.DefaultCookieName {
					got = ck
				}
			}
			if tt.check == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got, "expected a session Set-Cookie")
			tt.check(t, raw, got)
		})
	}
}

func TestServer_ConnectProvidersFromConfig(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(c *config.Config) {
		c.Providers.Linear = config.ClientCredentials{ClientID: "lin", ClientSecret: "secret"}
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// Enabled provider without a user: 401. Disabled provider: 404.
	resp, err := http.Get(srv.URL + "/connect/linear")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/connect/google-people")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(c *config.Config) { c.Server.ShutdownTimeout = 2 * time.Second })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	t.Parallel()
	l := NewRateLimiter(0.001, 1)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(""))
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:5678"))
	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1234"))
}

func TestRateLimiter_Nil(t *testing.T) {
	t.Parallel()
	var l *RateLimiter
	rec := httptest.NewRecorder()
	l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
