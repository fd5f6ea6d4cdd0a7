// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package connect_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokoro-labs/kokoro-auth/pkg/connect"
	"github.com/kokoro-labs/kokoro-auth/pkg/cookie"
	"github.com/kokoro-labs/kokoro-auth/pkg/credential"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
	"github.com/kokoro-labs/kokoro-auth/pkg/testkit"
)

// asUser injects a session principal for user, or nothing when user is nil.
func asUser(user *storage.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user != nil {
				r = r.WithContext(credential.WithPrincipal(r.Context(), credential.SessionPrincipal{Subject: user}))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newRouter(t *testing.T, user *storage.User, ps *testkit.ProviderServer, store storage.Store) http.Handler {
	t.Helper()
	h := connect.NewHandler(connect.NewFlow(store), cookie.Jar{}, "/account/integrations", newCalendar(t, ps))
	r := chi.NewRouter()
	r.Use(asUser(user))
	h.Routes(r)
	return r
}

func TestHandler_RedirectAndCallback(t *testing.T) {
	t.Parallel()
	store := testkit.NewStore(t)
	ps := testkit.NewProviderServer(t)
	ps.IdentityResponse = googleIdentity("google-1", "ada@example.com")
	user := subscribedUser(t, store)
	router := newRouter(t, user, ps, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/connect/google-calendar", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	st := location.Query().Get("state")
	require.NotEmpty(t, st)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "google-calendar_oauth_state", cookies[0].Name)
	assert.Equal(t, st, cookies[0].Value)
	assert.Equal(t, 600, cookies[0].MaxAge)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/connect/google-calendar/callback?code=abc&state="+url.QueryEscape(st), nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/account/integrations/"))
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge, "state cookie is single use")
}

func TestHandler_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		anonymous  bool
		path       string
		cookie     string
		tokenFails bool
		wantStatus int
		wantBody   string
	}{
		{
			name:       "unknown provider",
			path:       "/connect/github",
			wantStatus: http.StatusNotFound,
			wantBody:   "unknown provider",
		},
		{
			name:       "anonymous redirect",
			anonymous:  true,
			path:       "/connect/google-calendar",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "authentication required",
		},
		{
			name:       "state mismatch",
			path:       "/connect/google-calendar/callback?code=abc&state=one",
			cookie:     "two",
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid_state",
		},
		{
			name:       "upstream failure",
			path:       "/connect/google-calendar/callback?code=abc&state=one",
			cookie:     "one",
			tokenFails: true,
			wantStatus: http.StatusInternalServerError,
			wantBody:   "failed to complete authentication",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := testkit.NewStore(t)
			ps := testkit.NewProviderServer(t)
			ps.IdentityResponse = googleIdentity("google-1", "ada@example.com")
			if tt.tokenFails {
				ps.TokenStatus = http.StatusBadGateway
			}
			var user *storage.User
			if !tt.anonymous {
				user = subscribedUser(t, store)
			}

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "google-calendar_oauth_state", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			newRouter(t, user, ps, store).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(rec.Body.String()))
		})
	}
}
