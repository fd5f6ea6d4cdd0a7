// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/kokoro-labs/kokoro-auth/pkg/authserver"
	"github.com/kokoro-labs/kokoro-auth/pkg/authserver/handlers"
	"github.com/kokoro-labs/kokoro-auth/pkg/cookie"
	"github.com/kokoro-labs/kokoro-auth/pkg/credential"
	"github.com/kokoro-labs/kokoro-auth/pkg/session"
	"github.com/kokoro-labs/kokoro-auth/pkg/signedtoken"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
	"github.com/kokoro-labs/kokoro-auth/pkg/testkit"
)

const redirectURI = "https://app.example.com/callback"

type harness struct {
	server       *httptest.Server
	http         *http.Client
	user         *storage.User
	sessionToken string
	store        storage.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := testkit.NewStore(t)
	user := testkit.CreateUser(t, store)

	sessions := session.NewManager(store)
	rawSession, _, err := sessions.Create(ctx, user.ID)
	require.NoError(t, err)

	tokens, err := signedtoken.New(signedtoken.Config{Secret: []byte(strings.Repeat("k", 32))})
	require.NoError(t, err)
	srv, err := authserver.New(authserver.Config{}, store, tokens)
	require.NoError(t, err)

	h := handlers.NewHandler(srv, cookie.Jar{})
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(credential.Middleware(credential.NewResolver(sessions, tokens, store)))
		h.AuthorizeRoutes(r)
	})
	h.TokenRoutes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{
		server: ts,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		user:         user,
		sessionToken: rawSession,
		store:        store,
	}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	u, err := url.Parse(h.server.URL)
	require.NoError(t, err)
	h.http.Jar.SetCookies(u, []*http.Cookie{{Name: session.DefaultCookieName, Value: h.sessionToken, Path: "/"}})
}

func (h *harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := h.http.Get(h.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) postForm(t *testing.T, path string, form url.Values, basic ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if len(basic) == 2 {
		req.SetBasicAuth(basic[0], basic[1])
	}
	resp, err := h.http.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func authorizePath(client *storage.OAuthClient, extra url.Values) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {client.ClientID},
		"redirect_uri":  {redirectURI},
		"scope":         {"profile"},
	}
	if client.IsPublic() {
		q.Set("code_challenge", "plain-verifier")
	}
	for k, v := range extra {
		q[k] = v
	}
	return "/authorize?" + q.Encode()
}

func TestAuthorizationCodeFlow_LoginResumeConsentExchange(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	client := testkit.CreateClient(t, h.store, "")
	verifier := oauth2.GenerateVerifier()

	resp := h.get(t, authorizePath(client, url.Values{
		"state":                 {"st"},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"S256"},
	}))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Fauthorize", resp.Header.Get("Location"))

	h.login(t)
	resp = h.get(t, "/authorize")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	consent := decode(t, resp)
	assert.Equal(t, "Example App", consent["client_name"])

	resp = h.postForm(t, "/authorize", url.Values{"action": {"approve"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "st", location.Query().Get("state"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	resp = h.postForm(t, "/authorize", url.Values{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "snapshot cookie is single use")

	resp = h.postForm(t, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {client.ClientID},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	tok := decode(t, resp)
	assert.Equal(t, "Bearer", tok["token_type"])
	assert.InDelta(t, 3600, tok["expires_in"], 0)
	assert.NotEmpty(t, tok["access_token"])
	assert.NotEmpty(t, tok["refresh_token"])
}

func TestConsent_Deny(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	client := testkit.CreateClient(t, h.store, "")
	h.login(t)

	require.Equal(t, http.StatusOK, h.get(t, authorizePath(client, nil)).StatusCode)

	resp := h.postForm(t, "/authorize", url.Values{"action": {"deny"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", location.Query().Get("error"))
}

func TestAuthorize_InvalidRequestBody(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	resp := h.get(t, "/authorize?response_type=token")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", decode(t, resp)["error"])
}

func TestToken_BasicAuthTakesPrecedence(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	client := testkit.CreateClient(t, h.store, "s3cret")
	h.login(t)

	require.Equal(t, http.StatusOK, h.get(t, authorizePath(client, nil)).StatusCode)
	resp := h.postForm(t, "/authorize", url.Values{})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	resp = h.postForm(t, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"someone-else"},
		"client_secret": {"wrong"},
		"code":          {location.Query().Get("code")},
		"redirect_uri":  {redirectURI},
	}, client.ClientID, "s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestToken_ErrorResponses(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	client := testkit.CreateClient(t, h.store, "s3cret")

	tests := []struct {
		name       string
		form       url.Values
		basic      []string
		wantStatus int
		wantError  string
	}{
		{
			name:       "wrong secret",
			form:       url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"r"}},
			basic:      []string{client.ClientID, "nope"},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_client",
		},
		{
			name:       "unsupported grant",
			form:       url.Values{"grant_type": {"client_credentials"}},
			basic:      []string{client.ClientID, "s3cret"},
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_grant_type",
		},
		{
			name:       "unknown refresh token",
			form:       url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"r"}},
			basic:      []string{client.ClientID, "s3cret"},
			wantStatus: http.StatusForbidden,
			wantError:  "invalid_grant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := h.postForm(t, "/oauth/token", tt.form, tt.basic...)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantError, decode(t, resp)["error"])
		})
	}
}

func TestToken_RejectsJSONBody(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	resp, err := h.http.Post(h.server.URL+"/oauth/token", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
