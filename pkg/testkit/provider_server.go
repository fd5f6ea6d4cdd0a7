// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ProviderServer is a fake upstream OAuth provider exposing a token endpoint
// and a JSON identity endpoint.
type ProviderServer struct {
	*httptest.Server

	// TokenResponse is returned by POST /token.
	TokenResponse map[string]any
	// TokenStatus is the status code of POST /token.
	TokenStatus int
	// IdentityResponse is returned by the identity endpoint.
	IdentityResponse map[string]any

	tokenCalls atomic.Int32
}

// NewProviderServer starts a fake provider that issues a complete token
// response and serves identity at both GET /userinfo and POST /graphql.
func NewProviderServer(t testing.TB) *ProviderServer {
	t.Helper()
	p := &ProviderServer{
		TokenResponse: map[string]any{
			"access_token":  "upstream-access",
			"refresh_token": "upstream-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		},
		TokenStatus: http.StatusOK,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/token", func(w http.ResponseWriter, req *http.Request) {
		p.tokenCalls.Add(1)
		if err := req.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, p.TokenStatus, p.TokenResponse)
	})
	identity := func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, p.IdentityResponse)
	}
	r.Get("/userinfo", identity)
	r.Post("/graphql", identity)

	p.Server = httptest.NewServer(r)
	t.Cleanup(p.Close)
	return p
}

// TokenCalls reports how many times the token endpoint was hit.
func (p *ProviderServer) TokenCalls() int {
	return int(p.tokenCalls.Load())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
