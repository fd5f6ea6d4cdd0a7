// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package handlers exposes the authorization server over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stacklok/toolhive-core/httperr"

	"github.com/kokoro-labs/kokoro-auth/pkg/authserver"
	"github.com/kokoro-labs/kokoro-auth/pkg/cookie"
	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
)

// AuthorizeStateCookie carries the signed snapshot of a pending /authorize
// request.
const AuthorizeStateCookie = "oauth_authorize_request"

// Handler serves the /authorize and /oauth/token endpoints.
type Handler struct {
	server *authserver.Server
	jar    cookie.Jar
}

// NewHandler returns a Handler.
func NewHandler(server *authserver.Server, jar cookie.Jar) *Handler {
	return &Handler{server: server, jar: jar}
}

// Routes returns a router with all endpoints mounted. The /authorize routes
// expect credential.Middleware to run before them.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.AuthorizeRoutes(r)
	h.TokenRoutes(r)
	return r
}

// AuthorizeRoutes registers the resource owner facing endpoints.
func (h *Handler) AuthorizeRoutes(r chi.Router) {
	r.Get("/authorize", h.AuthorizeHandler)
	r.Post("/authorize", h.ConsentHandler)
}

// TokenRoutes registers the client facing token endpoint.
func (h *Handler) TokenRoutes(r chi.Router) {
	r.Post("/oauth/token", h.TokenHandler)
}

// writeError writes err as an RFC 6749 error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, authserver.ErrUnauthenticated) {
		http.Error(w, err.Error(), httperr.Code(err))
		return
	}

	oe := authserver.AsOAuthError(err)
	if oe.Status >= http.StatusInternalServerError {
		logger.Errorw("authorization server error",
			"path", r.URL.Path,
			"error", err,
		)
	} else {
		logger.Debugw("oauth request rejected",
			"path", r.URL.Path,
			"error", oe.Code,
			"description", oe.Description,
		)
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	if oe.Code == authserver.CodeInvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="kokoro"`)
	}
	writeJSON(w, oe.Status, oe)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debugw("failed to write response", "error", err)
	}
}
