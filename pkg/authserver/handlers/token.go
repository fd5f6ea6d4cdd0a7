// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"mime"
	"net/http"
	"net/url"

	"github.com/kokoro-labs/kokoro-auth/pkg/authserver"
)

// TokenHandler handles POST /oauth/token.
func (h *Handler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.server.Token(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

// parseTokenRequest reads the form body. HTTP Basic credentials take
// precedence over client_id and client_secret in the body.
func parseTokenRequest(r *http.Request) (authserver.TokenRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/x-www-form-urlencoded" {
		return authserver.TokenRequest{}, authserver.ErrInvalidRequest(
			"content type must be application/x-www-form-urlencoded")
	}
	if err := r.ParseForm(); err != nil {
		return authserver.TokenRequest{}, authserver.ErrInvalidRequest("malformed form body")
	}
	form := r.PostForm

	req := authserver.TokenRequest{
		GrantType:    form.Get("grant_type"),
		ClientID:     form.Get("client_id"),
		ClientSecret: form.Get("client_secret"),
		Code:         form.Get("code"),
		RedirectURI:  form.Get("redirect_uri"),
		CodeVerifier: form.Get("code_verifier"),
		RefreshToken: form.Get("refresh_token"),
		Scope:        form.Get("scope"),
	}
	if id, secret, ok := r.BasicAuth(); ok {
		req.ClientID = unescape(id)
		req.ClientSecret = unescape(secret)
	}
	return req, nil
}

// unescape reverses the form encoding RFC 6749 Section 2.3.1 applies to
// Basic credentials, keeping the raw value when it is not encoded.
func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}
