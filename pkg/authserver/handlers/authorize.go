// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/kokoro-labs/kokoro-auth/pkg/authserver"
	"github.com/kokoro-labs/kokoro-auth/pkg/cookie"
	"github.com/kokoro-labs/kokoro-auth/pkg/credential"
)

// AuthorizeHandler handles GET /authorize. It answers with the consent
// prompt as JSON, or redirects to login while keeping the request in a
// signed cookie.
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := credential.UserFromContext(r.Context())

	res, err := h.server.Authorize(r.Context(), r.URL.Query(), cookie.Get(r, AuthorizeStateCookie), user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if res.Snapshot != "" {
		h.jar.Set(w, AuthorizeStateCookie, res.Snapshot, h.server.Config().AuthorizeStateTTL)
	}
	if res.LoginRedirect != "" {
		http.Redirect(w, r, res.LoginRedirect, http.StatusFound)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, res.Consent)
}

// ConsentHandler handles POST /authorize. The form field action is
// "approve" (default) or "deny". The snapshot cookie is cleared whatever
// the outcome.
func (h *Handler) ConsentHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := h.jar.Take(w, r, AuthorizeStateCookie)
	user, _ := credential.UserFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		writeError(w, r, authserver.ErrInvalidRequest("malformed form body"))
		return
	}

	var (
		location string
		err      error
	)
	switch r.PostForm.Get("action") {
	case "deny":
		location, err = h.server.Deny(r.Context(), snapshot, user)
	case "", "approve":
		location, err = h.server.Consent(r.Context(), snapshot, user)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}
