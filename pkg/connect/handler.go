// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package connect

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stacklok/toolhive-core/httperr"

	apierrors "github.com/kokoro-labs/kokoro-auth/pkg/api/errors"
	"github.com/kokoro-labs/kokoro-auth/pkg/cookie"
	"github.com/kokoro-labs/kokoro-auth/pkg/credential"
)

// StateCookieTTL is the lifetime of the CSRF state cookie.
const StateCookieTTL = 10 * time.Minute

// DefaultAccountPath is where a successful callback redirects, followed by
// the integration account id.
const DefaultAccountPath = "/account/integrations"

// Handler serves the connect endpoints.
type Handler struct {
	flow        *Flow
	providers   map[string]Provider
	jar         cookie.Jar
	accountPath string
}

// NewHandler returns a Handler for the given providers.
func NewHandler(flow *Flow, jar cookie.Jar, accountPath string, providers ...Provider) *Handler {
	if accountPath == "" {
		accountPath = DefaultAccountPath
	}
	h := &Handler{
		flow:        flow,
		providers:   make(map[string]Provider, len(providers)),
		jar:         jar,
		accountPath: strings.TrimSuffix(accountPath, "/"),
	}
	for _, p := range providers {
		h.providers[p.Name()] = p
	}
	return h
}

// Routes registers the connect endpoints. They expect credential.Middleware
// to run before them.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/connect/{provider}", apierrors.ErrorHandler(h.redirect))
	r.Get("/connect/{provider}/callback", apierrors.ErrorHandler(h.callback))
}

func (h *Handler) provider(r *http.Request) (Provider, error) {
	p, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request) error {
	p, err := h.provider(r)
	if err != nil {
		return err
	}
	if _, ok := credential.UserFromContext(r.Context()); !ok {
		return ErrUnauthenticated
	}

	location, state := h.flow.Redirect(p)
	h.jar.Set(w, cookie.StateName(p.Name()), state, StateCookieTTL)
	http.Redirect(w, r, location, http.StatusFound)
	return nil
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) error {
	p, err := h.provider(r)
	if err != nil {
		return err
	}
	cookieState := h.jar.Take(w, r, cookie.StateName(p.Name()))
	user, _ := credential.UserFromContext(r.Context())
	q := r.URL.Query()

	account, err := h.flow.Callback(r.Context(), user, p, q.Get("code"), q.Get("state"), cookieState)
	if errors.Is(err, ErrAuthenticationFailed) {
		// Already logged with detail by the flow.
		http.Error(w, err.Error(), httperr.Code(err))
		return nil
	}
	if err != nil {
		return err
	}

	http.Redirect(w, r, h.accountPath+"/"+account.ID, http.StatusFound)
	return nil
}
