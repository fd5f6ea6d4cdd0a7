// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package login

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stacklok/toolhive-core/httperr"

	apierrors "github.com/kokoro-labs/kokoro-auth/pkg/api/errors"
	"github.com/kokoro-labs/kokoro-auth/pkg/cookie"
	"github.com/kokoro-labs/kokoro-auth/pkg/credential"
	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
	"github.com/kokoro-labs/kokoro-auth/pkg/session"
	"github.com/kokoro-labs/kokoro-auth/pkg/signedtoken"
	"github.com/kokoro-labs/kokoro-auth/pkg/token"
)

const (
	// StateCookie carries the signed state of a pending login.
	StateCookie = "login_state"
	// StateTTL bounds how long a user may take at the provider.
	StateTTL = 10 * time.Minute
	// DefaultNext is where a login lands without a next parameter.
	DefaultNext = "/"
)

var (
	// ErrUnknownProvider is returned for a provider that is not configured.
	ErrUnknownProvider = httperr.WithCode(errors.New("unknown login provider"), http.StatusNotFound)
	// ErrInvalidState is returned when the callback state does not match the cookie.
	ErrInvalidState = httperr.WithCode(errors.New("invalid_state"), http.StatusBadRequest)
	// ErrLoginFailed is returned when the provider exchange or verification fails.
	ErrLoginFailed = httperr.WithCode(errors.New("login failed"), http.StatusUnauthorized)
)

type loginState struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	Next     string `json:"next,omitempty"`
}

// Handler serves first-party login and logout.
type Handler struct {
	service   *Service
	sessions  *session.Manager
	tokens    *signedtoken.Service
	providers map[string]IdentityProvider
	jar       cookie.Jar
	cookies   session.CookieConfig
}

// NewHandler returns a Handler for the given providers.
func NewHandler(
	service *Service,
	sessions *session.Manager,
	tokens *signedtoken.Service,
	jar cookie.Jar,
	cookies session.CookieConfig,
	providers ...IdentityProvider,
) *Handler {
	h := &Handler{
		service:   service,
		sessions:  sessions,
		tokens:    tokens,
		providers: make(map[string]IdentityProvider, len(providers)),
		jar:       jar,
		cookies:   cookies,
	}
	for _, p := range providers {
		h.providers[p.Name()] = p
	}
	return h
}

// Routes registers the login endpoints. Logout expects credential.Middleware
// to run before it.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/login", apierrors.ErrorHandler(h.list))
	r.Get("/login/{provider}", apierrors.ErrorHandler(h.redirect))
	r.Get("/login/{provider}/callback", apierrors.ErrorHandler(h.callback))
	r.Post("/logout", apierrors.ErrorHandler(h.logout))
}

type providerList struct {
	Providers []providerLink `json:"providers"`
}

type providerLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) error {
	next := SafeNext(r.URL.Query().Get("next"))
	names := make([]string, 0, len(h.providers))
	for name := range h.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := providerList{Providers: make([]providerLink, 0, len(names))}
	for _, name := range names {
		link := "/login/" + name
		if next != DefaultNext {
			link += "?next=" + url.QueryEscape(next)
		}
		out.Providers = append(out.Providers, providerLink{Name: name, URL: link})
	}
	return apierrors.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) provider(r *http.Request) (IdentityProvider, error) {
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
	st := loginState{
		Provider: p.Name(),
		State:    token.GenerateState(),
		Nonce:    token.GenerateState(),
		Next:     SafeNext(r.URL.Query().Get("next")),
	}
	signed, err := h.tokens.Create(st, signedtoken.WithExpiresIn(StateTTL))
	if err != nil {
		return err
	}
	h.jar.Set(w, StateCookie, signed, StateTTL)
	http.Redirect(w, r, p.AuthCodeURL(st.State, st.Nonce), http.StatusFound)
	return nil
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) error {
	p, err := h.provider(r)
	if err != nil {
		return err
	}
	raw := h.jar.Take(w, r, StateCookie)
	q := r.URL.Query()

	var st loginState
	if raw == "" || h.tokens.Verify(signedtoken.LoginStateSchema, raw, &st) != nil {
		return ErrInvalidState
	}
	if st.Provider != p.Name() || q.Get("state") == "" || q.Get("state") != st.State {
		return ErrInvalidState
	}
	if e := q.Get("error"); e != "" {
		logger.Debugw("login provider returned an error", "provider", p.Name(), "error", e)
		return ErrLoginFailed
	}
	if q.Get("code") == "" {
		return httperr.WithCode(errors.New("missing code"), http.StatusBadRequest)
	}

	profile, err := p.Authenticate(r.Context(), q.Get("code"), st.Nonce)
	if err != nil {
		logger.Warnw("login authentication failed", "provider", p.Name(), "error", err)
		return ErrLoginFailed
	}
	res, err := h.service.Complete(r.Context(), p.Name(), profile)
	if err != nil {
		return err
	}

	h.cookies.SetCookie(w, res.SessionToken, res.ExpiresAt)
	http.Redirect(w, r, SafeNext(st.Next), http.StatusFound)
	return nil
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) error {
	if sp, ok := credential.FromContext(r.Context()).(credential.SessionPrincipal); ok {
		if err := h.sessions.Invalidate(r.Context(), sp.Session.ID); err != nil {
			return err
		}
	}
	h.cookies.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// SafeNext returns next if it is a local absolute path, DefaultNext otherwise.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") {
		return DefaultNext
	}
	if strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return DefaultNext
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return DefaultNext
	}
	return next
}
