// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential resolves the bearer credential of an inbound request
// into a Principal. Short opaque tokens are looked up as sessions, long ones
// are verified as signed OAuth access tokens.
package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
	"github.com/kokoro-labs/kokoro-auth/pkg/session"
	"github.com/kokoro-labs/kokoro-auth/pkg/signedtoken"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
)

//go:generate mockgen -destination=mocks/mock_resolver.go -package=mocks -source=resolver.go SessionValidator,TokenVerifier,UserGetter

// SessionValidator validates first-party session tokens.
type SessionValidator interface {
	Validate(ctx context.Context, rawToken string) (session.Result, error)
}

// TokenVerifier verifies signed tokens.
type TokenVerifier interface {
	Verify(schema *signedtoken.Schema, token string, out any) error
}

// UserGetter loads users by id.
type UserGetter interface {
	GetUser(ctx context.Context, id string) (*storage.User, error)
}

// Resolver turns requests into principals.
type Resolver struct {
	sessions   SessionValidator
	tokens     TokenVerifier
	users      UserGetter
	cookieName string
	classifier Classifier
	cookies    *session.CookieConfig
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClassifier replaces the default LengthClassifier.
func WithClassifier(c Classifier) ResolverOption {
	return func(r *Resolver) {
		r.classifier = c
	}
}

// WithSessionCookie makes Middleware keep the session cookie in step with
// the stored session. A slid expiry is written back and a cookie naming an
// expired session is cleared. It also sets the cookie name to read.
func WithSessionCookie(c session.CookieConfig) ResolverOption {
	return func(r *Resolver) {
		r.cookies = &c
		if c.Name != "" {
			r.cookieName = c.Name
		}
	}
}

// NewResolver returns a Resolver.
func NewResolver(sessions SessionValidator, tokens TokenVerifier, users UserGetter, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		sessions:   sessions,
		tokens:     tokens,
		users:      users,
		cookieName: session.DefaultCookieName,
		classifier: LengthClassifier{Threshold: DefaultLengthThreshold},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveCredential extracts the raw credential from r. A Bearer token that
// classifies as OAuth wins, then the session cookie, then a short Bearer
// token. It returns "" when no credential is present.
func ResolveCredential(r *http.Request, cookieName string, c Classifier) string {
	raw, _ := credentialFrom(r, cookieName, c)
	return raw
}

// credentialFrom is ResolveCredential also reporting whether the credential
// came from the cookie.
func credentialFrom(r *http.Request, cookieName string, c Classifier) (string, bool) {
	bearer := bearerToken(r)
	if bearer != "" && c.Classify(bearer) == KindOAuth {
		return bearer, false
	}
	if ck, err := r.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	return bearer, false
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

type accessTokenClaims struct {
	Sub string `json:"sub"`
	Aud string `json:"aud"`
}

// resolution is a resolved principal plus what the session lookup did.
type resolution struct {
	principal  Principal
	raw        string
	fromCookie bool
	result     session.Result
}

// Resolve returns the principal behind r. Invalid or unknown credentials
// resolve to Anonymous; only store failures are returned as errors.
func (res *Resolver) Resolve(ctx context.Context, r *http.Request) (Principal, error) {
	out, err := res.resolve(ctx, r)
	if err != nil {
		return nil, err
	}
	return out.principal, nil
}

func (res *Resolver) resolve(ctx context.Context, r *http.Request) (resolution, error) {
	raw, fromCookie := credentialFrom(r, res.cookieName, res.classifier)
	out := resolution{principal: Anonymous{}, raw: raw, fromCookie: fromCookie}
	if raw == "" {
		return out, nil
	}

	if res.classifier.Classify(raw) == KindOAuth {
		p, err := res.resolveAccessToken(ctx, raw)
		if err != nil {
			return resolution{}, err
		}
		out.principal = p
		return out, nil
	}

	result, err := res.sessions.Validate(ctx, raw)
	if err != nil {
		return resolution{}, err
	}
	out.result = result
	if !result.Anonymous() {
		out.principal = SessionPrincipal{Session: result.Session, Subject: result.User}
	}
	return out, nil
}

// syncCookie writes session expiry changes back to the cookie the
// credential came from.
func (res *Resolver) syncCookie(w http.ResponseWriter, out resolution) {
	if res.cookies == nil || !out.fromCookie {
		return
	}
	switch {
	case out.result.Refreshed && out.result.Session != nil:
		res.cookies.SetCookie(w, out.raw, out.result.Session.ExpiresAt)
	case out.result.Expired:
		res.cookies.ClearCookie(w)
	}
}

func (res *Resolver) resolveAccessToken(ctx context.Context, raw string) (Principal, error) {
	var claims accessTokenClaims
	if err := res.tokens.Verify(signedtoken.AccessTokenSchema, raw, &claims); err != nil {
		logger.Debugw("rejected bearer access token", "error", err)
		return Anonymous{}, nil
	}

	user, err := res.users.GetUser(ctx, claims.Sub)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Debugw("access token subject no longer exists", "user_id", claims.Sub)
		return Anonymous{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load access token subject: %w", err)
	}
	return OAuthPrincipal{Subject: user, ClientID: claims.Aud}, nil
}
