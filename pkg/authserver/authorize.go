// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
	"github.com/kokoro-labs/kokoro-auth/pkg/signedtoken"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
	"github.com/kokoro-labs/kokoro-auth/pkg/token"
)

// AuthorizeRequest is a parsed /authorize request. It is also the payload of
// the signed snapshot kept in a cookie while the user logs in.
type AuthorizeRequest struct {
	ResponseType        string   `json:"response_type"`
	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	Scope               []string `json:"scope"`
	State               string   `json:"state,omitempty"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
}

// ParseAuthorizeRequest validates the query of an /authorize request.
func ParseAuthorizeRequest(q url.Values) (*AuthorizeRequest, error) {
	req := &AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               ParseScope(q.Get("scope")),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}

	switch {
	case req.ResponseType != "code":
		return nil, ErrInvalidRequest("response_type must be \"code\"")
	case req.ClientID == "":
		return nil, ErrInvalidRequest("client_id is required")
	case req.RedirectURI == "":
		return nil, ErrInvalidRequest("redirect_uri is required")
	}

	if req.CodeChallenge == "" {
		if req.CodeChallengeMethod != "" {
			return nil, ErrInvalidRequest("code_challenge_method requires code_challenge")
		}
		return req, nil
	}
	switch req.CodeChallengeMethod {
	case "":
		req.CodeChallengeMethod = PKCEMethodPlain
	case PKCEMethodS256, PKCEMethodPlain:
	default:
		return nil, ErrInvalidRequest("unsupported code_challenge_method")
	}
	return req, nil
}

// ConsentPrompt is what the resource owner is asked to approve.
type ConsentPrompt struct {
	ClientID    string   `json:"client_id"`
	ClientName  string   `json:"client_name"`
	RedirectURI string   `json:"redirect_uri"`
	Scopes      []string `json:"scopes"`
}

// AuthorizeResult is the outcome of the authorize step. Snapshot, when set,
// is a freshly signed request snapshot to store in the state cookie. Exactly
// one of LoginRedirect and Consent is set.
type AuthorizeResult struct {
	Snapshot      string
	LoginRedirect string
	Consent       *ConsentPrompt
}

// Authorize handles GET /authorize. The request comes from query or, when
// the query does not parse, from the signed snapshot left by an earlier
// visit. user is nil for unauthenticated resource owners.
func (s *Server) Authorize(
	ctx context.Context, query url.Values, snapshot string, user *storage.User,
) (*AuthorizeResult, error) {
	result := &AuthorizeResult{}

	req, parseErr := ParseAuthorizeRequest(query)
	if parseErr != nil {
		if snapshot == "" {
			return nil, parseErr
		}
		restored, err := s.restoreSnapshot(snapshot)
		if err != nil {
			logger.Debugw("authorize snapshot rejected", "error", err)
			return nil, parseErr
		}
		req = restored
	} else {
		signed, err := s.tokens.Create(req, signedtoken.WithExpiresIn(s.cfg.AuthorizeStateTTL))
		if err != nil {
			return nil, ErrServer(fmt.Errorf("failed to sign authorize snapshot: %w", err))
		}
		result.Snapshot = signed
	}

	client, err := s.lookupClient(ctx, s.store, req)
	if err != nil {
		return nil, err
	}

	if user == nil {
		result.LoginRedirect = s.cfg.LoginPath + "?" + url.Values{"next": {s.cfg.AuthorizePath}}.Encode()
		return result, nil
	}

	if scope, ok := unknownScope(req.Scope, s.cfg.KnownScopes); ok {
		return nil, ErrInvalidScope("unknown scope " + quote(scope))
	}

	result.Consent = &ConsentPrompt{
		ClientID:    client.ClientID,
		ClientName:  client.Name,
		RedirectURI: req.RedirectURI,
		Scopes:      CanonicalScopes(req.Scope),
	}
	return result, nil
}

// Consent handles approval of a pending request. It mints and stores an
// authorization code and returns the client redirect URL. The caller must
// clear the snapshot cookie whatever the outcome.
func (s *Server) Consent(ctx context.Context, snapshot string, user *storage.User) (string, error) {
	if user == nil {
		return "", ErrUnauthenticated
	}
	req, err := s.restoreRequired(snapshot)
	if err != nil {
		return "", err
	}
	if _, err := s.lookupClient(ctx, s.store, req); err != nil {
		return "", err
	}
	if scope, ok := unknownScope(req.Scope, s.cfg.KnownScopes); ok {
		return "", ErrInvalidScope("unknown scope " + quote(scope))
	}

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", ErrInvalidRequest("invalid redirect_uri")
	}

	code := &storage.AuthorizationCode{
		Code:                token.GenerateAuthorizationCode(),
		ClientID:            req.ClientID,
		UserID:              user.ID,
		RedirectURI:         req.RedirectURI,
		Scope:               JoinScopes(req.Scope),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ExpiresAt:           s.now().Add(s.cfg.AuthCodeTTL),
	}
	if err := s.store.CreateAuthorizationCode(ctx, code); err != nil {
		return "", ErrServer(fmt.Errorf("failed to store authorization code: %w", err))
	}

	logger.Infow("authorization code issued", "client_id", req.ClientID, "user_id", user.ID)
	return withParams(redirect, url.Values{"code": {code.Code}}, req.State), nil
}

// Deny handles rejection of a pending request and returns the client
// redirect URL carrying error=access_denied.
func (s *Server) Deny(ctx context.Context, snapshot string, user *storage.User) (string, error) {
	if user == nil {
		return "", ErrUnauthenticated
	}
	req, err := s.restoreRequired(snapshot)
	if err != nil {
		return "", err
	}
	if _, err := s.lookupClient(ctx, s.store, req); err != nil {
		return "", err
	}
	return redirectWith(req.RedirectURI, url.Values{"error": {CodeAccessDenied}}, req.State)
}

func (s *Server) restoreSnapshot(snapshot string) (*AuthorizeRequest, error) {
	var req AuthorizeRequest
	if err := s.tokens.Verify(signedtoken.AuthorizeRequestSchema, snapshot, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Server) restoreRequired(snapshot string) (*AuthorizeRequest, error) {
	if snapshot == "" {
		return nil, ErrInvalidRequest("no pending authorization request")
	}
	req, err := s.restoreSnapshot(snapshot)
	if err != nil {
		logger.Debugw("authorize snapshot rejected", "error", err)
		return nil, ErrInvalidRequest("authorization request expired")
	}
	return req, nil
}

// lookupClient loads the client of req and checks its redirect URI.
func (*Server) lookupClient(ctx context.Context, q storage.Querier, req *AuthorizeRequest) (*storage.OAuthClient, error) {
	client, err := q.GetOAuthClient(ctx, req.ClientID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidRequest("unknown client_id")
	}
	if err != nil {
		return nil, ErrServer(fmt.Errorf("failed to load client: %w", err))
	}
	if !slices.Contains(client.RedirectURIs, req.RedirectURI) {
		return nil, ErrInvalidRequest("redirect_uri is not registered for this client")
	}
	if client.IsPublic() && req.CodeChallenge == "" {
		return nil, ErrInvalidRequest("code_challenge is required for public clients")
	}
	return client, nil
}

func redirectWith(redirectURI string, params url.Values, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", ErrInvalidRequest("invalid redirect_uri")
	}
	return withParams(u, params, state), nil
}

func withParams(u *url.URL, params url.Values, state string) string {
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
