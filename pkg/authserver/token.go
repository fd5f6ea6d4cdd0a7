// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
	"github.com/kokoro-labs/kokoro-auth/pkg/signedtoken"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
	"github.com/kokoro-labs/kokoro-auth/pkg/token"
)

// Grant types accepted by the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenRequest is a parsed /oauth/token request. ClientID and ClientSecret
// are already resolved from Basic auth or the form.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// TokenResponse is the successful token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Token handles POST /oauth/token.
func (s *Server) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	resp, err := s.token(ctx, req)
	result := "success"
	if err != nil {
		result = AsOAuthError(err).Code
	}
	s.metrics.TokenGrant(grantLabel(req.GrantType), result)
	return resp, err
}

func (s *Server) token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}

	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		return s.exchangeCode(ctx, client, req)
	case GrantTypeRefreshToken:
		return s.refresh(ctx, client, req)
	default:
		return nil, ErrUnsupportedGrantType(req.GrantType)
	}
}

func (s *Server) authenticateClient(ctx context.Context, req TokenRequest) (*storage.OAuthClient, error) {
	if req.ClientID == "" {
		return nil, ErrInvalidClient("client_id is required")
	}
	client, err := s.store.GetOAuthClient(ctx, req.ClientID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidClient("unknown client")
	}
	if err != nil {
		return nil, ErrServer(fmt.Errorf("failed to load client: %w", err))
	}
	if req.ClientSecret != "" &&
		subtle.ConstantTimeCompare([]byte(req.ClientSecret), []byte(client.ClientSecret)) != 1 {
		return nil, ErrInvalidClient("client authentication failed")
	}
	return client, nil
}

func (s *Server) exchangeCode(
	ctx context.Context, client *storage.OAuthClient, req TokenRequest,
) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, ErrInvalidRequest("code is required")
	}
	if req.RedirectURI == "" {
		return nil, ErrInvalidRequest("redirect_uri is required")
	}
	// A request without a secret is a public client, whatever was registered.
	if req.ClientSecret == "" && req.CodeVerifier == "" {
		return nil, ErrInvalidRequest("code_verifier is required for public clients")
	}

	var resp *TokenResponse
	err := s.store.InTx(ctx, func(q storage.Querier) error {
		code, err := q.GetAuthorizationCode(ctx, req.Code)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidGrant("invalid authorization code")
		}
		if err != nil {
			return ErrServer(fmt.Errorf("failed to load authorization code: %w", err))
		}

		now := s.now()
		switch {
		case code.ClientID != client.ClientID:
			return ErrInvalidGrant("authorization code was issued to another client")
		case !now.Before(code.ExpiresAt):
			return ErrInvalidGrant("authorization code expired")
		case code.RedirectURI != req.RedirectURI:
			return ErrInvalidGrant("redirect_uri does not match")
		}
		if code.CodeChallenge == "" && req.ClientSecret == "" {
			return ErrInvalidGrant("authorization code was issued without code_challenge")
		}
		if code.CodeChallenge != "" && !VerifyPKCE(code.CodeChallengeMethod, code.CodeChallenge, req.CodeVerifier) {
			return ErrInvalidGrant("code_verifier does not match code_challenge")
		}

		scope, err := grantedScope(req.Scope, code.Scope)
		if err != nil {
			return err
		}

		removed, err := q.DeleteAuthorizationCode(ctx, code.Code)
		if err != nil {
			return ErrServer(fmt.Errorf("failed to consume authorization code: %w", err))
		}
		if !removed {
			return ErrInvalidGrant("invalid authorization code")
		}

		resp, err = s.issue(ctx, q, client.ClientID, code.UserID, scope, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("authorization code exchanged", "client_id", client.ClientID)
	return resp, nil
}

func (s *Server) refresh(
	ctx context.Context, client *storage.OAuthClient, req TokenRequest,
) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}

	var resp *TokenResponse
	err := s.store.InTx(ctx, func(q storage.Querier) error {
		old, err := q.GetTokenByRefreshToken(ctx, req.RefreshToken)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidGrant("invalid refresh token")
		}
		if err != nil {
			return ErrServer(fmt.Errorf("failed to load refresh token: %w", err))
		}
		if old.UserID == "" {
			return ErrInvalidGrant("refresh token has no subject")
		}
		if old.ClientID != client.ClientID {
			return ErrInvalidGrant("refresh token was issued to another client")
		}

		scope, err := grantedScope(req.Scope, old.Scope)
		if err != nil {
			return err
		}

		removed, err := q.DeleteTokenByRefreshToken(ctx, old.RefreshToken)
		if err != nil {
			return ErrServer(fmt.Errorf("failed to revoke refresh token: %w", err))
		}
		if !removed {
			return ErrInvalidGrant("invalid refresh token")
		}

		resp, err = s.issue(ctx, q, client.ClientID, old.UserID, scope, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("refresh token rotated", "client_id", client.ClientID)
	return resp, nil
}

// issue mints an access/refresh pair and stores it through q.
func (s *Server) issue(
	ctx context.Context, q storage.Querier, clientID, userID, scope string, now time.Time,
) (*TokenResponse, error) {
	access, err := s.tokens.Create(
		map[string]any{"sub": userID, "aud": clientID, "jti": uuid.NewString()},
		signedtoken.WithExpiresIn(s.cfg.AccessTokenTTL),
	)
	if err != nil {
		return nil, ErrServer(fmt.Errorf("failed to sign access token: %w", err))
	}

	row := &storage.Token{
		AccessToken:  access,
		RefreshToken: token.GenerateRefreshToken(),
		ClientID:     clientID,
		UserID:       userID,
		Scope:        scope,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.cfg.AccessTokenTTL),
	}
	if err := q.CreateToken(ctx, row); err != nil {
		return nil, ErrServer(fmt.Errorf("failed to store token: %w", err))
	}

	return &TokenResponse{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		Scope:        scope,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL / time.Second),
	}, nil
}

// grantedScope returns the requested scope when it narrows granted, and
// granted when nothing was requested.
func grantedScope(requested, granted string) (string, error) {
	if requested == "" {
		return granted, nil
	}
	want := ParseScope(requested)
	if scope, ok := unknownScope(want, ParseScope(granted)); ok {
		return "", ErrInvalidScope("scope " + quote(scope) + " was not granted")
	}
	return JoinScopes(want), nil
}

func grantLabel(grantType string) string {
	switch grantType {
	case GrantTypeAuthorizationCode, GrantTypeRefreshToken:
		return grantType
	default:
		return "other"
	}
}
