// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package login

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// GoogleIssuer is Google's OpenID Connect issuer.
const GoogleIssuer = "https://accounts.google.com"

// Profile is the identity asserted by a login provider.
type Profile struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// IdentityProvider authenticates users for first-party login.
type IdentityProvider interface {
	// Name is the URL segment and the Account platform of the provider.
	Name() string
	AuthCodeURL(state, nonce string) string
	// Authenticate exchanges code and returns the verified profile.
	Authenticate(ctx context.Context, code, nonce string) (*Profile, error)
}

// OIDCConfig configures an OpenID Connect login provider.
type OIDCConfig struct {
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
}

// OIDCProvider logs users in with an OpenID Connect provider. ID tokens are
// verified with go-oidc.
type OIDCProvider struct {
	name       string
	config     *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

// NewOIDCProvider discovers the issuer and returns a provider.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.Name == "" || cfg.Issuer == "" {
		return nil, errors.New("provider name and issuer are required")
	}
	if cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("client id and redirect url are required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	discovered, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s: %w", cfg.Issuer, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	ep := discovered.Endpoint()
	ep.AuthStyle = oauth2.AuthStyleInParams

	return newOIDCProvider(cfg.Name, &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     ep,
		Scopes:       scopes,
	}, discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID}), httpClient), nil
}

// NewGoogle returns the Google login provider.
func NewGoogle(ctx context.Context, clientID, clientSecret, redirectURL string) (*OIDCProvider, error) {
	return NewOIDCProvider(ctx, OIDCConfig{
		Name:         "google",
		Issuer:       GoogleIssuer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
	})
}

func newOIDCProvider(name string, cfg *oauth2.Config, verifier *oidc.IDTokenVerifier, httpClient *http.Client) *OIDCProvider {
	return &OIDCProvider{name: name, config: cfg, verifier: verifier, httpClient: httpClient}
}

// Name implements IdentityProvider.
func (p *OIDCProvider) Name() string { return p.name }

// AuthCodeURL implements IdentityProvider.
func (p *OIDCProvider) AuthCodeURL(state, nonce string) string {
	return p.config.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Authenticate implements IdentityProvider.
func (p *OIDCProvider) Authenticate(ctx context.Context, code, nonce string) (*Profile, error) {
	ctx = oidc.ClientContext(ctx, p.httpClient)
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("token response has no id_token")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, errors.New("id token nonce mismatch")
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode id token claims: %w", err)
	}
	if claims.Email == "" {
		return nil, errors.New("id token has no email")
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, errors.New("email is not verified")
	}

	return &Profile{
		Subject: idToken.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}
