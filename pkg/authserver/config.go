// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"errors"
	"time"
)

const (
	// DefaultAccessTokenTTL is the lifetime of issued access tokens.
	DefaultAccessTokenTTL = time.Hour
	// DefaultAuthCodeTTL is the lifetime of authorization codes.
	DefaultAuthCodeTTL = 10 * time.Minute
	// DefaultAuthorizeStateTTL is the lifetime of the signed /authorize snapshot.
	DefaultAuthorizeStateTTL = 5 * time.Minute
	// DefaultLoginPath is where unauthenticated resource owners are sent.
	DefaultLoginPath = "/login"
	// DefaultAuthorizePath is the path of the authorize endpoint, used as the
	// login return target.
	DefaultAuthorizePath = "/authorize"
)

// DefaultScopes is the scope set known to the server.
var DefaultScopes = []string{
	"profile",
	"calendar:read",
	"calendar:write",
	"contacts:read",
	"contacts:write",
	"tasks:read",
	"tasks:write",
}

// Config holds the authorization server settings.
type Config struct {
	// KnownScopes is the set of scopes clients may request.
	KnownScopes       []string
	AccessTokenTTL    time.Duration
	AuthCodeTTL       time.Duration
	AuthorizeStateTTL time.Duration
	LoginPath         string
	AuthorizePath     string
}

func (c *Config) applyDefaults() {
	if len(c.KnownScopes) == 0 {
		c.KnownScopes = DefaultScopes
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.AuthCodeTTL == 0 {
		c.AuthCodeTTL = DefaultAuthCodeTTL
	}
	if c.AuthorizeStateTTL == 0 {
		c.AuthorizeStateTTL = DefaultAuthorizeStateTTL
	}
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.AuthorizePath == "" {
		c.AuthorizePath = DefaultAuthorizePath
	}
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	if c.AccessTokenTTL < 0 || c.AuthCodeTTL < 0 || c.AuthorizeStateTTL < 0 {
		return errors.New("token lifetimes must not be negative")
	}
	return nil
}
