// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import "github.com/kokoro-labs/kokoro-auth/pkg/storage"

// Principal is the resolved identity behind a request. It is one of
// Anonymous, OAuthPrincipal or SessionPrincipal.
type Principal interface {
	// User returns the authenticated user, or nil for Anonymous.
	User() *storage.User
	isPrincipal()
}

// Anonymous is a request without a valid credential.
type Anonymous struct{}

// User implements Principal.
func (Anonymous) User() *storage.User { return nil }

func (Anonymous) isPrincipal() {}

// OAuthPrincipal is a user acting through an OAuth client's access token.
type OAuthPrincipal struct {
	Subject  *storage.User
	ClientID string
}

// User implements Principal.
func (p OAuthPrincipal) User() *storage.User { return p.Subject }

func (OAuthPrincipal) isPrincipal() {}

// SessionPrincipal is a user with a first-party login session.
type SessionPrincipal struct {
	Session *storage.Session
	Subject *storage.User
}

// User implements Principal.
func (p SessionPrincipal) User() *storage.User { return p.Subject }

func (SessionPrincipal) isPrincipal() {}
