// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

// PKCE challenge methods (RFC 7636).
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// VerifyPKCE reports whether verifier satisfies challenge under method.
// S256 compares BASE64URL(SHA256(verifier)) without padding; plain compares
// the strings directly.
func VerifyPKCE(method, challenge, verifier string) bool {
	if verifier == "" {
		return false
	}
	var computed string
	switch method {
	case PKCEMethodS256:
		computed = oauth2.S256ChallengeFromVerifier(verifier)
	case PKCEMethodPlain, "":
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
