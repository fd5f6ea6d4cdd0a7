// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package token generates the random credentials handed out by kokoro-auth
// and derives the one-way storage keys used to look them up.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"strings"
)

// OpaqueTokenBytes is the entropy of a session token.
const OpaqueTokenBytes = 20

// RefreshTokenBytes is the entropy of an OAuth refresh token.
const RefreshTokenBytes = 32

var lowerBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateOpaqueToken returns a new session token: 20 random bytes encoded as
// unpadded lowercase base32 (32 characters, URL safe).
func GenerateOpaqueToken() string {
	b := make([]byte, OpaqueTokenBytes)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return strings.ToLower(lowerBase32.EncodeToString(b))
}

// HashToken returns the lowercase hex SHA-256 of token. Session ids are the
// hash of the session token, so a database leak does not leak credentials.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateAuthorizationCode returns a URL-safe authorization code carrying
// 128 bits of entropy.
func GenerateAuthorizationCode() string {
	return rand.Text()
}

// GenerateRefreshToken returns 32 random bytes, hex encoded.
func GenerateRefreshToken() string {
	b := make([]byte, RefreshTokenBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateState returns a CSRF state value for an upstream redirect.
func GenerateState() string {
	return rand.Text()
}
