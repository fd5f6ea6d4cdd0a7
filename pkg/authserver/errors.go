// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"errors"
	"net/http"

	"github.com/stacklok/toolhive-core/httperr"
)

// OAuth 2.0 error codes (RFC 6749 Section 5.2 and 4.1.2.1).
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidClient        = "invalid_client"
	CodeInvalidGrant         = "invalid_grant"
	CodeInvalidScope         = "invalid_scope"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeAccessDenied         = "access_denied"
	CodeServerError          = "server_error"
)

// ErrUnauthenticated is returned by steps that need a resource owner when
// the request has none.
var ErrUnauthenticated = httperr.WithCode(errors.New("authentication required"), http.StatusUnauthorized)

// OAuthError is a protocol error returned to the client as
// {"error", "error_description"}.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`

	cause error
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Unwrap returns the underlying cause of a server_error.
func (e *OAuthError) Unwrap() error {
	return e.cause
}

// ErrInvalidRequest is a malformed or incomplete request (400).
func ErrInvalidRequest(description string) *OAuthError {
	return &OAuthError{Code: CodeInvalidRequest, Description: description, Status: http.StatusBadRequest}
}

// ErrInvalidClient is a failed client authentication (401).
func ErrInvalidClient(description string) *OAuthError {
	return &OAuthError{Code: CodeInvalidClient, Description: description, Status: http.StatusUnauthorized}
}

// ErrInvalidGrant is an unknown, expired or mismatched code or refresh
// token (403).
func ErrInvalidGrant(description string) *OAuthError {
	return &OAuthError{Code: CodeInvalidGrant, Description: description, Status: http.StatusForbidden}
}

// ErrInvalidScope is a request for a scope the server does not know (400).
func ErrInvalidScope(description string) *OAuthError {
	return &OAuthError{Code: CodeInvalidScope, Description: description, Status: http.StatusBadRequest}
}

// ErrUnsupportedGrantType is an unknown grant_type (400).
func ErrUnsupportedGrantType(grantType string) *OAuthError {
	return &OAuthError{
		Code:        CodeUnsupportedGrantType,
		Description: "unsupported grant_type " + quote(grantType),
		Status:      http.StatusBadRequest,
	}
}

// ErrServer wraps an internal failure (500). The cause is kept for logging
// and never written to the client.
func ErrServer(cause error) *OAuthError {
	return &OAuthError{Code: CodeServerError, Status: http.StatusInternalServerError, cause: cause}
}

// AsOAuthError converts err to an OAuthError, treating unknown errors as
// server errors.
func AsOAuthError(err error) *OAuthError {
	var oe *OAuthError
	if errors.As(err, &oe) {
		return oe
	}
	return ErrServer(err)
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	return `"` + s + `"`
}
