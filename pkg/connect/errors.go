// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package connect

import (
	"errors"
	"net/http"

	"github.com/stacklok/toolhive-core/httperr"
)

var (
	// ErrUnauthenticated is returned when no user is logged in.
	ErrUnauthenticated = httperr.WithCode(errors.New("authentication required"), http.StatusUnauthorized)

	// ErrSubscriptionRequired is returned when the user may not connect
	// accounts.
	ErrSubscriptionRequired = httperr.WithCode(errors.New("an active subscription is required"), http.StatusForbidden)

	// ErrInvalidState is returned for a missing or mismatched CSRF state.
	ErrInvalidState = httperr.WithCode(errors.New("invalid_state"), http.StatusBadRequest)

	// ErrAuthenticationFailed is returned for any upstream provider failure.
	// The detail is logged, never returned.
	ErrAuthenticationFailed = httperr.WithCode(
		errors.New("failed to complete authentication"), http.StatusInternalServerError)

	// ErrUserAlreadyExists is returned when the provider account is linked
	// to another user.
	ErrUserAlreadyExists = httperr.WithCode(errors.New("User already exists"), http.StatusBadRequest)

	// ErrQuotaExceeded is returned when the user has no integration slots left.
	ErrQuotaExceeded = httperr.WithCode(
		errors.New("maximum number of integration accounts reached"), http.StatusBadRequest)

	// ErrUnknownProvider is returned for an unregistered provider name.
	ErrUnknownProvider = httperr.WithCode(errors.New("unknown provider"), http.StatusNotFound)
)

// missingField reports a required token or identity field the provider did
// not return.
func missingField(field string) error {
	return httperr.WithCode(errors.New("missing "+field), http.StatusBadRequest)
}
