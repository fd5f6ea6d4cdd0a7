// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors turns errors returned by HTTP handlers into responses.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/stacklok/toolhive-core/httperr"

	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
)

// HandlerWithError is an HTTP handler that can return an error instead of
// writing the error response itself.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps a HandlerWithError. The status code is taken from the
// error with httperr.Code, so untagged errors become 500s.
//
// 5xx errors are logged in full and answered with the generic status text;
// 4xx errors are answered with the error message.
//
//	r.Get("/connect/{provider}", apierrors.ErrorHandler(h.redirect))
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := httperr.Code(err)
		if code >= http.StatusInternalServerError {
			logger.Errorw("internal server error",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
			http.Error(w, http.StatusText(code), code)
			return
		}

		http.Error(w, err.Error(), code)
	}
}

// WriteJSON writes body as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}
