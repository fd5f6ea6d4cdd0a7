// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"net/http"

	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
)

// Middleware resolves the request principal and stores it in the request
// context. Store failures end the request with a 500. With
// WithSessionCookie, session expiry changes are written to the response.
func Middleware(res *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out, err := res.resolve(r.Context(), r)
			if err != nil {
				logger.Errorw("failed to resolve request credential", "path", r.URL.Path, "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			res.syncCookie(w, out)
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), out.principal)))
		})
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="kokoro"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
