// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	authhandlers "github.com/kokoro-labs/kokoro-auth/pkg/authserver/handlers"
	"github.com/kokoro-labs/kokoro-auth/pkg/connect"
	"github.com/kokoro-labs/kokoro-auth/pkg/credential"
	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
	"github.com/kokoro-labs/kokoro-auth/pkg/login"
	"github.com/kokoro-labs/kokoro-auth/pkg/metrics"
)

const requestTimeout = 10 * time.Second

// Routes are the HTTP surfaces mounted by NewRouter. Nil surfaces are skipped.
type Routes struct {
	Resolver     *credential.Resolver
	AuthServer   *authhandlers.Handler
	Connect      *connect.Handler
	Login        *login.Handler
	Gatherer     prometheus.Gatherer
	TokenLimiter *RateLimiter
}

// NewRouter assembles the server routes.
func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
		requestLogger,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if routes.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(routes.Gatherer))
	}

	// Clients authenticate to the token endpoint themselves; no principal.
	if routes.AuthServer != nil {
		r.Group(func(r chi.Router) {
			r.Use(routes.TokenLimiter.Middleware)
			routes.AuthServer.TokenRoutes(r)
		})
	}

	r.Group(func(r chi.Router) {
		if routes.Resolver != nil {
			r.Use(credential.Middleware(routes.Resolver))
		}
		if routes.AuthServer != nil {
			routes.AuthServer.AuthorizeRoutes(r)
		}
		if routes.Connect != nil {
			routes.Connect.Routes(r)
		}
		if routes.Login != nil {
			routes.Login.Routes(r)
		}
		r.With(credential.RequireUser).Get("/me", meHandler)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debugw("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
