// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package authserver implements the OAuth 2.0 authorization code flow with
// PKCE and refresh token rotation for first-party hosted OAuth clients.
//
// The Server methods are transport independent: they return result values
// and *OAuthError, and the handlers package turns those into HTTP responses.
package authserver

import (
	"errors"
	"time"

	"github.com/kokoro-labs/kokoro-auth/pkg/metrics"
	"github.com/kokoro-labs/kokoro-auth/pkg/signedtoken"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
)

// Server is the authorization server state machine.
type Server struct {
	cfg     Config
	store   storage.Store
	tokens  *signedtoken.Service
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithMetrics records token endpoint outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New returns a Server.
func New(cfg Config, store storage.Store, tokens *signedtoken.Service, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if tokens == nil {
		return nil, errors.New("signed token service is required")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		store:  store,
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}
