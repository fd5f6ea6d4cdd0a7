// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package server wires the kokoro-auth components from a configuration and
// runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/kokoro-labs/kokoro-auth/pkg/authserver"
	authhandlers "github.com/kokoro-labs/kokoro-auth/pkg/authserver/handlers"
	"github.com/kokoro-labs/kokoro-auth/pkg/config"
	"github.com/kokoro-labs/kokoro-auth/pkg/connect"
	"github.com/kokoro-labs/kokoro-auth/pkg/cookie"
	"github.com/kokoro-labs/kokoro-auth/pkg/credential"
	"github.com/kokoro-labs/kokoro-auth/pkg/jobs"
	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
	"github.com/kokoro-labs/kokoro-auth/pkg/login"
	"github.com/kokoro-labs/kokoro-auth/pkg/metrics"
	"github.com/kokoro-labs/kokoro-auth/pkg/session"
	"github.com/kokoro-labs/kokoro-auth/pkg/signedtoken"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage/sqlite"
)

// Server is a configured kokoro-auth instance.
type Server struct {
	cfg     *config.Config
	store   *sqlite.Store
	queue   jobs.Queue
	handler http.Handler
}

// Option configures New.
type Option func(*options)

type options struct {
	loginProviders []login.IdentityProvider
	queue          jobs.Queue
}

// WithLoginProviders replaces the login providers built from the configuration.
func WithLoginProviders(providers ...login.IdentityProvider) Option {
	return func(o *options) {
		o.loginProviders = providers
	}
}

// WithQueue replaces the sync queue built from the configuration.
func WithQueue(q jobs.Queue) Option {
	return func(o *options) {
		o.queue = q
	}
}

// New opens the database and builds every component described by cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Server{cfg: cfg, store: store}
	if err := s.build(ctx, o); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context, o options) error {
	cfg := s.cfg

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	tokens, err := signedtoken.New(signedtoken.Config{Secret: []byte(cfg.Secret), Issuer: cfg.OAuth.Issuer})
	if err != nil {
		return fmt.Errorf("failed to create signed token service: %w", err)
	}

	sessions := session.NewManager(s.store,
		session.WithLifetime(cfg.Session.Lifetime),
		session.WithRefreshThreshold(cfg.Session.RefreshThreshold),
		session.WithMetrics(m),
	)
	sessionCookies := session.CookieConfig{Domain: cfg.Cookies.Domain, Secure: cfg.SecureCookies()}
	jar := cookie.Jar{Domain: cfg.Cookies.Domain, Secure: cfg.SecureCookies()}

	resolver := credential.NewResolver(sessions, tokens, s.store,
		credential.WithClassifier(credential.LengthClassifier{Threshold: cfg.Session.CredentialLengthThreshold}),
		credential.WithSessionCookie(sessionCookies),
	)

	authServer, err := authserver.New(authserver.Config{
		KnownScopes:    cfg.OAuth.Scopes,
		AccessTokenTTL: cfg.OAuth.AccessTokenTTL,
		AuthCodeTTL:    cfg.OAuth.AuthCodeTTL,
	}, s.store, tokens, authserver.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to create authorization server: %w", err)
	}

	s.queue = o.queue
	if s.queue == nil {
		s.queue, err = newQueue(ctx, cfg.Redis)
		if err != nil {
			return err
		}
	}
	connectProviders, err := newConnectProviders(cfg)
	if err != nil {
		return err
	}
	flow := connect.NewFlow(s.store,
		connect.WithQueue(s.queue),
		connect.WithMetrics(m),
		connect.WithMaxAccounts(cfg.Connect.MaxAccounts),
	)

	loginProviders := o.loginProviders
	if loginProviders == nil {
		loginProviders, err = newLoginProviders(ctx, cfg)
		if err != nil {
			return err
		}
	}

	s.handler = NewRouter(Routes{
		Resolver:   resolver,
		AuthServer: authhandlers.NewHandler(authServer, jar),
		Connect:    connect.NewHandler(flow, jar, cfg.Connect.AccountPath, connectProviders...),
		Login: login.NewHandler(login.NewService(s.store, sessions), sessions, tokens, jar, sessionCookies,
			loginProviders...),
		Gatherer:     registry,
		TokenLimiter: NewRateLimiter(cfg.Server.TokenRateLimit, cfg.Server.TokenRateBurst),
	})
	return nil
}

func newQueue(ctx context.Context, cfg config.RedisConfig) (jobs.Queue, error) {
	if cfg.Addr == "" {
		logger.Warnw("redis is not configured; sync jobs will be dropped")
		return jobs.NoopQueue{}, nil
	}
	q, err := jobs.NewRedisQueue(ctx, jobs.RedisConfig{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		Key:      cfg.Key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sync queue: %w", err)
	}
	return q, nil
}

func newConnectProviders(cfg *config.Config) ([]connect.Provider, error) {
	type factory struct {
		name  string
		creds config.ClientCredentials
		build func(connect.ProviderConfig) (connect.Provider, error)
	}
	factories := []factory{
		{"google-calendar", cfg.Providers.GoogleCalendar, connect.NewGoogleCalendar},
		{"google-people", cfg.Providers.GooglePeople, func(pc connect.ProviderConfig) (connect.Provider, error) {
			return connect.NewGooglePeople(pc)
		}},
		{"linear", cfg.Providers.Linear, connect.NewLinear},
	}

	var providers []connect.Provider
	for _, f := range factories {
		if !f.creds.Enabled() {
			continue
		}
		p, err := f.build(connect.ProviderConfig{
			ClientID:     f.creds.ClientID,
			ClientSecret: f.creds.ClientSecret,
			RedirectURL:  cfg.CallbackURL("/connect/" + f.name + "/callback"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure %s: %w", f.name, err)
		}
		logger.Infow("connect provider enabled", "provider", f.name)
		providers = append(providers, p)
	}
	return providers, nil
}

func newLoginProviders(ctx context.Context, cfg *config.Config) ([]login.IdentityProvider, error) {
	if !cfg.Providers.Google.Enabled() {
		return nil, nil
	}
	google, err := login.NewGoogle(ctx,
		cfg.Providers.Google.ClientID,
		cfg.Providers.Google.ClientSecret,
		cfg.CallbackURL("/login/google/callback"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure google login: %w", err)
	}
	return []login.IdentityProvider{google}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on the configured address until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Server listening on %s", ln.Addr())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Infof("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server forced to shutdown: %v", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Infof("Server shutdown complete")
	return nil
}

// Close releases the queue and the database.
func (s *Server) Close() error {
	var errs []error
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
