// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package connect links third-party accounts (Google Calendar, Google
// People, Linear) to kokoro users through the provider's OAuth flow and
// stores the resulting credentials as integration accounts.
package connect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kokoro-labs/kokoro-auth/pkg/jobs"
	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
	"github.com/kokoro-labs/kokoro-auth/pkg/metrics"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
	"github.com/kokoro-labs/kokoro-auth/pkg/token"
)

// DefaultMaxIntegrationAccounts is the per-user integration account quota.
const DefaultMaxIntegrationAccounts = 5

// Flow runs the redirect and callback steps.
type Flow struct {
	store       storage.Store
	queue       jobs.Queue
	metrics     *metrics.Metrics
	now         func() time.Time
	maxAccounts int
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithQueue sets the queue sync jobs are sent to.
func WithQueue(q jobs.Queue) FlowOption {
	return func(f *Flow) {
		f.queue = q
	}
}

// WithMetrics records link outcomes.
func WithMetrics(m *metrics.Metrics) FlowOption {
	return func(f *Flow) {
		f.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) FlowOption {
	return func(f *Flow) {
		f.now = now
	}
}

// WithMaxAccounts overrides DefaultMaxIntegrationAccounts.
func WithMaxAccounts(n int) FlowOption {
	return func(f *Flow) {
		f.maxAccounts = n
	}
}

// NewFlow returns a Flow.
func NewFlow(store storage.Store, opts ...FlowOption) *Flow {
	f := &Flow{
		store:       store,
		queue:       jobs.NoopQueue{},
		now:         time.Now,
		maxAccounts: DefaultMaxIntegrationAccounts,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Redirect returns the provider consent URL and the state the caller must
// keep in the provider's state cookie.
func (*Flow) Redirect(p Provider) (string, string) {
	state := token.GenerateState()
	return p.AuthCodeURL(state), state
}

// Callback completes a connect flow. cookieState is the value of the state
// cookie, which the caller clears whatever the outcome.
func (f *Flow) Callback(
	ctx context.Context, user *storage.User, p Provider, code, state, cookieState string,
) (*storage.IntegrationAccount, error) {
	account, err := f.callback(ctx, user, p, code, state, cookieState)
	if err != nil {
		f.metrics.ConnectLink(p.Name(), metrics.OutcomeFailure)
		return nil, err
	}
	f.metrics.ConnectLink(p.Name(), metrics.OutcomeSuccess)
	f.enqueueSync(ctx, p, account)
	return account, nil
}

func (f *Flow) callback(
	ctx context.Context, user *storage.User, p Provider, code, state, cookieState string,
) (*storage.IntegrationAccount, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	if !user.HasActiveSubscription(f.now()) {
		return nil, ErrSubscriptionRequired
	}
	if code == "" || state == "" || cookieState == "" || state != cookieState {
		return nil, ErrInvalidState
	}

	tokens, err := p.Exchange(ctx, code)
	if err != nil {
		logger.Errorw("provider token exchange failed", "provider", p.Name(), "user_id", user.ID, "error", err)
		return nil, ErrAuthenticationFailed
	}
	if err := validateTokens(tokens); err != nil {
		return nil, err
	}

	ident, err := p.Identity(ctx, tokens)
	if err != nil {
		logger.Errorw("provider identity lookup failed", "provider", p.Name(), "user_id", user.ID, "error", err)
		return nil, ErrAuthenticationFailed
	}
	if err := validateIdentity(ident); err != nil {
		return nil, err
	}

	var linked *storage.IntegrationAccount
	err = f.store.InTx(ctx, func(q storage.Querier) error {
		var err error
		linked, err = f.link(ctx, q, user, p, tokens, ident)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("integration account linked",
		"provider", p.Name(),
		"user_id", user.ID,
		"integration_account_id", linked.ID,
	)
	return linked, nil
}

// link merges the provider account into the user's integration accounts.
// Runs inside a transaction.
func (f *Flow) link(
	ctx context.Context, q storage.Querier, user *storage.User, p Provider, tokens *Tokens, ident *Identity,
) (*storage.IntegrationAccount, error) {
	existing, err := q.FindIntegrationAccount(ctx, p.IntegrationType(), ident.AccountID, ident.Email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up integration account: %w", err)
	}
	if existing != nil && existing.UserID != user.ID {
		logger.Warnw("provider account is linked to another user",
			"provider", p.Name(),
			"user_id", user.ID,
		)
		return nil, ErrUserAlreadyExists
	}

	// Only a row that the upsert will update is a reconnect; an email-only
	// match with a different account id inserts a new row.
	reconnect := existing != nil && existing.PlatformAccountID == ident.AccountID
	if !reconnect {
		n, err := q.CountIntegrationAccounts(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count integration accounts: %w", err)
		}
		if n >= f.maxAccounts {
			return nil, ErrQuotaExceeded
		}
	}

	stored, err := q.UpsertIntegrationAccount(ctx, &storage.IntegrationAccount{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		IntegrationType:   p.IntegrationType(),
		PlatformAccountID: ident.AccountID,
		Email:             ident.Email,
		AccessToken:       tokens.AccessToken,
		RefreshToken:      tokens.RefreshToken,
		ExpiresAt:         tokens.ExpiresAt,
		PlatformData:      ident.PlatformData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store integration account: %w", err)
	}

	if hook, ok := p.(LinkHook); ok {
		if err := hook.OnLink(ctx, q, stored); err != nil {
			return nil, fmt.Errorf("failed to run %s link hook: %w", p.Name(), err)
		}
	}
	return stored, nil
}

// enqueueSync queues the provider's sync jobs. Failures are logged and
// counted; the link stays.
func (f *Flow) enqueueSync(ctx context.Context, p Provider, account *storage.IntegrationAccount) {
	types := p.SyncJobs()
	if len(types) == 0 {
		return
	}
	now := f.now()
	batch := make([]jobs.Job, 0, len(types))
	for _, t := range types {
		batch = append(batch, jobs.Job{
			ID:                   uuid.NewString(),
			Type:                 t,
			UserID:               account.UserID,
			IntegrationAccountID: account.ID,
			EnqueuedAt:           now,
		})
	}
	if err := f.queue.Enqueue(ctx, batch...); err != nil {
		logger.Warnw("failed to enqueue sync jobs",
			"provider", p.Name(),
			"integration_account_id", account.ID,
			"error", err,
		)
		f.metrics.SyncEnqueueFailure(p.Name())
	}
}

func validateTokens(t *Tokens) error {
	switch {
	case t == nil || t.AccessToken == "":
		return missingField("access_token")
	case t.RefreshToken == "":
		return missingField("refresh_token")
	case t.ExpiresAt.IsZero():
		return missingField("expires_in")
	}
	return nil
}

func validateIdentity(i *Identity) error {
	switch {
	case i == nil || i.AccountID == "":
		return missingField("account id")
	case i.Email == "":
		return missingField("email")
	}
	return nil
}
