// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
	"github.com/kokoro-labs/kokoro-auth/pkg/session"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
)

// Result is a completed login.
type Result struct {
	User         *storage.User
	SessionToken string
	ExpiresAt    time.Time
	// Created is true when the login registered a new user.
	Created bool
}

// Service turns a verified provider profile into a user and a session.
type Service struct {
	store    storage.Store
	sessions *session.Manager
}

// NewService returns a Service.
func NewService(store storage.Store, sessions *session.Manager) *Service {
	return &Service{store: store, sessions: sessions}
}

// Complete finds the user linked to (platform, profile.Subject), creating the
// user and the link on first login, and starts a session for them.
func (s *Service) Complete(ctx context.Context, platform string, profile *Profile) (*Result, error) {
	if profile == nil || profile.Subject == "" {
		return nil, errors.New("profile has no subject")
	}

	res, err := s.complete(ctx, platform, profile)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// A concurrent first login created the link; it now resolves.
		logger.Debugw("retrying login after concurrent account creation", "platform", platform)
		res, err = s.complete(ctx, platform, profile)
	}
	return res, err
}

func (s *Service) complete(ctx context.Context, platform string, profile *Profile) (*Result, error) {
	var res Result
	err := s.store.InTx(ctx, func(q storage.Querier) error {
		user, created, err := findOrCreateUser(ctx, q, platform, profile)
		if err != nil {
			return err
		}
		raw, sess, err := s.sessions.CreateWith(ctx, q, user.ID)
		if err != nil {
			return err
		}
		res = Result{User: user, SessionToken: raw, ExpiresAt: sess.ExpiresAt, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Created {
		logger.Infow("registered user", "user_id", res.User.ID, "platform", platform)
	}
	return &res, nil
}

func findOrCreateUser(
	ctx context.Context, q storage.Querier, platform string, profile *Profile,
) (*storage.User, bool, error) {
	account, err := q.GetAccount(ctx, platform, profile.Subject)
	switch {
	case err == nil:
		user, err := q.GetUser(ctx, account.UserID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load linked user: %w", err)
		}
		return user, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, false, fmt.Errorf("failed to look up account: %w", err)
	}

	user := &storage.User{
		ID:             uuid.NewString(),
		Email:          profile.Email,
		Name:           profile.Name,
		ProfilePicture: profile.Picture,
		Role:           storage.RoleUser,
	}
	if err := q.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	err = q.CreateAccount(ctx, &storage.Account{
		Platform:   platform,
		PlatformID: profile.Subject,
		UserID:     user.ID,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to link account: %w", err)
	}
	return user, true, nil
}
