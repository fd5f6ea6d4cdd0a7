// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobs hands sync work for newly linked integration accounts to the
// external workers. Jobs are JSON documents pushed onto a Redis list.
package jobs

import (
	"context"
	"time"

	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
)

// Job asks a worker to run one sync task for an integration account.
type Job struct {
	ID                   string    `json:"id"`
	Type                 string    `json:"type"`
	UserID               string    `json:"user_id"`
	IntegrationAccountID string    `json:"integration_account_id"`
	EnqueuedAt           time.Time `json:"enqueued_at"`
}

// Queue accepts jobs.
type Queue interface {
	Enqueue(ctx context.Context, jobs ...Job) error
	Close() error
}

// NoopQueue drops jobs. It is used when no Redis is configured.
type NoopQueue struct{}

// Enqueue implements Queue.
func (NoopQueue) Enqueue(_ context.Context, jobs ...Job) error {
	for _, j := range jobs {
		logger.Debugw("sync queue disabled, dropping job", "type", j.Type, "integration_account_id", j.IntegrationAccountID)
	}
	return nil
}

// Close implements Queue.
func (NoopQueue) Close() error { return nil }
