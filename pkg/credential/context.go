// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"

	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
)

// PrincipalContextKey is the context key under which the resolved Principal
// is stored.
type PrincipalContextKey struct{}

// WithPrincipal stores p in ctx. A nil principal leaves ctx unchanged.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, PrincipalContextKey{}, p)
}

// FromContext returns the principal stored in ctx, or Anonymous.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(PrincipalContextKey{}).(Principal); ok {
		return p
	}
	return Anonymous{}
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*storage.User, bool) {
	u := FromContext(ctx).User()
	return u, u != nil
}
