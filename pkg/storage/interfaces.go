// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage defines the persistence contract for kokoro-auth: the row
// models and the point operations the auth flows need. Implementations must
// return ErrNotFound for missing rows and ErrAlreadyExists for unique-key
// violations.
package storage

import (
	"context"
	"time"
)

// Querier is the set of operations available both inside and outside a
// transaction.
type Querier interface {
	// CreateUser inserts a user. ID is assigned by the caller.
	CreateUser(ctx context.Context, user *User) error
	// GetUser returns the user with the given id.
	GetUser(ctx context.Context, id string) (*User, error)

	// CreateSession inserts a session.
	CreateSession(ctx context.Context, session *Session) error
	// GetSessionWithUser returns the session and the user that owns it.
	GetSessionWithUser(ctx context.Context, id string) (*Session, *User, error)
	// UpdateSessionExpiry moves the expiry of a session.
	UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteSession removes a session. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, id string) error
	// DeleteUserSessions removes every session of a user.
	DeleteUserSessions(ctx context.Context, userID string) error

	// CreateAccount links an identity-provider subject to a user.
	CreateAccount(ctx context.Context, account *Account) error
	// GetAccount looks up a link by (platform, platformID).
	GetAccount(ctx context.Context, platform, platformID string) (*Account, error)

	// CreateOAuthClient registers an OAuth client.
	CreateOAuthClient(ctx context.Context, client *OAuthClient) error
	// GetOAuthClient looks up a client by its public client_id.
	GetOAuthClient(ctx context.Context, clientID string) (*OAuthClient, error)

	// CreateAuthorizationCode stores an issued code.
	CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	// GetAuthorizationCode returns the stored code.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
	// DeleteAuthorizationCode removes a code and reports whether a row was removed.
	DeleteAuthorizationCode(ctx context.Context, code string) (bool, error)

	// CreateToken stores an issued access/refresh pair.
	CreateToken(ctx context.Context, token *Token) error
	// GetTokenByRefreshToken returns the pair owning refreshToken.
	GetTokenByRefreshToken(ctx context.Context, refreshToken string) (*Token, error)
	// DeleteTokenByRefreshToken removes the pair and reports whether a row was removed.
	DeleteTokenByRefreshToken(ctx context.Context, refreshToken string) (bool, error)

	// FindIntegrationAccount returns the account of the given type matching
	// either platformAccountID or email.
	FindIntegrationAccount(
		ctx context.Context, integrationType IntegrationType, platformAccountID, email string,
	) (*IntegrationAccount, error)
	// CountIntegrationAccounts returns how many integration accounts a user has.
	CountIntegrationAccounts(ctx context.Context, userID string) (int, error)
	// UpsertIntegrationAccount inserts the account or, on a
	// (platform_account_id, integration_type) conflict, refreshes its
	// credentials and profile and clears invalid_grant. It returns the stored row.
	UpsertIntegrationAccount(ctx context.Context, account *IntegrationAccount) (*IntegrationAccount, error)
	// GetIntegrationAccount returns an integration account by id.
	GetIntegrationAccount(ctx context.Context, id string) (*IntegrationAccount, error)

	// EnsureContactList creates the contact list for an integration account if
	// it does not exist yet.
	EnsureContactList(ctx context.Context, list *ContactList) error
	// ListContactLists returns the contact lists of a user.
	ListContactLists(ctx context.Context, userID string) ([]*ContactList, error)
}

// Store is a Querier that can run a group of operations atomically.
type Store interface {
	Querier

	// InTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise; fn's error is returned unchanged.
	InTx(ctx context.Context, fn func(q Querier) error) error

	// Close releases the underlying connection.
	Close() error
}
