// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// queries implements storage.Querier against either the pool or a transaction.
type queries struct {
	db dbtx
}

var _ storage.Querier = (*queries)(nil)

// Store implements storage.Store using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

func newStore(db *sql.DB) *Store {
	return &Store{queries: &queries{db: db}, db: db}
}

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a transaction.
func (s *Store) InTx(ctx context.Context, fn func(q storage.Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Users

const userColumns = `u.id, u.email, u.name, u.profile_picture, u.role, u.subscribed_until, u.access_to_api, u.created_at`

func scanUser(sc scanner, extra ...any) (*storage.User, error) {
	var (
		u               storage.User
		role            string
		subscribedUntil sql.NullInt64
		createdAt       int64
	)
	dest := append([]any{
		&u.ID, &u.Email, &u.Name, &u.ProfilePicture, &role, &subscribedUntil, &u.AccessToAPI, &createdAt,
	}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	u.Role = storage.Role(role)
	u.CreatedAt = fromMillis(createdAt)
	if subscribedUntil.Valid {
		t := fromMillis(subscribedUntil.Int64)
		u.SubscribedUntil = &t
	}
	return &u, nil
}

func (q *queries) CreateUser(ctx context.Context, user *storage.User) error {
	if user.Role == "" {
		user.Role = storage.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	var subscribedUntil sql.NullInt64
	if user.SubscribedUntil != nil {
		subscribedUntil = sql.NullInt64{Int64: toMillis(*user.SubscribedUntil), Valid: true}
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, profile_picture, role, subscribed_until, access_to_api, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.ProfilePicture, string(user.Role),
		subscribedUntil, user.AccessToAPI, toMillis(user.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (q *queries) GetUser(ctx context.Context, id string) (*storage.User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// Sessions

func (q *queries) CreateSession(ctx context.Context, session *storage.Session) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)`,
		session.ID, session.UserID, toMillis(session.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (q *queries) GetSessionWithUser(ctx context.Context, id string) (*storage.Session, *storage.User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`, s.id, s.user_id, s.expires_at
		FROM sessions s
		INNER JOIN users u ON u.id = s.user_id
		WHERE s.id = ?`, id)

	var (
		sess      storage.Session
		expiresAt int64
	)
	u, err := scanUser(row, &sess.ID, &sess.UserID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying session: %w", err)
	}
	sess.ExpiresAt = fromMillis(expiresAt)
	return &sess, u, nil
}

func (q *queries) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := q.db.ExecContext(ctx, `UPDATE sessions SET expires_at = ? WHERE id = ?`, toMillis(expiresAt), id)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (q *queries) DeleteSession(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (q *queries) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}

// Accounts

func (q *queries) CreateAccount(ctx context.Context, account *storage.Account) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (platform, platform_id, user_id) VALUES (?, ?, ?)`,
		account.Platform, account.PlatformID, account.UserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

func (q *queries) GetAccount(ctx context.Context, platform, platformID string) (*storage.Account, error) {
	var a storage.Account
	err := q.db.QueryRowContext(ctx,
		`SELECT platform, platform_id, user_id FROM accounts WHERE platform = ? AND platform_id = ?`,
		platform, platformID,
	).Scan(&a.Platform, &a.PlatformID, &a.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return &a, nil
}

// OAuth clients

func (q *queries) CreateOAuthClient(ctx context.Context, client *storage.OAuthClient) error {
	redirectURIs, err := encodeJSON(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("encoding redirect uris: %w", err)
	}
	scopes, err := encodeJSON(client.Scopes)
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO oauth_clients (id, client_id, client_secret, name, redirect_uris, scopes, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		client.ID, client.ClientID, client.ClientSecret, client.Name, redirectURIs, scopes, client.OwnerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting oauth client: %w", err)
	}
	return nil
}

func (q *queries) GetOAuthClient(ctx context.Context, clientID string) (*storage.OAuthClient, error) {
	var (
		c                    storage.OAuthClient
		redirectURIs, scopes string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, client_id, client_secret, name, redirect_uris, scopes, owner_id
		FROM oauth_clients WHERE client_id = ?`, clientID,
	).Scan(&c.ID, &c.ClientID, &c.ClientSecret, &c.Name, &redirectURIs, &scopes, &c.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying oauth client: %w", err)
	}
	if c.RedirectURIs, err = decodeJSON(redirectURIs); err != nil {
		return nil, fmt.Errorf("decoding redirect uris: %w", err)
	}
	if c.Scopes, err = decodeJSON(scopes); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}
	return &c, nil
}

// Authorization codes

func (q *queries) CreateAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (
			code, client_id, user_id, redirect_uri, scope, code_challenge, code_challenge_method, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		code.Code, code.ClientID, code.UserID, code.RedirectURI, code.Scope,
		code.CodeChallenge, code.CodeChallengeMethod, toMillis(code.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting authorization code: %w", err)
	}
	return nil
}

func (q *queries) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	var (
		c         storage.AuthorizationCode
		expiresAt int64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT code, client_id, user_id, redirect_uri, scope, code_challenge, code_challenge_method, expires_at
		FROM authorization_codes WHERE code = ?`, code,
	).Scan(&c.Code, &c.ClientID, &c.UserID, &c.RedirectURI, &c.Scope,
		&c.CodeChallenge, &c.CodeChallengeMethod, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying authorization code: %w", err)
	}
	c.ExpiresAt = fromMillis(expiresAt)
	return &c, nil
}

func (q *queries) DeleteAuthorizationCode(ctx context.Context, code string) (bool, error) {
	return q.deleteOne(ctx, `DELETE FROM authorization_codes WHERE code = ?`, code)
}

// Tokens

func (q *queries) CreateToken(ctx context.Context, token *storage.Token) error {
	var userID sql.NullString
	if token.UserID != "" {
		userID = sql.NullString{String: token.UserID, Valid: true}
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tokens (refresh_token, access_token, client_id, user_id, scope, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token.RefreshToken, token.AccessToken, token.ClientID, userID, token.Scope,
		toMillis(token.IssuedAt), toMillis(token.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting token: %w", err)
	}
	return nil
}

func (q *queries) GetTokenByRefreshToken(ctx context.Context, refreshToken string) (*storage.Token, error) {
	var (
		t                   storage.Token
		userID              sql.NullString
		issuedAt, expiresAt int64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT refresh_token, access_token, client_id, user_id, scope, issued_at, expires_at
		FROM tokens WHERE refresh_token = ?`, refreshToken,
	).Scan(&t.RefreshToken, &t.AccessToken, &t.ClientID, &userID, &t.Scope, &issuedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}
	t.UserID = userID.String
	t.IssuedAt = fromMillis(issuedAt)
	t.ExpiresAt = fromMillis(expiresAt)
	return &t, nil
}

func (q *queries) DeleteTokenByRefreshToken(ctx context.Context, refreshToken string) (bool, error) {
	return q.deleteOne(ctx, `DELETE FROM tokens WHERE refresh_token = ?`, refreshToken)
}

// Integration accounts

const integrationColumns = `id, user_id, integration_type, platform_account_id, email,
	access_token, refresh_token, expires_at, platform_data, invalid_grant`

func scanIntegrationAccount(sc scanner) (*storage.IntegrationAccount, error) {
	var (
		a               storage.IntegrationAccount
		integrationType string
		expiresAt       int64
		platformData    string
	)
	if err := sc.Scan(&a.ID, &a.UserID, &integrationType, &a.PlatformAccountID, &a.Email,
		&a.AccessToken, &a.RefreshToken, &expiresAt, &platformData, &a.InvalidGrant); err != nil {
		return nil, err
	}
	a.IntegrationType = storage.IntegrationType(integrationType)
	a.ExpiresAt = fromMillis(expiresAt)
	a.PlatformData = json.RawMessage(platformData)
	return &a, nil
}

func (q *queries) FindIntegrationAccount(
	ctx context.Context, integrationType storage.IntegrationType, platformAccountID, email string,
) (*storage.IntegrationAccount, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+integrationColumns+`
		FROM integration_accounts
		WHERE integration_type = ?
		  AND (platform_account_id = ? OR (email <> '' AND email = ?))
		ORDER BY platform_account_id = ? DESC
		LIMIT 1`,
		string(integrationType), platformAccountID, email, platformAccountID,
	)
	a, err := scanIntegrationAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying integration account: %w", err)
	}
	return a, nil
}

func (q *queries) CountIntegrationAccounts(ctx context.Context, userID string) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM integration_accounts WHERE user_id = ?`, userID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting integration accounts: %w", err)
	}
	return n, nil
}

func (q *queries) UpsertIntegrationAccount(
	ctx context.Context, account *storage.IntegrationAccount,
) (*storage.IntegrationAccount, error) {
	platformData := "{}"
	if len(account.PlatformData) > 0 {
		platformData = string(account.PlatformData)
	}

	row := q.db.QueryRowContext(ctx, `
		INSERT INTO integration_accounts (
			id, user_id, integration_type, platform_account_id, email,
			access_token, refresh_token, expires_at, platform_data, invalid_grant
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (platform_account_id, integration_type) DO UPDATE SET
			email = excluded.email,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			platform_data = excluded.platform_data,
			invalid_grant = 0
		RETURNING `+integrationColumns,
		account.ID, account.UserID, string(account.IntegrationType), account.PlatformAccountID, account.Email,
		account.AccessToken, account.RefreshToken, toMillis(account.ExpiresAt), platformData,
	)
	stored, err := scanIntegrationAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNoRowReturned
	}
	if err != nil {
		return nil, fmt.Errorf("upserting integration account: %w", err)
	}
	return stored, nil
}

func (q *queries) GetIntegrationAccount(ctx context.Context, id string) (*storage.IntegrationAccount, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integration_accounts WHERE id = ?`, id)
	a, err := scanIntegrationAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying integration account: %w", err)
	}
	return a, nil
}

// Contact lists

func (q *queries) EnsureContactList(ctx context.Context, list *storage.ContactList) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO contact_lists (id, user_id, integration_account_id, name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (integration_account_id) DO NOTHING`,
		list.ID, list.UserID, list.IntegrationAccountID, list.Name,
	)
	if err != nil {
		return fmt.Errorf("inserting contact list: %w", err)
	}
	return nil
}

func (q *queries) ListContactLists(ctx context.Context, userID string) ([]*storage.ContactList, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, integration_account_id, name FROM contact_lists WHERE user_id = ? ORDER BY name, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying contact lists: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lists []*storage.ContactList
	for rows.Next() {
		var l storage.ContactList
		if err := rows.Scan(&l.ID, &l.UserID, &l.IntegrationAccountID, &l.Name); err != nil {
			return nil, fmt.Errorf("scanning contact list: %w", err)
		}
		lists = append(lists, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contact lists: %w", err)
	}
	return lists, nil
}

// deleteOne runs a single-row DELETE and reports whether a row was removed.
func (q *queries) deleteOne(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("deleting row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// encodeJSON marshals a string slice into a JSON text column.
func encodeJSON(values []string) (string, error) {
	if values == nil {
		return "[]", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return string(data), nil
}

// decodeJSON unmarshals a JSON text column into a string slice.
func decodeJSON(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var result []string
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("unmarshaling JSON: %w", err)
	}
	return result, nil
}
