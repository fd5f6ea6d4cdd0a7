// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package signedtoken

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type accessClaims struct {
	Sub string `json:"sub"`
	Aud string `json:"aud"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
}

func newTestService(t *testing.T, now *time.Time) *Service {
	t.Helper()
	s, err := New(Config{Secret: testSecret, Issuer: "https://kokoro.example"}, WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return s
}

func TestNew_RejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Secret: []byte("short")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")
}

func TestService_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	s := newTestService(t, &now)

	tok, err := s.Create(map[string]any{"sub": "user-1", "aud": "client-1"}, WithExpiresIn(time.Hour))
	require.NoError(t, err)

	var got accessClaims
	require.NoError(t, s.Verify(AccessTokenSchema, tok, &got))
	assert.Equal(t, "user-1", got.Sub)
	assert.Equal(t, "client-1", got.Aud)
	assert.Equal(t, now.Unix(), got.Iat)
	assert.Equal(t, now.Add(time.Hour).Unix(), got.Exp)
}

func TestService_StructPayload(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	s := newTestService(t, &now)

	type snapshot struct {
		ResponseType string   `json:"response_type"`
		ClientID     string   `json:"client_id"`
		RedirectURI  string   `json:"redirect_uri"`
		Scope        []string `json:"scope"`
		State        string   `json:"state,omitempty"`
	}
	in := snapshot{ResponseType: "code", ClientID: "c", RedirectURI: "https://x/cb", Scope: []string{"profile"}, State: "xyz"}

	tok, err := s.Create(in, WithExpiresIn(5*time.Minute))
	require.NoError(t, err)

	var out snapshot
	require.NoError(t, s.Verify(AuthorizeRequestSchema, tok, &out))
	assert.Equal(t, in, out)
}

func TestService_VerifyFailures(t *testing.T) {
	t.Parallel()

	issued := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		token   func(t *testing.T, s *Service) string
		advance time.Duration
		schema  *Schema
		wantErr error
	}{
		{
			name: "expired",
			token: func(t *testing.T, s *Service) string {
				t.Helper()
				tok, err := s.Create(map[string]any{"sub": "u", "aud": "c"}, WithExpiresIn(time.Minute))
				require.NoError(t, err)
				return tok
			},
			advance: 2 * time.Minute,
			schema:  AccessTokenSchema,
			wantErr: ErrInvalidToken,
		},
		{
			name: "tampered payload",
			token: func(t *testing.T, s *Service) string {
				t.Helper()
				tok, err := s.Create(map[string]any{"sub": "u", "aud": "c"})
				require.NoError(t, err)
				other, err := s.Create(map[string]any{"sub": "admin", "aud": "c"})
				require.NoError(t, err)
				parts := strings.Split(tok, ".")
				otherParts := strings.Split(other, ".")
				return parts[0] + "." + otherParts[1] + "." + parts[2]
			},
			schema:  AccessTokenSchema,
			wantErr: ErrInvalidToken,
		},
		{
			name: "malformed",
			token: func(*testing.T, *Service) string {
				return "not-a-jwt"
			},
			schema:  AccessTokenSchema,
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong algorithm",
			token: func(t *testing.T, _ *Service) string {
				t.Helper()
				tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
					"sub": "u", "aud": "c", "iat": issued.Unix(), "iss": "https://kokoro.example",
				}).SignedString(testSecret)
				require.NoError(t, err)
				return tok
			},
			schema:  AccessTokenSchema,
			wantErr: ErrInvalidToken,
		},
		{
			name: "other secret",
			token: func(t *testing.T, _ *Service) string {
				t.Helper()
				other, err := New(Config{Secret: []byte(strings.Repeat("z", 32)), Issuer: "https://kokoro.example"},
					WithClock(func() time.Time { return issued }))
				require.NoError(t, err)
				tok, err := other.Create(map[string]any{"sub": "u", "aud": "c"})
				require.NoError(t, err)
				return tok
			},
			schema:  AccessTokenSchema,
			wantErr: ErrInvalidToken,
		},
		{
			name: "valid signature wrong shape",
			token: func(t *testing.T, s *Service) string {
				t.Helper()
				tok, err := s.Create(map[string]any{"client_id": "c"})
				require.NoError(t, err)
				return tok
			},
			schema:  AccessTokenSchema,
			wantErr: ErrInvalidTokenPayloadContents,
		},
		{
			name: "access token is not an authorize snapshot",
			token: func(t *testing.T, s *Service) string {
				t.Helper()
				tok, err := s.Create(map[string]any{"sub": "u", "aud": "c"})
				require.NoError(t, err)
				return tok
			},
			schema:  AuthorizeRequestSchema,
			wantErr: ErrInvalidTokenPayloadContents,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			now := issued
			s := newTestService(t, &now)
			tok := tt.token(t, s)
			now = now.Add(tt.advance)

			err := s.Verify(tt.schema, tok, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_IssuerEnforced(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	noIssuer, err := New(Config{Secret: testSecret}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	tok, err := noIssuer.Create(map[string]any{"sub": "u", "aud": "c"})
	require.NoError(t, err)

	s := newTestService(t, &now)
	assert.ErrorIs(t, s.Verify(AccessTokenSchema, tok, nil), ErrInvalidToken)
}

func TestNewSchema_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NewSchema("broken", `{"type": 12}`)
	assert.Error(t, err)
}
