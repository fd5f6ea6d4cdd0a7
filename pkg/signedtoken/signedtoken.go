// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package signedtoken issues and verifies HS256 JWTs whose claims are
// checked against a JSON schema after the signature and time claims pass.
//
// Two payload families use it: OAuth access tokens ({sub, aud}) and the
// signed snapshot of a pending /authorize request.
package signedtoken

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xeipuuv/gojsonschema"
)

// MinSecretLength is the minimum HMAC key size in bytes.
const MinSecretLength = 32

var (
	// ErrInvalidToken is returned for malformed, tampered or expired tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidTokenPayloadContents is returned when the signature is valid
	// but the claims do not match the expected schema.
	ErrInvalidTokenPayloadContents = errors.New("invalid token payload contents")
)

// Config holds the signing configuration.
type Config struct {
	// Secret is the HMAC key. It must be at least MinSecretLength bytes.
	Secret []byte
	// Issuer, when set, is written to and required in the iss claim.
	Issuer string
}

// Service creates and verifies signed tokens.
type Service struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for iat, exp and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New validates cfg and returns a Service.
func New(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLength, len(cfg.Secret))
	}
	s := &Service{
		secret: append([]byte(nil), cfg.Secret...),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type createOptions struct {
	expiresIn time.Duration
}

// CreateOption configures a single Create call.
type CreateOption func(*createOptions)

// WithExpiresIn sets the exp claim to iat + d.
func WithExpiresIn(d time.Duration) CreateOption {
	return func(o *createOptions) {
		o.expiresIn = d
	}
}

// Create signs payload, which must marshal to a JSON object. The iat claim
// is always set; exp and iss are set when configured.
func (s *Service) Create(payload any, opts ...CreateOption) (string, error) {
	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}

	claims, err := toClaims(payload)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims["iat"] = now.Unix()
	if o.expiresIn > 0 {
		claims["exp"] = now.Add(o.expiresIn).Unix()
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and time claims of tokenString, validates the
// claims against schema and decodes them into out. out may be nil.
func (s *Service) Verify(schema *Schema, tokenString string, out any) error {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, parserOpts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if err := schema.validate(claims); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed to encode claims: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTokenPayloadContents, err)
	}
	return nil
}

func toClaims(payload any) (jwt.MapClaims, error) {
	if m, ok := payload.(map[string]any); ok {
		claims := make(jwt.MapClaims, len(m)+3)
		for k, v := range m {
			claims[k] = v
		}
		return claims, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("payload must encode to a JSON object: %w", err)
	}
	return claims, nil
}

// Schema is a compiled JSON schema for token claims.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// NewSchema compiles a JSON schema document.
func NewSchema(name, document string) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
	if err != nil {
		return nil, fmt.Errorf("invalid schema %q: %w", name, err)
	}
	return &Schema{name: name, schema: compiled}, nil
}

// MustSchema is NewSchema for package-level schemas; it panics on error.
func MustSchema(name, document string) *Schema {
	s, err := NewSchema(name, document)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) validate(claims jwt.MapClaims) error {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(map[string]any(claims)))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidTokenPayloadContents, s.name, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalidTokenPayloadContents, s.name, strings.Join(msgs, "; "))
}
