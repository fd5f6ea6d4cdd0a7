// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"encoding/json"
	"time"
)

// Role is the coarse permission level of a user.
type Role string

const (
	// RoleUser is the default role.
	RoleUser Role = "user"
	// RoleAdmin grants access to administrative pages.
	RoleAdmin Role = "admin"
)

// User is an identity owned by the system.
type User struct {
	ID              string
	Email           string
	Name            string
	ProfilePicture  string
	Role            Role
	SubscribedUntil *time.Time
	AccessToAPI     bool
	CreatedAt       time.Time
}

// HasActiveSubscription reports whether the user's subscription is current at now.
func (u *User) HasActiveSubscription(now time.Time) bool {
	return u != nil && u.SubscribedUntil != nil && now.Before(*u.SubscribedUntil)
}

// Session is a first-party login session. ID is the hash of the bearer token;
// the raw token is never persisted.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// IsExpired reports whether the session is no longer valid at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Account binds an external identity-provider subject to a User.
// (Platform, PlatformID) is unique.
type Account struct {
	Platform   string
	PlatformID string
	UserID     string
}

// OAuthClient is a third-party application registered against this server.
type OAuthClient struct {
	ID           string
	ClientID     string
	ClientSecret string
	Name         string
	RedirectURIs []string
	Scopes       []string
	OwnerID      string
}

// IsPublic reports whether the client was registered without a secret.
func (c *OAuthClient) IsPublic() bool {
	return c.ClientSecret == ""
}

// AuthorizationCode is a single-use grant issued at consent time.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
}

// Token is an access/refresh pair issued to an OAuth client.
type Token struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	UserID       string
	Scope        string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// IntegrationType identifies the kind of connected third-party account.
type IntegrationType string

const (
	// IntegrationGoogleCalendar is a Google account connected for calendar sync.
	IntegrationGoogleCalendar IntegrationType = "google_calendar"
	// IntegrationGooglePeople is a Google account connected for contacts sync.
	IntegrationGooglePeople IntegrationType = "google_people"
	// IntegrationLinear is a Linear workspace connected for task sync.
	IntegrationLinear IntegrationType = "linear"
)

// IntegrationAccount holds the credentials of a connected third-party account.
// (PlatformAccountID, IntegrationType) is unique.
type IntegrationAccount struct {
	ID                string
	UserID            string
	IntegrationType   IntegrationType
	PlatformAccountID string
	Email             string
	AccessToken       string
	RefreshToken      string
	ExpiresAt         time.Time
	PlatformData      json.RawMessage
	InvalidGrant      bool
}

// ContactList is the shadow row created for a connected contacts source.
type ContactList struct {
	ID                   string
	UserID               string
	IntegrationAccountID string
	Name                 string
}
