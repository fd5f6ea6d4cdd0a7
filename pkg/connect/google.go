// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
)

// GoogleUserInfoURL is Google's OpenID Connect userinfo endpoint.
const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

const (
	scopeCalendar = "https://www.googleapis.com/auth/calendar"
	scopeContacts = "https://www.googleapis.com/auth/contacts"
)

// Sync job types.
const (
	JobGoogleCalendarSync  = "google_calendar.sync"
	JobGoogleCalendarWatch = "google_calendar.watch"
	JobGooglePeopleSync    = "google_people.sync"
	JobLinearSync          = "linear.sync"
)

type googleProvider struct {
	oauthClient
	name            string
	integrationType storage.IntegrationType
	userInfoURL     string
	jobs            []string
}

func newGoogle(cfg ProviderConfig, name string, it storage.IntegrationType, scope string, jobs []string) (*googleProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	userInfo := GoogleUserInfoURL
	if cfg.APIURL != "" {
		userInfo = cfg.APIURL
	}
	return &googleProvider{
		oauthClient: oauthClient{
			config: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  cfg.RedirectURL,
				Endpoint:     cfg.endpoint(google.Endpoint),
				Scopes:       []string{"openid", "email", "profile", scope},
			},
			httpClient: cfg.httpClient(),
			// Refresh tokens are only returned with offline access, and only
			// on the first consent unless consent is forced.
			authOpts: []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce},
		},
		name:            name,
		integrationType: it,
		userInfoURL:     userInfo,
		jobs:            jobs,
	}, nil
}

// NewGoogleCalendar returns the Google Calendar provider.
func NewGoogleCalendar(cfg ProviderConfig) (Provider, error) {
	return newGoogle(cfg, "google-calendar", storage.IntegrationGoogleCalendar, scopeCalendar,
		[]string{JobGoogleCalendarSync, JobGoogleCalendarWatch})
}

// GooglePeople is the Google contacts provider. Linking it creates the
// contact list that synced contacts are stored under.
type GooglePeople struct {
	*googleProvider
}

// NewGooglePeople returns the Google People provider.
func NewGooglePeople(cfg ProviderConfig) (*GooglePeople, error) {
	p, err := newGoogle(cfg, "google-people", storage.IntegrationGooglePeople, scopeContacts,
		[]string{JobGooglePeopleSync})
	if err != nil {
		return nil, err
	}
	return &GooglePeople{googleProvider: p}, nil
}

// OnLink implements LinkHook.
func (*GooglePeople) OnLink(ctx context.Context, q storage.Querier, account *storage.IntegrationAccount) error {
	return q.EnsureContactList(ctx, &storage.ContactList{
		ID:                   uuid.NewString(),
		UserID:               account.UserID,
		IntegrationAccountID: account.ID,
		Name:                 "Google Contacts (" + account.Email + ")",
	})
}

func (p *googleProvider) Name() string { return p.name }

func (p *googleProvider) IntegrationType() storage.IntegrationType { return p.integrationType }

func (p *googleProvider) SyncJobs() []string { return p.jobs }

func (p *googleProvider) Identity(ctx context.Context, tokens *Tokens) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	body, err := p.doAPI(req, tokens)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("userinfo response is not JSON")
	}

	info := gjson.ParseBytes(body)
	data, err := json.Marshal(map[string]any{
		"name":    info.Get("name").String(),
		"picture": info.Get("picture").String(),
	})
	if err != nil {
		return nil, err
	}
	return &Identity{
		AccountID:    info.Get("sub").String(),
		Email:        info.Get("email").String(),
		PlatformData: data,
	}, nil
}
