// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package connect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
	"github.com/kokoro-labs/kokoro-auth/pkg/versions"
)

// maxResponseSize bounds provider API responses.
const maxResponseSize = 1 << 20

// Tokens are the credentials returned by a provider's token endpoint.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Identity is the minimal provider profile needed to key an integration
// account.
type Identity struct {
	AccountID    string
	Email        string
	PlatformData json.RawMessage
}

// Provider is a third-party OAuth provider users can connect.
type Provider interface {
	// Name is the URL segment and cookie prefix of the provider.
	Name() string
	IntegrationType() storage.IntegrationType
	// AuthCodeURL builds the consent URL carrying state.
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Tokens, error)
	Identity(ctx context.Context, tokens *Tokens) (*Identity, error)
	// SyncJobs lists the job types to enqueue after a successful link.
	SyncJobs() []string
}

// LinkHook is implemented by providers with side effects that must commit
// together with the integration account.
type LinkHook interface {
	OnLink(ctx context.Context, q storage.Querier, account *storage.IntegrationAccount) error
}

// ProviderConfig holds the OAuth client registration with a provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides. Empty values use the provider defaults.
	AuthURL  string
	TokenURL string
	APIURL   string

	// HTTPClient is used for token and API calls. Defaults to a client with
	// a 10 second timeout.
	HTTPClient *http.Client
}

// Validate checks the required registration fields.
func (c ProviderConfig) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("client id and secret are required")
	}
	if c.RedirectURL == "" {
		return errors.New("redirect url is required")
	}
	return nil
}

func (c ProviderConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c ProviderConfig) endpoint(def oauth2.Endpoint) oauth2.Endpoint {
	ep := def
	if c.AuthURL != "" {
		ep.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		ep.TokenURL = c.TokenURL
		ep.AuthStyle = oauth2.AuthStyleInParams
	}
	return ep
}

// oauthClient is the code exchange shared by all providers.
type oauthClient struct {
	config     *oauth2.Config
	httpClient *http.Client
	authOpts   []oauth2.AuthCodeOption
}

func (c *oauthClient) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state, c.authOpts...)
}

func (c *oauthClient) Exchange(ctx context.Context, code string) (*Tokens, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// doAPI sends req with the access token and returns the body of a 200
// response.
func (c *oauthClient) doAPI(req *http.Request, tokens *Tokens) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", versions.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read identity response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity request returned status %d", resp.StatusCode)
	}
	return body, nil
}
