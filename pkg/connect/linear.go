// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
)

// Linear endpoints.
const (
	LinearAuthURL  = "https://linear.app/oauth/authorize"
	LinearTokenURL = "https://api.linear.app/oauth/token"
	LinearAPIURL   = "https://api.linear.app/graphql"
)

const linearViewerQuery = `{"query":"{ viewer { id email name organization { id name urlKey } } }"}`

type linearProvider struct {
	oauthClient
	apiURL string
}

// NewLinear returns the Linear provider.
func NewLinear(cfg ProviderConfig) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("linear: %w", err)
	}
	api := LinearAPIURL
	if cfg.APIURL != "" {
		api = cfg.APIURL
	}
	return &linearProvider{
		oauthClient: oauthClient{
			config: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  cfg.RedirectURL,
				Endpoint: cfg.endpoint(oauth2.Endpoint{
					AuthURL:   LinearAuthURL,
					TokenURL:  LinearTokenURL,
					AuthStyle: oauth2.AuthStyleInParams,
				}),
				Scopes: []string{"read", "write"},
			},
			httpClient: cfg.httpClient(),
			authOpts:   []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "consent")},
		},
		apiURL: api,
	}, nil
}

func (*linearProvider) Name() string { return "linear" }

func (*linearProvider) IntegrationType() storage.IntegrationType { return storage.IntegrationLinear }

func (*linearProvider) SyncJobs() []string { return []string{JobLinearSync} }

func (p *linearProvider) Identity(ctx context.Context, tokens *Tokens) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, strings.NewReader(linearViewerQuery))
	if err != nil {
		return nil, fmt.Errorf("failed to create viewer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := p.doAPI(req, tokens)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("viewer response is not JSON")
	}
	if errs := gjson.GetBytes(body, "errors"); errs.Exists() && len(errs.Array()) > 0 {
		return nil, fmt.Errorf("viewer query failed: %s", errs.Array()[0].Get("message").String())
	}

	viewer := gjson.GetBytes(body, "data.viewer")
	data, err := json.Marshal(map[string]any{
		"name":              viewer.Get("name").String(),
		"organization_id":   viewer.Get("organization.id").String(),
		"organization_name": viewer.Get("organization.name").String(),
		"url_key":           viewer.Get("organization.urlKey").String(),
	})
	if err != nil {
		return nil, err
	}
	return &Identity{
		AccountID:    viewer.Get("id").String(),
		Email:        viewer.Get("email").String(),
		PlatformData: data,
	}, nil
}
