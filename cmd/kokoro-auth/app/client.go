// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kokoro-labs/kokoro-auth/pkg/storage"
	"github.com/kokoro-labs/kokoro-auth/pkg/storage/sqlite"
	"github.com/kokoro-labs/kokoro-auth/pkg/token"
)

type clientOptions struct {
	name         string
	redirectURIs []string
	scopes       []string
	owner        string
	public       bool
}

// registeredClient is printed once; the secret is not retrievable later.
type registeredClient struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	Name         string   `yaml:"name"`
	RedirectURIs []string `yaml:"redirect_uris"`
	Scopes       []string `yaml:"scopes"`
	Public       bool     `yaml:"public"`
}

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage OAuth clients",
	}

	var opts clientOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Register an OAuth client",
		Long: `Register an OAuth client and print its credentials as YAML. Public clients
have no secret and must use PKCE.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("configuration loading failed: %w", err)
			}
			store, err := sqlite.Open(cmd.Context(), cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			client, err := createClient(cmd.Context(), store, opts, cfg.OAuth.Scopes)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(registeredClient{
				ClientID:     client.ClientID,
				ClientSecret: client.ClientSecret,
				Name:         client.Name,
				RedirectURIs: client.RedirectURIs,
				Scopes:       client.Scopes,
				Public:       client.IsPublic(),
			})
		},
	}
	create.Flags().StringVar(&opts.name, "name", "", "Display name shown on the consent page")
	create.Flags().StringSliceVar(&opts.redirectURIs, "redirect-uri", nil, "Allowed redirect URI (repeatable)")
	create.Flags().StringSliceVar(&opts.scopes, "scope", []string{"profile"}, "Scope the client may request (repeatable)")
	create.Flags().StringVar(&opts.owner, "owner", "", "Id of the user owning the client")
	create.Flags().BoolVar(&opts.public, "public", false, "Register a public client without a secret")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("redirect-uri")

	cmd.AddCommand(create)
	return cmd
}

func createClient(
	ctx context.Context, q storage.Querier, opts clientOptions, knownScopes []string,
) (*storage.OAuthClient, error) {
	if opts.name == "" {
		return nil, errors.New("client name is required")
	}
	if len(opts.redirectURIs) == 0 {
		return nil, errors.New("at least one redirect uri is required")
	}
	for _, raw := range opts.redirectURIs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Fragment != "" {
			return nil, fmt.Errorf("invalid redirect uri %q", raw)
		}
	}
	for _, s := range opts.scopes {
		if !slices.Contains(knownScopes, s) {
			return nil, fmt.Errorf("unknown scope %q", s)
		}
	}

	client := &storage.OAuthClient{
		ID:           uuid.NewString(),
		ClientID:     uuid.NewString(),
		Name:         opts.name,
		RedirectURIs: opts.redirectURIs,
		Scopes:       opts.scopes,
		OwnerID:      opts.owner,
	}
	if !opts.public {
		client.ClientSecret = token.GenerateRefreshToken()
	}
	if err := q.CreateOAuthClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to register client: %w", err)
	}
	return client, nil
}
