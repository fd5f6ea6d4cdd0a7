// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
	"github.com/kokoro-labs/kokoro-auth/pkg/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the auth server",
		Long: `Start the auth server. The configuration file given with --config is
overlaid with KOKORO_* environment variables. The server stops gracefully
on SIGINT or SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	srv, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Errorf("Failed to release resources: %v", err)
		}
	}()

	logger.Infow("starting kokoro-auth", "address", cfg.Server.Address, "base_url", cfg.Server.BaseURL)
	return srv.Run(ctx)
}
