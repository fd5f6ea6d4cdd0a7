// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the kokoro-auth command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kokoro-labs/kokoro-auth/pkg/config"
	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
	"github.com/kokoro-labs/kokoro-auth/pkg/versions"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "kokoro-auth",
		DisableAutoGenTag: true,
		Short:             "kokoro authentication and authorization server",
		Long: `kokoro-auth serves first-party login sessions, an OAuth 2.0 authorization
server with PKCE for third-party clients, and the connect flows that link
Google Calendar, Google People and Linear accounts.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newClientCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetString("config"))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(versions.GetVersionInfo())
		},
	}
}
