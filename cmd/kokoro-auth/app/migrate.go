// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/kokoro-labs/kokoro-auth/pkg/storage/sqlite"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print their status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("configuration loading failed: %w", err)
			}

			// Open applies pending migrations.
			store, err := sqlite.Open(cmd.Context(), cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			statuses, err := sqlite.MigrationStatus(cmd.Context(), store.DB())
			if err != nil {
				return fmt.Errorf("failed to read migration status: %w", err)
			}
			return renderMigrationStatus(cmd.OutOrStdout(), statuses)
		},
	}
}

func renderMigrationStatus(w io.Writer, statuses []*goose.MigrationStatus) error {
	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader([]string{"Version", "State", "Applied At", "Source"}),
		tablewriter.WithAlignment(tw.MakeAlign(4, tw.AlignLeft)),
	)

	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		if err := table.Append([]string{
			strconv.FormatInt(s.Source.Version, 10),
			string(s.State),
			applied,
			s.Source.Path,
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
