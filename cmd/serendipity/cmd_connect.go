package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func connectCmd() *cobra.Command {
	var (
		token     string
		entryID   string
		projectID string
		bulk      bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Run connection discovery",
		Long: `Runs the Serendipity connection pipeline.

With --entry, compares that entry against up to 30 recent entries in its
project (auto-connect). With --bulk --project, rescans up to 100 recent
entries of the whole project against each other. Both paths are rate
limited per user; bulk is limited more strictly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			if bulk && projectID == "" {
				return fmt.Errorf("connect: --bulk requires --project")
			}
			if !bulk && entryID == "" {
				return fmt.Errorf("connect: --entry is required (or use --bulk --project)")
			}

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("connect: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			actor, err := st.AuthenticateToken(ctx, token)
			if err != nil {
				return fmt.Errorf("connect: resolving token: %w", err)
			}

			pl := newPipeline(st, logger)

			var count int
			if bulk {
				count, err = pl.BulkConnect(ctx, actor, projectID)
			} else {
				count, err = pl.AutoConnect(ctx, actor, entryID)
			}
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			fmt.Printf("Connections found: %d\n", count)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API token of the acting user (required)")
	cmd.Flags().StringVar(&entryID, "entry", "", "entry ID for auto-connect")
	cmd.Flags().StringVar(&projectID, "project", "", "project ID for bulk connect")
	cmd.Flags().BoolVar(&bulk, "bulk", false, "rescan the whole project")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}
