package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/labforge/serendipity/internal/models"
)

func connectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Inspect and review discovered connections",
	}
	cmd.AddCommand(connectionsListCmd(), connectionsReviewCmd())
	return cmd
}

func connectionsListCmd() *cobra.Command {
	var (
		projectID string
		status    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's connections, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("connections list: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			filter := models.ConnectionStatus(status)
			if filter != "" && !filter.IsValid() {
				return fmt.Errorf("connections list: invalid status %q", status)
			}

			conns, err := st.ListProjectConnections(ctx, projectID, filter)
			if err != nil {
				return fmt.Errorf("connections list: %w", err)
			}

			for i, c := range conns {
				fmt.Printf("[%d] [%s/%s] %.2f  %s -> %s\n", i+1, c.Type, c.Status, c.Confidence, c.SourceEntryID, c.TargetEntryID)
				fmt.Printf("    ID: %s | %s\n", c.ID, formatTime(c.CreatedAt))
				fmt.Printf("    %s\n", truncate(c.Reasoning, 140))
			}
			if len(conns) == 0 {
				fmt.Println("No connections found.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project ID (required)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, confirmed, dismissed)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func connectionsReviewCmd() *cobra.Command {
	var dismiss bool

	cmd := &cobra.Command{
		Use:   "review [connection-id]",
		Short: "Confirm or dismiss a pending connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("connections review: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			status := models.StatusConfirmed
			if dismiss {
				status = models.StatusDismissed
			}
			if err := st.UpdateConnectionStatus(ctx, args[0], status); err != nil {
				return fmt.Errorf("connections review: %w", err)
			}

			fmt.Printf("Connection %s marked %s\n", args[0], status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dismiss, "dismiss", false, "dismiss instead of confirm")
	return cmd
}
