package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show notebook statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("stats: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			stats, err := st.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: fetching statistics: %w", err)
			}

			fmt.Printf("Total entries:     %d\n", stats.TotalEntries)
			fmt.Printf("Total connections: %d\n\n", stats.TotalConnections)

			fmt.Println("Entries by type:")
			for t, c := range stats.EntriesByType {
				fmt.Printf("  %-16s %d\n", t, c)
			}

			fmt.Println("\nConnections by type:")
			for t, c := range stats.ConnectionsByType {
				fmt.Printf("  %-16s %d\n", t, c)
			}

			fmt.Println("\nConnections by status:")
			for s, c := range stats.ByStatus {
				fmt.Printf("  %-16s %d\n", s, c)
			}

			return nil
		},
	}
}
