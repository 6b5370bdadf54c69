package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/labforge/serendipity/internal/models"
)

func entriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Manage notebook entries",
	}
	cmd.AddCommand(entriesAddCmd(), entriesListCmd())
	return cmd
}

func entriesAddCmd() *cobra.Command {
	var (
		projectID string
		entryType string
		tags      string
	)

	cmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Add an entry to a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			et := models.EntryType(entryType)
			if !et.IsValid() {
				return fmt.Errorf("entries add: invalid entry type %q", entryType)
			}

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("entries add: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			var tagList []string
			for _, t := range strings.Split(tags, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tagList = append(tagList, t)
				}
			}

			entry := models.Entry{
				ID:        uuid.NewString(),
				ProjectID: projectID,
				Type:      et,
				Content:   args[0],
				Tags:      tagList,
				CreatedAt: time.Now().UTC(),
			}
			if err := st.CreateEntry(ctx, entry); err != nil {
				return fmt.Errorf("entries add: %w", err)
			}

			fmt.Printf("Recorded entry %s\n", entry.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project ID (required)")
	cmd.Flags().StringVar(&entryType, "type", "observation", "entry type")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated tags")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func entriesListCmd() *cobra.Command {
	var (
		projectID string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("entries list: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			entries, err := st.ListProjectEntries(ctx, projectID, limit)
			if err != nil {
				return fmt.Errorf("entries list: %w", err)
			}

			for i, e := range entries {
				fmt.Printf("[%d] [%s] %s\n", i+1, e.Type, truncate(e.Content, 100))
				fmt.Printf("    ID: %s | %s", e.ID, formatTime(e.CreatedAt))
				if len(e.Tags) > 0 {
					fmt.Printf(" | tags: %s", strings.Join(e.Tags, ", "))
				}
				fmt.Println()
			}
			if len(entries) == 0 {
				fmt.Println("No entries found.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project ID (required)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}
