package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/labforge/serendipity/internal/models"
)

func initCmd() *cobra.Command {
	var (
		userName    string
		projectName string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a user, an API token, and optionally a first project",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("init: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			now := time.Now().UTC()
			user := models.User{ID: uuid.NewString(), Name: userName, CreatedAt: now}
			token := uuid.NewString()
			if err := st.CreateUser(ctx, user, token); err != nil {
				return fmt.Errorf("init: creating user: %w", err)
			}

			fmt.Printf("User:      %s (%s)\n", user.Name, user.ID)
			fmt.Printf("API token: %s\n", token)

			if projectName != "" {
				project := models.Project{ID: uuid.NewString(), OwnerID: user.ID, Name: projectName, CreatedAt: now}
				if err := st.CreateProject(ctx, project); err != nil {
					return fmt.Errorf("init: creating project: %w", err)
				}
				fmt.Printf("Project:   %s (%s)\n", project.Name, project.ID)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&userName, "name", "researcher", "user name")
	cmd.Flags().StringVar(&projectName, "project", "", "also create a project with this name")
	return cmd
}
