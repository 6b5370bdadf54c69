package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	serendipitymcp "github.com/labforge/serendipity/internal/mcp"
)

func mcpCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  record_entry     — record a notebook entry in a project
  auto_connect     — discover connections for one entry
  bulk_connect     — rescan a whole project for connections
  list_connections — list discovered connections
  stats            — notebook statistics

All tool calls act as the user resolved from --token.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			st, err := newStore(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("mcp: opening store: %w", err)
			}
			defer func() { _ = st.Close() }()

			actor, err := st.AuthenticateToken(cmd.Context(), token)
			if err != nil {
				return fmt.Errorf("mcp: resolving token: %w", err)
			}

			srv := serendipitymcp.NewServer(st, newPipeline(st, logger), actor, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: serendipity MCP server starting", "transport", "stdio", "actor", actor.ID)

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API token of the acting user (required)")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}
