package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/labforge/serendipity/internal/config"
	"github.com/labforge/serendipity/internal/extract"
	"github.com/labforge/serendipity/internal/generate"
	"github.com/labforge/serendipity/internal/pipeline"
	"github.com/labforge/serendipity/internal/ratelimit"
	"github.com/labforge/serendipity/internal/store"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "serendipity",
		Short: "Serendipity — connection discovery for voice-first lab notebooks",
		Long:  "Serendipity clusters a project's research entries, asks a language model for typed, confidence-scored relationships between them, and persists only the net-new validated connections.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		initCmd(),
		entriesCmd(),
		connectCmd(),
		connectionsCmd(),
		statsCmd(),
		mcpCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Backend {
	case config.BackendNeo4j:
		st, err = store.NewNeo4jStore(
			cfg.Store.Neo4j.URI,
			cfg.Store.Neo4j.Username,
			cfg.Store.Neo4j.Password,
			cfg.Store.Neo4j.Database,
			logger,
		)
	default:
		st, err = store.NewSQLiteStore(cfg.Store.SQLite.Path, logger)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func newPipeline(st store.Store, logger *slog.Logger) *pipeline.Pipeline {
	gen := generate.NewClaudeGenerator(cfg.Claude.APIKey, cfg.Claude.Model, logger)
	ex := extract.NewExtractor(gen, cfg.Engine.ClusterTimeout, logger)
	autoLimit := ratelimit.New(cfg.Limits.AutoPerWindow, cfg.Limits.AutoWindow)
	bulkLimit := ratelimit.New(cfg.Limits.BulkPerWindow, cfg.Limits.BulkWindow)
	return pipeline.New(st, ex, autoLimit, bulkLimit, logger)
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
