// Package mcp exposes the notebook and connection pipeline as Model
// Context Protocol tools, so agents can record entries and trigger
// discovery runs over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/labforge/serendipity/internal/models"
	"github.com/labforge/serendipity/internal/pipeline"
	"github.com/labforge/serendipity/internal/store"
)

// Server wraps an MCPServer with serendipity dependencies. All tool calls
// run as the configured actor.
type Server struct {
	mcp      *mcpserver.MCPServer
	st       store.Store
	pipeline *pipeline.Pipeline
	actor    *models.User
	logger   *slog.Logger
}

// NewServer creates a new MCP server acting as actor.
func NewServer(st store.Store, pl *pipeline.Pipeline, actor *models.User, logger *slog.Logger) *Server {
	s := &Server{
		st:       st,
		pipeline: pl,
		actor:    actor,
		logger:   logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"serendipity",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildRecordEntryTool(), s.handleRecordEntry)
	mcpSrv.AddTool(buildAutoConnectTool(), s.handleAutoConnect)
	mcpSrv.AddTool(buildBulkConnectTool(), s.handleBulkConnect)
	mcpSrv.AddTool(buildListConnectionsTool(), s.handleListConnections)
	mcpSrv.AddTool(buildStatsTool(), s.handleStats)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleRecordEntry is the exported handler for the "record_entry" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleRecordEntry(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleRecordEntry(ctx, req)
}

// HandleAutoConnect is the exported handler for the "auto_connect" tool.
func (s *Server) HandleAutoConnect(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleAutoConnect(ctx, req)
}

// HandleBulkConnect is the exported handler for the "bulk_connect" tool.
func (s *Server) HandleBulkConnect(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleBulkConnect(ctx, req)
}

// HandleListConnections is the exported handler for the "list_connections" tool.
func (s *Server) HandleListConnections(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleListConnections(ctx, req)
}

// HandleStats is the exported handler for the "stats" tool.
func (s *Server) HandleStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleStats(ctx, req)
}

// --- tool definitions ---

func buildRecordEntryTool() mcpgo.Tool {
	return mcpgo.NewTool("record_entry",
		mcpgo.WithDescription("Record a notebook entry in a project."),
		mcpgo.WithString("project_id",
			mcpgo.Required(),
			mcpgo.Description("Project the entry belongs to"),
		),
		mcpgo.WithString("content",
			mcpgo.Required(),
			mcpgo.Description("Free-text content of the entry"),
		),
		mcpgo.WithString("entry_type",
			mcpgo.Description("Entry type: observation, measurement, protocol_step, annotation, voice_note, hypothesis, anomaly, or idea (default: observation)"),
		),
		mcpgo.WithString("tags",
			mcpgo.Description("Comma-separated tags"),
		),
	)
}

func buildAutoConnectTool() mcpgo.Tool {
	return mcpgo.NewTool("auto_connect",
		mcpgo.WithDescription("Discover connections between one entry and recent entries in its project. Returns the number of new connections found."),
		mcpgo.WithString("entry_id",
			mcpgo.Required(),
			mcpgo.Description("The entry to connect"),
		),
	)
}

func buildBulkConnectTool() mcpgo.Tool {
	return mcpgo.NewTool("bulk_connect",
		mcpgo.WithDescription("Rescan a whole project for pairwise connections. Expensive; rate limited more strictly than auto_connect."),
		mcpgo.WithString("project_id",
			mcpgo.Required(),
			mcpgo.Description("The project to scan"),
		),
	)
}

func buildListConnectionsTool() mcpgo.Tool {
	return mcpgo.NewTool("list_connections",
		mcpgo.WithDescription("List discovered connections for a project."),
		mcpgo.WithString("project_id",
			mcpgo.Required(),
			mcpgo.Description("The project to list connections for"),
		),
		mcpgo.WithString("status",
			mcpgo.Description("Filter by status: pending, confirmed, or dismissed"),
		),
	)
}

func buildStatsTool() mcpgo.Tool {
	return mcpgo.NewTool("stats",
		mcpgo.WithDescription("Get notebook statistics: entries and connections by type and status."),
	)
}

// --- tool handlers ---

func (s *Server) handleRecordEntry(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	content := req.GetString("content", "")
	if projectID == "" || strings.TrimSpace(content) == "" {
		return mcpgo.NewToolResultError("project_id and content are required"), nil
	}

	entryType := models.EntryTypeObservation
	if t := req.GetString("entry_type", ""); t != "" {
		candidate := models.EntryType(t)
		if !candidate.IsValid() {
			return mcpgo.NewToolResultErrorf("invalid entry_type %q", t), nil
		}
		entryType = candidate
	}

	var tags []string
	for _, t := range strings.Split(req.GetString("tags", ""), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	if err := s.checkProject(ctx, projectID); err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	entry := models.Entry{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      entryType,
		Content:   content,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.st.CreateEntry(ctx, entry); err != nil {
		return mcpgo.NewToolResultErrorf("recording entry failed: %s", err.Error()), nil
	}
	return toolResultJSON(map[string]any{"id": entry.ID, "recorded": true})
}

func (s *Server) handleAutoConnect(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	entryID := req.GetString("entry_id", "")
	if entryID == "" {
		return mcpgo.NewToolResultError("entry_id is required"), nil
	}
	count, err := s.pipeline.AutoConnect(ctx, s.actor, entryID)
	if err != nil {
		return mcpgo.NewToolResultErrorf("auto_connect failed: %s", err.Error()), nil
	}
	return toolResultJSON(map[string]any{"connections_found": count})
}

func (s *Server) handleBulkConnect(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcpgo.NewToolResultError("project_id is required"), nil
	}
	count, err := s.pipeline.BulkConnect(ctx, s.actor, projectID)
	if err != nil {
		return mcpgo.NewToolResultErrorf("bulk_connect failed: %s", err.Error()), nil
	}
	return toolResultJSON(map[string]any{"connections_found": count})
}

func (s *Server) handleListConnections(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcpgo.NewToolResultError("project_id is required"), nil
	}
	status := models.ConnectionStatus(req.GetString("status", ""))
	if status != "" && !status.IsValid() {
		return mcpgo.NewToolResultErrorf("invalid status %q", string(status)), nil
	}
	if err := s.checkProject(ctx, projectID); err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	conns, err := s.st.ListProjectConnections(ctx, projectID, status)
	if err != nil {
		return mcpgo.NewToolResultErrorf("listing connections failed: %s", err.Error()), nil
	}
	return toolResultJSON(map[string]any{"connections": conns})
}

func (s *Server) handleStats(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	stats, err := s.st.Stats(ctx)
	if err != nil {
		return mcpgo.NewToolResultErrorf("stats failed: %s", err.Error()), nil
	}
	return toolResultJSON(stats)
}

// --- helpers ---

// checkProject confirms the project exists and belongs to the actor.
// Missing and not-owned read the same.
func (s *Server) checkProject(ctx context.Context, projectID string) error {
	project, err := s.st.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("project %s not found", projectID)
		}
		return fmt.Errorf("getting project: %w", err)
	}
	if project.OwnerID != s.actor.ID {
		return fmt.Errorf("project %s not found", projectID)
	}
	return nil
}

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}
