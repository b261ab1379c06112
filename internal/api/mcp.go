package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/voicepipe/internal/pipeline"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Orchestrator  *pipeline.Orchestrator
	DefaultUserID int64
}

// NewMCPServer creates an MCP server exposing the pipeline and per-user
// history as tools, served over stdio alongside the HTTP API.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"voicepipe",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("voicepipe — speech-to-text, text generation, and speech synthesis pipeline with per-user history."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("run_pipeline",
			mcp.WithDescription("Run the full recognize/generate/synthesize pipeline and record the attempt in the user's history."),
			mcp.WithNumber("user_id", mcp.Description("User whose history the run extends (defaults to the configured user)")),
		),
		mcpRunPipeline(deps),
	)

	s.AddTool(
		mcp.NewTool("get_history",
			mcp.WithDescription("Return a user's pipeline attempt history as four parallel sequences."),
			mcp.WithNumber("user_id", mcp.Description("User to look up"), mcp.Required()),
		),
		mcpGetHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("list_users",
			mcp.WithDescription("List every known user's pipeline history, ordered by user ID."),
		),
		mcpListUsers(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"voicepipe://histories",
			"Pipeline Histories",
			mcp.WithResourceDescription("All user pipeline histories as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistories(deps),
	)

	return s
}

func mcpRunPipeline(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := int64(req.GetInt("user_id", int(deps.DefaultUserID)))

		result := deps.Orchestrator.Run(ctx, userID)
		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireInt("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		h, err := deps.Orchestrator.History(int64(userID))
		if err != nil {
			return mcpError(fmt.Sprintf("loading history failed: %v", err)), nil
		}
		b, err := json.Marshal(h)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListUsers(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		histories, err := deps.Orchestrator.Histories()
		if err != nil {
			return mcpError(fmt.Sprintf("listing users failed: %v", err)), nil
		}
		if len(histories) == 0 {
			return mcpText("[]"), nil
		}
		b, err := json.Marshal(histories)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal histories: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceHistories(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		histories, err := deps.Orchestrator.Histories()
		if err != nil {
			return nil, fmt.Errorf("failed to list histories: %w", err)
		}

		b, err := json.Marshal(histories)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal histories: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
