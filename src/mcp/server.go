// Package mcp exposes the run store over the Model Context Protocol so
// assistants can query pipeline runs, verdicts, and stage output.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"gantry-runner/src/contracts"
	"gantry-runner/src/store"
)

// Server is the MCP server for gantry.
type Server struct {
	mcpServer *server.MCPServer
	store     store.Store
}

// NewServer creates an MCP server backed by the given run store.
func NewServer(st store.Store) *Server {
	s := server.NewMCPServer(
		"gantry",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		store:     st,
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	listTool := mcp.NewTool("list_runs",
		mcp.WithDescription("List recent pipeline runs, newest first. Each entry carries the run ID, repository, ref, commit, and verdict. Use get_run to drill into one."),
		mcp.WithNumber("limit",
			mcp.Description("Max runs to return (default: 20)"),
		),
	)

	getTool := mcp.NewTool("get_run",
		mcp.WithDescription("Get the full result of a finished run: per-stage outcomes, exit codes, durations, and the test summary if the run produced one."),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID from list_runs"),
		),
	)

	outputTool := mcp.NewTool("get_stage_output",
		mcp.WithDescription("Get the captured command output of one stage of a finished run. Use after get_run to inspect why a stage failed."),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID from list_runs"),
		),
		mcp.WithString("stage",
			mcp.Required(),
			mcp.Description("Stage name (e.g. fmt, clippy, test)"),
		),
	)

	s.mcpServer.AddTool(listTool, s.handleListRuns)
	s.mcpServer.AddTool(getTool, s.handleGetRun)
	s.mcpServer.AddTool(outputTool, s.handleGetStageOutput)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// handleListRuns handles the list_runs tool call.
func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 20)

	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	jsonBytes, err := json.Marshal(runs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleGetRun handles the get_run tool call.
func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if runID == "" {
		return mcp.NewToolResultError("run_id parameter is required"), nil
	}

	result, err := s.store.GetRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("run not found: %s", runID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get run: %v", err)), nil
	}

	return mcp.NewToolResultText(FormatRunSummary(result)), nil
}

// handleGetStageOutput handles the get_stage_output tool call.
func (s *Server) handleGetStageOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if runID == "" {
		return mcp.NewToolResultError("run_id parameter is required"), nil
	}
	stageName := request.GetString("stage", "")
	if stageName == "" {
		return mcp.NewToolResultError("stage parameter is required"), nil
	}

	result, err := s.store.GetRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("run not found: %s", runID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get run: %v", err)), nil
	}

	for _, stage := range result.Stages {
		if stage.Name == stageName {
			if stage.Output == "" {
				return mcp.NewToolResultText(fmt.Sprintf("(stage %q produced no output)", stageName)), nil
			}
			return mcp.NewToolResultText(stage.Output), nil
		}
	}

	return mcp.NewToolResultError(fmt.Sprintf("stage not found: %s", stageName)), nil
}

// FormatRunSummary renders a run result as human-readable text.
func FormatRunSummary(result *contracts.RunResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Run %s: %s\n", result.RunID, strings.ToUpper(string(result.Status))))
	if result.Event.Repo != "" {
		sb.WriteString(fmt.Sprintf("Repository: %s\n", result.Event.Repo))
	}
	sb.WriteString(fmt.Sprintf("Event: %s on %s (%s)\n", result.Event.Kind, result.Event.Ref(), result.Event.Commit))
	sb.WriteString(fmt.Sprintf("Started: %s  Finished: %s\n\n", result.StartedAt, result.FinishedAt))

	sb.WriteString("Stages:\n")
	for _, stage := range result.Stages {
		switch stage.Outcome {
		case contracts.OutcomePassed:
			sb.WriteString(fmt.Sprintf("  [passed]  %s (%dms)\n", stage.Name, stage.DurationMs))
		case contracts.OutcomeFailed:
			sb.WriteString(fmt.Sprintf("  [FAILED]  %s (exit %d, %dms)\n", stage.Name, stage.ExitCode, stage.DurationMs))
		case contracts.OutcomeSkipped:
			sb.WriteString(fmt.Sprintf("  [skipped] %s\n", stage.Name))
		}
	}

	if result.Tests != nil {
		sb.WriteString(fmt.Sprintf("\nTests: %d total, %d failures, %d errors, %d skipped\n",
			result.Tests.Tests, result.Tests.Failures, result.Tests.Errors, result.Tests.Skipped))
		for _, name := range result.Tests.Failed {
			sb.WriteString(fmt.Sprintf("  failed: %s\n", name))
		}
	}

	if name, exit, ok := result.FailedStage(); ok {
		sb.WriteString(fmt.Sprintf("\nVerdict: failed at stage %q (exit %d). Use get_stage_output for its log.\n", name, exit))
	}

	return sb.String()
}
