// Package mcp exposes the intake orchestrator as an MCP server, so staff
// tooling and LLM agents can drive or inspect interviews over the Model
// Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/surreyclinic/intake"
	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/script"
	"github.com/surreyclinic/intake/pkg/session"
)

// TurnResponse is the unified structure the conversational tools return.
type TurnResponse struct {
	SessionID string         `json:"session_id"`
	NodeID    string         `json:"node_id"`
	Status    domain.Status  `json:"status"`
	Prompt    string         `json:"prompt"`
	Events    []domain.Event `json:"events,omitempty"`
}

// Server wraps the orchestrator and exposes it as an MCP server.
type Server struct {
	orch      *session.Orchestrator
	script    *script.Script
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance.
func NewServer(orch *session.Orchestrator, s *script.Script) *Server {
	srv := &Server{
		orch:      orch,
		script:    s,
		mcpServer: server.NewMCPServer("intake-mcp", strings.TrimSpace(intake.Version)),
	}
	srv.registerTools()
	srv.registerResources()
	return srv
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	startTool := mcp.NewTool("start_intake",
		mcp.WithDescription("Start a new intake interview session and get the opening prompt."),
		mcp.WithString("specialty", mcp.Description("Specialty branch to start at (optional, e.g. respiratory)")),
		mcp.WithOutputSchema[TurnResponse](),
	)
	s.mcpServer.AddTool(startTool, mcp.NewStructuredToolHandler(s.handleStart))

	utteranceTool := mcp.NewTool("submit_utterance",
		mcp.WithDescription("Submit one caller utterance to a session and get the next prompt."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("text", mcp.Required(), mcp.Description("The caller's utterance")),
		mcp.WithOutputSchema[TurnResponse](),
	)
	s.mcpServer.AddTool(utteranceTool, mcp.NewStructuredToolHandler(s.handleUtterance))

	s.mcpServer.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Get the current session snapshot, including the collected intake record."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	), s.handleGetRecord)

	s.mcpServer.AddTool(mcp.NewTool("end_intake",
		mcp.WithDescription("End a session before completion (caller hung up, operator intervention)."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("reason", mcp.Description("Why the session is being ended")),
	), s.handleEnd)

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List the IDs of stored sessions."),
	), s.handleList)
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (TurnResponse, error) {
	specialty, _ := args["specialty"].(string)

	turn, err := s.orch.Create(ctx, specialty)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("start failed: %w", err)
	}
	return turnResponse(turn), nil
}

func (s *Server) handleUtterance(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (TurnResponse, error) {
	sessionID, _ := args["session_id"].(string)
	text, _ := args["text"].(string)
	if sessionID == "" || text == "" {
		return TurnResponse{}, fmt.Errorf("session_id and text are required")
	}

	turn, err := s.orch.HandleUtterance(ctx, sessionID, text)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("turn failed: %w", err)
	}
	return turnResponse(turn), nil
}

func (s *Server) handleGetRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	sess, err := s.orch.Get(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get failed: %v", err)), nil
	}
	data, _ := json.Marshal(sess)
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleEnd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	reason := request.GetString("reason", "ended via mcp")

	if err := s.orch.End(ctx, sessionID, reason); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("end failed: %v", err)), nil
	}
	return mcp.NewToolResultText(`{"ended":true}`), nil
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := s.orch.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	data, _ := json.Marshal(ids)
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("intake://script", "Interview Script Definition",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.script.Nodes())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal script: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "intake://script",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func turnResponse(turn *session.Turn) TurnResponse {
	return TurnResponse{
		SessionID: turn.Session.ID,
		NodeID:    turn.Session.CurrentNodeID,
		Status:    turn.Session.Status,
		Prompt:    turn.Prompt,
		Events:    turn.Events,
	}
}
