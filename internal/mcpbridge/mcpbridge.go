// Package mcpbridge exposes the daemon's alert and recent-event state to an
// external MCP client over stdio. It is the thin external-collaborator
// interface spec.md §1 names for an out-of-scope LLM post-incident
// analyzer to consume: it performs no analysis of its own.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nodewatch/linnixd/internal/alerts"
	"github.com/nodewatch/linnixd/internal/recent"
)

// defaultTailAlerts bounds how many alerts tail_alerts drains when the
// caller doesn't specify a count.
const defaultTailAlerts = 20

// Server wraps the MCP server instance the bridge registers its tools on.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server with tail_alerts and recent_events
// registered, backed by the given broadcast and recent-event queue.
func NewServer(version string, broadcast *alerts.Broadcast, rq *recent.Queue) *Server {
	s := server.NewMCPServer("linnixd", version, server.WithLogging())
	registerTools(s, broadcast, rq)
	return &Server{mcpServer: s}
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func registerTools(s *server.MCPServer, broadcast *alerts.Broadcast, rq *recent.Queue) {
	tailAlertsTool := mcp.NewTool("tail_alerts",
		mcp.WithDescription("Drain a bounded number of alerts fired by the rule engine since this call."),
		mcp.WithNumber("count",
			mcp.Description("Maximum number of alerts to return (default 20)"),
		),
	)
	s.AddTool(tailAlertsTool, handleTailAlerts(broadcast))

	recentEventsTool := mcp.NewTool("recent_events",
		mcp.WithDescription("Return a point-in-time snapshot of recently observed process events."),
	)
	s.AddTool(recentEventsTool, handleRecentEvents(rq))
}

func handleTailAlerts(broadcast *alerts.Broadcast) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if broadcast == nil {
			return errResult("alert stream unavailable"), nil
		}

		args := getArgs(request)
		count := intArg(args, "count", defaultTailAlerts)
		if count <= 0 {
			count = defaultTailAlerts
		}

		sub := broadcast.Subscribe()
		var out []alerts.Alert
		drainCtx, cancel := context.WithCancel(ctx)
		cancel() // never block: only drain what's already buffered
		for len(out) < count {
			a, err := sub.Recv(drainCtx)
			if err != nil {
				break
			}
			out = append(out, a)
		}

		jsonData, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
		}
		return newTextResult(string(jsonData)), nil
	}
}

func handleRecentEvents(rq *recent.Queue) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rq == nil {
			return errResult("recent-event memory unavailable"), nil
		}

		snapshot := rq.Snapshot()
		type record struct {
			PID  uint32 `json:"pid"`
			PPID uint32 `json:"ppid"`
			Type string `json:"type"`
			Comm string `json:"comm"`
		}
		out := make([]record, 0, len(snapshot))
		for _, entry := range snapshot {
			out = append(out, record{
				PID:  entry.Event.PID,
				PPID: entry.Event.PPID,
				Type: entry.Event.Type.String(),
				Comm: entry.Event.CommString(),
			})
		}

		jsonData, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
		}
		return newTextResult(string(jsonData)), nil
	}
}

func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

func intArg(args map[string]interface{}, key string, defaultVal int) int {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	switch v := val.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}

func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
	}
}
