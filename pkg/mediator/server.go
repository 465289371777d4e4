package mediator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ironcurtain/ironcurtain/pkg/mcp"
)

// Server is the agent-facing half of the trusted proxy: it speaks MCP
// stdio JSON-RPC to whatever coding agent launched it, presents a single
// aggregated tool list drawn from every connected upstream server, and
// routes every tools/call through Mediate instead of passing it straight
// through. The agent never talks to a real tool server directly.
type Server struct {
	mediator   *Mediator
	manager    *mcp.Manager
	in         *bufio.Scanner
	out        io.Writer
	nextNotify int64
}

// NewServer builds a Server that reads framed MCP requests from in and
// writes responses to out (typically os.Stdin/os.Stdout).
func NewServer(mediator *Mediator, manager *mcp.Manager, in io.Reader, out io.Writer) *Server {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Server{mediator: mediator, manager: manager, in: scanner, out: out}
}

// Serve reads one JSON-RPC message per line until EOF, ctx cancellation, or
// a write error, dispatching each to its handler. It returns nil on a
// clean EOF.
func (s *Server) Serve(ctx context.Context) error {
	for s.in.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := s.in.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg mcp.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}

		resp := s.handle(ctx, msg)
		if resp == nil {
			continue // notification; no response expected
		}
		if err := s.write(*resp); err != nil {
			return err
		}
	}
	return s.in.Err()
}

func (s *Server) handle(ctx context.Context, msg mcp.Message) *mcp.Message {
	if msg.ID == nil {
		// Notification (e.g. notifications/initialized); nothing to do.
		return nil
	}

	switch msg.Method {
	case "initialize":
		return s.reply(msg, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "ironcurtain-mediator", "version": "1.0.0"},
		})

	case "tools/list":
		return s.reply(msg, mcp.ToolsListResult{Tools: s.aggregatedTools()})

	case "tools/call":
		return s.handleToolCall(ctx, msg)

	default:
		return s.errorReply(msg, -32601, fmt.Sprintf("method not found: %s", msg.Method))
	}
}

// aggregatedTools flattens every upstream server's tool list into one
// namespace. Tool names collide across servers in real deployments, so the
// mediator exposes them unprefixed and relies on the annotation compiler's
// server-scoped annotations plus FindTool for disambiguation; callers that
// need a specific server should qualify with the "server/tool" form, which
// handleToolCall also accepts.
func (s *Server) aggregatedTools() []mcp.ToolDefinition {
	if s.manager == nil {
		return nil
	}
	withServers := s.manager.AllTools()
	tools := make([]mcp.ToolDefinition, 0, len(withServers))
	for _, t := range withServers {
		tools = append(tools, t.Tool)
	}
	return tools
}

func (s *Server) handleToolCall(ctx context.Context, msg mcp.Message) *mcp.Message {
	var params mcp.ToolCallParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.errorReply(msg, -32602, "invalid tools/call params: "+err.Error())
	}

	serverName, toolName, ok := s.resolveServerAndTool(params.Name)
	if !ok {
		return s.errorReply(msg, -32602, fmt.Sprintf("unknown tool: %s", params.Name))
	}

	result, err := s.mediator.Mediate(ctx, serverName, toolName, params.Arguments)
	if err != nil {
		return s.errorReply(msg, -32000, err.Error())
	}
	return s.reply(msg, result)
}

// resolveServerAndTool accepts either a bare tool name (resolved via
// FindTool across every connected server) or a "server/tool" qualified
// name, for the rare case of a name collision between two servers.
func (s *Server) resolveServerAndTool(name string) (serverName, toolName string, ok bool) {
	if i := indexOfSlash(name); i >= 0 {
		return name[:i], name[i+1:], true
	}
	if s.manager == nil {
		return "", "", false
	}
	server, tool, found := s.manager.FindTool(name)
	if !found {
		return "", "", false
	}
	return server, tool.Name, true
}

func indexOfSlash(s string) int {
	for i, r := range s {
		if r == '/' {
			return i
		}
	}
	return -1
}

func (s *Server) reply(req mcp.Message, result any) *mcp.Message {
	data, err := json.Marshal(result)
	if err != nil {
		return s.errorReply(req, -32603, "internal error: "+err.Error())
	}
	return &mcp.Message{JSONRPC: "2.0", ID: req.ID, Result: data}
}

func (s *Server) errorReply(req mcp.Message, code int, message string) *mcp.Message {
	return &mcp.Message{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error:   &mcp.ErrorResponse{Code: code, Message: message},
	}
}

func (s *Server) write(msg mcp.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = s.out.Write(data)
	return err
}

// notificationID is reserved for future server-initiated notifications
// (e.g. tools/list_changed after a root expansion); unused for now.
func (s *Server) notificationID() int64 {
	return atomic.AddInt64(&s.nextNotify, 1)
}
