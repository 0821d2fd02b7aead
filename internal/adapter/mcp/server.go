// Package mcp exposes the supervisor to MCP clients over streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/devusermeta/nubankx-sub000/internal/domain/agent"
	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
	"github.com/devusermeta/nubankx-sub000/internal/domain/dispatch"
	"github.com/devusermeta/nubankx-sub000/internal/domain/intent"
)

// EndpointPath is where the streamable HTTP transport is mounted.
const EndpointPath = "/mcp"

// Dispatcher routes a user message to a domain agent.
type Dispatcher interface {
	Dispatch(ctx context.Context, userText, correlationID string) (dispatch.Outcome, error)
}

// DecisionReader returns the audit trail of a conversation.
type DecisionReader interface {
	Query(ctx context.Context, correlationID string) ([]decision.Record, error)
}

// AgentReader lists and resolves registered agents.
type AgentReader interface {
	List(includeRemoved bool) []agent.Record
	Resolve(capability string) []agent.Record
}

// RoutingReader returns the active intent routing table.
type RoutingReader interface {
	Table() *intent.Table
}

// ServerConfig holds listener and identity settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	// APIKey yields the shared key clients must present. Nil disables auth.
	APIKey  func() string
}

// ServerDeps are the services the tools call into. Nil deps make the
// corresponding tools report "not configured".
type ServerDeps struct {
	Dispatcher Dispatcher
	Decisions  DecisionReader
	Agents     AgentReader
	Routing    RoutingReader
}

// Server serves supervisor tools and resources to MCP clients.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	http      *http.Server
}

// NewServer builds the MCP server and registers its tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Handler returns the authenticated streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath(EndpointPath),
		mcpserver.WithStateLess(true),
	)
	mux := http.NewServeMux()
	mux.Handle(EndpointPath, AuthMiddleware(s.cfg.APIKey, streamable))
	return mux
}

// Start begins listening on cfg.Addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server stopped", "error", err)
		}
	}()
	slog.Info("mcp server started", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the listener down, waiting for in-flight calls until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
