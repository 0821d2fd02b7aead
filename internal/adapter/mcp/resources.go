package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"bankx://agents",
			"Agent Directory",
			mcplib.WithResourceDescription("Live BankX domain agents"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAgentsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"bankx://routing",
			"Intent Routing Table",
			mcplib.WithResourceDescription("Keyword rules and intent to capability mapping"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRoutingResource,
	)
}

func (s *Server) handleAgentsResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Agents == nil {
		return jsonContents(req.Params.URI, `{"error":"agent directory not configured"}`), nil
	}
	data, err := json.Marshal(s.deps.Agents.List(false))
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, string(data)), nil
}

func (s *Server) handleRoutingResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Routing == nil {
		return jsonContents(req.Params.URI, `{"error":"routing table not configured"}`), nil
	}
	data, err := json.Marshal(s.deps.Routing.Table())
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, string(data)), nil
}

func jsonContents(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}
}
