package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.dispatchMessageTool(),
		s.queryDecisionsTool(),
		s.listAgentsTool(),
		s.resolveCapabilityTool(),
	)
}

func (s *Server) dispatchMessageTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("dispatch_message",
		mcplib.WithDescription("Classify a customer message and route it to the BankX agent that owns the intent"),
		mcplib.WithString("user_text",
			mcplib.Required(),
			mcplib.Description("The customer's message"),
		),
		mcplib.WithString("correlation_id",
			mcplib.Description("Conversation id; generated when omitted"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleDispatchMessage,
	}
}

func (s *Server) queryDecisionsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("query_decisions",
		mcplib.WithDescription("List the routing decisions recorded for a conversation, oldest first"),
		mcplib.WithString("correlation_id",
			mcplib.Required(),
			mcplib.Description("The conversation id to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleQueryDecisions,
	}
}

func (s *Server) listAgentsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_agents",
		mcplib.WithDescription("List registered domain agents with their status and capabilities"),
		mcplib.WithBoolean("include_removed",
			mcplib.Description("Also list agents that were deregistered or expired"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListAgents,
	}
}

func (s *Server) resolveCapabilityTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("resolve_capability",
		mcplib.WithDescription("List the ACTIVE agents that can serve a capability, oldest registration first"),
		mcplib.WithString("capability",
			mcplib.Required(),
			mcplib.Description("Capability name, e.g. account.balance"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleResolveCapability,
	}
}

func (s *Server) handleDispatchMessage(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Dispatcher == nil {
		return mcplib.NewToolResultError("dispatcher not configured"), nil
	}
	args := req.GetArguments()
	text, ok := args["user_text"].(string)
	if !ok || text == "" {
		return mcplib.NewToolResultError("user_text is required"), nil
	}
	corr, _ := args["correlation_id"].(string)

	out, err := s.deps.Dispatcher.Dispatch(ctx, text, corr)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("dispatch failed", err), nil
	}
	return marshalResult(out, "outcome")
}

func (s *Server) handleQueryDecisions(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Decisions == nil {
		return mcplib.NewToolResultError("decision log not configured"), nil
	}
	args := req.GetArguments()
	corr, ok := args["correlation_id"].(string)
	if !ok || corr == "" {
		return mcplib.NewToolResultError("correlation_id is required"), nil
	}
	recs, err := s.deps.Decisions.Query(ctx, corr)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to query decisions for %s", corr), err,
		), nil
	}
	return marshalResult(recs, "decisions")
}

func (s *Server) handleListAgents(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Agents == nil {
		return mcplib.NewToolResultError("agent directory not configured"), nil
	}
	includeRemoved, _ := req.GetArguments()["include_removed"].(bool)
	return marshalResult(s.deps.Agents.List(includeRemoved), "agents")
}

func (s *Server) handleResolveCapability(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Agents == nil {
		return mcplib.NewToolResultError("agent directory not configured"), nil
	}
	capability, ok := req.GetArguments()["capability"].(string)
	if !ok || capability == "" {
		return mcplib.NewToolResultError("capability is required"), nil
	}
	return marshalResult(s.deps.Agents.Resolve(capability), "agents")
}

func marshalResult(v any, what string) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal "+what, err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
