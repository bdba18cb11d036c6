package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/aiarch/aia/internal/domain/agent"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"aia://agents",
			"Agent Directory",
			mcplib.WithResourceDescription("Every registered agent with capabilities, status and rank"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAgentsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"aia://economy/supply",
			"Token Supply",
			mcplib.WithResourceDescription("Minted, held, staked and pooled token totals"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleSupplyResource,
	)
}

func (s *Server) handleAgentsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Agents == nil {
		return textResource(req.Params.URI, `{"error":"agent directory not configured"}`), nil
	}
	agents := []agent.Agent{}
	for a := range s.deps.Agents.List(ctx, agent.Filter{}) {
		agents = append(agents, a)
	}
	data, err := json.Marshal(agents)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, string(data)), nil
}

func (s *Server) handleSupplyResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Economy == nil {
		return textResource(req.Params.URI, `{"error":"economy not configured"}`), nil
	}
	sup, err := s.deps.Economy.Supply(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(sup)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, string(data)), nil
}

func textResource(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}
}
