package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/aiarch/aia/internal/adapter/otel"
	"github.com/aiarch/aia/internal/domain/task"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.learningPathTool(),
		s.recommendNextTool(),
		s.submitTaskTool(),
		s.getTaskTool(),
		s.getBalanceTool(),
	)
}

// instrument wraps a handler with a span and the tool call metrics.
func (s *Server) instrument(name string, h mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
		ctx, span := otel.StartToolCallSpan(ctx, name)
		start := time.Now()
		res, err := h(ctx, req)
		failed := err != nil || (res != nil && res.IsError)
		if s.deps.Observer != nil {
			s.deps.Observer.RecordToolCall(ctx, name, time.Since(start).Seconds(), failed)
		}
		otel.End(span, err)
		return res, err
	}
}

func (s *Server) learningPathTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("learning_path",
		mcplib.WithDescription("List the skills, tools and strategies still to learn before a target node, in learning order"),
		mcplib.WithString("target", mcplib.Required(), mcplib.Description("Target node ID")),
		mcplib.WithArray("known", mcplib.Description("Node IDs already known"), mcplib.WithStringItems()),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.instrument("learning_path", s.handleLearningPath)}
}

func (s *Server) recommendNextTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("recommend_next",
		mcplib.WithDescription("Rank the nodes reachable in one step from the known set against weighted goal tags"),
		mcplib.WithArray("known", mcplib.Required(), mcplib.Description("Node IDs already known"), mcplib.WithStringItems()),
		mcplib.WithObject("goal_tags", mcplib.Description("Tag to weight map")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.instrument("recommend_next", s.handleRecommendNext)}
}

func (s *Server) submitTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("submit_task",
		mcplib.WithDescription("Submit a task; it is assigned to the best matching idle agent when one qualifies"),
		mcplib.WithString("description", mcplib.Required(), mcplib.Description("What needs doing")),
		mcplib.WithObject("requirements", mcplib.Required(), mcplib.Description("Skill to minimum level (0..1) map")),
		mcplib.WithString("priority", mcplib.Description("low, medium, high or critical"), mcplib.Enum("low", "medium", "high", "critical")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.instrument("submit_task", s.handleSubmitTask)}
}

func (s *Server) getTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_task",
		mcplib.WithDescription("Get a task by ID"),
		mcplib.WithString("task_id", mcplib.Required(), mcplib.Description("The task ID to look up")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.instrument("get_task", s.handleGetTask)}
}

func (s *Server) getBalanceTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_balance",
		mcplib.WithDescription("Get the utility, governance and staked token balances of an agent"),
		mcplib.WithString("agent_id", mcplib.Required(), mcplib.Description("The agent ID")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.instrument("get_balance", s.handleGetBalance)}
}

func (s *Server) handleLearningPath(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Knowledge == nil {
		return mcplib.NewToolResultError("knowledge graph not configured"), nil
	}
	args := req.GetArguments()
	target, ok := args["target"].(string)
	if !ok || target == "" {
		return mcplib.NewToolResultError("target is required"), nil
	}
	known, err := stringList(args["known"])
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	path, err := s.deps.Knowledge.LearningPath(ctx, target, known)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("learning path to %s", target), err), nil
	}
	return jsonResult(path)
}

func (s *Server) handleRecommendNext(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Knowledge == nil {
		return mcplib.NewToolResultError("knowledge graph not configured"), nil
	}
	args := req.GetArguments()
	known, err := stringList(args["known"])
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	goals, err := weightMap(args["goal_tags"])
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	recs, err := s.deps.Knowledge.RecommendNext(ctx, known, goals)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("recommend next", err), nil
	}
	return jsonResult(recs)
}

func (s *Server) handleSubmitTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task service not configured"), nil
	}
	args := req.GetArguments()
	desc, _ := args["description"].(string)
	prio, _ := args["priority"].(string)
	reqs, err := weightMap(args["requirements"])
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	t, err := s.deps.Tasks.Submit(ctx, task.SubmitRequest{
		Description:  desc,
		Requirements: task.Requirements(reqs),
		Priority:     task.Priority(prio),
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("submit task", err), nil
	}
	return jsonResult(map[string]any{
		"task_id":     t.ID,
		"status":      t.Status,
		"assigned_to": t.AssignedTo,
	})
}

func (s *Server) handleGetTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task service not configured"), nil
	}
	id, ok := req.GetArguments()["task_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	t, err := s.deps.Tasks.Get(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get task %s", id), err), nil
	}
	return jsonResult(t)
}

func (s *Server) handleGetBalance(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Economy == nil {
		return mcplib.NewToolResultError("economy not configured"), nil
	}
	id, ok := req.GetArguments()["agent_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("agent_id is required"), nil
	}
	b, err := s.deps.Economy.Balance(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get balance of %s", id), err), nil
	}
	return jsonResult(map[string]string{
		"agent_id":           b.Owner,
		"utility_balance":    b.Utility.String(),
		"governance_balance": b.Governance.String(),
		"staked_balance":     b.Staked.String(),
	})
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

// stringList accepts a JSON array of strings; nil is an empty list.
func stringList(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of strings")
	}
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		s, ok := x.(string)
		if !ok {
			return nil, fmt.Errorf("expected an array of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

// weightMap accepts a JSON object of numbers; nil is an empty map.
func weightMap(v any) (map[string]float64, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object of numbers")
	}
	out := make(map[string]float64, len(raw))
	for k, x := range raw {
		f, ok := x.(float64)
		if !ok {
			return nil, fmt.Errorf("%s: expected a number", k)
		}
		out[k] = f
	}
	return out, nil
}
