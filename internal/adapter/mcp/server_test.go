package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/aiarch/aia/internal/adapter/memory"
	aiamcp "github.com/aiarch/aia/internal/adapter/mcp"
	"github.com/aiarch/aia/internal/config"
	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/knowledge"
	"github.com/aiarch/aia/internal/domain/task"
	"github.com/aiarch/aia/internal/service"
)

type countingObserver struct {
	calls  map[string]int
	failed int
}

func (o *countingObserver) RecordToolCall(_ context.Context, tool string, _ float64, failed bool) {
	o.calls[tool]++
	if failed {
		o.failed++
	}
}

type env struct {
	server    *aiamcp.Server
	directory *service.DirectoryService
	knowledge *service.KnowledgeService
	observer  *countingObserver
}

func newEnv(t *testing.T, apiKey string) *env {
	t.Helper()
	cfg := config.Defaults()
	store := memory.New()
	econ := service.NewEconomyService(store, &cfg.Economy)
	orch := service.NewOrchestratorService(store, nil, nil, econ, &cfg.Matching)
	dir := service.NewDirectoryService(store, nil)
	dir.SetRematcher(orch)
	kn := service.NewKnowledgeService(store, nil)
	obs := &countingObserver{calls: map[string]int{}}

	s := aiamcp.NewServer(aiamcp.ServerConfig{Addr: "127.0.0.1:0", Name: "aia-test", Version: "0.1.0", APIKey: func() string { return apiKey }}, aiamcp.ServerDeps{
		Knowledge: kn,
		Tasks:     orch,
		Economy:   econ,
		Agents:    dir,
		Observer:  obs,
	})
	return &env{server: s, directory: dir, knowledge: kn, observer: obs}
}

func call(t *testing.T, s *aiamcp.Server, tool string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	st, ok := s.MCPServer().ListTools()[tool]
	if !ok {
		t.Fatalf("%s tool not found", tool)
	}
	res, err := st.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: tool, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return res
}

func decode(t *testing.T, res *mcplib.CallToolResult, v any) {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool returned error: %v", res.Content)
	}
	text, ok := res.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	if err := json.Unmarshal([]byte(text.Text), v); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
}

func TestToolRegistration(t *testing.T) {
	e := newEnv(t, "")
	tools := e.server.MCPServer().ListTools()

	want := []string{"learning_path", "recommend_next", "submit_task", "get_task", "get_balance"}
	if len(tools) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(tools))
	}
	for _, name := range want {
		if _, ok := tools[name]; !ok {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestSubmitAndGetTask(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	if _, err := e.directory.Register(ctx, agent.RegisterRequest{ID: "a1", Name: "A1", Capabilities: agent.Capabilities{"python": 0.9}}); err != nil {
		t.Fatal(err)
	}

	var submitted struct {
		TaskID     string  `json:"task_id"`
		Status     string  `json:"status"`
		AssignedTo *string `json:"assigned_to"`
	}
	decode(t, call(t, e.server, "submit_task", map[string]any{
		"description":  "train model",
		"requirements": map[string]any{"python": 0.5},
		"priority":     "high",
	}), &submitted)
	if submitted.Status != string(task.StatusAssigned) || submitted.AssignedTo == nil || *submitted.AssignedTo != "a1" {
		t.Fatalf("unexpected submit result %+v", submitted)
	}

	var got task.Task
	decode(t, call(t, e.server, "get_task", map[string]any{"task_id": submitted.TaskID}), &got)
	if got.ID != submitted.TaskID || got.Priority != task.PriorityHigh {
		t.Fatalf("unexpected task %+v", got)
	}
	if e.observer.calls["submit_task"] != 1 || e.observer.calls["get_task"] != 1 {
		t.Fatalf("tool calls not observed: %v", e.observer.calls)
	}
}

func TestToolArgumentErrors(t *testing.T) {
	e := newEnv(t, "")
	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"get_task missing id", "get_task", nil},
		{"get_task unknown", "get_task", map[string]any{"task_id": "nope"}},
		{"submit without requirements", "submit_task", map[string]any{"description": "x"}},
		{"submit bad requirement type", "submit_task", map[string]any{"description": "x", "requirements": map[string]any{"go": "high"}}},
		{"learning_path missing target", "learning_path", nil},
		{"learning_path bad known", "learning_path", map[string]any{"target": "x", "known": "python"}},
		{"get_balance unknown agent", "get_balance", map[string]any{"agent_id": "ghost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := call(t, e.server, tt.tool, tt.args); !res.IsError {
				t.Fatalf("expected error result, got %v", res.Content)
			}
		})
	}
	if e.observer.failed != len(tests) {
		t.Fatalf("expected %d failed calls observed, got %d", len(tests), e.observer.failed)
	}
}

func TestKnowledgeTools(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	for _, n := range []knowledge.Node{
		{Kind: knowledge.KindSkill, ID: "ml", Name: "ML"},
		{Kind: knowledge.KindSkill, ID: "python", Name: "Python", Edges: []knowledge.Edge{{To: "ml", Relation: knowledge.RelPrerequisite}}},
	} {
		if _, err := e.knowledge.RegisterNode(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	var path []knowledge.Node
	decode(t, call(t, e.server, "learning_path", map[string]any{"target": "ml"}), &path)
	if len(path) != 1 || path[0].ID != "python" {
		t.Fatalf("unexpected path %+v", path)
	}

	var recs []knowledge.Recommendation
	decode(t, call(t, e.server, "recommend_next", map[string]any{
		"known":     []any{"python"},
		"goal_tags": map[string]any{"ml": 2.0},
	}), &recs)
	if len(recs) != 1 || recs[0].Node.ID != "ml" || recs[0].Score != 2 {
		t.Fatalf("unexpected recommendations %+v", recs)
	}
}

func TestGetBalance(t *testing.T) {
	e := newEnv(t, "")
	if _, err := e.directory.Register(context.Background(), agent.RegisterRequest{ID: "a1", Name: "A1"}); err != nil {
		t.Fatal(err)
	}
	var b map[string]string
	decode(t, call(t, e.server, "get_balance", map[string]any{"agent_id": "a1"}), &b)
	if b["utility_balance"] != "0" || b["agent_id"] != "a1" {
		t.Fatalf("unexpected balance %v", b)
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := aiamcp.NewServer(aiamcp.ServerConfig{Name: "test", Version: "0.1.0"}, aiamcp.ServerDeps{})
	for _, tool := range []string{"learning_path", "recommend_next", "submit_task", "get_task", "get_balance"} {
		if res := call(t, s, tool, map[string]any{}); !res.IsError {
			t.Errorf("%s: expected error result when deps are nil", tool)
		}
	}
}

func TestServerStartStop(t *testing.T) {
	e := newEnv(t, "")
	if err := e.server.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.server.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestStreamableHTTPEndToEnd(t *testing.T) {
	e := newEnv(t, "secret")
	srv := httptest.NewServer(e.server.Handler())
	defer srv.Close()
	ctx := context.Background()

	c, err := mcpclient.NewStreamableHttpClient(srv.URL+"/mcp", transport.WithHTTPHeaders(map[string]string{"Authorization": "Bearer secret"}))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close() //nolint:errcheck // test cleanup
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	initReq := mcplib.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcplib.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcplib.Implementation{Name: "aia-test", Version: "1.0.0"}
	initRes, err := c.Initialize(ctx, initReq)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if initRes.ServerInfo.Name != "aia-test" {
		t.Fatalf("unexpected server name %q", initRes.ServerInfo.Name)
	}

	tools, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(tools.Tools) != 5 {
		t.Fatalf("expected 5 tools, got %d", len(tools.Tools))
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	tests := []struct {
		name   string
		key    string
		header string
		want   int
	}{
		{"disabled", "", "", http.StatusOK},
		{"missing header", "k", "", http.StatusUnauthorized},
		{"wrong key", "k", "Bearer nope", http.StatusForbidden},
		{"bearer", "k", "Bearer k", http.StatusOK},
		{"plain key", "k", "k", http.StatusOK},
		{"bare bearer prefix", "k", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			aiamcp.AuthMiddleware(func() string { return tt.key }, ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
