// Package mcp exposes AIA to agents as Model Context Protocol tools over
// streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/economy"
	"github.com/aiarch/aia/internal/domain/knowledge"
	"github.com/aiarch/aia/internal/domain/task"
)

// KnowledgeReader answers knowledge graph queries.
type KnowledgeReader interface {
	LearningPath(ctx context.Context, target string, known []string) ([]knowledge.Node, error)
	RecommendNext(ctx context.Context, known []string, goalTags map[string]float64) ([]knowledge.Recommendation, error)
}

// TaskService submits and reads tasks.
type TaskService interface {
	Submit(ctx context.Context, req task.SubmitRequest) (*task.Task, error)
	Get(ctx context.Context, id string) (*task.Task, error)
}

// EconomyReader reads token balances.
type EconomyReader interface {
	Balance(ctx context.Context, owner string) (*economy.Balance, error)
	Supply(ctx context.Context) (economy.Supply, error)
}

// AgentLister lists registered agents.
type AgentLister interface {
	List(ctx context.Context, filter agent.Filter) iter.Seq[agent.Agent]
}

// ToolObserver is told about every tool call.
type ToolObserver interface {
	RecordToolCall(ctx context.Context, tool string, seconds float64, failed bool)
}

// ServerConfig holds the MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  func() string // nil or empty disables auth
}

// ServerDeps are the services the tools call. Any of them may be nil; the
// tools that need a missing one answer with an error result.
type ServerDeps struct {
	Knowledge KnowledgeReader
	Tasks     TaskService
	Economy   EconomyReader
	Agents    AgentLister
	Observer  ToolObserver
}

// Server is the AIA MCP server.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates the server and registers its tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	s.handler = AuthMiddleware(cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler returns the authenticated streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server error", "error", err)
		}
	}()
	slog.Info("mcp server started", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
