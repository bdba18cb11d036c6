package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/aiarch/aia/internal/adapter/memory"
	"github.com/aiarch/aia/internal/config"
	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/economy"
	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/port/broadcast"
	"github.com/aiarch/aia/internal/port/messagequeue"
)

// Ensure mock types implement their interfaces at compile time.
var (
	_ broadcast.Broadcaster = (*mockBroadcaster)(nil)
	_ messagequeue.Queue    = (*mockQueue)(nil)
)

type published struct {
	subject string
	data    []byte
}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	mu         sync.Mutex
	published  []published
	publishErr error
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, published{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.published))
	for i, p := range q.published {
		out[i] = p.subject
	}
	return out
}

func (q *mockQueue) count(subject string) int {
	n := 0
	for _, s := range q.subjects() {
		if s == subject {
			n++
		}
	}
	return n
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (m *mockBroadcaster) BroadcastEvent(_ context.Context, eventType event.Type, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, string(eventType))
}

func (m *mockBroadcaster) has(eventType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e == eventType {
			return true
		}
	}
	return false
}

// fixture wires every service over one in-memory store the way cmd/aia does.
type fixture struct {
	store     *memory.Store
	queue     *mockQueue
	hub       *mockBroadcaster
	directory *DirectoryService
	economy   *EconomyService
	orch      *OrchestratorService
	ventures  *VentureService
	sprints   *SprintService
	knowledge *KnowledgeService
	consensus *ConsensusService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Defaults()
	f := &fixture{store: memory.New(), queue: &mockQueue{}, hub: &mockBroadcaster{}}
	f.economy = NewEconomyService(f.store, &cfg.Economy)
	f.orch = NewOrchestratorService(f.store, f.queue, f.hub, f.economy, &cfg.Matching)
	f.directory = NewDirectoryService(f.store, f.hub)
	f.directory.SetRematcher(f.orch)
	f.ventures = NewVentureService(f.store, f.queue, f.hub, f.orch, &cfg.Venture)
	f.sprints = NewSprintService(f.store, f.queue, f.hub, &cfg.Sprint)
	f.sprints.SetRematcher(f.orch)
	f.knowledge = NewKnowledgeService(f.store, nil)
	f.consensus = NewConsensusService(f.store, NewLocalValidator(f.store), f.hub, &cfg.Consensus)
	return f
}

func (f *fixture) register(t *testing.T, id string, caps agent.Capabilities) *agent.Agent {
	t.Helper()
	a, err := f.directory.Register(context.Background(), agent.RegisterRequest{ID: id, Name: "Agent " + id, Capabilities: caps})
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return a
}

func (f *fixture) mint(t *testing.T, owner string, amount int64) {
	t.Helper()
	if _, err := f.economy.Distribute(context.Background(), owner, decimal.NewFromInt(amount), economy.TokenUtility, "seed"); err != nil {
		t.Fatalf("mint %d to %s: %v", amount, owner, err)
	}
}

func (f *fixture) utility(t *testing.T, owner string) decimal.Decimal {
	t.Helper()
	b, err := f.economy.Balance(context.Background(), owner)
	if err != nil {
		t.Fatalf("balance %s: %v", owner, err)
	}
	return b.Utility
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
