package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aiarch/aia/internal/adapter/postgres"
	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/economy"
	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/domain/knowledge"
	"github.com/aiarch/aia/internal/domain/sprint"
	"github.com/aiarch/aia/internal/domain/task"
	"github.com/aiarch/aia/internal/port/database"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

// uid returns a unique id so tests can share one database.
func uid(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func newAgent(id string) *agent.Agent {
	now := time.Now().UTC()
	return &agent.Agent{
		ID:           id,
		Name:         "Agent " + id,
		Capabilities: agent.Capabilities{"go": 0.8},
		Status:       agent.StatusIdle,
		Rank:         agent.RankEntry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestStore_AgentCRUD(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	id := uid("agent")

	a := newAgent(id)
	if err := store.CreateAgent(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Version != 1 {
		t.Fatalf("version = %d, want 1", a.Version)
	}
	if err := store.CreateAgent(ctx, newAgent(id)); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate create: expected ErrConflict, got %v", err)
	}

	got, err := store.GetAgent(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Capabilities["go"] != 0.8 || got.Rank != agent.RankEntry {
		t.Fatalf("unexpected agent %+v", got)
	}

	got.Status = agent.StatusBusy
	got.PerformanceHistory = append(got.PerformanceHistory, 0.75)
	if err := store.UpdateAgent(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	stale := *a
	stale.Status = agent.StatusOffline
	if err := store.UpdateAgent(ctx, &stale); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale update: expected ErrConflict, got %v", err)
	}

	missing := newAgent(uid("missing"))
	missing.Version = 1
	if err := store.UpdateAgent(ctx, missing); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update missing: expected ErrNotFound, got %v", err)
	}

	again, _ := store.GetAgent(ctx, id)
	if again.Status != agent.StatusBusy || len(again.PerformanceHistory) != 1 {
		t.Fatalf("update not persisted: %+v", again)
	}
}

func TestStore_InTxRollback(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	id := uid("agent")

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx database.Tx) error {
		if err := tx.CreateAgent(ctx, newAgent(id)); err != nil {
			return err
		}
		if err := tx.CreateBalance(ctx, economy.NewBalance(id)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.GetAgent(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rolled back agent visible: %v", err)
	}
	if _, err := store.GetBalance(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rolled back balance visible: %v", err)
	}
}

func TestStore_TaskLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	agentID := uid("agent")
	if err := store.CreateAgent(ctx, newAgent(agentID)); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	deadline := now.Add(48 * time.Hour)
	tk := &task.Task{
		ID:           uid("task"),
		Description:  "write parser",
		Requirements: task.Requirements{"go": 0.6},
		Status:       task.StatusPending,
		Priority:     task.PriorityHigh,
		Deadline:     &deadline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateTask(ctx, tk); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tk.Assign(agentID); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateTask(ctx, tk); err != nil {
		t.Fatalf("assign: %v", err)
	}

	list, err := store.ListTasks(ctx, task.Filter{AssignedTo: agentID})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != tk.ID || list[0].Assignee() != agentID {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Deadline == nil || !list[0].Deadline.Equal(deadline) {
		t.Fatalf("deadline not round-tripped: %v", list[0].Deadline)
	}
}

func TestStore_BalanceAndLedger(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	owner := uid("agent")

	if err := store.CreateBalance(ctx, economy.NewBalance(owner)); err != nil {
		t.Fatal(err)
	}
	b, err := store.GetBalance(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	amount := decimal.RequireFromString("12.34567891")
	b.Credit(economy.TokenUtility, amount)
	if err := store.UpdateBalance(ctx, b); err != nil {
		t.Fatal(err)
	}
	entry := &economy.Entry{
		ID: uuid.NewString(), Kind: economy.KindMint, To: owner,
		Token: economy.TokenUtility, Amount: amount, Reason: "test", CreatedAt: time.Now().UTC(),
	}
	if err := store.AppendLedger(ctx, entry); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetBalance(ctx, owner)
	if !got.Utility.Equal(amount) {
		t.Fatalf("utility = %s, want %s", got.Utility, amount)
	}
	entries, err := store.ListLedger(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].Amount.Equal(amount) {
		t.Fatalf("unexpected ledger %+v", entries)
	}
}

func TestStore_MarkDistributionOnce(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	period := uid("period")

	if err := store.MarkDistribution(ctx, economy.DistributionGovernance, period); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkDistribution(ctx, economy.DistributionGovernance, period); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestStore_SprintRecord(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Second)

	r := &sprint.Record{
		ID:        uid("sprint"),
		Start:     start,
		End:       start.Add(14 * 24 * time.Hour),
		Ranking:   []sprint.Ranked{{AgentID: "a", Score: 0.9, Tier: sprint.TierTop}},
		PoolTotal: decimal.NewFromInt(40),
		CreatedAt: start,
	}
	err := store.InTx(ctx, func(tx database.Tx) error {
		if err := tx.LockForSprint(ctx); err != nil {
			return err
		}
		return tx.CreateSprint(ctx, r)
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.GetSprint(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.PoolTotal.Equal(r.PoolTotal) || len(got.Ranking) != 1 {
		t.Fatalf("unexpected record %+v", got)
	}
	if err := store.CreateSprint(ctx, r); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate sprint, got %v", err)
	}
}

func TestStore_KnowledgeNodes(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	a, b := uid("node"), uid("node")

	if err := store.CreateNode(ctx, &knowledge.Node{ID: a, Name: a, Kind: knowledge.KindSkill, Tags: []string{"basics"}}); err != nil {
		t.Fatal(err)
	}
	n := &knowledge.Node{ID: b, Name: b, Kind: knowledge.KindSkill,
		Edges: []knowledge.Edge{{To: a, Relation: knowledge.RelRecommendedFor}}}
	if err := store.CreateNode(ctx, n); err != nil {
		t.Fatal(err)
	}
	prereq := knowledge.Edge{To: b, Relation: knowledge.RelPrerequisite}
	for range 2 {
		if err := store.AddEdge(ctx, a, prereq); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.AddEdge(ctx, uid("missing"), prereq); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	nodes, err := store.ListNodes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ia, ib = -1, -1
	for i := range nodes {
		switch nodes[i].ID {
		case a:
			ia = i
		case b:
			ib = i
		}
	}
	if ia < 0 || ib < 0 || ia > ib {
		t.Fatalf("nodes missing or out of insertion order: %d %d", ia, ib)
	}
	if len(nodes[ia].Edges) != 1 || nodes[ia].Edges[0] != prereq {
		t.Fatalf("unexpected edges %+v", nodes[ia].Edges)
	}
	if len(nodes[ia].Tags) != 1 || nodes[ia].Tags[0] != "basics" {
		t.Fatalf("unexpected tags %+v", nodes[ia].Tags)
	}
}

func TestStore_Events(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	taskID := uid("task")

	for i, typ := range []event.Type{event.TypeTaskSubmitted, event.TypeTaskAssigned, event.TypeTaskStarted} {
		e := &event.Event{
			ID: uuid.NewString(), Type: typ, TaskID: taskID,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		if i == 1 {
			e.Payload = []byte(`{"agent_id":"a1"}`)
		}
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListEvents(ctx, event.Filter{TaskID: taskID})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[1].Type != event.TypeTaskAssigned {
		t.Fatalf("unexpected events %+v", all)
	}
	var payload map[string]string
	if err := json.Unmarshal(all[1].Payload, &payload); err != nil || payload["agent_id"] != "a1" {
		t.Fatalf("payload not round-tripped: %s", all[1].Payload)
	}
	if all[0].Payload != nil {
		t.Fatalf("expected nil payload, got %s", all[0].Payload)
	}
	limited, _ := store.ListEvents(ctx, event.Filter{TaskID: taskID, Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("limit ignored: %d events", len(limited))
	}
}
