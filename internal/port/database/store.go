// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/economy"
	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/domain/knowledge"
	"github.com/aiarch/aia/internal/domain/sprint"
	"github.com/aiarch/aia/internal/domain/task"
	"github.com/aiarch/aia/internal/domain/venture"
)

// Tx is the set of operations available inside a transaction. Get methods
// return ErrNotFound for a missing entity. Update methods compare the
// entity's Version with the stored one, return ErrConflict on mismatch and
// bump Version on success. Create methods return ErrConflict for a
// duplicate key.
type Tx interface {
	// Agents
	GetAgent(ctx context.Context, id string) (*agent.Agent, error)
	ListAgents(ctx context.Context) ([]agent.Agent, error)
	CreateAgent(ctx context.Context, a *agent.Agent) error
	UpdateAgent(ctx context.Context, a *agent.Agent) error

	// Tasks, listed by creation time then id.
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, filter task.Filter) ([]task.Task, error)
	CreateTask(ctx context.Context, t *task.Task) error
	UpdateTask(ctx context.Context, t *task.Task) error

	// Ventures
	GetVenture(ctx context.Context, id string) (*venture.Venture, error)
	ListVentures(ctx context.Context) ([]venture.Venture, error)
	CreateVenture(ctx context.Context, v *venture.Venture) error
	UpdateVenture(ctx context.Context, v *venture.Venture) error

	// Balances, keyed by owner (agent id or system pool).
	GetBalance(ctx context.Context, owner string) (*economy.Balance, error)
	ListBalances(ctx context.Context) ([]economy.Balance, error)
	CreateBalance(ctx context.Context, b *economy.Balance) error
	UpdateBalance(ctx context.Context, b *economy.Balance) error

	// Ledger. An empty owner lists every entry. Entries are ordered by
	// creation time then id.
	AppendLedger(ctx context.Context, e *economy.Entry) error
	ListLedger(ctx context.Context, owner string) ([]economy.Entry, error)

	// MarkDistribution records that a periodic distribution ran. It
	// returns ErrConflict if (kind, period) was already recorded.
	MarkDistribution(ctx context.Context, kind, period string) error

	// Sprints
	GetSprint(ctx context.Context, id string) (*sprint.Record, error)
	ListSprints(ctx context.Context) ([]sprint.Record, error)
	CreateSprint(ctx context.Context, r *sprint.Record) error

	// LockForSprint takes exclusive access to agents and balances for the
	// rest of the transaction.
	LockForSprint(ctx context.Context) error

	// Knowledge nodes, listed in insertion order so the graph can be
	// rebuilt with every edge target already present.
	ListNodes(ctx context.Context) ([]knowledge.Node, error)
	CreateNode(ctx context.Context, n *knowledge.Node) error
	AddEdge(ctx context.Context, from string, e knowledge.Edge) error

	// Audit events, ordered by creation time then id.
	AppendEvent(ctx context.Context, e *event.Event) error
	ListEvents(ctx context.Context, filter event.Filter) ([]event.Event, error)
}

// Store is the port interface for database operations. Methods called on
// the Store itself run outside any transaction.
type Store interface {
	Tx

	// InTx runs fn in a single transaction. Every write in fn commits
	// together or not at all; an error from fn rolls back.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
