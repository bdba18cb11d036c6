// Package memory implements database.Store in process memory. It backs the
// service tests and single-node deployments without Postgres.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/economy"
	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/domain/knowledge"
	"github.com/aiarch/aia/internal/domain/sprint"
	"github.com/aiarch/aia/internal/domain/task"
	"github.com/aiarch/aia/internal/domain/venture"
	"github.com/aiarch/aia/internal/port/database"
)

// state holds cloned values only. Nothing stored is ever mutated in place,
// so copying the maps is enough to snapshot it.
type state struct {
	agents        map[string]agent.Agent
	tasks         map[string]task.Task
	ventures      map[string]venture.Venture
	balances      map[string]economy.Balance
	ledger        []economy.Entry
	distributions map[string]bool
	sprints       map[string]sprint.Record
	nodes         []knowledge.Node
	events        []event.Event
}

func newState() *state {
	return &state{
		agents:        make(map[string]agent.Agent),
		tasks:         make(map[string]task.Task),
		ventures:      make(map[string]venture.Venture),
		balances:      make(map[string]economy.Balance),
		distributions: make(map[string]bool),
		sprints:       make(map[string]sprint.Record),
	}
}

func (s *state) clone() *state {
	return &state{
		agents:        maps.Clone(s.agents),
		tasks:         maps.Clone(s.tasks),
		ventures:      maps.Clone(s.ventures),
		balances:      maps.Clone(s.balances),
		ledger:        slices.Clip(s.ledger),
		distributions: maps.Clone(s.distributions),
		sprints:       maps.Clone(s.sprints),
		nodes:         slices.Clone(s.nodes),
		events:        slices.Clip(s.events),
	}
}

// Store is an in-memory database.Store. Transactions are serialised under
// one write lock and run against a copy that replaces the live state only
// on success.
type Store struct {
	mu  sync.RWMutex
	cur *state
}

var _ database.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{cur: newState()}
}

// InTx implements database.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.cur.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cur = work
	return nil
}

// Ping implements database.Store.
func (s *Store) Ping(context.Context) error { return nil }

// read runs fn against the live state under the read lock.
func read[T any](s *Store, fn func(tx *tx) (T, error)) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.cur})
}

// write runs a single write as its own transaction.
func (s *Store) write(ctx context.Context, fn func(tx database.Tx) error) error {
	return s.InTx(ctx, fn)
}

func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	return read(s, func(t *tx) (*agent.Agent, error) { return t.GetAgent(ctx, id) })
}

func (s *Store) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	return read(s, func(t *tx) ([]agent.Agent, error) { return t.ListAgents(ctx) })
}

func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) error {
	return s.write(ctx, func(t database.Tx) error { return t.CreateAgent(ctx, a) })
}

func (s *Store) UpdateAgent(ctx context.Context, a *agent.Agent) error {
	return s.write(ctx, func(t database.Tx) error { return t.UpdateAgent(ctx, a) })
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return read(s, func(t *tx) (*task.Task, error) { return t.GetTask(ctx, id) })
}

func (s *Store) ListTasks(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	return read(s, func(t *tx) ([]task.Task, error) { return t.ListTasks(ctx, filter) })
}

func (s *Store) CreateTask(ctx context.Context, tk *task.Task) error {
	return s.write(ctx, func(t database.Tx) error { return t.CreateTask(ctx, tk) })
}

func (s *Store) UpdateTask(ctx context.Context, tk *task.Task) error {
	return s.write(ctx, func(t database.Tx) error { return t.UpdateTask(ctx, tk) })
}

func (s *Store) GetVenture(ctx context.Context, id string) (*venture.Venture, error) {
	return read(s, func(t *tx) (*venture.Venture, error) { return t.GetVenture(ctx, id) })
}

func (s *Store) ListVentures(ctx context.Context) ([]venture.Venture, error) {
	return read(s, func(t *tx) ([]venture.Venture, error) { return t.ListVentures(ctx) })
}

func (s *Store) CreateVenture(ctx context.Context, v *venture.Venture) error {
	return s.write(ctx, func(t database.Tx) error { return t.CreateVenture(ctx, v) })
}

func (s *Store) UpdateVenture(ctx context.Context, v *venture.Venture) error {
	return s.write(ctx, func(t database.Tx) error { return t.UpdateVenture(ctx, v) })
}

func (s *Store) GetBalance(ctx context.Context, owner string) (*economy.Balance, error) {
	return read(s, func(t *tx) (*economy.Balance, error) { return t.GetBalance(ctx, owner) })
}

func (s *Store) ListBalances(ctx context.Context) ([]economy.Balance, error) {
	return read(s, func(t *tx) ([]economy.Balance, error) { return t.ListBalances(ctx) })
}

func (s *Store) CreateBalance(ctx context.Context, b *economy.Balance) error {
	return s.write(ctx, func(t database.Tx) error { return t.CreateBalance(ctx, b) })
}

func (s *Store) UpdateBalance(ctx context.Context, b *economy.Balance) error {
	return s.write(ctx, func(t database.Tx) error { return t.UpdateBalance(ctx, b) })
}

func (s *Store) AppendLedger(ctx context.Context, e *economy.Entry) error {
	return s.write(ctx, func(t database.Tx) error { return t.AppendLedger(ctx, e) })
}

func (s *Store) ListLedger(ctx context.Context, owner string) ([]economy.Entry, error) {
	return read(s, func(t *tx) ([]economy.Entry, error) { return t.ListLedger(ctx, owner) })
}

func (s *Store) MarkDistribution(ctx context.Context, kind, period string) error {
	return s.write(ctx, func(t database.Tx) error { return t.MarkDistribution(ctx, kind, period) })
}

func (s *Store) GetSprint(ctx context.Context, id string) (*sprint.Record, error) {
	return read(s, func(t *tx) (*sprint.Record, error) { return t.GetSprint(ctx, id) })
}

func (s *Store) ListSprints(ctx context.Context) ([]sprint.Record, error) {
	return read(s, func(t *tx) ([]sprint.Record, error) { return t.ListSprints(ctx) })
}

func (s *Store) CreateSprint(ctx context.Context, r *sprint.Record) error {
	return s.write(ctx, func(t database.Tx) error { return t.CreateSprint(ctx, r) })
}

// LockForSprint is a no-op outside a transaction.
func (s *Store) LockForSprint(context.Context) error { return nil }

func (s *Store) ListNodes(ctx context.Context) ([]knowledge.Node, error) {
	return read(s, func(t *tx) ([]knowledge.Node, error) { return t.ListNodes(ctx) })
}

func (s *Store) CreateNode(ctx context.Context, n *knowledge.Node) error {
	return s.write(ctx, func(t database.Tx) error { return t.CreateNode(ctx, n) })
}

func (s *Store) AddEdge(ctx context.Context, from string, e knowledge.Edge) error {
	return s.write(ctx, func(t database.Tx) error { return t.AddEdge(ctx, from, e) })
}

func (s *Store) AppendEvent(ctx context.Context, e *event.Event) error {
	return s.write(ctx, func(t database.Tx) error { return t.AppendEvent(ctx, e) })
}

func (s *Store) ListEvents(ctx context.Context, filter event.Filter) ([]event.Event, error) {
	return read(s, func(t *tx) ([]event.Event, error) { return t.ListEvents(ctx, filter) })
}

// tx operates on a private copy of the state. The Store lock is held for
// its whole lifetime.
type tx struct {
	st *state
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

func staleVersion(kind, id string) error {
	return domain.Conflictf("%s %s was modified concurrently", kind, id)
}

func (t *tx) GetAgent(_ context.Context, id string) (*agent.Agent, error) {
	a, ok := t.st.agents[id]
	if !ok {
		return nil, notFound("agent", id)
	}
	return a.Clone(), nil
}

func (t *tx) ListAgents(context.Context) ([]agent.Agent, error) {
	out := make([]agent.Agent, 0, len(t.st.agents))
	for _, id := range slices.Sorted(maps.Keys(t.st.agents)) {
		a := t.st.agents[id]
		out = append(out, *a.Clone())
	}
	return out, nil
}

func (t *tx) CreateAgent(_ context.Context, a *agent.Agent) error {
	if _, ok := t.st.agents[a.ID]; ok {
		return domain.Conflictf("agent %s already exists", a.ID)
	}
	a.Version = 1
	t.st.agents[a.ID] = *a.Clone()
	return nil
}

func (t *tx) UpdateAgent(_ context.Context, a *agent.Agent) error {
	cur, ok := t.st.agents[a.ID]
	if !ok {
		return notFound("agent", a.ID)
	}
	if cur.Version != a.Version {
		return staleVersion("agent", a.ID)
	}
	a.Version++
	t.st.agents[a.ID] = *a.Clone()
	return nil
}

func (t *tx) GetTask(_ context.Context, id string) (*task.Task, error) {
	tk, ok := t.st.tasks[id]
	if !ok {
		return nil, notFound("task", id)
	}
	return tk.Clone(), nil
}

func (t *tx) ListTasks(_ context.Context, filter task.Filter) ([]task.Task, error) {
	var out []task.Task
	for _, tk := range t.st.tasks {
		if filter.Match(&tk) {
			out = append(out, *tk.Clone())
		}
	}
	slices.SortFunc(out, func(a, b task.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *tx) CreateTask(_ context.Context, tk *task.Task) error {
	if _, ok := t.st.tasks[tk.ID]; ok {
		return domain.Conflictf("task %s already exists", tk.ID)
	}
	tk.Version = 1
	t.st.tasks[tk.ID] = *tk.Clone()
	return nil
}

func (t *tx) UpdateTask(_ context.Context, tk *task.Task) error {
	cur, ok := t.st.tasks[tk.ID]
	if !ok {
		return notFound("task", tk.ID)
	}
	if cur.Version != tk.Version {
		return staleVersion("task", tk.ID)
	}
	tk.Version++
	t.st.tasks[tk.ID] = *tk.Clone()
	return nil
}

func (t *tx) GetVenture(_ context.Context, id string) (*venture.Venture, error) {
	v, ok := t.st.ventures[id]
	if !ok {
		return nil, notFound("venture", id)
	}
	return v.Clone(), nil
}

func (t *tx) ListVentures(context.Context) ([]venture.Venture, error) {
	out := make([]venture.Venture, 0, len(t.st.ventures))
	for _, v := range t.st.ventures {
		out = append(out, *v.Clone())
	}
	slices.SortFunc(out, func(a, b venture.Venture) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *tx) CreateVenture(_ context.Context, v *venture.Venture) error {
	if _, ok := t.st.ventures[v.ID]; ok {
		return domain.Conflictf("venture %s already exists", v.ID)
	}
	v.Version = 1
	t.st.ventures[v.ID] = *v.Clone()
	return nil
}

func (t *tx) UpdateVenture(_ context.Context, v *venture.Venture) error {
	cur, ok := t.st.ventures[v.ID]
	if !ok {
		return notFound("venture", v.ID)
	}
	if cur.Version != v.Version {
		return staleVersion("venture", v.ID)
	}
	v.Version++
	t.st.ventures[v.ID] = *v.Clone()
	return nil
}

func (t *tx) GetBalance(_ context.Context, owner string) (*economy.Balance, error) {
	b, ok := t.st.balances[owner]
	if !ok {
		return nil, notFound("balance", owner)
	}
	return &b, nil
}

func (t *tx) ListBalances(context.Context) ([]economy.Balance, error) {
	out := make([]economy.Balance, 0, len(t.st.balances))
	for _, owner := range slices.Sorted(maps.Keys(t.st.balances)) {
		out = append(out, t.st.balances[owner])
	}
	return out, nil
}

func (t *tx) CreateBalance(_ context.Context, b *economy.Balance) error {
	if _, ok := t.st.balances[b.Owner]; ok {
		return domain.Conflictf("balance %s already exists", b.Owner)
	}
	b.Version = 1
	t.st.balances[b.Owner] = *b
	return nil
}

func (t *tx) UpdateBalance(_ context.Context, b *economy.Balance) error {
	cur, ok := t.st.balances[b.Owner]
	if !ok {
		return notFound("balance", b.Owner)
	}
	if cur.Version != b.Version {
		return staleVersion("balance", b.Owner)
	}
	b.Version++
	t.st.balances[b.Owner] = *b
	return nil
}

func (t *tx) AppendLedger(_ context.Context, e *economy.Entry) error {
	t.st.ledger = append(t.st.ledger, *e)
	return nil
}

func (t *tx) ListLedger(_ context.Context, owner string) ([]economy.Entry, error) {
	var out []economy.Entry
	for i := range t.st.ledger {
		if owner == "" || t.st.ledger[i].Touches(owner) {
			out = append(out, t.st.ledger[i])
		}
	}
	return out, nil
}

func (t *tx) MarkDistribution(_ context.Context, kind, period string) error {
	key := kind + "/" + period
	if t.st.distributions[key] {
		return domain.Conflictf("%s distribution for %s already ran", kind, period)
	}
	t.st.distributions[key] = true
	return nil
}

func (t *tx) GetSprint(_ context.Context, id string) (*sprint.Record, error) {
	r, ok := t.st.sprints[id]
	if !ok {
		return nil, notFound("sprint", id)
	}
	return &r, nil
}

func (t *tx) ListSprints(context.Context) ([]sprint.Record, error) {
	out := slices.Collect(maps.Values(t.st.sprints))
	slices.SortFunc(out, func(a, b sprint.Record) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *tx) CreateSprint(_ context.Context, r *sprint.Record) error {
	if _, ok := t.st.sprints[r.ID]; ok {
		return domain.Conflictf("sprint %s already exists", r.ID)
	}
	t.st.sprints[r.ID] = *r
	return nil
}

// LockForSprint is a no-op: the transaction already holds the only write lock.
func (t *tx) LockForSprint(context.Context) error { return nil }

func (t *tx) ListNodes(context.Context) ([]knowledge.Node, error) {
	out := make([]knowledge.Node, len(t.st.nodes))
	for i := range t.st.nodes {
		n := t.st.nodes[i]
		n.Tags = slices.Clone(n.Tags)
		n.Edges = slices.Clone(n.Edges)
		out[i] = n
	}
	return out, nil
}

func (t *tx) CreateNode(_ context.Context, n *knowledge.Node) error {
	if t.nodeIndex(n.ID) >= 0 {
		return domain.Conflictf("node %s already exists", n.ID)
	}
	c := *n
	c.Tags = slices.Clone(n.Tags)
	c.Edges = slices.Clone(n.Edges)
	t.st.nodes = append(t.st.nodes, c)
	return nil
}

func (t *tx) AddEdge(_ context.Context, from string, e knowledge.Edge) error {
	i := t.nodeIndex(from)
	if i < 0 {
		return notFound("node", from)
	}
	n := t.st.nodes[i]
	if slices.Contains(n.Edges, e) {
		return nil
	}
	n.Edges = append(slices.Clone(n.Edges), e)
	t.st.nodes[i] = n
	return nil
}

func (t *tx) nodeIndex(id string) int {
	return slices.IndexFunc(t.st.nodes, func(n knowledge.Node) bool { return n.ID == id })
}

func (t *tx) AppendEvent(_ context.Context, e *event.Event) error {
	t.st.events = append(t.st.events, *e)
	return nil
}

func (t *tx) ListEvents(_ context.Context, filter event.Filter) ([]event.Event, error) {
	var out []event.Event
	for i := range t.st.events {
		if filter.Match(&t.st.events[i]) {
			out = append(out, t.st.events[i])
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
		}
	}
	return out, nil
}
