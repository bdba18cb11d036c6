package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

// maxTxAttempts bounds how often InTx re-runs a transaction that lost a
// serialization race.
const maxTxAttempts = 3

// Store implements database.Store using PostgreSQL. Methods called on the
// Store directly run on the pool; InTx hands fn a serializable transaction.
type Store struct {
	conn
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{conn: conn{q: pool}, pool: pool}
}

// InTx implements database.Store. Serialization failures are retried; fn
// must therefore load everything it needs through the Tx it is given.
func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		slog.DebugContext(ctx, "retrying serializable transaction", "attempt", attempt, "error", err)
	}
	return domain.Conflictf("transaction kept conflicting: %v", err)
}

func (s *Store) runTx(ctx context.Context, fn func(tx database.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&conn{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping implements database.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// LockForSprint is a no-op outside a transaction.
func (s *Store) LockForSprint(context.Context) error { return nil }

// conn implements database.Tx on a pool or a transaction.
type conn struct {
	q querier
}

// --- Agents ---

const agentColumns = `id, name, capabilities, status, rank, performance_history, version, created_at, updated_at`

func scanAgent(row scannable) (agent.Agent, error) {
	var (
		a          agent.Agent
		caps, hist []byte
	)
	if err := row.Scan(&a.ID, &a.Name, &caps, &a.Status, &a.Rank, &hist, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return a, err
	}
	if err := json.Unmarshal(caps, &a.Capabilities); err != nil {
		return a, fmt.Errorf("agent %s capabilities: %w", a.ID, err)
	}
	if err := json.Unmarshal(hist, &a.PerformanceHistory); err != nil {
		return a, fmt.Errorf("agent %s history: %w", a.ID, err)
	}
	return a, nil
}

func (c *conn) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	a, err := scanAgent(c.q.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get agent %s", id)
	}
	return &a, nil
}

func (c *conn) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	rows, err := c.q.Query(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (c *conn) CreateAgent(ctx context.Context, a *agent.Agent) error {
	caps, hist, err := marshalAgent(a)
	if err != nil {
		return err
	}
	_, err = c.q.Exec(ctx,
		`INSERT INTO agents (id, name, capabilities, status, rank, performance_history, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8)`,
		a.ID, a.Name, caps, a.Status, a.Rank, hist, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return insertErr(err, "create agent %s", a.ID)
	}
	a.Version = 1
	return nil
}

func (c *conn) UpdateAgent(ctx context.Context, a *agent.Agent) error {
	caps, hist, err := marshalAgent(a)
	if err != nil {
		return err
	}
	tag, err := c.q.Exec(ctx,
		`UPDATE agents SET name = $2, capabilities = $3, status = $4, rank = $5, performance_history = $6,
		        updated_at = $7, version = version + 1
		 WHERE id = $1 AND version = $8`,
		a.ID, a.Name, caps, a.Status, a.Rank, hist, a.UpdatedAt, a.Version)
	if err := execVersioned(ctx, c.q, tag, err, "agents", a.ID); err != nil {
		return err
	}
	a.Version++
	return nil
}

func marshalAgent(a *agent.Agent) (caps, hist []byte, err error) {
	if caps, err = json.Marshal(orEmptyMap(a.Capabilities)); err != nil {
		return nil, nil, fmt.Errorf("marshal capabilities: %w", err)
	}
	if hist, err = json.Marshal(orEmpty(a.PerformanceHistory)); err != nil {
		return nil, nil, fmt.Errorf("marshal history: %w", err)
	}
	return caps, hist, nil
}

func orEmptyMap(c agent.Capabilities) agent.Capabilities {
	if c == nil {
		return agent.Capabilities{}
	}
	return c
}

// --- Tasks ---

const taskColumns = `id, description, requirements, status, assigned_to, priority, deadline, progress,
	venture_id, phase, resubmitted_from, result, failure_reason, version, created_at, updated_at`

func scanTask(row scannable) (task.Task, error) {
	var (
		t            task.Task
		reqs, result []byte
	)
	err := row.Scan(&t.ID, &t.Description, &reqs, &t.Status, &t.AssignedTo, &t.Priority, &t.Deadline, &t.Progress,
		&t.VentureID, &t.Phase, &t.ResubmittedFrom, &result, &t.FailureReason, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(reqs, &t.Requirements); err != nil {
		return t, fmt.Errorf("task %s requirements: %w", t.ID, err)
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &t.Result); err != nil {
			return t, fmt.Errorf("task %s result: %w", t.ID, err)
		}
	}
	return t, nil
}

func (c *conn) GetTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := scanTask(c.q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return &t, nil
}

func (c *conn) ListTasks(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.AssignedTo != "" {
		add("assigned_to = $%d", filter.AssignedTo)
	}
	if filter.VentureID != "" {
		add("venture_id = $%d", filter.VentureID)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (c *conn) CreateTask(ctx context.Context, t *task.Task) error {
	reqs, result, err := marshalTask(t)
	if err != nil {
		return err
	}
	_, err = c.q.Exec(ctx,
		`INSERT INTO tasks (id, description, requirements, status, assigned_to, priority, deadline, progress,
		                    venture_id, phase, resubmitted_from, result, failure_reason, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $15)`,
		t.ID, t.Description, reqs, t.Status, t.AssignedTo, t.Priority, t.Deadline, t.Progress,
		t.VentureID, t.Phase, t.ResubmittedFrom, result, t.FailureReason, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return insertErr(err, "create task %s", t.ID)
	}
	t.Version = 1
	return nil
}

func (c *conn) UpdateTask(ctx context.Context, t *task.Task) error {
	reqs, result, err := marshalTask(t)
	if err != nil {
		return err
	}
	tag, err := c.q.Exec(ctx,
		`UPDATE tasks SET description = $2, requirements = $3, status = $4, assigned_to = $5, priority = $6,
		        deadline = $7, progress = $8, result = $9, failure_reason = $10, updated_at = $11, version = version + 1
		 WHERE id = $1 AND version = $12`,
		t.ID, t.Description, reqs, t.Status, t.AssignedTo, t.Priority,
		t.Deadline, t.Progress, result, t.FailureReason, t.UpdatedAt, t.Version)
	if err := execVersioned(ctx, c.q, tag, err, "tasks", t.ID); err != nil {
		return err
	}
	t.Version++
	return nil
}

func marshalTask(t *task.Task) (reqs, result []byte, err error) {
	if reqs, err = json.Marshal(t.Requirements); err != nil {
		return nil, nil, fmt.Errorf("marshal requirements: %w", err)
	}
	if t.Result != nil {
		if result, err = json.Marshal(t.Result); err != nil {
			return nil, nil, fmt.Errorf("marshal result: %w", err)
		}
	}
	return reqs, result, nil
}

// --- Ventures ---

const ventureColumns = `id, name, description, budget::text, timeline_days, phases, current_phase, status, version, created_at, updated_at`

func scanVenture(row scannable) (venture.Venture, error) {
	var (
		v      venture.Venture
		budget string
		phases []byte
	)
	err := row.Scan(&v.ID, &v.Name, &v.Description, &budget, &v.TimelineDays, &phases,
		&v.CurrentPhase, &v.Status, &v.Version, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return v, err
	}
	if v.Budget, err = parseDecimal(budget); err != nil {
		return v, err
	}
	if err := json.Unmarshal(phases, &v.Phases); err != nil {
		return v, fmt.Errorf("venture %s phases: %w", v.ID, err)
	}
	return v, nil
}

func (c *conn) GetVenture(ctx context.Context, id string) (*venture.Venture, error) {
	v, err := scanVenture(c.q.QueryRow(ctx, `SELECT `+ventureColumns+` FROM ventures WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get venture %s", id)
	}
	return &v, nil
}

func (c *conn) ListVentures(ctx context.Context) ([]venture.Venture, error) {
	rows, err := c.q.Query(ctx, `SELECT `+ventureColumns+` FROM ventures ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list ventures: %w", err)
	}
	defer rows.Close()

	var ventures []venture.Venture
	for rows.Next() {
		v, err := scanVenture(rows)
		if err != nil {
			return nil, fmt.Errorf("scan venture: %w", err)
		}
		ventures = append(ventures, v)
	}
	return ventures, rows.Err()
}

func (c *conn) CreateVenture(ctx context.Context, v *venture.Venture) error {
	phases, err := json.Marshal(orEmpty(v.Phases))
	if err != nil {
		return fmt.Errorf("marshal phases: %w", err)
	}
	_, err = c.q.Exec(ctx,
		`INSERT INTO ventures (id, name, description, budget, timeline_days, phases, current_phase, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)`,
		v.ID, v.Name, v.Description, v.Budget.String(), v.TimelineDays, phases, v.CurrentPhase, v.Status, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return insertErr(err, "create venture %s", v.ID)
	}
	v.Version = 1
	return nil
}

func (c *conn) UpdateVenture(ctx context.Context, v *venture.Venture) error {
	phases, err := json.Marshal(orEmpty(v.Phases))
	if err != nil {
		return fmt.Errorf("marshal phases: %w", err)
	}
	tag, err := c.q.Exec(ctx,
		`UPDATE ventures SET name = $2, description = $3, phases = $4, current_phase = $5, status = $6,
		        updated_at = $7, version = version + 1
		 WHERE id = $1 AND version = $8`,
		v.ID, v.Name, v.Description, phases, v.CurrentPhase, v.Status, v.UpdatedAt, v.Version)
	if err := execVersioned(ctx, c.q, tag, err, "ventures", v.ID); err != nil {
		return err
	}
	v.Version++
	return nil
}

// --- Balances and ledger ---

const balanceColumns = `owner, utility::text, governance::text, staked::text, version, updated_at`

func scanBalance(row scannable) (economy.Balance, error) {
	var (
		b                            economy.Balance
		utility, governance, staked string
	)
	if err := row.Scan(&b.Owner, &utility, &governance, &staked, &b.Version, &b.UpdatedAt); err != nil {
		return b, err
	}
	var err error
	if b.Utility, err = parseDecimal(utility); err != nil {
		return b, err
	}
	if b.Governance, err = parseDecimal(governance); err != nil {
		return b, err
	}
	if b.Staked, err = parseDecimal(staked); err != nil {
		return b, err
	}
	return b, nil
}

func (c *conn) GetBalance(ctx context.Context, owner string) (*economy.Balance, error) {
	b, err := scanBalance(c.q.QueryRow(ctx, `SELECT `+balanceColumns+` FROM balances WHERE owner = $1`, owner))
	if err != nil {
		return nil, notFoundWrap(err, "get balance %s", owner)
	}
	return &b, nil
}

func (c *conn) ListBalances(ctx context.Context) ([]economy.Balance, error) {
	rows, err := c.q.Query(ctx, `SELECT `+balanceColumns+` FROM balances ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var balances []economy.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (c *conn) CreateBalance(ctx context.Context, b *economy.Balance) error {
	_, err := c.q.Exec(ctx,
		`INSERT INTO balances (owner, utility, governance, staked, version, updated_at)
		 VALUES ($1, $2, $3, $4, 1, $5)`,
		b.Owner, b.Utility.String(), b.Governance.String(), b.Staked.String(), b.UpdatedAt)
	if err != nil {
		return insertErr(err, "create balance %s", b.Owner)
	}
	b.Version = 1
	return nil
}

func (c *conn) UpdateBalance(ctx context.Context, b *economy.Balance) error {
	tag, err := c.q.Exec(ctx,
		`UPDATE balances SET utility = $2, governance = $3, staked = $4, updated_at = $5, version = version + 1
		 WHERE owner = $1 AND version = $6`,
		b.Owner, b.Utility.String(), b.Governance.String(), b.Staked.String(), b.UpdatedAt, b.Version)
	if err := execVersioned(ctx, c.q, tag, err, "balances", b.Owner); err != nil {
		return err
	}
	b.Version++
	return nil
}

func (c *conn) AppendLedger(ctx context.Context, e *economy.Entry) error {
	_, err := c.q.Exec(ctx,
		`INSERT INTO ledger (id, kind, from_owner, to_owner, token, amount, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Kind, e.From, e.To, e.Token, e.Amount.String(), e.Reason, e.CreatedAt)
	if err != nil {
		return insertErr(err, "append ledger %s", e.ID)
	}
	return nil
}

func (c *conn) ListLedger(ctx context.Context, owner string) ([]economy.Entry, error) {
	rows, err := c.q.Query(ctx,
		`SELECT id, kind, from_owner, to_owner, token, amount::text, reason, created_at
		 FROM ledger WHERE $1 = '' OR from_owner = $1 OR to_owner = $1 ORDER BY seq`, owner)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var entries []economy.Entry
	for rows.Next() {
		var (
			e      economy.Entry
			amount string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.From, &e.To, &e.Token, &amount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if e.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (c *conn) MarkDistribution(ctx context.Context, kind, period string) error {
	_, err := c.q.Exec(ctx, `INSERT INTO distributions (kind, period) VALUES ($1, $2)`, kind, period)
	if pgCode(err) == codeUniqueViolation {
		return domain.Conflictf("%s distribution for %s already ran", kind, period)
	}
	if err != nil {
		return fmt.Errorf("mark distribution %s/%s: %w", kind, period, err)
	}
	return nil
}

// --- Sprints ---

func (c *conn) GetSprint(ctx context.Context, id string) (*sprint.Record, error) {
	var raw []byte
	if err := c.q.QueryRow(ctx, `SELECT record FROM sprints WHERE id = $1`, id).Scan(&raw); err != nil {
		return nil, notFoundWrap(err, "get sprint %s", id)
	}
	var r sprint.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("sprint %s record: %w", id, err)
	}
	return &r, nil
}

func (c *conn) ListSprints(ctx context.Context) ([]sprint.Record, error) {
	rows, err := c.q.Query(ctx, `SELECT record FROM sprints ORDER BY start_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	defer rows.Close()

	var records []sprint.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		var r sprint.Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("sprint record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (c *conn) CreateSprint(ctx context.Context, r *sprint.Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal sprint: %w", err)
	}
	_, err = c.q.Exec(ctx,
		`INSERT INTO sprints (id, start_at, end_at, record, created_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.Start, r.End, raw, r.CreatedAt)
	if err != nil {
		return insertErr(err, "create sprint %s", r.ID)
	}
	return nil
}

func (c *conn) LockForSprint(ctx context.Context) error {
	if _, err := c.q.Exec(ctx, `LOCK TABLE agents, balances IN EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("lock for sprint: %w", err)
	}
	return nil
}

// --- Knowledge ---

func (c *conn) ListNodes(ctx context.Context) ([]knowledge.Node, error) {
	rows, err := c.q.Query(ctx, `SELECT id, kind, name, category, tags FROM knowledge_nodes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	var (
		nodes []knowledge.Node
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			n    knowledge.Node
			tags []byte
		)
		if err := rows.Scan(&n.ID, &n.Kind, &n.Name, &n.Category, &tags); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if err := json.Unmarshal(tags, &n.Tags); err != nil {
			rows.Close()
			return nil, fmt.Errorf("node %s tags: %w", n.ID, err)
		}
		index[n.ID] = len(nodes)
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	edges, err := c.q.Query(ctx, `SELECT from_id, to_id, relation FROM knowledge_edges ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer edges.Close()
	for edges.Next() {
		var (
			from string
			e    knowledge.Edge
		)
		if err := edges.Scan(&from, &e.To, &e.Relation); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if i, ok := index[from]; ok {
			nodes[i].Edges = append(nodes[i].Edges, e)
		}
	}
	return nodes, edges.Err()
}

func (c *conn) CreateNode(ctx context.Context, n *knowledge.Node) error {
	tags, err := json.Marshal(orEmpty(n.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = c.q.Exec(ctx,
		`INSERT INTO knowledge_nodes (id, kind, name, category, tags) VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.Kind, n.Name, n.Category, tags)
	if err != nil {
		return insertErr(err, "create node %s", n.ID)
	}
	for _, e := range n.Edges {
		if err := c.insertEdge(ctx, n.ID, e); err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) AddEdge(ctx context.Context, from string, e knowledge.Edge) error {
	var exists bool
	if err := c.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM knowledge_nodes WHERE id = $1)`, from).Scan(&exists); err != nil {
		return fmt.Errorf("add edge from %s: %w", from, err)
	}
	if !exists {
		return fmt.Errorf("node %s: %w", from, domain.ErrNotFound)
	}
	return c.insertEdge(ctx, from, e)
}

func (c *conn) insertEdge(ctx context.Context, from string, e knowledge.Edge) error {
	_, err := c.q.Exec(ctx,
		`INSERT INTO knowledge_edges (from_id, to_id, relation) VALUES ($1, $2, $3)
		 ON CONFLICT (from_id, to_id, relation) DO NOTHING`,
		from, e.To, e.Relation)
	if err != nil {
		return fmt.Errorf("insert edge %s -> %s: %w", from, e.To, err)
	}
	return nil
}

// --- Events ---

func (c *conn) AppendEvent(ctx context.Context, e *event.Event) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = []byte(e.Payload)
	}
	_, err := c.q.Exec(ctx,
		`INSERT INTO events (id, type, agent_id, task_id, venture_id, payload, request_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Type, e.AgentID, e.TaskID, e.VentureID, payload, e.RequestID, e.CreatedAt)
	if err != nil {
		return insertErr(err, "append event %s", e.ID)
	}
	return nil
}

func (c *conn) ListEvents(ctx context.Context, filter event.Filter) ([]event.Event, error) {
	var (
		conditions = []string{"TRUE"}
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.AgentID != "" {
		add("agent_id = $%d", filter.AgentID)
	}
	if filter.TaskID != "" {
		add("task_id = $%d", filter.TaskID)
	}
	if filter.VentureID != "" {
		add("venture_id = $%d", filter.VentureID)
	}
	if filter.After != nil {
		add("created_at > $%d", *filter.After)
	}
	query := `SELECT id, type, agent_id, task_id, venture_id, payload, request_id, created_at
		FROM events WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY seq`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			e       event.Event
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.AgentID, &e.TaskID, &e.VentureID, &payload, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}
