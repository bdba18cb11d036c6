package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/aiarch/aia/internal/config"
	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/domain/matching"
	"github.com/aiarch/aia/internal/domain/task"
	"github.com/aiarch/aia/internal/port/broadcast"
	"github.com/aiarch/aia/internal/port/database"
	"github.com/aiarch/aia/internal/port/messagequeue"
)

// OrchestratorService drives tasks through their lifecycle and assigns
// pending tasks to the best idle agent.
type OrchestratorService struct {
	store    database.Store
	notify   notifier
	economy  *EconomyService
	minScore float64
}

// NewOrchestratorService creates an OrchestratorService. economy may be nil,
// in which case completions are not rewarded.
func NewOrchestratorService(
	store database.Store,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	economy *EconomyService,
	cfg *config.Matching,
) *OrchestratorService {
	s := &OrchestratorService{
		store:   store,
		notify:  notifier{queue: queue, hub: hub},
		economy: economy,
	}
	if cfg != nil {
		s.minScore = cfg.MinScore
	}
	return s
}

// Submit creates a task and tries to assign it in the same transaction.
func (s *OrchestratorService) Submit(ctx context.Context, req task.SubmitRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		t  *task.Task
		fx *effects
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		var err error
		t, err = submitTx(ctx, tx, req, fx)
		if err != nil {
			return err
		}
		if _, err := s.rematchTx(ctx, tx, fx); err != nil {
			return err
		}
		t, err = tx.GetTask(ctx, t.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("submit task: %w", err)
	}

	slog.InfoContext(ctx, "task submitted", "task_id", t.ID, "priority", t.Priority, "status", t.Status, "assigned_to", t.Assignee())
	s.notify.flush(ctx, fx)
	return t, nil
}

// submitTx inserts a pending task without matching it.
func submitTx(ctx context.Context, tx database.Tx, req task.SubmitRequest, fx *effects) (*task.Task, error) {
	now := time.Now().UTC()
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	t := &task.Task{
		ID:              id,
		Description:     req.Description,
		Requirements:    req.Requirements,
		Status:          task.StatusPending,
		Priority:        req.Priority,
		Deadline:        req.Deadline,
		VentureID:       req.VentureID,
		Phase:           req.Phase,
		ResubmittedFrom: req.ResubmittedFrom,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	if err := record(ctx, tx, event.Event{Type: event.TypeTaskSubmitted, TaskID: t.ID, VentureID: t.VentureID}, t.Requirements); err != nil {
		return nil, err
	}
	fx.push(event.TypeTaskSubmitted, t)
	return t, nil
}

// Rematch assigns pending tasks to idle agents. It returns the number of
// tasks assigned.
func (s *OrchestratorService) Rematch(ctx context.Context) (int, error) {
	var (
		n  int
		fx *effects
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		var err error
		n, err = s.rematchTx(ctx, tx, fx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("rematch: %w", err)
	}
	s.notify.flush(ctx, fx)
	return n, nil
}

// rematchTx walks pending tasks by priority desc, deadline asc (none last),
// creation asc and id, giving each the best idle agent left in the pool.
func (s *OrchestratorService) rematchTx(ctx context.Context, tx database.Tx, fx *effects) (int, error) {
	pending, err := tx.ListTasks(ctx, task.Filter{Status: task.StatusPending})
	if err != nil || len(pending) == 0 {
		return 0, err
	}
	pool, err := tx.ListAgents(ctx)
	if err != nil {
		return 0, err
	}
	slices.SortFunc(pending, comparePending)

	assigned := 0
	for i := range pending {
		t := &pending[i]
		c, ok := matching.Best(pool, t.Requirements, s.minScore)
		if !ok {
			continue
		}
		idx := slices.IndexFunc(pool, func(a agent.Agent) bool { return a.ID == c.AgentID })
		a := &pool[idx]

		now := time.Now().UTC()
		if err := t.Assign(a.ID); err != nil {
			return 0, err
		}
		t.UpdatedAt = now
		if err := tx.UpdateTask(ctx, t); err != nil {
			return 0, err
		}
		// UpdateAgent bumps a.Version so a later write in this tx still
		// matches.
		a.Status = agent.StatusBusy
		a.UpdatedAt = now
		if err := tx.UpdateAgent(ctx, a); err != nil {
			return 0, err
		}
		if err := record(ctx, tx, event.Event{Type: event.TypeTaskAssigned, AgentID: a.ID, TaskID: t.ID, VentureID: t.VentureID},
			map[string]float64{"score": c.Score}); err != nil {
			return 0, err
		}
		fx.publishTask(messagequeue.SubjectTaskAssigned, t)
		fx.push(event.TypeTaskAssigned, t)
		assigned++
	}
	return assigned, nil
}

func comparePending(a, b task.Task) int {
	if c := cmp.Compare(b.Priority.Weight(), a.Priority.Weight()); c != 0 {
		return c
	}
	switch {
	case a.Deadline != nil && b.Deadline == nil:
		return -1
	case a.Deadline == nil && b.Deadline != nil:
		return 1
	case a.Deadline != nil && b.Deadline != nil:
		if c := a.Deadline.Compare(*b.Deadline); c != 0 {
			return c
		}
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Start marks an assigned task as picked up by its agent.
func (s *OrchestratorService) Start(ctx context.Context, id string) (*task.Task, error) {
	return s.transition(ctx, id, event.TypeTaskStarted, nil, func(_ database.Tx, t *task.Task) error {
		return t.Start()
	})
}

// ReportProgress records the fraction of work done on an in-progress task.
func (s *OrchestratorService) ReportProgress(ctx context.Context, id string, fraction float64) (*task.Task, error) {
	if !(fraction >= 0 && fraction <= 1) {
		return nil, domain.Validationf("progress %v outside [0,1]", fraction)
	}
	return s.transition(ctx, id, event.TypeTaskProgress, map[string]float64{"progress": fraction}, func(_ database.Tx, t *task.Task) error {
		if t.Status != task.StatusInProgress {
			return domain.Conflictf("task %s is %s, not in_progress", t.ID, t.Status)
		}
		t.Progress = fraction
		return nil
	})
}

// Complete finishes an in-progress task, frees its agent and mints the
// completion reward, all in one transaction. Pending tasks are re-matched
// afterwards.
func (s *OrchestratorService) Complete(ctx context.Context, id string, result map[string]string) (*task.Task, error) {
	t, err := s.transition(ctx, id, event.TypeTaskCompleted, result, func(tx database.Tx, t *task.Task) error {
		agentID := t.Assignee()
		if err := t.Complete(result); err != nil {
			return err
		}
		if err := freeAgent(ctx, tx, agentID); err != nil {
			return err
		}
		if s.economy == nil {
			return nil
		}
		_, err := s.economy.rewardTx(ctx, tx, agentID, t.Priority, "task "+t.ID+" completed")
		return err
	})
	if err != nil {
		return nil, err
	}
	rematchAfter(ctx, s, "task_completed")
	return t, nil
}

// Fail marks an in-progress task as failed and frees its agent. The task is
// not resubmitted automatically.
func (s *OrchestratorService) Fail(ctx context.Context, id, reason string) (*task.Task, error) {
	if reason == "" {
		return nil, domain.Validationf("failure reason is required")
	}
	var agentID string
	t, err := s.transition(ctx, id, event.TypeTaskFailed, map[string]string{"reason": reason}, func(tx database.Tx, t *task.Task) error {
		agentID = t.Assignee()
		if err := t.Fail(reason); err != nil {
			return err
		}
		return freeAgent(ctx, tx, agentID)
	})
	if err != nil {
		return nil, err
	}
	slog.WarnContext(ctx, "task failed", "task_id", id, "agent_id", agentID, "reason", reason)
	rematchAfter(ctx, s, "task_failed")
	return t, nil
}

// transition loads a task, applies fn, saves it and records evType. Task
// events with a bus subject are published after commit.
func (s *OrchestratorService) transition(ctx context.Context, id string, evType event.Type, payload any, fn func(database.Tx, *task.Task) error) (*task.Task, error) {
	var (
		t  *task.Task
		fx *effects
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		var err error
		if t, err = tx.GetTask(ctx, id); err != nil {
			return err
		}
		agentID := t.Assignee()
		if err := fn(tx, t); err != nil {
			return err
		}
		t.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		if err := record(ctx, tx, event.Event{Type: evType, AgentID: agentID, TaskID: t.ID, VentureID: t.VentureID}, payload); err != nil {
			return err
		}
		switch evType {
		case event.TypeTaskCompleted:
			fx.publishTask(messagequeue.SubjectTaskCompleted, t)
		case event.TypeTaskFailed:
			fx.publishTask(messagequeue.SubjectTaskFailed, withAgent(t, agentID))
		}
		fx.push(evType, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", evType, id, err)
	}

	slog.InfoContext(ctx, "task transition", "task_id", t.ID, "event", evType, "status", t.Status)
	s.notify.flush(ctx, fx)
	return t, nil
}

// withAgent returns a copy of t carrying agentID, for announcing a failure
// after the assignee has been cleared.
func withAgent(t *task.Task, agentID string) *task.Task {
	c := t.Clone()
	if agentID != "" {
		c.AssignedTo = &agentID
	}
	return c
}

// freeAgent returns a busy agent to idle. An agent taken offline in the
// meantime stays offline.
func freeAgent(ctx context.Context, tx database.Tx, id string) error {
	if id == "" {
		return nil
	}
	a, err := tx.GetAgent(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != agent.StatusBusy {
		return nil
	}
	a.Status = agent.StatusIdle
	a.UpdatedAt = time.Now().UTC()
	return tx.UpdateAgent(ctx, a)
}

// Resubmit creates a fresh pending copy of a failed task. A venture task is
// replaced in its phase by the copy.
func (s *OrchestratorService) Resubmit(ctx context.Context, id string) (*task.Task, error) {
	var (
		t  *task.Task
		fx *effects
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		orig, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if orig.Status != task.StatusFailed {
			return domain.Conflictf("task %s is %s, only failed tasks can be resubmitted", id, orig.Status)
		}
		t, err = submitTx(ctx, tx, task.SubmitRequest{
			Description:     orig.Description,
			Requirements:    orig.Requirements,
			Priority:        orig.Priority,
			Deadline:        orig.Deadline,
			VentureID:       orig.VentureID,
			Phase:           orig.Phase,
			ResubmittedFrom: orig.ID,
		}, fx)
		if err != nil {
			return err
		}
		if orig.VentureID != "" {
			if err := swapVentureTask(ctx, tx, orig.VentureID, orig.ID, t.ID); err != nil {
				return err
			}
		}
		if err := record(ctx, tx, event.Event{Type: event.TypeTaskResubmitted, TaskID: orig.ID, VentureID: orig.VentureID},
			map[string]string{"new_task_id": t.ID}); err != nil {
			return err
		}
		if _, err := s.rematchTx(ctx, tx, fx); err != nil {
			return err
		}
		t, err = tx.GetTask(ctx, t.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resubmit task %s: %w", id, err)
	}

	slog.InfoContext(ctx, "task resubmitted", "task_id", t.ID, "resubmitted_from", id, "status", t.Status)
	s.notify.flush(ctx, fx)
	return t, nil
}

func swapVentureTask(ctx context.Context, tx database.Tx, ventureID, oldID, newID string) error {
	v, err := tx.GetVenture(ctx, ventureID)
	if err != nil {
		return err
	}
	for i := range v.Phases {
		if j := slices.Index(v.Phases[i].TaskIDs, oldID); j >= 0 {
			v.Phases[i].TaskIDs[j] = newID
			v.UpdatedAt = time.Now().UTC()
			return tx.UpdateVenture(ctx, v)
		}
	}
	return nil
}

// Get returns a task by ID.
func (s *OrchestratorService) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.store.GetTask(ctx, id)
}

// List returns tasks matching filter.
func (s *OrchestratorService) List(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	return s.store.ListTasks(ctx, filter)
}
