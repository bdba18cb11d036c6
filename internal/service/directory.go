package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/economy"
	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/domain/task"
	"github.com/aiarch/aia/internal/port/broadcast"
	"github.com/aiarch/aia/internal/port/database"
)

// DirectoryService registers agents and tracks their availability.
type DirectoryService struct {
	store     database.Store
	notify    notifier
	rematcher Rematcher
}

// NewDirectoryService creates a DirectoryService.
func NewDirectoryService(store database.Store, hub broadcast.Broadcaster) *DirectoryService {
	return &DirectoryService{store: store, notify: notifier{hub: hub}}
}

// SetRematcher attaches the orchestrator so capacity changes re-match
// pending tasks.
func (s *DirectoryService) SetRematcher(r Rematcher) {
	s.rematcher = r
}

// Register creates an idle entry-rank agent and its empty token balance.
func (s *DirectoryService) Register(ctx context.Context, req agent.RegisterRequest) (*agent.Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	a := &agent.Agent{
		ID:                 req.ID,
		Name:               req.Name,
		Capabilities:       agent.Capabilities{}.Merge(req.Capabilities),
		Status:             agent.StatusIdle,
		Rank:               agent.RankEntry,
		PerformanceHistory: []float64{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	fx := &effects{}
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		if _, err := tx.GetAgent(ctx, req.ID); err == nil {
			return domain.Validationf("agent %s already registered", req.ID)
		}
		if err := tx.CreateAgent(ctx, a); err != nil {
			return err
		}
		b := economy.NewBalance(a.ID)
		b.UpdatedAt = now
		if err := tx.CreateBalance(ctx, b); err != nil {
			return err
		}
		fx.push(event.TypeAgentRegistered, a)
		return record(ctx, tx, event.Event{Type: event.TypeAgentRegistered, AgentID: a.ID}, a.Capabilities)
	})
	if err != nil {
		return nil, fmt.Errorf("register agent %s: %w", req.ID, err)
	}

	slog.InfoContext(ctx, "agent registered", "agent_id", a.ID, "skills", len(a.Capabilities))
	s.notify.flush(ctx, fx)
	rematchAfter(ctx, s.rematcher, "agent_registered")
	return a, nil
}

// Get returns an agent by ID.
func (s *DirectoryService) Get(ctx context.Context, id string) (*agent.Agent, error) {
	return s.store.GetAgent(ctx, id)
}

// UpdateCapabilities merges delta into the agent's capabilities. Only the
// keys present in delta change. The whole delta is validated first.
func (s *DirectoryService) UpdateCapabilities(ctx context.Context, id string, delta agent.Capabilities) (*agent.Agent, error) {
	if len(delta) == 0 {
		return nil, domain.Validationf("capability delta must not be empty")
	}
	if err := delta.Validate(); err != nil {
		return nil, err
	}

	var (
		updated *agent.Agent
		fx      *effects
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		a, err := tx.GetAgent(ctx, id)
		if err != nil {
			return err
		}
		a.Capabilities = a.Capabilities.Merge(delta)
		a.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateAgent(ctx, a); err != nil {
			return err
		}
		updated = a
		fx.push(event.TypeAgentUpdated, a)
		return record(ctx, tx, event.Event{Type: event.TypeAgentUpdated, AgentID: id}, delta)
	})
	if err != nil {
		return nil, fmt.Errorf("update capabilities of %s: %w", id, err)
	}

	s.notify.flush(ctx, fx)
	rematchAfter(ctx, s.rematcher, "capabilities_updated")
	return updated, nil
}

// Deactivate takes an agent offline. It is a no-op for an agent that is
// already offline and fails with ErrConflict while the agent has a task in
// progress. Assigned but unstarted tasks go back to pending.
func (s *DirectoryService) Deactivate(ctx context.Context, id string) (*agent.Agent, error) {
	var (
		a        *agent.Agent
		released []string
		fx       *effects
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		var err error
		a, released, err = deactivate(ctx, tx, id, fx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("deactivate agent %s: %w", id, err)
	}

	s.notify.flush(ctx, fx)
	if len(released) > 0 {
		slog.InfoContext(ctx, "released tasks of deactivated agent", "agent_id", id, "tasks", released)
		rematchAfter(ctx, s.rematcher, "agent_deactivated")
	}
	return a, nil
}

// deactivate is the transactional core of Deactivate, shared with sprint
// execution.
func deactivate(ctx context.Context, tx database.Tx, id string, fx *effects) (*agent.Agent, []string, error) {
	a, err := tx.GetAgent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if a.Status == agent.StatusOffline {
		return a, nil, nil
	}

	held, err := tx.ListTasks(ctx, task.Filter{AssignedTo: id})
	if err != nil {
		return nil, nil, err
	}
	for i := range held {
		if held[i].Status == task.StatusInProgress {
			return nil, nil, domain.Conflictf("agent %s has task %s in progress", id, held[i].ID)
		}
	}

	now := time.Now().UTC()
	var released []string
	for i := range held {
		t := &held[i]
		if t.Status != task.StatusAssigned {
			continue
		}
		if err := t.Release(); err != nil {
			return nil, nil, err
		}
		t.UpdatedAt = now
		if err := tx.UpdateTask(ctx, t); err != nil {
			return nil, nil, err
		}
		if err := record(ctx, tx, event.Event{Type: event.TypeTaskReleased, AgentID: id, TaskID: t.ID, VentureID: t.VentureID}, nil); err != nil {
			return nil, nil, err
		}
		fx.push(event.TypeTaskReleased, t)
		released = append(released, t.ID)
	}

	a.Status = agent.StatusOffline
	a.UpdatedAt = now
	if err := tx.UpdateAgent(ctx, a); err != nil {
		return nil, nil, err
	}
	if err := record(ctx, tx, event.Event{Type: event.TypeAgentDeactivated, AgentID: id}, map[string]any{"released": released}); err != nil {
		return nil, nil, err
	}
	fx.push(event.TypeAgentDeactivated, a)
	return a, released, nil
}

// Reactivate brings an offline agent back as idle.
func (s *DirectoryService) Reactivate(ctx context.Context, id string) (*agent.Agent, error) {
	var (
		a  *agent.Agent
		fx *effects
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		var err error
		if a, err = tx.GetAgent(ctx, id); err != nil {
			return err
		}
		if a.Status != agent.StatusOffline {
			return domain.Conflictf("agent %s is %s, not offline", id, a.Status)
		}
		a.Status = agent.StatusIdle
		a.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateAgent(ctx, a); err != nil {
			return err
		}
		fx.push(event.TypeAgentReactivated, a)
		return record(ctx, tx, event.Event{Type: event.TypeAgentReactivated, AgentID: id}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("reactivate agent %s: %w", id, err)
	}

	s.notify.flush(ctx, fx)
	rematchAfter(ctx, s.rematcher, "agent_reactivated")
	return a, nil
}

// List yields the agents matching filter, ordered by id. Each range over
// the sequence reads a fresh snapshot; the sequence holds no cursor state
// and may be ranged again. A store error ends the sequence early and is
// logged.
func (s *DirectoryService) List(ctx context.Context, filter agent.Filter) iter.Seq[agent.Agent] {
	return func(yield func(agent.Agent) bool) {
		agents, err := s.store.ListAgents(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "list agents", "error", err)
			return
		}
		for i := range agents {
			if filter.Match(&agents[i]) && !yield(agents[i]) {
				return
			}
		}
	}
}
