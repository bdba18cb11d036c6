package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aiarch/aia/internal/config"
	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/domain/task"
	"github.com/aiarch/aia/internal/domain/venture"
	"github.com/aiarch/aia/internal/port/broadcast"
	"github.com/aiarch/aia/internal/port/database"
	"github.com/aiarch/aia/internal/port/messagequeue"
)

// VentureService plans ventures into phased tasks and moves them through
// their lifecycle.
type VentureService struct {
	store       database.Store
	notify      notifier
	orch        *OrchestratorService
	weights     map[venture.Phase]float64
	daysPerTask int
	skills      map[venture.Phase]task.Requirements
}

// NewVentureService creates a VentureService. Phase tasks are matched
// through orch.
func NewVentureService(store database.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, orch *OrchestratorService, cfg *config.Venture) *VentureService {
	s := &VentureService{
		store:   store,
		notify:  notifier{queue: queue, hub: hub},
		orch:    orch,
		weights: make(map[venture.Phase]float64),
		skills:  make(map[venture.Phase]task.Requirements),
	}
	if cfg != nil {
		for p, w := range cfg.PhaseWeights {
			s.weights[venture.Phase(p)] = w
		}
		for p, reqs := range cfg.PhaseSkills {
			s.skills[venture.Phase(p)] = task.Requirements(reqs)
		}
		s.daysPerTask = cfg.DaysPerTask
	}
	return s
}

// CreateResult is the outcome of Create.
type CreateResult struct {
	Venture      *venture.Venture `json:"venture"`
	TasksCreated int              `json:"tasks_created"`
}

// Create plans a venture: days and budget are split across the phases and
// each phase gets one task per daysPerTask. The venture and every task are
// written in one transaction and the tasks are matched right away.
func (s *VentureService) Create(ctx context.Context, req venture.CreateRequest) (*CreateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	for _, p := range venture.Phases {
		if err := s.skills[p].Validate(); err != nil {
			return nil, fmt.Errorf("phase %s skills: %w", p, err)
		}
	}

	var (
		v  *venture.Venture
		fx *effects
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		now := time.Now().UTC()
		v = &venture.Venture{
			ID:           uuid.NewString(),
			Name:         req.Name,
			Description:  req.Description,
			Budget:       req.Budget,
			TimelineDays: req.TimelineDays,
			Status:       venture.StatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		for _, alloc := range venture.Allocate(req.TimelineDays, req.Budget, s.weights) {
			plan := venture.PhasePlan{Phase: alloc.Phase, Days: alloc.Days, Budget: alloc.Budget, TaskIDs: []string{}}
			n := venture.TasksForDays(alloc.Days, s.daysPerTask)
			for i := range n {
				t, err := submitTx(ctx, tx, task.SubmitRequest{
					Description:  fmt.Sprintf("%s: %s task %d/%d", req.Name, alloc.Phase, i+1, n),
					Requirements: s.skills[alloc.Phase],
					Priority:     task.PriorityMedium,
					VentureID:    v.ID,
					Phase:        string(alloc.Phase),
				}, fx)
				if err != nil {
					return err
				}
				plan.TaskIDs = append(plan.TaskIDs, t.ID)
			}
			v.Phases = append(v.Phases, plan)
		}
		if err := tx.CreateVenture(ctx, v); err != nil {
			return err
		}
		if err := record(ctx, tx, event.Event{Type: event.TypeVentureCreated, VentureID: v.ID},
			map[string]any{"budget": v.Budget.String(), "timeline_days": v.TimelineDays}); err != nil {
			return err
		}
		fx.push(event.TypeVentureCreated, v)
		if s.orch == nil {
			return nil
		}
		_, err := s.orch.rematchTx(ctx, tx, fx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create venture %q: %w", req.Name, err)
	}

	slog.InfoContext(ctx, "venture created", "venture_id", v.ID, "budget", v.Budget.String(), "tasks", v.TaskCount())
	s.notify.flush(ctx, fx)
	return &CreateResult{Venture: v, TasksCreated: v.TaskCount()}, nil
}

// AdvancePhase moves an active venture to its next phase once every task of
// the current phase is completed. Advancing past launch completes it.
func (s *VentureService) AdvancePhase(ctx context.Context, id string) (*venture.Venture, error) {
	return s.update(ctx, id, event.TypeVentureAdvanced, func(tx database.Tx, v *venture.Venture) error {
		if v.Status != venture.StatusActive {
			return domain.Conflictf("venture %s is %s, not active", v.ID, v.Status)
		}
		for _, tid := range v.Current().TaskIDs {
			t, err := tx.GetTask(ctx, tid)
			if err != nil {
				return err
			}
			if t.Status != task.StatusCompleted {
				return domain.Conflictf("venture %s: task %s of phase %s is %s", v.ID, t.ID, v.Current().Phase, t.Status)
			}
		}
		v.Advance()
		return nil
	})
}

// Hold pauses an active venture.
func (s *VentureService) Hold(ctx context.Context, id string) (*venture.Venture, error) {
	return s.setStatus(ctx, id, venture.StatusActive, venture.StatusOnHold)
}

// Resume reactivates a held venture.
func (s *VentureService) Resume(ctx context.Context, id string) (*venture.Venture, error) {
	return s.setStatus(ctx, id, venture.StatusOnHold, venture.StatusActive)
}

// Cancel stops a venture that has not finished. Its tasks are left as they
// are.
func (s *VentureService) Cancel(ctx context.Context, id string) (*venture.Venture, error) {
	return s.update(ctx, id, event.TypeVentureStatus, func(_ database.Tx, v *venture.Venture) error {
		if v.Status.IsTerminal() {
			return domain.Conflictf("venture %s is already %s", v.ID, v.Status)
		}
		v.Status = venture.StatusCancelled
		return nil
	})
}

func (s *VentureService) setStatus(ctx context.Context, id string, from, to venture.Status) (*venture.Venture, error) {
	return s.update(ctx, id, event.TypeVentureStatus, func(_ database.Tx, v *venture.Venture) error {
		if v.Status != from {
			return domain.Conflictf("venture %s is %s, not %s", v.ID, v.Status, from)
		}
		v.Status = to
		return nil
	})
}

func (s *VentureService) update(ctx context.Context, id string, evType event.Type, fn func(database.Tx, *venture.Venture) error) (*venture.Venture, error) {
	var (
		v  *venture.Venture
		fx *effects
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		var err error
		if v, err = tx.GetVenture(ctx, id); err != nil {
			return err
		}
		if err := fn(tx, v); err != nil {
			return err
		}
		v.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateVenture(ctx, v); err != nil {
			return err
		}
		fx.push(evType, v)
		return record(ctx, tx, event.Event{Type: evType, VentureID: v.ID},
			map[string]any{"status": v.Status, "phase": v.Current().Phase})
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", evType, id, err)
	}
	slog.InfoContext(ctx, "venture updated", "venture_id", v.ID, "status", v.Status, "phase", v.Current().Phase)
	s.notify.flush(ctx, fx)
	return v, nil
}

// Get returns a venture by ID.
func (s *VentureService) Get(ctx context.Context, id string) (*venture.Venture, error) {
	return s.store.GetVenture(ctx, id)
}

// List returns every venture.
func (s *VentureService) List(ctx context.Context) ([]venture.Venture, error) {
	return s.store.ListVentures(ctx)
}
