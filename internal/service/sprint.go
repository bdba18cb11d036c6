package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aiarch/aia/internal/config"
	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/economy"
	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/domain/sprint"
	"github.com/aiarch/aia/internal/port/broadcast"
	"github.com/aiarch/aia/internal/port/database"
	"github.com/aiarch/aia/internal/port/messagequeue"
)

// SprintService runs the end-of-sprint redistribution: rank, forfeit,
// split the pool, pay bonuses, promote.
type SprintService struct {
	store     database.Store
	notify    notifier
	rematcher Rematcher

	topPct     int
	bottomPct  int
	newHirePct int

	running sync.Mutex
}

// NewSprintService creates a SprintService.
func NewSprintService(store database.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, cfg *config.Sprint) *SprintService {
	s := &SprintService{
		store:      store,
		notify:     notifier{queue: queue, hub: hub},
		topPct:     20,
		bottomPct:  10,
		newHirePct: 80,
	}
	if cfg != nil {
		s.topPct, s.bottomPct, s.newHirePct = cfg.TopPercent, cfg.BottomPercent, cfg.NewHirePercent
	}
	return s
}

// SetRematcher attaches the orchestrator so tasks released by deactivated
// agents are re-matched.
func (s *SprintService) SetRematcher(r Rematcher) {
	s.rematcher = r
}

// Execute runs one sprint as a single transaction. Only one sprint runs at
// a time; a concurrent call fails with ErrConflict instead of waiting.
func (s *SprintService) Execute(ctx context.Context, req sprint.Request) (*sprint.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.running.TryLock() {
		return nil, domain.Conflictf("another sprint is in progress")
	}
	defer s.running.Unlock()

	var (
		rec *sprint.Record
		fx  *effects
	)
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		var err error
		rec, err = s.executeTx(ctx, tx, req, fx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("execute sprint %s: %w", req.ID, err)
	}

	slog.InfoContext(ctx, "sprint executed",
		"sprint_id", rec.ID,
		"agents", len(rec.Ranking),
		"pool", rec.PoolTotal.String(),
		"promoted", len(rec.Promoted),
		"deactivated", len(rec.Deactivated),
	)
	s.notify.flush(ctx, fx)
	if len(rec.Deactivated) > 0 {
		rematchAfter(ctx, s.rematcher, "sprint_executed")
	}
	return rec, nil
}

func (s *SprintService) executeTx(ctx context.Context, tx database.Tx, req sprint.Request, fx *effects) (*sprint.Record, error) {
	if err := tx.LockForSprint(ctx); err != nil {
		return nil, err
	}
	if _, err := tx.GetSprint(ctx, req.ID); err == nil {
		return nil, domain.Conflictf("sprint %s already executed", req.ID)
	}
	past, err := tx.ListSprints(ctx)
	if err != nil {
		return nil, err
	}
	for i := range past {
		if past[i].Overlaps(req.Start, req.End) {
			return nil, domain.Conflictf("sprint window overlaps sprint %s", past[i].ID)
		}
	}
	for id := range req.Scores {
		if _, err := tx.GetAgent(ctx, id); err != nil {
			return nil, err
		}
	}

	rec := &sprint.Record{
		ID:          req.ID,
		Start:       req.Start,
		End:         req.End,
		Ranking:     sprint.Rank(req.Scores, s.topPct, s.bottomPct),
		Forfeited:   []sprint.Allotment{},
		Bonuses:     []sprint.Allotment{},
		Promoted:    []string{},
		Deactivated: []string{},
	}
	reason := "sprint " + req.ID

	for _, r := range rec.Tier(sprint.TierBottom) {
		b, err := tx.GetBalance(ctx, r.AgentID)
		if err != nil {
			return nil, err
		}
		lost := b.Utility
		if lost.IsPositive() {
			if err := move(ctx, tx, r.AgentID, economy.PoolRedistribution, lost, economy.TokenUtility, economy.KindForfeit, reason); err != nil {
				return nil, err
			}
		}
		rec.Forfeited = append(rec.Forfeited, sprint.Allotment{AgentID: r.AgentID, Amount: lost})
		if _, _, err := deactivate(ctx, tx, r.AgentID, fx); err != nil {
			return nil, err
		}
		rec.Deactivated = append(rec.Deactivated, r.AgentID)
	}

	pool, err := balanceFor(ctx, tx, economy.PoolRedistribution)
	if err != nil {
		return nil, err
	}
	rec.PoolTotal = pool.Utility
	rec.NewHireAmount, rec.BonusAmount = sprint.SplitPool(rec.PoolTotal, s.newHirePct)
	if rec.NewHireAmount.IsPositive() {
		if err := move(ctx, tx, economy.PoolRedistribution, economy.PoolNewHire, rec.NewHireAmount, economy.TokenUtility, economy.KindNewHire, reason); err != nil {
			return nil, err
		}
	}
	for _, a := range sprint.SplitBonus(rec.BonusAmount, rec.Tier(sprint.TierTop)) {
		if a.Amount.IsPositive() {
			if err := move(ctx, tx, economy.PoolRedistribution, a.AgentID, a.Amount, economy.TokenUtility, economy.KindBonus, reason); err != nil {
				return nil, err
			}
		}
		rec.Bonuses = append(rec.Bonuses, a)
	}

	now := time.Now().UTC()
	for _, r := range rec.Ranking {
		a, err := tx.GetAgent(ctx, r.AgentID)
		if err != nil {
			return nil, err
		}
		if r.Tier == sprint.TierTop {
			if next := a.Rank.Promote(); next != a.Rank {
				a.Rank = next
				rec.Promoted = append(rec.Promoted, a.ID)
			}
		}
		a.PerformanceHistory = append(a.PerformanceHistory, r.Score)
		a.UpdatedAt = now
		if err := tx.UpdateAgent(ctx, a); err != nil {
			return nil, err
		}
	}

	rec.CreatedAt = now
	if err := tx.CreateSprint(ctx, rec); err != nil {
		return nil, err
	}
	if err := record(ctx, tx, event.Event{Type: event.TypeSprintExecuted}, map[string]any{
		"sprint_id":   rec.ID,
		"pool_total":  rec.PoolTotal.String(),
		"promoted":    rec.Promoted,
		"deactivated": rec.Deactivated,
	}); err != nil {
		return nil, err
	}

	fx.publish(messagequeue.SubjectAgentProvision, messagequeue.ProvisionPayload{
		SprintID:     rec.ID,
		Replacements: len(rec.Deactivated),
		Budget:       rec.NewHireAmount.String(),
	})
	fx.push(event.TypeSprintExecuted, rec)
	return rec, nil
}

// Get returns a sprint record by ID.
func (s *SprintService) Get(ctx context.Context, id string) (*sprint.Record, error) {
	return s.store.GetSprint(ctx, id)
}

// List returns every sprint record.
func (s *SprintService) List(ctx context.Context) ([]sprint.Record, error) {
	return s.store.ListSprints(ctx)
}

// PoolBalance returns the utility currently held by a system pool.
func (s *SprintService) PoolBalance(ctx context.Context, pool string) (decimal.Decimal, error) {
	b, err := s.store.GetBalance(ctx, pool)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return b.Utility, nil
}
