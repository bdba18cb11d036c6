package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aiarch/aia/internal/config"
	"github.com/aiarch/aia/internal/domain/consensus"
	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/port/broadcast"
	"github.com/aiarch/aia/internal/port/database"
	"github.com/aiarch/aia/internal/port/validator"
)

// ConsensusService gathers independent decisions on a critical output and
// tallies them.
type ConsensusService struct {
	store     database.Store
	validator validator.Validator
	notify    notifier
	threshold float64
	timeout   time.Duration
}

// NewConsensusService creates a ConsensusService.
func NewConsensusService(store database.Store, v validator.Validator, hub broadcast.Broadcaster, cfg *config.Consensus) *ConsensusService {
	s := &ConsensusService{
		store:     store,
		validator: v,
		notify:    notifier{hub: hub},
		threshold: consensus.DefaultThreshold,
		timeout:   10 * time.Second,
	}
	if cfg != nil {
		if cfg.Threshold > 0 {
			s.threshold = cfg.Threshold
		}
		if cfg.Timeout > 0 {
			s.timeout = cfg.Timeout
		}
	}
	return s
}

// ValidateCritical asks every listed agent for a decision in parallel and
// tallies the answers. An agent that fails to answer within the timeout
// abstains. Falling short of the threshold is reported in the result.
func (s *ConsensusService) ValidateCritical(ctx context.Context, req consensus.Request) (*consensus.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	for _, id := range req.AgentIDs {
		if _, err := s.store.GetAgent(ctx, id); err != nil {
			return nil, fmt.Errorf("consensus participant %s: %w", id, err)
		}
	}

	votes := make([]consensus.Vote, len(req.AgentIDs))
	vctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var g errgroup.Group
	for i, id := range req.AgentIDs {
		g.Go(func() error {
			v, err := s.validator.Validate(vctx, id, req.Output)
			if err != nil {
				slog.WarnContext(ctx, "validation abstained", "agent_id", id, "error", err)
				votes[i] = consensus.Vote{AgentID: id, Error: err.Error()}
				return nil
			}
			v.AgentID = id
			votes[i] = v
			return nil
		})
	}
	_ = g.Wait()

	res := consensus.Tally(votes, s.threshold)
	fx := &effects{}
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		fx = &effects{}
		fx.push(event.TypeConsensusCompleted, res)
		return record(ctx, tx, event.Event{Type: event.TypeConsensusCompleted}, map[string]any{
			"agents": req.AgentIDs,
			"votes":  votes,
			"result": res,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("record consensus: %w", err)
	}

	slog.InfoContext(ctx, "consensus tallied",
		"agents", len(votes), "reached", res.Reached, "decision", res.Decision, "dissenting", len(res.Dissenting))
	s.notify.flush(ctx, fx)
	return &res, nil
}

// Decisions returned by LocalValidator.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// LocalValidator decides in process when no message bus is configured. It
// approves any non-blank output; confidence is the agent's mean sprint
// score clamped to [0,1], or 0.5 without history.
type LocalValidator struct {
	store database.Store
}

// NewLocalValidator creates a LocalValidator.
func NewLocalValidator(store database.Store) *LocalValidator {
	return &LocalValidator{store: store}
}

// Validate implements validator.Validator.
func (l *LocalValidator) Validate(ctx context.Context, agentID, output string) (consensus.Vote, error) {
	a, err := l.store.GetAgent(ctx, agentID)
	if err != nil {
		return consensus.Vote{}, err
	}
	conf := 0.5
	if n := len(a.PerformanceHistory); n > 0 {
		var sum float64
		for _, s := range a.PerformanceHistory {
			sum += s
		}
		conf = min(1, max(0, sum/float64(n)))
	}
	decision := DecisionApprove
	if strings.TrimSpace(output) == "" {
		decision = DecisionReject
	}
	return consensus.Vote{AgentID: agentID, Decision: decision, Confidence: conf}, nil
}
