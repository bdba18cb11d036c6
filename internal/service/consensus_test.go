package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aiarch/aia/internal/config"
	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/consensus"
	"github.com/aiarch/aia/internal/domain/event"
)

// stubValidator answers from a fixed table. Agents missing from it fail.
type stubValidator struct {
	decisions map[string]string
	block     map[string]bool
}

func (s *stubValidator) Validate(ctx context.Context, agentID, _ string) (consensus.Vote, error) {
	if s.block[agentID] {
		<-ctx.Done()
		return consensus.Vote{}, ctx.Err()
	}
	d, ok := s.decisions[agentID]
	if !ok {
		return consensus.Vote{}, errors.New("agent unreachable")
	}
	return consensus.Vote{Decision: d, Confidence: 0.9}, nil
}

func consensusFixture(t *testing.T, v *stubValidator, ids ...string) (*fixture, *ConsensusService) {
	t.Helper()
	f := newFixture(t)
	for _, id := range ids {
		f.register(t, id, nil)
	}
	svc := NewConsensusService(f.store, v, f.hub, &config.Consensus{Timeout: 200 * time.Millisecond})
	return f, svc
}

func TestValidateCritical(t *testing.T) {
	tests := []struct {
		name       string
		decisions  map[string]string
		block      map[string]bool
		reached    bool
		decision   string
		dissenting []string
	}{
		{
			name:       "two of three",
			decisions:  map[string]string{"a": "approve", "b": "approve", "c": "reject"},
			reached:    true,
			decision:   "approve",
			dissenting: []string{"c"},
		},
		{
			name:       "three way split",
			decisions:  map[string]string{"a": "x", "b": "y", "c": "z"},
			reached:    false,
			decision:   "x",
			dissenting: []string{"b", "c"},
		},
		{
			name:       "unreachable agent abstains",
			decisions:  map[string]string{"a": "approve", "b": "approve"},
			reached:    true,
			decision:   "approve",
			dissenting: []string{"c"},
		},
		{
			name:       "timeout abstains",
			decisions:  map[string]string{"a": "approve"},
			block:      map[string]bool{"b": true, "c": true},
			reached:    false,
			decision:   "approve",
			dissenting: []string{"b", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, svc := consensusFixture(t, &stubValidator{decisions: tt.decisions, block: tt.block}, "a", "b", "c")
			res, err := svc.ValidateCritical(context.Background(), consensus.Request{Output: "diff", AgentIDs: []string{"a", "b", "c"}})
			if err != nil {
				t.Fatal(err)
			}
			if res.Reached != tt.reached || res.Decision != tt.decision {
				t.Fatalf("expected reached=%v decision=%q, got %+v", tt.reached, tt.decision, res)
			}
			if !equalIDs(res.Dissenting, tt.dissenting) {
				t.Fatalf("expected dissenting %v, got %v", tt.dissenting, res.Dissenting)
			}
			events, _ := f.store.ListEvents(context.Background(), event.Filter{Type: event.TypeConsensusCompleted})
			if len(events) != 1 {
				t.Fatalf("expected one consensus event, got %d", len(events))
			}
			if !f.hub.has(string(event.TypeConsensusCompleted)) {
				t.Fatal("expected consensus broadcast")
			}
		})
	}
}

func TestValidateCriticalRejects(t *testing.T) {
	_, svc := consensusFixture(t, &stubValidator{}, "a", "b")
	tests := []struct {
		name string
		ids  []string
		want error
	}{
		{"no agents", nil, domain.ErrValidation},
		{"duplicate agent", []string{"a", "a"}, domain.ErrValidation},
		{"unknown agent", []string{"a", "ghost"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateCritical(context.Background(), consensus.Request{Output: "x", AgentIDs: tt.ids})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLocalValidator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "fresh", nil)
	f.register(t, "scored", nil)
	a, _ := f.directory.Get(ctx, "scored")
	a.PerformanceHistory = []float64{2, 3}
	if err := f.store.UpdateAgent(ctx, a); err != nil {
		t.Fatal(err)
	}
	v := NewLocalValidator(f.store)

	tests := []struct {
		name     string
		agent    string
		output   string
		decision string
		conf     float64
	}{
		{"no history", "fresh", "patch", DecisionApprove, 0.5},
		{"clamped mean", "scored", "patch", DecisionApprove, 1},
		{"blank output", "fresh", "  \n", DecisionReject, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(ctx, tt.agent, tt.output)
			if err != nil {
				t.Fatal(err)
			}
			if got.Decision != tt.decision || got.Confidence != tt.conf {
				t.Fatalf("expected %s/%v, got %+v", tt.decision, tt.conf, got)
			}
		})
	}
	if _, err := v.Validate(ctx, "ghost", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	res, err := f.consensus.ValidateCritical(ctx, consensus.Request{Output: "patch", AgentIDs: []string{"fresh", "scored"}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Reached || res.Decision != DecisionApprove {
		t.Fatalf("expected unanimous approval, got %+v", res)
	}
}
