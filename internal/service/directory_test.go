package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/economy"
	"github.com/aiarch/aia/internal/domain/task"
)

func TestDirectoryRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.register(t, "a1", agent.Capabilities{"python": 0.9})
	if a.Status != agent.StatusIdle || a.Rank != agent.RankEntry {
		t.Fatalf("expected idle/entry, got %s/%s", a.Status, a.Rank)
	}
	b, err := f.economy.Balance(ctx, "a1")
	if err != nil {
		t.Fatalf("balance not created: %v", err)
	}
	if !b.Utility.IsZero() || !b.Governance.IsZero() {
		t.Fatalf("expected zero balance, got %+v", b)
	}
	if !f.hub.has("agent.registered") {
		t.Fatal("expected agent.registered broadcast")
	}
}

func TestDirectoryRegisterValidation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1", agent.Capabilities{"python": 0.9})

	tests := []struct {
		name string
		req  agent.RegisterRequest
	}{
		{"empty id", agent.RegisterRequest{Name: "x"}},
		{"duplicate id", agent.RegisterRequest{ID: "a1", Name: "again"}},
		{"capability above one", agent.RegisterRequest{ID: "a2", Name: "x", Capabilities: agent.Capabilities{"go": 1.5}}},
		{"capability below zero", agent.RegisterRequest{ID: "a3", Name: "x", Capabilities: agent.Capabilities{"go": -0.1}}},
		{"pool id", agent.RegisterRequest{ID: economy.PoolRedistribution, Name: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.directory.Register(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestDirectoryGetNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.directory.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectoryUpdateCapabilitiesMerges(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1", agent.Capabilities{"python": 0.9, "sql": 0.4})

	a, err := f.directory.UpdateCapabilities(context.Background(), "a1", agent.Capabilities{"sql": 0.7, "go": 0.5})
	if err != nil {
		t.Fatal(err)
	}
	want := agent.Capabilities{"python": 0.9, "sql": 0.7, "go": 0.5}
	if len(a.Capabilities) != len(want) {
		t.Fatalf("expected %v, got %v", want, a.Capabilities)
	}
	for k, v := range want {
		if a.Capabilities[k] != v {
			t.Fatalf("%s: expected %v, got %v", k, v, a.Capabilities[k])
		}
	}
}

func TestDirectoryUpdateCapabilitiesRejectsWholeDelta(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a1", agent.Capabilities{"python": 0.9})

	_, err := f.directory.UpdateCapabilities(context.Background(), "a1", agent.Capabilities{"python": 0.1, "go": 2})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	a, _ := f.directory.Get(context.Background(), "a1")
	if a.Capabilities["python"] != 0.9 {
		t.Fatalf("partial update applied: %v", a.Capabilities)
	}
}

func TestDirectoryCapabilitiesStayInBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a1", nil)
	rng := rand.New(rand.NewPCG(1, 2))
	skills := []string{"python", "go", "sql", "design", "ops"}

	for range 500 {
		delta := agent.Capabilities{}
		for range 1 + rng.IntN(3) {
			// Values in [-0.5, 1.5) so roughly half the deltas are invalid.
			delta[skills[rng.IntN(len(skills))]] = rng.Float64()*2 - 0.5
		}
		_, _ = f.directory.UpdateCapabilities(ctx, "a1", delta)

		a, err := f.directory.Get(ctx, "a1")
		if err != nil {
			t.Fatal(err)
		}
		for k, v := range a.Capabilities {
			if v < 0 || v > 1 {
				t.Fatalf("capability %s out of bounds: %v", k, v)
			}
		}
	}
}

func TestDirectoryDeactivateIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a1", nil)

	first, err := f.directory.Deactivate(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != agent.StatusOffline {
		t.Fatalf("expected offline, got %s", first.Status)
	}
	second, err := f.directory.Deactivate(ctx, "a1")
	if err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
	if second.Version != first.Version {
		t.Fatalf("second deactivate changed state: version %d -> %d", first.Version, second.Version)
	}
}

func TestDirectoryDeactivateInProgressConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a1", agent.Capabilities{"python": 0.9})
	tk, err := f.orch.Submit(ctx, task.SubmitRequest{Description: "x", Requirements: task.Requirements{"python": 0.5}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.Start(ctx, tk.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.directory.Deactivate(ctx, "a1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	a, _ := f.directory.Get(ctx, "a1")
	if a.Status != agent.StatusBusy {
		t.Fatalf("expected busy, got %s", a.Status)
	}
}

func TestDirectoryDeactivateReleasesAssignedTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a1", agent.Capabilities{"python": 0.9})
	tk, err := f.orch.Submit(ctx, task.SubmitRequest{Description: "x", Requirements: task.Requirements{"python": 0.5}})
	if err != nil {
		t.Fatal(err)
	}
	if tk.Assignee() != "a1" {
		t.Fatalf("expected a1, got %q", tk.Assignee())
	}

	if _, err := f.directory.Deactivate(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	got, _ := f.orch.Get(ctx, tk.ID)
	if got.Status != task.StatusPending || got.AssignedTo != nil {
		t.Fatalf("expected released pending task, got %s assigned to %q", got.Status, got.Assignee())
	}

	// A new capable agent picks the released task up.
	f.register(t, "a2", agent.Capabilities{"python": 0.6})
	got, _ = f.orch.Get(ctx, tk.ID)
	if got.Assignee() != "a2" {
		t.Fatalf("expected re-match to a2, got %q (%s)", got.Assignee(), got.Status)
	}
}

func TestDirectoryReactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a1", nil)

	if _, err := f.directory.Reactivate(ctx, "a1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for idle agent, got %v", err)
	}
	if _, err := f.directory.Deactivate(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	a, err := f.directory.Reactivate(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != agent.StatusIdle {
		t.Fatalf("expected idle, got %s", a.Status)
	}
}

func TestDirectoryListRestartable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "b", agent.Capabilities{"go": 0.8})
	f.register(t, "a", agent.Capabilities{"go": 0.3})
	f.register(t, "c", agent.Capabilities{"python": 0.9})
	if _, err := f.directory.Deactivate(ctx, "c"); err != nil {
		t.Fatal(err)
	}

	collect := func(filter agent.Filter) []string {
		var ids []string
		for a := range f.directory.List(ctx, filter) {
			ids = append(ids, a.ID)
		}
		return ids
	}

	tests := []struct {
		name   string
		filter agent.Filter
		want   []string
	}{
		{"all", agent.Filter{}, []string{"a", "b", "c"}},
		{"idle", agent.Filter{Status: agent.StatusIdle}, []string{"a", "b"}},
		{"min capability", agent.Filter{Skill: "go", MinLevel: 0.5}, []string{"b"}},
		{"offline", agent.Filter{Status: agent.StatusOffline}, []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := collect(tt.filter)
			again := collect(tt.filter)
			if len(seq) != len(tt.want) || len(again) != len(tt.want) {
				t.Fatalf("expected %v twice, got %v then %v", tt.want, seq, again)
			}
			for i := range tt.want {
				if seq[i] != tt.want[i] || again[i] != tt.want[i] {
					t.Fatalf("expected %v twice, got %v then %v", tt.want, seq, again)
				}
			}
		})
	}

	// Early break leaves nothing behind.
	for range f.directory.List(ctx, agent.Filter{}) {
		break
	}
	if got := collect(agent.Filter{}); len(got) != 3 {
		t.Fatalf("expected 3 after early break, got %v", got)
	}
}
