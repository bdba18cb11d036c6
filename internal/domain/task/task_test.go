package task_test

import (
	"errors"
	"testing"

	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/task"
)

func TestLifecycle(t *testing.T) {
	tk := &task.Task{ID: "t1", Status: task.StatusPending}

	if err := tk.Start(); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("start from pending: expected conflict, got %v", err)
	}
	if err := tk.Assign("a1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if tk.Assignee() != "a1" || !tk.Status.HoldsAgent() {
		t.Fatalf("expected a1 assigned, got %q (%s)", tk.Assignee(), tk.Status)
	}
	if err := tk.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tk.Complete(map[string]string{"pr": "42"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if tk.Status != task.StatusCompleted || tk.Progress != 1 || tk.Assignee() != "a1" {
		t.Fatalf("unexpected completed task: %+v", tk)
	}
	if !tk.Status.IsTerminal() {
		t.Fatal("completed must be terminal")
	}
}

func TestFailClearsAssignee(t *testing.T) {
	id := "a1"
	tk := &task.Task{ID: "t1", Status: task.StatusInProgress, AssignedTo: &id}
	if err := tk.Fail("boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if tk.AssignedTo != nil || tk.FailureReason != "boom" {
		t.Fatalf("unexpected failed task: %+v", tk)
	}
}

func TestRelease(t *testing.T) {
	tk := &task.Task{ID: "t1", Status: task.StatusPending}
	_ = tk.Assign("a1")
	if err := tk.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if tk.Status != task.StatusPending || tk.AssignedTo != nil {
		t.Fatalf("unexpected released task: %+v", tk)
	}
}

func TestSubmitRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  task.SubmitRequest
		ok   bool
	}{
		{"valid", task.SubmitRequest{Description: "d", Requirements: task.Requirements{"go": 0.5}}, true},
		{"no description", task.SubmitRequest{Requirements: task.Requirements{"go": 0.5}}, false},
		{"no requirements", task.SubmitRequest{Description: "d"}, false},
		{"out of range", task.SubmitRequest{Description: "d", Requirements: task.Requirements{"go": 2}}, false},
		{"bad priority", task.SubmitRequest{Description: "d", Requirements: task.Requirements{"go": 0.5}, Priority: "urgent"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestDefaultPriority(t *testing.T) {
	req := task.SubmitRequest{Description: "d", Requirements: task.Requirements{"go": 0.5}}
	if err := req.Validate(); err != nil {
		t.Fatal(err)
	}
	if req.Priority != task.PriorityMedium {
		t.Fatalf("expected medium default, got %s", req.Priority)
	}
}
