// Package service implements the AIA use cases on top of the store, bus
// and broadcast ports.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/domain/task"
	"github.com/aiarch/aia/internal/logger"
	"github.com/aiarch/aia/internal/port/broadcast"
	"github.com/aiarch/aia/internal/port/database"
	"github.com/aiarch/aia/internal/port/messagequeue"
)

// Rematcher re-evaluates pending tasks against idle agents.
type Rematcher interface {
	Rematch(ctx context.Context) (int, error)
}

// notifier sends bus messages and WebSocket pushes. Both sinks are
// optional; failures are logged and never returned.
type notifier struct {
	queue messagequeue.Queue
	hub   broadcast.Broadcaster
}

type outMessage struct {
	subject string
	data    []byte
}

type outPush struct {
	eventType event.Type
	payload   any
}

// effects collects what a transaction wants to announce. They are sent by
// flush once the transaction has committed, so a rolled back write is never
// published. A fresh effects must be used per transaction attempt.
type effects struct {
	messages []outMessage
	pushes   []outPush
}

func (fx *effects) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal bus payload", "subject", subject, "error", err)
		return
	}
	fx.messages = append(fx.messages, outMessage{subject: subject, data: data})
}

func (fx *effects) publishTask(subject string, t *task.Task) {
	fx.publish(subject, messagequeue.TaskEventPayload{
		TaskID:     t.ID,
		AgentID:    t.Assignee(),
		Status:     string(t.Status),
		Priority:   string(t.Priority),
		VentureID:  t.VentureID,
		Phase:      t.Phase,
		Reason:     t.FailureReason,
		Result:     t.Result,
		OccurredAt: t.UpdatedAt,
	})
}

func (fx *effects) push(eventType event.Type, payload any) {
	fx.pushes = append(fx.pushes, outPush{eventType: eventType, payload: payload})
}

func (n notifier) flush(ctx context.Context, fx *effects) {
	if fx == nil {
		return
	}
	for _, m := range fx.messages {
		if n.queue == nil {
			slog.DebugContext(ctx, "no message bus, dropping", "subject", m.subject)
			continue
		}
		if err := n.queue.Publish(ctx, m.subject, m.data); err != nil {
			slog.ErrorContext(ctx, "failed to publish", "subject", m.subject, "error", err)
		}
	}
	if n.hub == nil {
		return
	}
	for _, p := range fx.pushes {
		n.hub.BroadcastEvent(ctx, p.eventType, p.payload)
	}
}

// record appends an audit event inside tx.
func record(ctx context.Context, tx database.Tx, ev event.Event, payload any) error {
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		ev.Payload = data
	}
	ev.ID = uuid.NewString()
	ev.RequestID = logger.RequestID(ctx)
	ev.CreatedAt = time.Now().UTC()
	return tx.AppendEvent(ctx, &ev)
}

// rematchAfter runs a re-match outside the caller's transaction. The
// triggering write has already committed, so a failure is only logged.
func rematchAfter(ctx context.Context, r Rematcher, reason string) {
	if r == nil {
		return
	}
	n, err := r.Rematch(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "rematch failed", "trigger", reason, "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "rematched pending tasks", "trigger", reason, "assigned", n)
	}
}
