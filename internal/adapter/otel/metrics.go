package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/port/broadcast"
)

const meterName = "aia"

// Metrics holds all AIA metric instruments.
type Metrics struct {
	Events       metric.Int64Counter
	ToolCalls    metric.Int64Counter
	ToolDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Events, err = meter.Int64Counter("aia.events",
		metric.WithDescription("Domain events by type"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("aia.mcp.toolcalls",
		metric.WithDescription("Number of MCP tool calls"))
	if err != nil {
		return nil, err
	}

	m.ToolDuration, err = meter.Float64Histogram("aia.mcp.toolcall.duration_seconds",
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordToolCall counts one MCP tool call.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, seconds float64, failed bool) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("error", failed),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, seconds, attrs)
}

// countingBroadcaster counts every event on its way to the next broadcaster.
type countingBroadcaster struct {
	next   broadcast.Broadcaster
	events metric.Int64Counter
}

// Broadcaster wraps next so every pushed event is counted by type. next
// may be nil when nothing consumes pushes.
func (m *Metrics) Broadcaster(next broadcast.Broadcaster) broadcast.Broadcaster {
	return &countingBroadcaster{next: next, events: m.Events}
}

func (b *countingBroadcaster) BroadcastEvent(ctx context.Context, eventType event.Type, payload any) {
	b.events.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(eventType))))
	if b.next != nil {
		b.next.BroadcastEvent(ctx, eventType, payload)
	}
}
