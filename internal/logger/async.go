package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// pending is a record queued together with the handler chain that must
// write it and the request id of its context, which is gone by the time a
// worker picks it up.
type pending struct {
	h         slog.Handler
	rec       slog.Record
	requestID string
	agentID   string
}

// asyncCore is shared by an AsyncHandler and every handler derived from it.
type asyncCore struct {
	queue   chan pending
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
}

// AsyncHandler hands records to background workers through a bounded
// queue. When the queue is full the record is dropped and counted.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler creates an AsyncHandler with the given queue capacity and worker count.
func NewAsyncHandler(inner slog.Handler, queueSize, workers int) *AsyncHandler {
	core := &asyncCore{queue: make(chan pending, queueSize)}
	core.wg.Add(workers)
	for range workers {
		go func() {
			defer core.wg.Done()
			for p := range core.queue {
				ctx := context.Background()
				if p.requestID != "" {
					ctx = WithRequestID(ctx, p.requestID)
				}
				if p.agentID != "" {
					ctx = WithAgentID(ctx, p.agentID)
				}
				_ = p.h.Handle(ctx, p.rec)
			}
		}()
	}
	return &AsyncHandler{inner: inner, core: core}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record without blocking.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	p := pending{h: h.inner, rec: rec.Clone(), requestID: RequestID(ctx), agentID: AgentID(ctx)}
	select {
	case h.core.queue <- p:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup implements slog.Handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// DroppedCount returns the number of records dropped on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close stops accepting records and waits until the queue is drained.
// It is safe to call more than once.
func (h *AsyncHandler) Close() {
	h.core.once.Do(func() { close(h.core.queue) })
	h.core.wg.Wait()
}
