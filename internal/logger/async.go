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

// queued pairs a record with the handler derived for it, so attributes
// added through With survive the hop to the worker.
type queued struct {
	h   slog.Handler
	rec slog.Record
}

// pipe is the buffer and worker pool shared by an AsyncHandler and every
// handler derived from it.
type pipe struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan queued
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// AsyncHandler moves record formatting off the dispatch path. Below
// slog.LevelError records are dropped when the buffer is full; errors wait
// for room. After Close, records are written synchronously.
type AsyncHandler struct {
	inner slog.Handler
	p     *pipe
}

// NewAsyncHandler starts workers goroutines draining a buffer of bufferSize records.
func NewAsyncHandler(inner slog.Handler, bufferSize, workers int) *AsyncHandler {
	p := &pipe{ch: make(chan queued, bufferSize)}
	for range workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for q := range p.ch {
				_ = q.h.Handle(context.Background(), q.rec)
			}
		}()
	}
	return &AsyncHandler{inner: inner, p: p}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.p.mu.RLock()
	defer h.p.mu.RUnlock()
	if h.p.closed {
		return h.inner.Handle(ctx, rec)
	}
	q := queued{h: h.inner, rec: rec}
	if rec.Level >= slog.LevelError {
		h.p.ch <- q
		return nil
	}
	select {
	case h.p.ch <- q:
	default:
		h.p.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), p: h.p}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), p: h.p}
}

// DroppedCount returns the number of records discarded on a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.p.dropped.Load()
}

// Close flushes the buffer and stops the workers. It is safe to call twice.
func (h *AsyncHandler) Close() {
	h.p.mu.Lock()
	if h.p.closed {
		h.p.mu.Unlock()
		return
	}
	h.p.closed = true
	close(h.p.ch)
	h.p.mu.Unlock()
	h.p.wg.Wait()
}
