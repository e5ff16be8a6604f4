package ctxlog

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// WarnCounter is a slog.Handler that counts records at Warn level and above
// while delegating output to an inner handler. The conversion pipeline wraps
// its logger with one so the run summary and the ledger can report a warning
// total without threading a counter through every component.
type WarnCounter struct {
	inner slog.Handler
	count *atomic.Int64
}

// NewWarnCounter wraps inner with a fresh counter.
func NewWarnCounter(inner slog.Handler) *WarnCounter {
	return &WarnCounter{inner: inner, count: new(atomic.Int64)}
}

// Count returns the number of Warn-or-higher records seen so far.
func (c *WarnCounter) Count() int64 { return c.count.Load() }

// Enabled admits Warn-and-above unconditionally so counting still works when
// the inner handler filters those levels out.
func (c *WarnCounter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn || c.inner.Enabled(ctx, level)
}

func (c *WarnCounter) Handle(ctx context.Context, rec slog.Record) error {
	if rec.Level >= slog.LevelWarn {
		c.count.Add(1)
	}
	if c.inner.Enabled(ctx, rec.Level) {
		return c.inner.Handle(ctx, rec)
	}
	return nil
}

// WithAttrs and WithGroup derive handlers that share the same counter.
func (c *WarnCounter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &WarnCounter{inner: c.inner.WithAttrs(attrs), count: c.count}
}

func (c *WarnCounter) WithGroup(name string) slog.Handler {
	return &WarnCounter{inner: c.inner.WithGroup(name), count: c.count}
}
