// Package driver runs the per-frame scatter read cycle.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/scatter"
)

// DefaultInterval is roughly one frame at 60 Hz.
const DefaultInterval = 16 * time.Millisecond

// Hook contributes reads to a frame batch. Results are consumed in
// completion callbacks registered on the batch.
type Hook interface {
	PrepareFrame(ctx context.Context, b *scatter.Batch) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, b *scatter.Batch) error

func (f HookFunc) PrepareFrame(ctx context.Context, b *scatter.Batch) error {
	return f(ctx, b)
}

// FrameLoop builds, executes and discards one scatter batch per frame.
type FrameLoop struct {
	t        mem.Transport
	interval time.Duration
	hooks    []Hook

	frames   atomic.Int64
	failures atomic.Int64
}

// NewFrameLoop creates a loop over hooks. A non-positive interval uses DefaultInterval.
func NewFrameLoop(t mem.Transport, interval time.Duration, hooks ...Hook) *FrameLoop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &FrameLoop{t: t, interval: interval, hooks: hooks}
}

// Frame runs one frame: every hook prepares, then the batch executes once.
// A hook that fails to prepare does not prevent the others from reading.
func (l *FrameLoop) Frame(ctx context.Context) error {
	b := scatter.New(l.t)

	var errs []error
	for _, h := range l.hooks {
		if err := h.PrepareFrame(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.Execute(ctx); err != nil {
		errs = append(errs, err)
	}

	l.frames.Add(1)
	err := errors.Join(errs...)
	if err != nil {
		l.failures.Add(1)
	}
	return err
}

// Stats returns how many frames ran and how many reported an error.
func (l *FrameLoop) Stats() (frames, failures int64) {
	return l.frames.Load(), l.failures.Load()
}

// Run executes frames until ctx is canceled. Frame errors are transient and
// logged at debug level; a frame still in flight is never interrupted.
func (l *FrameLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	slog.Info("frame loop started", "interval", l.interval, "hooks", len(l.hooks))

	for {
		select {
		case <-ctx.Done():
			frames, failures := l.Stats()
			slog.Info("frame loop stopping", "frames", frames, "failures", failures)
			return ctx.Err()

		case <-ticker.C:
			// Detached from ctx so cancellation lands between frames, not inside one.
			if err := l.Frame(context.WithoutCancel(ctx)); err != nil {
				slog.Debug("frame incomplete", "error", err)
			}
		}
	}
}
