// Package session detects session boundaries in the foreign process.
//
// A boundary is a new non-zero session id that differs from the last non-zero
// id seen. An id dropping to zero (between sessions) is not a boundary, and
// returning to the same id (reconnect) is not one either.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/mem"
)

// DefaultInterval is how often the session id is polled.
const DefaultInterval = time.Second

// Layout locates the int32 session id: walk Path from Base, then read at IDOffset.
type Layout struct {
	Base     mem.Address
	Path     chain.Path
	IDOffset uint64
}

// Boundary is delivered to subscribers when a new session starts.
type Boundary struct {
	ID       int32
	Previous int32 // 0 on the first session seen
	At       time.Time
}

// Watcher polls the session id and notifies subscribers on boundaries.
type Watcher struct {
	acc      *mem.Accessor
	layout   Layout
	interval time.Duration

	mu   sync.Mutex
	subs []func(Boundary)
	last int32
}

// NewWatcher creates a watcher. A non-positive interval uses DefaultInterval.
func NewWatcher(acc *mem.Accessor, layout Layout, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{acc: acc, layout: layout, interval: interval}
}

// Subscribe registers fn for boundaries. Callbacks run on the watcher's
// goroutine in registration order and must not block.
func (w *Watcher) Subscribe(fn func(Boundary)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Current returns the last non-zero session id seen.
func (w *Watcher) Current() int32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// ReadID reads the session id once.
func (w *Watcher) ReadID(ctx context.Context) (int32, error) {
	res, err := chain.Walk(ctx, w.acc, w.layout.Base, []chain.Path{w.layout.Path})
	if err != nil {
		return 0, fmt.Errorf("locating session id: %w", err)
	}
	id, err := mem.Read[int32](ctx, w.acc, res.Terminal(0).Add(w.layout.IDOffset), false)
	if err != nil {
		return 0, fmt.Errorf("reading session id: %w", err)
	}
	return id, nil
}

// Poll reads the id once and notifies subscribers if it marks a boundary.
func (w *Watcher) Poll(ctx context.Context) (Boundary, bool, error) {
	id, err := w.ReadID(ctx)
	if err != nil {
		return Boundary{}, false, err
	}

	w.mu.Lock()
	if id == 0 || id == w.last {
		w.mu.Unlock()
		return Boundary{}, false, nil
	}
	b := Boundary{ID: id, Previous: w.last, At: time.Now()}
	w.last = id
	subs := slices.Clone(w.subs)
	w.mu.Unlock()

	slog.Info("session boundary", "session", b.ID, "previous", b.Previous)
	for _, fn := range subs {
		fn(b)
	}
	return b, true, nil
}

// Run polls until ctx is canceled. Read failures are expected while no
// session exists and are logged at debug level.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("session watcher started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("session watcher stopping")
			return ctx.Err()

		case <-ticker.C:
			if _, _, err := w.Poll(ctx); err != nil {
				slog.Debug("session id unavailable", "error", err)
			}
		}
	}
}
