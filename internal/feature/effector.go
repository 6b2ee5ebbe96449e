package feature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/memwrite"
)

// Plan is what an effect wants this tick, computed from one read of its configuration.
type Plan struct {
	Enabled   bool
	Tolerance float64
	Targets   []Target
}

// Effect is the concrete part of an effector: which chain to resolve and
// which values to hold.
type Effect interface {
	Name() string
	Delay() time.Duration
	Paths() []chain.Path
	Plan() Plan
	// Neutral returns the values written back when the effect is disabled.
	Neutral() []Target
}

// WriteRecord describes one physical write made by an effector.
type WriteRecord struct {
	Feature string
	Field   string
	Addr    mem.Address
	Value   string
	At      time.Time
}

// Journal receives write records. Record must not block.
type Journal interface {
	Record(rec WriteRecord)
}

// Effector is the shared state machine behind every effect.
//
//	Disabled ──enable──▶ Unresolved ──chain ok──▶ Active
//	Active ──chain invalid──▶ Unresolved (cache cleared, nothing restored)
//	Unresolved/Active ──disable──▶ Disabled (neutral values restored, best effort)
//	any ──session boundary──▶ Disabled (nothing restored)
//
// Ticks of one effector are serialized by the Scheduler; the mutex only
// protects Snapshot readers.
type Effector struct {
	effect  Effect
	writer  *memwrite.Writer
	cache   *chain.Cache
	journal Journal

	mu          sync.Mutex
	state       State
	lastEnabled bool
	lastRoot    mem.Address
	applied     map[string]Value
}

// EffectorOption configures an Effector.
type EffectorOption func(*Effector)

// WithJournal reports every physical write to j.
func WithJournal(j Journal) EffectorOption {
	return func(e *Effector) { e.journal = j }
}

// NewEffector creates an effector for effect. Its pointer chain is resolved
// with the writer's accessor.
func NewEffector(effect Effect, w *memwrite.Writer, opts ...EffectorOption) *Effector {
	e := &Effector{
		effect:  effect,
		writer:  w,
		cache:   chain.New(w.Accessor(), effect.Paths()...),
		applied: make(map[string]Value),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the effect name.
func (e *Effector) Name() string { return e.effect.Name() }

// Delay returns the effect's current tick delay.
func (e *Effector) Delay() time.Duration { return e.effect.Delay() }

// TryApply runs one tick. It never fails; problems clear the cached state and
// are reported in the result for diagnostics.
func (e *Effector) TryApply(ctx context.Context, in TickInput) TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan := e.effect.Plan()
	changed := plan.Enabled != e.lastEnabled

	if !plan.Enabled {
		res := TickResult{State: StateDisabled}
		if changed {
			res.Restored = e.restoreLocked(ctx, in.Root)
			e.clearLocked()
			e.lastEnabled = false
			if IsDebugEnabled() {
				slog.Debug("effector disabled", "feature", e.Name(), "restored", res.Restored)
			}
		}
		e.state = StateDisabled
		return res
	}

	if changed {
		e.lastEnabled = true
		e.state = StateUnresolved
		if IsDebugEnabled() {
			slog.Debug("effector enabled", "feature", e.Name())
		}
	}
	e.lastRoot = in.Root

	if !mem.IsValid(in.Root) {
		e.unresolveLocked()
		return TickResult{State: e.state, Err: fmt.Errorf("root %s: %w", in.Root, mem.ErrInvalidAddress)}
	}

	resolution, err := e.cache.Resolve(ctx, in.Root)
	if err != nil {
		e.unresolveLocked()
		return TickResult{State: e.state, Err: err}
	}
	if err := e.checkLocked(ctx, resolution, plan.Targets); err != nil {
		e.unresolveLocked()
		return TickResult{State: e.state, Err: err}
	}

	writes, err := e.applyLocked(ctx, resolution, plan.Targets, plan.Tolerance, e.applied)
	if err != nil {
		// Re-resolve from scratch next tick.
		e.unresolveLocked()
		return TickResult{State: e.state, Writes: writes, Err: err}
	}
	e.state = StateActive
	return TickResult{State: StateActive, Writes: writes}
}

// checkLocked reads every guarded field before anything is written. An
// implausible value means the resolution points at the wrong object, so the
// whole tick is rejected. Read failures are left to applyLocked.
func (e *Effector) checkLocked(ctx context.Context, res chain.Resolution, targets []Target) error {
	var errs []error
	for _, t := range targets {
		if !t.Field.guarded() {
			continue
		}
		addr, err := t.Field.address(res.Root, res.Terminals)
		if err != nil {
			continue
		}
		if err := t.Field.check(ctx, e.writer.Accessor(), addr); errors.Is(err, memwrite.ErrImplausible) {
			errs = append(errs, fmt.Errorf("field %s: %w", t.Field.Name, err))
		}
	}
	return errors.Join(errs...)
}

// applyLocked applies each target independently and records the ones that
// now hold. Errors are joined.
func (e *Effector) applyLocked(ctx context.Context, res chain.Resolution, targets []Target, tolerance float64, record map[string]Value) (int, error) {
	var (
		writes int
		errs   []error
	)
	for _, t := range targets {
		addr, err := t.Field.address(res.Root, res.Terminals)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		wrote, err := t.Value.apply(ctx, e.writerFor(t.Field), addr, t.Field, tolerance)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", t.Field.Name, err))
			continue
		}
		if wrote {
			writes++
		}
		if record != nil {
			record[t.Field.Name] = t.Value
		}
	}
	return writes, errors.Join(errs...)
}

func (e *Effector) writerFor(f Field) *memwrite.Writer {
	if e.journal == nil {
		return e.writer
	}
	name := e.Name()
	return e.writer.WithObserver(func(addr mem.Address, v any) {
		e.journal.Record(WriteRecord{
			Feature: name,
			Field:   f.Name,
			Addr:    addr,
			Value:   fmt.Sprint(v),
			At:      time.Now(),
		})
	})
}

// restoreLocked writes neutral values back, swallowing every failure.
func (e *Effector) restoreLocked(ctx context.Context, root mem.Address) int {
	if !mem.IsValid(root) {
		return 0
	}
	res, err := e.cache.Resolve(ctx, root)
	if err != nil {
		if IsDebugEnabled() {
			slog.Debug("restore skipped: chain unresolved", "feature", e.Name(), "error", err)
		}
		return 0
	}
	if err := e.checkLocked(ctx, res, e.effect.Neutral()); err != nil {
		if IsDebugEnabled() {
			slog.Debug("restore skipped: implausible field", "feature", e.Name(), "error", err)
		}
		return 0
	}
	writes, err := e.applyLocked(ctx, res, e.effect.Neutral(), 0, nil)
	if err != nil && IsDebugEnabled() {
		slog.Debug("restore incomplete", "feature", e.Name(), "error", err)
	}
	return writes
}

func (e *Effector) unresolveLocked() {
	e.cache.Invalidate()
	clear(e.applied)
	e.state = StateUnresolved
}

func (e *Effector) clearLocked() {
	e.cache.Reset()
	clear(e.applied)
	e.lastRoot = 0
}

// ClearCache drops the resolved chain. The scheduler calls it after a tick panicked.
func (e *Effector) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateActive {
		e.state = StateUnresolved
	}
	e.cache.Invalidate()
	clear(e.applied)
}

// OnSessionReset forces the effector off without restoring anything: the old
// session's addresses are presumed gone. The next tick re-evaluates enablement.
func (e *Effector) OnSessionReset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearLocked()
	e.lastEnabled = false
	e.state = StateDisabled
}

// EffectorSnapshot is a diagnostic copy of the run state.
type EffectorSnapshot struct {
	State      State
	Enabled    bool
	LastRoot   mem.Address
	Applied    map[string]Value
	CacheState chain.State
	Walks      int
}

// Snapshot returns the current run state.
func (e *Effector) Snapshot() EffectorSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EffectorSnapshot{
		State:      e.state,
		Enabled:    e.lastEnabled,
		LastRoot:   e.lastRoot,
		Applied:    maps.Clone(e.applied),
		CacheState: e.cache.State(),
		Walks:      e.cache.Walks(),
	}
}
