package feature

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// cacheClearer is implemented by features that can drop resolved state after a failed tick.
type cacheClearer interface {
	ClearCache()
}

type runner struct {
	feature Feature
	source  InputSource
	resetCh chan struct{} // buffered(1); resets coalesce
	ticks   atomic.Int64
}

// Scheduler ticks every registered feature on its own goroutine and delay.
// Ticks of one feature never overlap; different features run concurrently.
type Scheduler struct {
	runners     sync.Map // map[string]*runner; feature name -> runner
	runnerCount atomic.Int32
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		stopCh: make(chan struct{}),
	}
}

// Register adds a feature fed by src. Features must be registered before Run.
func (s *Scheduler) Register(f Feature, src InputSource) error {
	r := &runner{
		feature: f,
		source:  src,
		resetCh: make(chan struct{}, 1),
	}
	if _, loaded := s.runners.LoadOrStore(f.Name(), r); loaded {
		return fmt.Errorf("feature %q already registered", f.Name())
	}
	s.runnerCount.Add(1)

	slog.Debug("feature registered", "feature", f.Name(), "delay", f.Delay())
	return nil
}

// Count returns the number of registered features.
func (s *Scheduler) Count() int {
	return int(s.runnerCount.Load())
}

// Ticks returns how many ticks the named feature has completed.
func (s *Scheduler) Ticks(name string) int64 {
	v, ok := s.runners.Load(name)
	if !ok {
		return 0
	}
	return v.(*runner).ticks.Load()
}

// SessionReset asks every feature to drop its run state. The reset runs on
// the feature's own goroutine between ticks.
func (s *Scheduler) SessionReset() {
	s.runners.Range(func(_, value any) bool {
		r := value.(*runner)
		select {
		case r.resetCh <- struct{}{}:
		default:
		}
		return true
	})
}

// Run ticks all features until ctx is canceled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	s.runners.Range(func(_, value any) bool {
		r := value.(*runner)
		g.Go(func() error {
			return s.loop(ctx, r)
		})
		return true
	})

	slog.Info("feature scheduler started", "features", s.Count())
	err := g.Wait()
	slog.Info("feature scheduler stopped")
	return err
}

// Stop stops all feature loops.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) loop(ctx context.Context, r *runner) error {
	// Timer instead of ticker: the delay is re-read after every tick so
	// configuration reloads take effect without restarting the loop.
	timer := time.NewTimer(r.feature.Delay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.stopCh:
			return nil

		case <-r.resetCh:
			r.feature.OnSessionReset()
			slog.Info("feature reset on session boundary", "feature", r.feature.Name())

		case <-timer.C:
			s.tick(ctx, r)
			timer.Reset(r.feature.Delay())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, r *runner) {
	defer r.ticks.Add(1)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("feature tick panicked", "feature", r.feature.Name(), "panic", rec)
			if c, ok := r.feature.(cacheClearer); ok {
				c.ClearCache()
			}
		}
	}()

	in, err := r.source(ctx)
	if err != nil {
		// Still tick: enable/disable transitions are tracked without a root.
		in = TickInput{At: time.Now()}
		if IsDebugEnabled() {
			slog.Debug("feature input unavailable", "feature", r.feature.Name(), "error", err)
		}
	}

	res := r.feature.TryApply(ctx, in)
	if IsDebugEnabled() {
		slog.Debug("feature tick",
			"feature", r.feature.Name(),
			"state", res.State,
			"writes", res.Writes,
			"restored", res.Restored,
			"error", res.Err)
	}
}
