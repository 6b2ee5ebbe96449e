// Package memwrite writes foreign values only when they differ from the target.
//
// Foreign writes are expensive and observable, so every write is preceded by a
// read of the current value and skipped when it is already close enough.
package memwrite

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/vmath"
)

// ErrImplausible is returned when a guard rejects the current foreign value.
var ErrImplausible = errors.New("implausible foreign value")

// Distance measures how far the current foreign value is from the target.
type Distance[T any] func(current, target T) float64

// AbsDiff is the scalar distance.
func AbsDiff(current, target float32) float64 {
	return math.Abs(float64(current) - float64(target))
}

// Euclidean is the vector distance.
func Euclidean(current, target vmath.Vec3) float64 {
	return float64(vmath.V3Distance(current, target))
}

// Guard validates the current value before any decision is made.
type Guard[T any] func(current T) error

// Range returns a guard that rejects values outside [lo, hi].
func Range(lo, hi float32) Guard[float32] {
	return func(v float32) error {
		if v < lo || v > hi || math.IsNaN(float64(v)) {
			return fmt.Errorf("%w: %v outside [%v, %v]", ErrImplausible, v, lo, hi)
		}
		return nil
	}
}

// Observer is notified after every physical write.
type Observer func(addr mem.Address, value any)

// Writer performs conditional writes through an accessor.
type Writer struct {
	acc *mem.Accessor
	obs Observer
}

// New creates a writer.
func New(acc *mem.Accessor) *Writer {
	return &Writer{acc: acc}
}

// WithObserver returns a copy of w that reports physical writes to obs.
func (w *Writer) WithObserver(obs Observer) *Writer {
	return &Writer{acc: w.acc, obs: obs}
}

// Accessor returns the underlying accessor.
func (w *Writer) Accessor() *mem.Accessor {
	return w.acc
}

func write[T any](ctx context.Context, w *Writer, addr mem.Address, target T) error {
	if err := mem.Write(ctx, w.acc, addr, target); err != nil {
		return err
	}
	if w.obs != nil {
		w.obs(addr, target)
	}
	return nil
}

// WriteIfDifferent reads the value at addr and writes target only if
// dist(current, target) > tolerance. It reports whether a write happened.
func WriteIfDifferent[T any](ctx context.Context, w *Writer, addr mem.Address, target T, tolerance float64, dist Distance[T]) (bool, error) {
	return WriteIfDifferentGuarded(ctx, w, addr, target, tolerance, dist, nil)
}

// WriteIfDifferentGuarded is WriteIfDifferent with a guard applied to the current value.
// A guard failure is returned without writing.
func WriteIfDifferentGuarded[T any](ctx context.Context, w *Writer, addr mem.Address, target T, tolerance float64, dist Distance[T], guard Guard[T]) (bool, error) {
	if !mem.IsValid(addr) {
		return false, fmt.Errorf("conditional write at %s: %w", addr, mem.ErrInvalidAddress)
	}
	current, err := mem.Read[T](ctx, w.acc, addr, false)
	if err != nil {
		return false, err
	}
	if guard != nil {
		if err := guard(current); err != nil {
			return false, fmt.Errorf("conditional write at %s: %w", addr, err)
		}
	}
	if dist(current, target) <= tolerance {
		return false, nil
	}
	if err := write(ctx, w, addr, target); err != nil {
		return false, err
	}
	return true, nil
}

// WriteIfChanged is the discrete variant: any difference triggers a write.
func WriteIfChanged[T comparable](ctx context.Context, w *Writer, addr mem.Address, target T) (bool, error) {
	if !mem.IsValid(addr) {
		return false, fmt.Errorf("conditional write at %s: %w", addr, mem.ErrInvalidAddress)
	}
	current, err := mem.Read[T](ctx, w.acc, addr, false)
	if err != nil {
		return false, err
	}
	if current == target {
		return false, nil
	}
	if err := write(ctx, w, addr, target); err != nil {
		return false, err
	}
	return true, nil
}
