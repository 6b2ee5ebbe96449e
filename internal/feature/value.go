package feature

import (
	"context"
	"fmt"

	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/memwrite"
	"github.com/udisondev/memsync/internal/vmath"
)

// RootTerminal addresses a field relative to the root pointer rather than a resolved path.
const RootTerminal = -1

// Field is one controlled foreign field: Offset bytes past a resolved terminal.
type Field struct {
	Name     string
	Terminal int // index into the effect's paths, or RootTerminal
	Offset   uint64

	// Min/Max bound the plausible current value of a Scalar field.
	// Ignored when Min == Max.
	Min, Max float32
}

func (f Field) address(root mem.Address, terminals []mem.Address) (mem.Address, error) {
	if f.Terminal == RootTerminal {
		return root.Add(f.Offset), nil
	}
	if f.Terminal < 0 || f.Terminal >= len(terminals) {
		return 0, fmt.Errorf("field %s: terminal %d out of range", f.Name, f.Terminal)
	}
	return terminals[f.Terminal].Add(f.Offset), nil
}

func (f Field) guarded() bool {
	return f.Min != f.Max
}

// check reads the current float32 at addr and rejects it when outside [Min, Max].
func (f Field) check(ctx context.Context, acc *mem.Accessor, addr mem.Address) error {
	current, err := mem.Read[float32](ctx, acc, addr, false)
	if err != nil {
		return err
	}
	return memwrite.Range(f.Min, f.Max)(current)
}

// Value is a target value. Implementations: Scalar, Vector, Mask.
type Value interface {
	apply(ctx context.Context, w *memwrite.Writer, addr mem.Address, f Field, tolerance float64) (bool, error)
	fmt.Stringer
}

// Scalar is a float32 intensity. Compared by absolute difference.
type Scalar float32

func (s Scalar) apply(ctx context.Context, w *memwrite.Writer, addr mem.Address, f Field, tolerance float64) (bool, error) {
	var guard memwrite.Guard[float32]
	if f.guarded() {
		guard = memwrite.Range(f.Min, f.Max)
	}
	return memwrite.WriteIfDifferentGuarded(ctx, w, addr, float32(s), tolerance, memwrite.AbsDiff, guard)
}

func (s Scalar) String() string { return fmt.Sprintf("%.3f", float32(s)) }

// Vector is a 3-component float32 value. Compared by Euclidean distance.
type Vector vmath.Vec3

func (v Vector) apply(ctx context.Context, w *memwrite.Writer, addr mem.Address, _ Field, tolerance float64) (bool, error) {
	return memwrite.WriteIfDifferent(ctx, w, addr, vmath.Vec3(v), tolerance, memwrite.Euclidean)
}

func (v Vector) String() string { return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z) }

// Mask is an int32 bitmask. Any difference triggers a write.
type Mask int32

func (m Mask) apply(ctx context.Context, w *memwrite.Writer, addr mem.Address, _ Field, _ float64) (bool, error) {
	return memwrite.WriteIfChanged(ctx, w, addr, int32(m))
}

func (m Mask) String() string { return fmt.Sprintf("0x%X", int32(m)) }

// Target pairs a field with the value it should hold.
type Target struct {
	Field Field
	Value Value
}
