package scatter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/mem/memspace"
	"github.com/udisondev/memsync/internal/vmath"
)

const base mem.Address = 0x10000

func newSpace(t *testing.T) *memspace.Space {
	t.Helper()
	s := memspace.New()
	s.Map(base, 0x2000)
	require.NoError(t, memspace.Put(s, base+0x10, float32(1.5)))
	require.NoError(t, memspace.Put(s, base+0x20, int32(42)))
	require.NoError(t, memspace.Put(s, base+0x30, vmath.V3(1, 2, 3)))
	return s
}

func TestBatch_PartialFailure(t *testing.T) {
	t.Parallel()

	space := newSpace(t)
	b := New(space)

	first := PrepareRead[float32](b, base+0x10)
	second := PrepareRead[float32](b, 0x7000_0000) // never mapped
	third := PrepareRead[int32](b, base+0x20)

	var (
		called        int
		v1, v3        any
		ok1, ok2, ok3 bool
	)
	b.OnComplete(func(r *Result) {
		called++
		v1, ok1 = Get[float32](r, first)
		_, ok2 = Get[float32](r, second)
		v3, ok3 = Get[int32](r, third)
	})

	require.NoError(t, b.Execute(context.Background()))

	assert.Equal(t, 1, called)
	assert.True(t, ok1)
	assert.Equal(t, float32(1.5), v1)
	assert.False(t, ok2)
	assert.True(t, ok3)
	assert.Equal(t, int32(42), v3)
	assert.Equal(t, int64(1), space.RoundTrips(), "all reads must share one round trip")
}

func TestBatch_InvalidAddressNotSent(t *testing.T) {
	t.Parallel()

	space := newSpace(t)
	b := New(space)
	zero := PrepareRead[uint64](b, 0)
	high := PrepareRead[uint64](b, mem.MaxAddress+1)
	good := PrepareRead[vmath.Vec3](b, base+0x30)

	var res *Result
	b.OnComplete(func(r *Result) { res = r })
	require.NoError(t, b.Execute(context.Background()))
	require.NotNil(t, res)

	assert.ErrorIs(t, res.Err(zero), mem.ErrInvalidAddress)
	assert.ErrorIs(t, res.Err(high), mem.ErrInvalidAddress)
	v, ok := Get[vmath.Vec3](res, good)
	assert.True(t, ok)
	assert.Equal(t, vmath.V3(1, 2, 3), v)
	assert.Equal(t, int64(1), space.Reads())
}

func TestBatch_TransportUnreachable(t *testing.T) {
	t.Parallel()

	space := newSpace(t)
	space.SetDetached(true)

	b := New(space)
	PrepareRead[float32](b, base+0x10)
	called := false
	b.OnComplete(func(*Result) { called = true })

	err := b.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBatch))
	assert.True(t, errors.Is(err, mem.ErrDetached))
	assert.False(t, called)
}

func TestBatch_NotReusable(t *testing.T) {
	t.Parallel()

	b := New(newSpace(t))
	PrepareRead[float32](b, base+0x10)
	require.NoError(t, b.Execute(context.Background()))
	assert.ErrorIs(t, b.Execute(context.Background()), ErrExecuted)
}

func TestBatch_CallbacksShareRoundTrip(t *testing.T) {
	t.Parallel()

	space := newSpace(t)
	b := New(space)

	var order []string
	a := PrepareRead[float32](b, base+0x10)
	b.OnComplete(func(r *Result) {
		_, ok := Get[float32](r, a)
		assert.True(t, ok)
		order = append(order, "first")
	})
	c := PrepareRead[int32](b, base+0x20)
	b.OnComplete(func(r *Result) {
		_, ok := Get[int32](r, c)
		assert.True(t, ok)
		order = append(order, "second")
	})

	require.NoError(t, b.Execute(context.Background()))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, int64(1), space.RoundTrips())
}

func TestBatch_EmptyRunsCallbacksWithoutRoundTrip(t *testing.T) {
	t.Parallel()

	space := newSpace(t)
	b := New(space)
	called := false
	b.OnComplete(func(*Result) { called = true })

	require.NoError(t, b.Execute(context.Background()))
	assert.True(t, called)
	assert.Zero(t, space.RoundTrips())
}

func TestGet_WidthMismatch(t *testing.T) {
	t.Parallel()

	b := New(newSpace(t))
	id := PrepareRead[float32](b, base+0x10)
	var res *Result
	b.OnComplete(func(r *Result) { res = r })
	require.NoError(t, b.Execute(context.Background()))

	_, ok := Get[uint64](res, id)
	assert.False(t, ok)
	_, ok = Get[float32](res, SlotID(99))
	assert.False(t, ok)
}
