package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/mem/memspace"
)

const (
	rootA mem.Address = 0x10000
	rootB mem.Address = 0x20000
)

var testPaths = []Path{{0x10}, {0x18, 0x8}}

// buildObject lays out root → {root+0x10 → leaf1, root+0x18 → mid, mid+0x8 → leaf2}.
func buildObject(t *testing.T, s *memspace.Space, root mem.Address) (leaf1, leaf2 mem.Address) {
	t.Helper()
	s.Map(root, 0x4000)
	leaf1 = root + 0x1000
	mid := root + 0x2000
	leaf2 = root + 0x3000
	require.NoError(t, s.PutPointer(root+0x10, leaf1))
	require.NoError(t, s.PutPointer(root+0x18, mid))
	require.NoError(t, s.PutPointer(mid+0x8, leaf2))
	return leaf1, leaf2
}

func TestCache_RootSequence(t *testing.T) {
	t.Parallel()

	s := memspace.New()
	a1, a2 := buildObject(t, s, rootA)
	b1, b2 := buildObject(t, s, rootB)
	c := New(mem.NewAccessor(s), testPaths...)
	ctx := context.Background()

	assert.Equal(t, StateUninitialized, c.State())

	res, err := c.Resolve(ctx, rootA)
	require.NoError(t, err)
	assert.Equal(t, []mem.Address{a1, a2}, res.Terminals)
	assert.Equal(t, 1, c.Walks())
	readsAfterFirst := s.Reads()

	res, err = c.Resolve(ctx, rootA)
	require.NoError(t, err)
	assert.Equal(t, []mem.Address{a1, a2}, res.Terminals)
	assert.Equal(t, 1, c.Walks(), "same root must be served from cache")
	assert.Equal(t, readsAfterFirst, s.Reads(), "cache hit must not touch foreign memory")

	res, err = c.Resolve(ctx, rootB)
	require.NoError(t, err)
	assert.Equal(t, []mem.Address{b1, b2}, res.Terminals)
	assert.Equal(t, 2, c.Walks())

	res, err = c.Resolve(ctx, rootA)
	require.NoError(t, err)
	assert.Equal(t, []mem.Address{a1, a2}, res.Terminals)
	assert.Equal(t, 3, c.Walks(), "cache for the first root was discarded when the second replaced it")
	assert.Equal(t, StateCached, c.State())
}

func TestCache_RootChangeNeverReturnsStaleTerminals(t *testing.T) {
	t.Parallel()

	s := memspace.New()
	buildObject(t, s, rootA)
	s.Map(rootB, 0x1000) // rootB mapped but its hops are null
	c := New(mem.NewAccessor(s), testPaths...)
	ctx := context.Background()

	_, err := c.Resolve(ctx, rootA)
	require.NoError(t, err)

	res, err := c.Resolve(ctx, rootB)
	require.Error(t, err)
	assert.ErrorIs(t, err, mem.ErrChainResolution)
	assert.ErrorIs(t, err, mem.ErrInvalidAddress)
	assert.Empty(t, res.Terminals)
	assert.Equal(t, StateInvalidated, c.State())
}

func TestCache_HopReadFailureInvalidates(t *testing.T) {
	t.Parallel()

	s := memspace.New()
	_, leaf2 := buildObject(t, s, rootA)
	c := New(mem.NewAccessor(s), testPaths...)
	ctx := context.Background()

	_, err := c.Resolve(ctx, rootA)
	require.NoError(t, err)

	// The cached resolution survives the object being freed: validation is local only.
	s.Unmap(rootA+0x2000, 0x1000)
	res, err := c.Resolve(ctx, rootA)
	require.NoError(t, err)
	assert.Equal(t, leaf2, res.Terminal(1))

	c.Invalidate()
	assert.Equal(t, StateInvalidated, c.State())

	_, err = c.Resolve(ctx, rootA)
	require.Error(t, err)
	assert.ErrorIs(t, err, mem.ErrChainResolution)
	assert.ErrorIs(t, err, mem.ErrAccess)
	assert.Equal(t, StateInvalidated, c.State())

	// Fail fast: next tick retries with a fresh walk.
	require.NoError(t, s.PutPointer(rootA+0x18, rootA+0x1000))
	require.NoError(t, s.PutPointer(rootA+0x1008, rootA+0x1800))
	res, err = c.Resolve(ctx, rootA)
	require.NoError(t, err)
	assert.Equal(t, rootA+0x1800, res.Terminal(1))
	assert.Equal(t, 3, c.Walks())
}

func TestCache_InvalidRoot(t *testing.T) {
	t.Parallel()

	c := New(mem.NewAccessor(memspace.New()), testPaths...)
	for _, root := range []mem.Address{0, mem.MaxAddress + 1} {
		_, err := c.Resolve(context.Background(), root)
		assert.ErrorIs(t, err, mem.ErrChainResolution)
		assert.ErrorIs(t, err, mem.ErrInvalidAddress)
	}
	assert.Equal(t, StateInvalidated, c.State())
}

func TestCache_Reset(t *testing.T) {
	t.Parallel()

	s := memspace.New()
	buildObject(t, s, rootA)
	c := New(mem.NewAccessor(s), testPaths...)

	_, err := c.Resolve(context.Background(), rootA)
	require.NoError(t, err)
	c.Reset()
	assert.Equal(t, StateUninitialized, c.State())

	_, err = c.Resolve(context.Background(), rootA)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Walks())
}

func TestWalk_SharedPrefixReadOnce(t *testing.T) {
	t.Parallel()

	s := memspace.New()
	_, leaf2 := buildObject(t, s, rootA)
	require.NoError(t, s.PutPointer(leaf2+0x20, rootA+0x3800))

	paths := []Path{{0x18, 0x8}, {0x18, 0x8, 0x20}, {}}
	res, err := Walk(context.Background(), mem.NewAccessor(s), rootA, paths)
	require.NoError(t, err)

	assert.Equal(t, []mem.Address{leaf2, rootA + 0x3800, rootA}, res.Terminals)
	assert.Equal(t, int64(3), s.Reads(), "shared hops are read once per walk")
}

func TestPath_String(t *testing.T) {
	assert.Equal(t, "[0x18 0x8]", Path{0x18, 0x8}.String())
	assert.Equal(t, "[]", Path{}.String())
}
