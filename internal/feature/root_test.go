package feature

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/mem/memspace"
)

func TestRootFromChain(t *testing.T) {
	t.Parallel()

	s := memspace.New()
	const base mem.Address = 0x10000
	s.Map(base, 0x2000)
	holder := base + 0x1000
	require.NoError(t, s.PutPointer(base+0x8, holder))
	require.NoError(t, s.PutPointer(holder+0x338, 0x500000))

	src := RootFromChain(mem.NewAccessor(s), base, chain.Path{0x8, 0x338})
	in, err := src(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mem.Address(0x500000), in.Root)
	assert.False(t, in.At.IsZero())

	// Root swapped: observed on the next call without any invalidation.
	require.NoError(t, s.PutPointer(holder+0x338, 0x600000))
	in, err = src(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mem.Address(0x600000), in.Root)

	require.NoError(t, s.PutPointer(holder+0x338, 0))
	_, err = src(context.Background())
	require.ErrorIs(t, err, mem.ErrChainResolution)
}
