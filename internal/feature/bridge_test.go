package feature_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/feature"
	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/mem/memspace"
	"github.com/udisondev/memsync/internal/memwrite"
	"github.com/udisondev/memsync/internal/session"
	"github.com/udisondev/memsync/internal/testutil"
	"github.com/udisondev/memsync/internal/vmath"
)

// Addresses from config/fixture.yaml.
const (
	fixtureWorld  mem.Address = 0x10000
	fixtureMask   mem.Address = 0x12030
	fixtureBreath mem.Address = 0x13030
	fixtureRecoil mem.Address = 0x15094
)

func TestSuppression_OverBridge(t *testing.T) {
	t.Parallel()

	space, err := memspace.LoadFixture("../../config/fixture.yaml")
	require.NoError(t, err)
	acc := mem.NewAccessor(testutil.StartBridge(t, space))
	ctx := testutil.ContextWithTimeout(t, 10*time.Second)

	var enabled atomic.Bool
	enabled.Store(true)
	effect := feature.NewSuppression(feature.DefaultSuppressionLayout(), func() feature.SuppressionSettings {
		return feature.SuppressionSettings{Enabled: enabled.Load(), RecoilPct: 100, SwayPct: 100}
	})
	eff := feature.NewEffector(effect, memwrite.New(acc))
	root := feature.RootFromChain(acc, fixtureWorld, chain.Path{0x208, 0x338})

	in, err := root(ctx)
	require.NoError(t, err)
	assert.Equal(t, mem.Address(0x12000), in.Root)

	res := eff.TryApply(ctx, in)
	require.NoError(t, res.Err)
	assert.Equal(t, feature.StateActive, res.State)
	assert.Equal(t, 3, res.Writes)

	breath, err := memspace.Peek[float32](space, fixtureBreath)
	require.NoError(t, err)
	assert.Equal(t, float32(0), breath)
	recoil, err := memspace.Peek[vmath.Vec3](space, fixtureRecoil)
	require.NoError(t, err)
	assert.Equal(t, vmath.Splat(0), recoil)
	mask, err := memspace.Peek[int32](space, fixtureMask)
	require.NoError(t, err)
	assert.Equal(t, feature.MaskSuppressed, mask)

	// Steady state: nothing left to write.
	res = eff.TryApply(ctx, in)
	require.NoError(t, res.Err)
	assert.Zero(t, res.Writes)

	enabled.Store(false)
	res = eff.TryApply(ctx, in)
	assert.Equal(t, feature.StateDisabled, res.State)
	assert.Equal(t, 3, res.Restored)

	breath, err = memspace.Peek[float32](space, fixtureBreath)
	require.NoError(t, err)
	assert.Equal(t, float32(1), breath)
	mask, err = memspace.Peek[int32](space, fixtureMask)
	require.NoError(t, err)
	assert.Equal(t, feature.MaskOriginal, mask)
}

func TestSessionWatcher_OverBridge(t *testing.T) {
	t.Parallel()

	space, err := memspace.LoadFixture("../../config/fixture.yaml")
	require.NoError(t, err)
	acc := mem.NewAccessor(testutil.StartBridge(t, space))
	ctx := testutil.ContextWithTimeout(t, 10*time.Second)

	w := session.NewWatcher(acc, session.Layout{Base: fixtureWorld, Path: chain.Path{0x208}, IDOffset: 0x8D8}, time.Second)
	b, ok, err := w.Poll(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(4711), b.ID)
	assert.Zero(t, b.Previous)

	_, ok, err = w.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
