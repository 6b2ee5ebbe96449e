package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/mem/memspace"
)

const (
	base   mem.Address = 0x10000
	holder mem.Address = 0x11000
)

func newTestWatcher(t *testing.T) (*Watcher, *memspace.Space) {
	t.Helper()
	s := memspace.New()
	s.Map(base, 0x2000)
	require.NoError(t, s.PutPointer(base+0x8, holder))
	w := NewWatcher(mem.NewAccessor(s), Layout{Base: base, Path: chain.Path{0x8}, IDOffset: 0x20}, time.Millisecond)
	return w, s
}

func setID(t *testing.T, s *memspace.Space, id int32) {
	t.Helper()
	require.NoError(t, memspace.Put(s, holder+0x20, id))
}

func TestWatcher_BoundarySequence(t *testing.T) {
	t.Parallel()

	w, s := newTestWatcher(t)
	var got []Boundary
	w.Subscribe(func(b Boundary) { got = append(got, b) })
	ctx := context.Background()

	steps := []struct {
		id       int32
		boundary bool
	}{
		{id: 0, boundary: false},
		{id: 7, boundary: true},
		{id: 7, boundary: false},
		{id: 0, boundary: false}, // between sessions
		{id: 7, boundary: false}, // reconnect to the same session
		{id: 9, boundary: true},
	}

	for i, step := range steps {
		setID(t, s, step.id)
		_, ok, err := w.Poll(ctx)
		require.NoError(t, err)
		assert.Equal(t, step.boundary, ok, "step %d id=%d", i, step.id)
	}

	require.Len(t, got, 2)
	assert.Equal(t, int32(7), got[0].ID)
	assert.Zero(t, got[0].Previous)
	assert.Equal(t, int32(9), got[1].ID)
	assert.Equal(t, int32(7), got[1].Previous)
	assert.Equal(t, int32(9), w.Current())
}

func TestWatcher_SubscribersInOrder(t *testing.T) {
	t.Parallel()

	w, s := newTestWatcher(t)
	var order []string
	w.Subscribe(func(Boundary) { order = append(order, "scheduler") })
	w.Subscribe(func(Boundary) { order = append(order, "camera") })

	setID(t, s, 3)
	_, ok, err := w.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"scheduler", "camera"}, order)
}

func TestWatcher_SubscribeDuringDispatch(t *testing.T) {
	t.Parallel()

	w, s := newTestWatcher(t)
	var late int
	w.Subscribe(func(Boundary) {
		w.Subscribe(func(Boundary) { late++ })
	})

	setID(t, s, 3)
	_, ok, err := w.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, late, "a subscriber added during dispatch waits for the next boundary")

	setID(t, s, 4)
	_, ok, err = w.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, late)
}

func TestWatcher_ReadFailure(t *testing.T) {
	t.Parallel()

	w, s := newTestWatcher(t)
	require.NoError(t, s.PutPointer(base+0x8, 0))

	_, ok, err := w.Poll(context.Background())
	require.ErrorIs(t, err, mem.ErrChainResolution)
	assert.False(t, ok)

	s.SetDetached(true)
	_, err = w.ReadID(context.Background())
	require.ErrorIs(t, err, mem.ErrAccess)
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()

	w, s := newTestWatcher(t)
	setID(t, s, 11)

	var (
		mu  sync.Mutex
		ids []int32
	)
	w.Subscribe(func(b Boundary) {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, b.ID)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) == 1
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int32{11}, ids, "one boundary for a stable id")
}
