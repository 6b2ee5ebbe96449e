package chain

import (
	"context"
	"sync"

	"github.com/udisondev/memsync/internal/mem"
)

// State is the cache lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateCached
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCached:
		return "cached"
	case StateInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Cache resolves a fixed set of paths from a root and keeps the last resolution.
//
// A cached resolution is returned without touching foreign memory as long as
// the root is unchanged and every terminal still passes mem.IsValid. A root
// change or a failed walk invalidates it; the next Resolve walks again.
// Only one resolution is held at a time.
type Cache struct {
	r     PointerReader
	paths []Path

	mu    sync.Mutex
	state State
	res   Resolution
	walks int
}

// New creates a cache for the given paths.
func New(r PointerReader, paths ...Path) *Cache {
	return &Cache{r: r, paths: paths}
}

// Resolve returns the terminals of every path starting at root.
// On failure the cache is invalidated and the error wraps mem.ErrChainResolution.
func (c *Cache) Resolve(ctx context.Context, root mem.Address) (Resolution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCached {
		if c.res.Root == root && c.res.Valid() {
			return c.res, nil
		}
		c.invalidateLocked()
	}

	c.walks++
	res, err := Walk(ctx, c.r, root, c.paths)
	if err != nil {
		c.invalidateLocked()
		return Resolution{}, err
	}
	c.res = res
	c.state = StateCached
	return res, nil
}

// Invalidate drops the cached resolution; the next Resolve walks again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
}

func (c *Cache) invalidateLocked() {
	c.res = Resolution{}
	c.state = StateInvalidated
}

// Reset returns the cache to its initial state (session boundary).
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res = Resolution{}
	c.state = StateUninitialized
}

// State returns the current lifecycle state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Walks returns how many full walks were attempted.
func (c *Cache) Walks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.walks
}

// Paths returns the declared paths.
func (c *Cache) Paths() []Path {
	return c.paths
}
