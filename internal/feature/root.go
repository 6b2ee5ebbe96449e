package feature

import (
	"context"
	"time"

	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/mem"
)

// RootFromChain returns an InputSource that walks path from base on every
// call. The walk is uncached so a replaced root object is seen on the next tick.
func RootFromChain(r chain.PointerReader, base mem.Address, path chain.Path) InputSource {
	paths := []chain.Path{path}
	return func(ctx context.Context) (TickInput, error) {
		res, err := chain.Walk(ctx, r, base, paths)
		if err != nil {
			return TickInput{}, err
		}
		return TickInput{Root: res.Terminal(0), At: time.Now()}, nil
	}
}

// StaticRoot always yields root.
func StaticRoot(root mem.Address) InputSource {
	return func(context.Context) (TickInput, error) {
		return TickInput{Root: root, At: time.Now()}, nil
	}
}
