// Package chain resolves pointer chains in foreign memory and caches the result
// until the root pointer changes or a terminal stops looking like a pointer.
package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/udisondev/memsync/internal/mem"
)

// Path is a sequence of hop offsets. Each hop reads a pointer at current+offset.
// An empty path resolves to the root itself.
type Path []uint64

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, off := range p {
		parts[i] = fmt.Sprintf("0x%X", off)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// PointerReader reads pointer-sized values. *mem.Accessor implements it.
type PointerReader interface {
	ReadPointer(ctx context.Context, addr mem.Address, useCache bool) (mem.Address, error)
}

// Resolution is a successful walk: the root it started from and one terminal per path.
// Terminals must not be modified by callers.
type Resolution struct {
	Root      mem.Address
	Terminals []mem.Address
}

// Terminal returns the terminal address of path i, or 0 if out of range.
func (r Resolution) Terminal(i int) mem.Address {
	if i < 0 || i >= len(r.Terminals) {
		return 0
	}
	return r.Terminals[i]
}

// Valid reports whether the resolution is non-empty and every terminal passes mem.IsValid.
func (r Resolution) Valid() bool {
	if !mem.IsValid(r.Root) || len(r.Terminals) == 0 {
		return false
	}
	for _, t := range r.Terminals {
		if !mem.IsValid(t) {
			return false
		}
	}
	return true
}

// Walk resolves every path from root without caching. It fails fast at the
// first hop that cannot be read or does not pass mem.IsValid. Shared prefixes
// are read once per walk.
func Walk(ctx context.Context, r PointerReader, root mem.Address, paths []Path) (Resolution, error) {
	if !mem.IsValid(root) {
		return Resolution{}, fmt.Errorf("%w: root %s: %w", mem.ErrChainResolution, root, mem.ErrInvalidAddress)
	}

	seen := make(map[mem.Address]mem.Address, len(paths)*2) // hop address → pointer read there
	terminals := make([]mem.Address, len(paths))
	for i, p := range paths {
		cur := root
		for h, off := range p {
			at := cur.Add(off)
			next, ok := seen[at]
			if !ok {
				var err error
				next, err = r.ReadPointer(ctx, at, false)
				if err != nil {
					return Resolution{}, fmt.Errorf("%w: path %d hop %d at %s: %w", mem.ErrChainResolution, i, h, at, err)
				}
				seen[at] = next
			}
			if !mem.IsValid(next) {
				return Resolution{}, fmt.Errorf("%w: path %d hop %d at %s read %s: %w",
					mem.ErrChainResolution, i, h, at, next, mem.ErrInvalidAddress)
			}
			cur = next
		}
		terminals[i] = cur
	}
	return Resolution{Root: root, Terminals: terminals}, nil
}
