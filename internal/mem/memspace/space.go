// Package memspace provides an in-memory foreign address space.
// It implements mem.Transport and backs tests, fixtures and the bridge server.
package memspace

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/udisondev/memsync/internal/mem"
)

// PageSize is the mapping granularity.
const PageSize = 0x1000

// Space is a sparse, page-mapped address space.
type Space struct {
	mu    sync.RWMutex
	pages map[mem.Address][]byte // page base → page bytes

	detached atomic.Bool

	reads      atomic.Int64
	writes     atomic.Int64
	roundTrips atomic.Int64
}

// New creates an empty space.
func New() *Space {
	return &Space{pages: make(map[mem.Address][]byte, 64)}
}

func pageBase(addr mem.Address) mem.Address {
	return addr &^ (PageSize - 1)
}

// Map maps [base, base+size) with zeroed pages. Already mapped pages keep their contents.
func (s *Space) Map(base mem.Address, size uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := base.Add(size)
	for p := pageBase(base); p < end; p += PageSize {
		if _, ok := s.pages[p]; !ok {
			s.pages[p] = make([]byte, PageSize)
		}
	}
}

// Unmap removes every page overlapping [base, base+size).
func (s *Space) Unmap(base mem.Address, size uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := base.Add(size)
	for p := pageBase(base); p < end; p += PageSize {
		delete(s.pages, p)
	}
}

// SetDetached simulates the process going away. All calls fail with mem.ErrDetached.
func (s *Space) SetDetached(detached bool) {
	s.detached.Store(detached)
}

// Reads returns the number of physical reads served (scatter entries count individually).
func (s *Space) Reads() int64 { return s.reads.Load() }

// Writes returns the number of physical writes served.
func (s *Space) Writes() int64 { return s.writes.Load() }

// RoundTrips returns the number of transport calls served.
func (s *Space) RoundTrips() int64 { return s.roundTrips.Load() }

// ResetCounters zeroes the read/write/round-trip counters.
func (s *Space) ResetCounters() {
	s.reads.Store(0)
	s.writes.Store(0)
	s.roundTrips.Store(0)
}

// copyOut must be called with s.mu held.
func (s *Space) copyOut(addr mem.Address, buf []byte) error {
	for off := 0; off < len(buf); {
		cur := addr.Add(uint64(off))
		page, ok := s.pages[pageBase(cur)]
		if !ok {
			return fmt.Errorf("page %s not mapped", pageBase(cur))
		}
		n := copy(buf[off:], page[cur-pageBase(cur):])
		off += n
	}
	return nil
}

// checkMapped must be called with s.mu held.
func (s *Space) checkMapped(addr mem.Address, size int) error {
	end := addr.Add(uint64(size))
	for p := pageBase(addr); p < end; p += PageSize {
		if _, ok := s.pages[p]; !ok {
			return fmt.Errorf("page %s not mapped", p)
		}
	}
	return nil
}

// ReadMemory implements mem.Transport.
func (s *Space) ReadMemory(ctx context.Context, addr mem.Address, buf []byte, _ bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.detached.Load() {
		return mem.ErrDetached
	}
	s.roundTrips.Add(1)
	s.reads.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyOut(addr, buf)
}

// WriteMemory implements mem.Transport.
func (s *Space) WriteMemory(ctx context.Context, addr mem.Address, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.detached.Load() {
		return mem.ErrDetached
	}
	s.roundTrips.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMapped(addr, len(data)); err != nil {
		return err
	}
	for off := 0; off < len(data); {
		cur := addr.Add(uint64(off))
		page := s.pages[pageBase(cur)]
		off += copy(page[cur-pageBase(cur):], data[off:])
	}
	s.writes.Add(1)
	return nil
}

// ReadScatter implements mem.Transport. All entries are served under one lock,
// so they observe the same state of the space.
func (s *Space) ReadScatter(ctx context.Context, entries []mem.ScatterEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.detached.Load() {
		return mem.ErrDetached
	}
	s.roundTrips.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range entries {
		s.reads.Add(1)
		entries[i].Err = s.copyOut(entries[i].Addr, entries[i].Buf)
	}
	return nil
}

// Put stores v at addr without touching the counters. Pages must be mapped.
func Put[T any](s *Space, addr mem.Address, v T) error {
	buf, err := mem.Encode(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkMapped(addr, len(buf)); err != nil {
		return err
	}
	for off := 0; off < len(buf); {
		cur := addr.Add(uint64(off))
		page := s.pages[pageBase(cur)]
		off += copy(page[cur-pageBase(cur):], buf[off:])
	}
	return nil
}

// PutPointer stores a pointer value at addr.
func (s *Space) PutPointer(addr, target mem.Address) error {
	return Put(s, addr, uint64(target))
}

// Peek reads a value at addr without touching the counters.
func Peek[T any](s *Space, addr mem.Address) (T, error) {
	var v T
	buf := make([]byte, binary.Size(v))
	s.mu.RLock()
	err := s.copyOut(addr, buf)
	s.mu.RUnlock()
	if err != nil {
		return v, err
	}
	err = mem.Decode(buf, &v)
	return v, err
}
