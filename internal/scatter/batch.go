// Package scatter batches many foreign reads into one transport round trip.
//
// Consumers prepare reads, register completion callbacks and one of them
// executes the batch. Callbacks receive a Result keyed by slot id; a failed
// slot never fails the batch.
package scatter

import (
	"context"
	"errors"
	"fmt"

	"github.com/udisondev/memsync/internal/mem"
)

var (
	// ErrBatch is returned by Execute when the transport cannot be reached.
	ErrBatch = errors.New("scatter batch failed")

	// ErrExecuted is returned when Execute is called on a batch that already ran.
	ErrExecuted = errors.New("scatter batch already executed")
)

// SlotID identifies one prepared read within a batch.
type SlotID int

type slot struct {
	addr mem.Address
	buf  []byte
	err  error
}

// Batch collects pending reads. A batch is single-use.
type Batch struct {
	t         mem.Transport
	slots     []slot
	callbacks []func(*Result)
	executed  bool
}

// New creates an empty batch over t.
func New(t mem.Transport) *Batch {
	return &Batch{t: t}
}

// PrepareRaw registers a read of size bytes at addr.
func (b *Batch) PrepareRaw(addr mem.Address, size int) SlotID {
	b.slots = append(b.slots, slot{addr: addr, buf: make([]byte, size)})
	return SlotID(len(b.slots) - 1)
}

// PrepareRead registers a read of a T at addr.
func PrepareRead[T any](b *Batch, addr mem.Address) SlotID {
	return b.PrepareRaw(addr, mem.SizeOf[T]())
}

// Len returns the number of prepared reads.
func (b *Batch) Len() int {
	return len(b.slots)
}

// OnComplete registers fn to run once after Execute resolves.
// Callbacks run in registration order.
func (b *Batch) OnComplete(fn func(*Result)) {
	b.callbacks = append(b.callbacks, fn)
}

// Execute performs every prepared read in one round trip and runs the callbacks.
// Slots whose address fails mem.IsValid are failed locally and not sent.
// Callbacks do not run when the round trip itself fails.
func (b *Batch) Execute(ctx context.Context) error {
	if b.executed {
		return ErrExecuted
	}
	b.executed = true

	entries := make([]mem.ScatterEntry, 0, len(b.slots))
	index := make([]int, 0, len(b.slots)) // entry → slot
	for i := range b.slots {
		s := &b.slots[i]
		if !mem.IsValid(s.addr) {
			s.err = fmt.Errorf("slot %d at %s: %w", i, s.addr, mem.ErrInvalidAddress)
			continue
		}
		if len(s.buf) == 0 {
			s.err = fmt.Errorf("slot %d: zero-width read", i)
			continue
		}
		entries = append(entries, mem.ScatterEntry{Addr: s.addr, Buf: s.buf})
		index = append(index, i)
	}

	if len(entries) > 0 {
		if err := b.t.ReadScatter(ctx, entries); err != nil {
			return fmt.Errorf("%w: %d reads: %w", ErrBatch, len(entries), err)
		}
		for j, e := range entries {
			if e.Err != nil {
				b.slots[index[j]].err = fmt.Errorf("slot %d at %s: %w: %w", index[j], e.Addr, mem.ErrAccess, e.Err)
			}
		}
	}

	res := &Result{slots: b.slots}
	for _, fn := range b.callbacks {
		fn(res)
	}
	return nil
}

var errUnknownSlot = errors.New("unknown slot")
