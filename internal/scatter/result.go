package scatter

import "github.com/udisondev/memsync/internal/mem"

// Result is the read-only view handed to completion callbacks.
type Result struct {
	slots []slot
}

// Err returns the failure of a slot, or nil if it was read.
func (r *Result) Err(id SlotID) error {
	if id < 0 || int(id) >= len(r.slots) {
		return errUnknownSlot
	}
	return r.slots[id].err
}

// Raw returns the bytes of a successful slot.
func (r *Result) Raw(id SlotID) ([]byte, bool) {
	if r.Err(id) != nil {
		return nil, false
	}
	return r.slots[id].buf, true
}

// Get decodes slot id as a T. It returns false if the slot failed or its width
// does not match T.
func Get[T any](r *Result, id SlotID) (T, bool) {
	var v T
	buf, ok := r.Raw(id)
	if !ok || len(buf) != mem.SizeOf[T]() {
		return v, false
	}
	if err := mem.Decode(buf, &v); err != nil {
		return v, false
	}
	return v, true
}
