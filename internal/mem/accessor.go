package mem

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Accessor reads and writes typed values in foreign memory, one call per round trip.
// It does not validate addresses and does not cache results; callers validate first.
type Accessor struct {
	t Transport
}

// NewAccessor creates an Accessor over the given transport.
func NewAccessor(t Transport) *Accessor {
	return &Accessor{t: t}
}

// Transport returns the underlying transport (used by scatter batches).
func (a *Accessor) Transport() Transport {
	return a.t
}

// ReadRaw reads len(buf) bytes at addr.
func (a *Accessor) ReadRaw(ctx context.Context, addr Address, buf []byte, useCache bool) error {
	if err := a.t.ReadMemory(ctx, addr, buf, useCache); err != nil {
		return fmt.Errorf("read %d bytes at %s: %w: %w", len(buf), addr, ErrAccess, err)
	}
	return nil
}

// ReadPointer reads a pointer-sized value at addr. The result is not validated.
func (a *Accessor) ReadPointer(ctx context.Context, addr Address, useCache bool) (Address, error) {
	var buf [8]byte
	if err := a.ReadRaw(ctx, addr, buf[:], useCache); err != nil {
		return 0, err
	}
	return Address(binary.LittleEndian.Uint64(buf[:])), nil
}

// Read reads a fixed-size value of type T at addr.
func Read[T any](ctx context.Context, a *Accessor, addr Address, useCache bool) (T, error) {
	var v T
	size := SizeOf[T]()
	if size <= 0 {
		return v, fmt.Errorf("read %T: not a fixed-size type", v)
	}
	buf := make([]byte, size)
	if err := a.ReadRaw(ctx, addr, buf, useCache); err != nil {
		return v, err
	}
	if err := Decode(buf, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Write writes v at addr. Either the full value lands or an error is returned.
func Write[T any](ctx context.Context, a *Accessor, addr Address, v T) error {
	buf, err := Encode(v)
	if err != nil {
		return err
	}
	if err := a.t.WriteMemory(ctx, addr, buf); err != nil {
		return fmt.Errorf("write %d bytes at %s: %w: %w", len(buf), addr, ErrAccess, err)
	}
	return nil
}
