package mem

import "context"

// Transport is the capability to touch foreign memory.
// Implementations are blocking; latency is proportional to round-trip count.
type Transport interface {
	// ReadMemory fills buf with len(buf) bytes at addr. Either the full buffer
	// is filled or an error is returned.
	ReadMemory(ctx context.Context, addr Address, buf []byte, useCache bool) error

	// WriteMemory writes data at addr. No partial writes.
	WriteMemory(ctx context.Context, addr Address, data []byte) error

	// ReadScatter performs all reads in one round trip. Per-entry failures are
	// reported in ScatterEntry.Err; the returned error is non-nil only when the
	// transport itself could not be reached.
	ReadScatter(ctx context.Context, entries []ScatterEntry) error
}

// ScatterEntry is one read of a scatter round trip.
type ScatterEntry struct {
	Addr Address
	Buf  []byte
	Err  error
}
