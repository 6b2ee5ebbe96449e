package mem

import "errors"

var (
	// ErrAccess is returned when the transport rejects a read or write
	// (unmapped page, process detached, bridge failure).
	ErrAccess = errors.New("foreign memory access failed")

	// ErrInvalidAddress is returned when a value fails IsValid before being dereferenced.
	ErrInvalidAddress = errors.New("invalid foreign address")

	// ErrChainResolution is returned when one hop of a pointer chain could not be resolved.
	ErrChainResolution = errors.New("pointer chain resolution failed")

	// ErrDetached is returned by transports that are not attached to a process.
	ErrDetached = errors.New("process not attached")
)
