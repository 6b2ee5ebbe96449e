package mem

import "fmt"

// Address is a location in the foreign process.
// It is never dereferenced locally; all access goes through an Accessor.
type Address uint64

// MaxAddress is the canonical user-space ceiling (47-bit address space).
const MaxAddress Address = 0x7FFFFFFFFFFF

// IsValid reports whether addr is a plausible live pointer in the foreign address space.
func IsValid(addr Address) bool {
	return addr != 0 && addr <= MaxAddress
}

// Add returns addr advanced by offset bytes.
func (a Address) Add(offset uint64) Address {
	return a + Address(offset)
}

func (a Address) String() string {
	return fmt.Sprintf("0x%X", uint64(a))
}
