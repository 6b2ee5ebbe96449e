package mem

import (
	"encoding/binary"
	"fmt"
)

// SizeOf returns the encoded width of T, or -1 if T is not fixed-size.
func SizeOf[T any]() int {
	var v T
	return binary.Size(v)
}

// Decode decodes a little-endian foreign value from buf into v.
func Decode[T any](buf []byte, v *T) error {
	if _, err := binary.Decode(buf, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("decoding %T: %w", *v, err)
	}
	return nil
}

// Encode encodes v in the foreign (little-endian) layout.
func Encode[T any](v T) ([]byte, error) {
	buf, err := binary.Append(nil, binary.LittleEndian, v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return buf, nil
}
