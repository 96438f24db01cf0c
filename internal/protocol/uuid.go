package protocol

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Uint128 is a 128-bit unsigned value split into big-endian halves.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// Bytes returns the big-endian byte form of v.
func (v Uint128) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], v.Hi)
	binary.BigEndian.PutUint64(b[8:], v.Lo)
	return b
}

// FormatUUID renders v as 32 lowercase hex digits, zero padded, grouped
// 8-4-4-4-12.
func FormatUUID(v Uint128) string {
	return uuid.UUID(v.Bytes()).String()
}
