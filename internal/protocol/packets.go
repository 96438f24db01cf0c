// Package protocol implements the wire codec for the server list ping
// protocols: the modern varint-framed handshake/status/login packets and
// the legacy 0xFE ping with its UTF-16BE reply. All multi-byte integers
// are big-endian.
package protocol

// First byte of a legacy (pre-netty) server list ping.
const LegacyPingByte byte = 0xFE

// First byte of the legacy kick packet carrying the ping reply.
const LegacyKickByte byte = 0xFF

// Handshake next-state values.
const (
	StateStatus int32 = 1
	StateLogin  int32 = 2
)

// Modern packet ids.
const (
	PktHandshake      int32 = 0x00 // serverbound, handshaking state
	PktStatusRequest  int32 = 0x00 // serverbound, status state
	PktStatusResponse int32 = 0x00 // clientbound, status state
	PktPingRequest    int32 = 0x01 // serverbound, status state
	PktPongResponse   int32 = 0x01 // clientbound, status state
	PktLoginStart     int32 = 0x00 // serverbound, login state
)

// MaxVarIntLen is the maximum number of bytes a varint may occupy.
const MaxVarIntLen = 5

// MaxStringBytes bounds a length-prefixed UTF-8 string: 32767 UTF-16
// units, each at most 3 bytes of UTF-8, plus slack for the prefix.
const MaxStringBytes = 32767*3 + 3

// LegacyPrefix starts every legacy ping reply.
const LegacyPrefix = "§1"

// ColorCodeMarker introduces a two-character formatting code.
const ColorCodeMarker = '§'
