package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PacketBuilder stages an outgoing packet so it can be sent with a
// single write.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// Reset clears the builder for reuse.
func (b *PacketBuilder) Reset() {
	b.buf.Reset()
}

// WriteUint8 writes a single byte.
func (b *PacketBuilder) WriteUint8(v byte) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteVarInt writes a varint.
func (b *PacketBuilder) WriteVarInt(v int32) *PacketBuilder {
	var tmp [MaxVarIntLen]byte
	b.buf.Write(AppendVarInt(tmp[:0], v))
	return b
}

// WriteUint16 writes a uint16 in big-endian order.
func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	binary.Write(&b.buf, binary.BigEndian, v)
	return b
}

// WriteInt64 writes an int64 in big-endian order.
func (b *PacketBuilder) WriteInt64(v int64) *PacketBuilder {
	binary.Write(&b.buf, binary.BigEndian, v)
	return b
}

// WriteString writes a varint-length-prefixed UTF-8 string.
func (b *PacketBuilder) WriteString(s string) *PacketBuilder {
	b.WriteVarInt(int32(len(s)))
	b.buf.WriteString(s)
	return b
}

// WriteBytes writes raw bytes.
func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed packet bytes.
func (b *PacketBuilder) Build() []byte {
	return b.buf.Bytes()
}

// BuildFramed returns the packet with a varint length prefix, the framing
// used by every modern packet.
func (b *PacketBuilder) BuildFramed() []byte {
	data := b.buf.Bytes()
	result := make([]byte, 0, VarIntSize(int32(len(data)))+len(data))
	result = AppendVarInt(result, int32(len(data)))
	return append(result, data...)
}

// Len returns the current size of the packet being built.
func (b *PacketBuilder) Len() int {
	return b.buf.Len()
}

// String returns a hex dump of the current packet for debugging.
func (b *PacketBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(data), data)
}

// ---- Pre-built packet constructors ----

// BuildStatusResponse creates a framed status response (0x00).
// Format: [len:varint][id:varint][json:string]
func BuildStatusResponse(statusJSON string) []byte {
	b := NewPacketBuilder()
	b.WriteVarInt(PktStatusResponse)
	b.WriteString(statusJSON)
	return b.BuildFramed()
}

// BuildPongResponse creates a framed pong (0x01) echoing the ping payload.
// Format: [len:varint][id:varint][payload:8]
func BuildPongResponse(payload int64) []byte {
	b := NewPacketBuilder()
	b.WriteVarInt(PktPongResponse)
	b.WriteInt64(payload)
	return b.BuildFramed()
}

// BuildHandshake creates a framed handshake (0x00). Used by tests and the
// probe tooling to speak to the server as a client would.
// Format: [len][id][protocol:varint][address:string][port:2][next_state:varint]
func BuildHandshake(protocolVersion int32, address string, port uint16, nextState int32) []byte {
	b := NewPacketBuilder()
	b.WriteVarInt(PktHandshake)
	b.WriteVarInt(protocolVersion)
	b.WriteString(address)
	b.WriteUint16(port)
	b.WriteVarInt(nextState)
	return b.BuildFramed()
}

// BuildStatusRequest creates a framed, empty status request (0x00).
func BuildStatusRequest() []byte {
	return NewPacketBuilder().WriteVarInt(PktStatusRequest).BuildFramed()
}

// BuildPingRequest creates a framed ping request (0x01).
func BuildPingRequest(payload int64) []byte {
	return NewPacketBuilder().WriteVarInt(PktPingRequest).WriteInt64(payload).BuildFramed()
}

// BuildLoginStart creates a framed login start (0x00).
// Format: [len][id][name:string][uuid:16]
func BuildLoginStart(name string, id Uint128) []byte {
	raw := id.Bytes()
	b := NewPacketBuilder()
	b.WriteVarInt(PktLoginStart)
	b.WriteString(name)
	b.WriteBytes(raw[:])
	return b.BuildFramed()
}
