package protocol

import (
	"strconv"
	"strings"
)

// LegacyPingChannel is the plugin channel 1.6 clients name in their ping.
const LegacyPingChannel = "MC|PingHost"

// LegacyReply holds the fields of a legacy ping reply in wire order.
type LegacyReply struct {
	ProtocolVersion int32
	VersionName     string
	Description     string
	OnlinePlayers   int32
	MaxPlayers      int32
}

// Format renders the reply string:
// §1\0{protocol}\0{version}\0{description}\0{online}\0{max}
// Formatting codes are stripped from the description since legacy clients
// render it as plain text.
func (r LegacyReply) Format() string {
	fields := []string{
		LegacyPrefix,
		strconv.FormatInt(int64(r.ProtocolVersion), 10),
		r.VersionName,
		StripColorCodes(r.Description),
		strconv.FormatInt(int64(r.OnlinePlayers), 10),
		strconv.FormatInt(int64(r.MaxPlayers), 10),
	}
	return strings.Join(fields, "\x00")
}

// BuildLegacyResponse frames a legacy reply.
// Format: [0xFF][length:2 BE][utf-16be body]
// The length field is the UTF-8 byte length minus one, capped to 16 bits.
// The leading § is two UTF-8 bytes but one UTF-16 unit, so for § plus
// ASCII the field equals the number of UTF-16 units in the body.
func BuildLegacyResponse(reply LegacyReply) ([]byte, error) {
	s := reply.Format()
	body, err := EncodeUTF16BE(s)
	if err != nil {
		return nil, err
	}

	b := NewPacketBuilder()
	b.WriteUint8(LegacyKickByte)
	b.WriteUint16(legacyLengthField(s))
	b.WriteBytes(body)
	return b.Build(), nil
}

func legacyLengthField(s string) uint16 {
	n := len(s) - 1
	if n < 0 {
		return 0
	}
	return uint16(min(n, 0xFFFF))
}

// BuildLegacyPing creates the 1.6-style legacy ping a client sends:
// [0xFE][0x01][0xFA][channel len:2][channel:utf-16be][rest len:2]
// [protocol:1][host len:2][host:utf-16be][port:4]
func BuildLegacyPing(protocolVersion byte, host string, port int32) ([]byte, error) {
	channel, err := EncodeUTF16BE(LegacyPingChannel)
	if err != nil {
		return nil, err
	}
	hostData, err := EncodeUTF16BE(host)
	if err != nil {
		return nil, err
	}

	b := NewPacketBuilder()
	b.WriteUint8(LegacyPingByte)
	b.WriteUint8(0x01)
	b.WriteUint8(0xFA)
	b.WriteUint16(uint16(len(channel) / 2))
	b.WriteBytes(channel)
	b.WriteUint16(uint16(7 + len(hostData)))
	b.WriteUint8(protocolVersion)
	b.WriteUint16(uint16(len(hostData) / 2))
	b.WriteBytes(hostData)
	b.WriteBytes([]byte{byte(port >> 24), byte(port >> 16), byte(port >> 8), byte(port)})
	return b.Build(), nil
}

// StripColorCodes removes every § and the character following it. A
// trailing § with nothing after it is dropped too.
func StripColorCodes(s string) string {
	if !strings.ContainsRune(s, ColorCodeMarker) {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	skip := false
	for _, r := range s {
		switch {
		case skip:
			skip = false
		case r == ColorCodeMarker:
			skip = true
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
