// Package ping defines the requests observed on the wire and the status
// response handed back to clients.
package ping

import (
	"fmt"
	"net"
	"time"
)

// Kind is the closed set of requests a connection can produce. Only the
// types in this package implement it; switches over Kind should handle
// JoinAttempt, ModernPing and LegacyPing.
type Kind interface {
	// Name is a stable lowercase identifier, used in logs and storage.
	Name() string
	sealed()
}

// Kind names.
const (
	KindJoin   = "join"
	KindModern = "modern_ping"
	KindLegacy = "legacy_ping"
)

// JoinAttempt is a login start observed after a handshake with next state 2.
type JoinAttempt struct {
	PlayerName string `json:"name"`
	PlayerID   string `json:"id"`
}

// ServerListPing carries the handshake fields of a status query.
type ServerListPing struct {
	ProtocolVersion int32  `json:"protocol_version"`
	ServerAddress   string `json:"server_address"`
	ServerPort      uint16 `json:"server_port"`
}

// ModernPing is a status query over the varint-framed protocol.
type ModernPing struct {
	ServerListPing
}

// LegacyPing is a status query using the 0xFE legacy protocol.
type LegacyPing struct {
	ServerListPing
}

func (JoinAttempt) Name() string { return KindJoin }
func (ModernPing) Name() string  { return KindModern }
func (LegacyPing) Name() string  { return KindLegacy }

func (JoinAttempt) sealed() {}
func (ModernPing) sealed()  {}
func (LegacyPing) sealed()  {}

// Request is one observed contact together with where it came from.
type Request struct {
	RemoteAddr net.Addr
	ReceivedAt time.Time
	Kind       Kind
}

// NewRequest stamps a request with the current time.
func NewRequest(remote net.Addr, kind Kind) Request {
	return Request{
		RemoteAddr: remote,
		ReceivedAt: time.Now(),
		Kind:       kind,
	}
}

// Remote returns the remote address as a string, or "unknown".
func (r Request) Remote() string {
	if r.RemoteAddr == nil {
		return "unknown"
	}
	return r.RemoteAddr.String()
}

// RemoteIP returns the host part of the remote address.
func (r Request) RemoteIP() string {
	remote := r.Remote()
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

// String summarises the request for humans.
func (r Request) String() string {
	switch k := r.Kind.(type) {
	case JoinAttempt:
		return fmt.Sprintf("join attempt by %s (%s) from %s", k.PlayerName, k.PlayerID, r.Remote())
	case ModernPing:
		return fmt.Sprintf("ping from %s: protocol=%d address=%s:%d", r.Remote(), k.ProtocolVersion, k.ServerAddress, k.ServerPort)
	case LegacyPing:
		return fmt.Sprintf("legacy ping from %s: protocol=%d address=%s:%d", r.Remote(), k.ProtocolVersion, k.ServerAddress, k.ServerPort)
	default:
		return fmt.Sprintf("unknown request from %s", r.Remote())
	}
}

// Response is the status document served to modern clients and the
// source of the fields of a legacy reply.
type Response struct {
	Version            Version     `json:"version"`
	Players            Players     `json:"players"`
	Description        Description `json:"description"`
	Favicon            string      `json:"favicon,omitempty"`
	EnforcesSecureChat bool        `json:"enforcesSecureChat"`
	PreviewsChat       bool        `json:"previewsChat"`
}

// Version names the advertised game version.
type Version struct {
	Name     string `json:"name"`
	Protocol int32  `json:"protocol"`
}

// Players holds the player counts and the hover sample.
type Players struct {
	Max    int32    `json:"max"`
	Online int32    `json:"online"`
	Sample []Sample `json:"sample"`
}

// Sample is one entry in the player hover list.
type Sample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Description is the message of the day.
type Description struct {
	Text string `json:"text"`
}

// Responder builds the response for a request. Implementations are
// called from many connection goroutines at once and must not block.
type Responder interface {
	Respond(req Request) Response
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(req Request) Response

// Respond calls f(req).
func (f ResponderFunc) Respond(req Request) Response {
	return f(req)
}
