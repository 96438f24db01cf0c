// Package responder builds the status document served to every client
// from the configured server description.
package responder

import (
	"github.com/lure-project/lure/internal/config"
	"github.com/lure-project/lure/internal/ping"
)

// Static answers every request with the same configured server. It is
// immutable after construction and safe for concurrent use.
type Static struct {
	base   ping.Response
	mirror bool
}

// New creates a responder from the status settings and an encoded
// favicon data URI, which may be empty.
func New(status config.StatusConfig, favicon string) *Static {
	sample := make([]ping.Sample, 0, len(status.SamplePlayers))
	for _, p := range status.SamplePlayers {
		sample = append(sample, ping.Sample{Name: p.Name, ID: p.ID})
	}

	return &Static{
		base: ping.Response{
			Version: ping.Version{
				Name:     status.VersionName,
				Protocol: status.ProtocolVersion,
			},
			Players: ping.Players{
				Max:    status.MaxPlayers,
				Online: status.OnlinePlayers,
				Sample: sample,
			},
			Description:        ping.Description{Text: status.MOTD},
			Favicon:            favicon,
			EnforcesSecureChat: status.EnforcesSecureChat,
			PreviewsChat:       status.PreviewsChat,
		},
		mirror: status.MirrorClientProtocol,
	}
}

// Respond implements ping.Responder. With protocol mirroring enabled the
// advertised protocol is the one the client sent, so every client version
// sees a compatible server.
func (s *Static) Respond(req ping.Request) ping.Response {
	resp := s.base
	resp.Players.Sample = append([]ping.Sample(nil), s.base.Players.Sample...)
	if resp.Players.Sample == nil {
		resp.Players.Sample = []ping.Sample{}
	}

	if s.mirror {
		if proto, ok := clientProtocol(req.Kind); ok && proto > 0 {
			resp.Version.Protocol = proto
		}
	}
	return resp
}

func clientProtocol(kind ping.Kind) (int32, bool) {
	switch k := kind.(type) {
	case ping.ModernPing:
		return k.ProtocolVersion, true
	case ping.LegacyPing:
		return k.ProtocolVersion, true
	default:
		return 0, false
	}
}
