// Package notify batches contact notifications and hands them to a
// webhook sink off the connection path.
package notify

import (
	"fmt"
	"time"

	"github.com/lure-project/lure/internal/connector"
	"github.com/lure-project/lure/internal/ping"
)

// NotificationEvent is one contact ready to be rendered as an embed.
type NotificationEvent struct {
	RemoteAddress string
	Summary       string
	Color         int
	ReceivedAt    time.Time
}

// FromRequest renders a request.
func FromRequest(req ping.Request) NotificationEvent {
	return NotificationEvent{
		RemoteAddress: req.Remote(),
		Summary:       Summarize(req.Kind),
		Color:         ColorFor(req.Kind).Int(),
		ReceivedAt:    req.ReceivedAt,
	}
}

// Summarize describes what the client did.
func Summarize(kind ping.Kind) string {
	switch k := kind.(type) {
	case ping.JoinAttempt:
		return fmt.Sprintf("Player `%s` (%s) tried joining the Server", k.PlayerName, k.PlayerID)
	case ping.LegacyPing:
		return fmt.Sprintf("Player sent legacy Ping: protocol %d, address %s:%d",
			k.ProtocolVersion, k.ServerAddress, k.ServerPort)
	case ping.ModernPing:
		return fmt.Sprintf("Player sent regular Ping: protocol %d, address %s:%d",
			k.ProtocolVersion, k.ServerAddress, k.ServerPort)
	default:
		return "Unknown request"
	}
}

// Embed renders the event with the given title.
func (e NotificationEvent) Embed(title string) connector.Embed {
	return connector.Embed{
		Title: title,
		Description: fmt.Sprintf("Received Ping from [`%s`](https://%s/)\n\n %s",
			e.RemoteAddress, e.RemoteAddress, e.Summary),
		Color: e.Color,
	}
}
