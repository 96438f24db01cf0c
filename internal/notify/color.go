package notify

import "github.com/lure-project/lure/internal/ping"

// RGB is an embed accent color.
type RGB struct {
	R, G, B uint8
}

// Int packs the color as 0xRRGGBB.
func (c RGB) Int() int {
	return int(c.R)<<16 | int(c.G)<<8 | int(c.B)
}

// Accent colors per request kind.
var (
	ColorJoin   = RGB{250, 20, 20}
	ColorLegacy = RGB{220, 150, 20}
	ColorModern = RGB{20, 250, 20}
)

// ColorFor returns the accent color of a request kind.
func ColorFor(kind ping.Kind) RGB {
	switch kind.(type) {
	case ping.JoinAttempt:
		return ColorJoin
	case ping.LegacyPing:
		return ColorLegacy
	default:
		return ColorModern
	}
}
