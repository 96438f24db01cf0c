package notify

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/lure-project/lure/internal/ping"
)

// Throttle suppresses repeat notifications for the same remote host and
// request kind within a cooldown window. A nil or zero-cooldown Throttle
// allows everything.
type Throttle struct {
	seen *cache.Cache
}

// NewThrottle creates a throttle. cooldown <= 0 disables it.
func NewThrottle(cooldown time.Duration) *Throttle {
	if cooldown <= 0 {
		return &Throttle{}
	}
	return &Throttle{seen: cache.New(cooldown, 2*cooldown)}
}

// Allow reports whether req should be notified and starts its cooldown.
func (t *Throttle) Allow(req ping.Request) bool {
	if t == nil || t.seen == nil {
		return true
	}
	// Add fails while an unexpired entry exists.
	return t.seen.Add(throttleKey(req), struct{}{}, cache.DefaultExpiration) == nil
}

// Tracked returns how many host/kind keys the throttle holds, including
// expired ones not yet evicted.
func (t *Throttle) Tracked() int {
	if t == nil || t.seen == nil {
		return 0
	}
	return t.seen.ItemCount()
}

func throttleKey(req ping.Request) string {
	name := "unknown"
	if req.Kind != nil {
		name = req.Kind.Name()
	}
	return req.RemoteIP() + "|" + name
}
