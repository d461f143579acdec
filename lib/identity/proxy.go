package identity

import (
	"time"
)

// ProxyHandle tracks one outbound proxy's health. Mutation goes through
// the Manager only; tier engines read the address and nothing else.
type ProxyHandle struct {
	Address             string
	LastUsedAt          time.Time
	ConsecutiveFailures int

	quarantinedUntil time.Time
}

func (p *ProxyHandle) quarantined(now time.Time) bool {
	return now.Before(p.quarantinedUntil)
}

// pickProxy selects the least-recently-used proxy that is not
// quarantined, spreading load across the pool. Returns nil when the
// pool is empty or fully quarantined; extraction then runs direct.
func pickProxy(pool []*ProxyHandle, now time.Time) *ProxyHandle {
	var best *ProxyHandle
	for _, p := range pool {
		if p.quarantined(now) {
			continue
		}
		if best == nil || p.LastUsedAt.Before(best.LastUsedAt) {
			best = p
		}
	}
	return best
}
