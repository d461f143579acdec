// Package identity owns the anti-detection state shared by the tier
// engines: randomized browser fingerprints, the outbound proxy pool, and
// persisted session cookies. All mutation is funneled through
// Acquire/Release so the pool invariants stay enforceable.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"socialkpi-backend/lib/kpi"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Outcome reports how an extraction task ended, which drives proxy
// health accounting and fingerprint retirement.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeBlocked
	OutcomeErrored
)

// Identity is a fingerprint plus an assigned proxy and session cookies,
// owned exclusively by one in-flight extraction task.
type Identity struct {
	Platform    kpi.Platform
	Profile     string
	Fingerprint Fingerprint
	Proxy       *ProxyHandle

	// Cookies is the opaque session blob. Loaded from the session store
	// on acquire when a prior session exists; tiers overwrite it with
	// the fresh session before a successful release.
	Cookies []byte
}

func (id *Identity) pairKey() string {
	addr := ""
	if id.Proxy != nil {
		addr = id.Proxy.Address
	}
	return string(id.Platform) + "|" + id.Fingerprint.key() + "|" + addr
}

type Config struct {
	// Proxies is the configured outbound proxy list. Empty disables
	// proxying; extraction then runs from the host address.
	Proxies []string `json:"proxies"`

	// QuarantineThreshold is the consecutive-failure count that removes
	// a proxy from allocation for QuarantineWindow.
	QuarantineThreshold int           `json:"quarantine_threshold"`
	QuarantineWindow    time.Duration `json:"quarantine_window"`

	// RetiredFingerprints caps the recently-blocked fingerprint set.
	RetiredFingerprints int `json:"retired_fingerprints"`

	// Seed fixes fingerprint randomization for tests.
	Seed int64 `json:"-"`
	// UserAgent overrides the random UA source for tests.
	UserAgent func() string `json:"-"`
}

func (c *Config) defaults() {
	if c.QuarantineThreshold <= 0 {
		c.QuarantineThreshold = 3
	}
	if c.QuarantineWindow <= 0 {
		c.QuarantineWindow = 10 * time.Minute
	}
	if c.RetiredFingerprints <= 0 {
		c.RetiredFingerprints = 256
	}
}

type Manager struct {
	cfg      Config
	sessions *SessionStore
	log      *slog.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	proxies  []*ProxyHandle
	inflight map[string]bool
	retired  *lru.Cache[string, time.Time]
	now      func() time.Time
}

// NewManager creates the identity manager. sessions may be nil, session
// persistence is an optimization and everything degrades to fresh
// identity negotiation without it.
func NewManager(cfg Config, sessions *SessionStore, log *slog.Logger) (*Manager, error) {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	retired, err := lru.New[string, time.Time](cfg.RetiredFingerprints)
	if err != nil {
		return nil, err
	}

	proxies := make([]*ProxyHandle, len(cfg.Proxies))
	for i, addr := range cfg.Proxies {
		proxies[i] = &ProxyHandle{Address: addr}
	}

	return &Manager{
		cfg:      cfg,
		sessions: sessions,
		log:      log,
		rng:      rand.New(rand.NewSource(seed)),
		proxies:  proxies,
		inflight: make(map[string]bool),
		retired:  retired,
		now:      time.Now,
	}, nil
}

// SetClock overrides the time source for quarantine-window tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Acquire allocates an identity for one extraction task: a fingerprint
// not recently blocked and not already in flight for this platform with
// the same proxy, plus the least-recently-used healthy proxy, plus any
// persisted session for (platform, profile).
func (m *Manager) Acquire(ctx context.Context, platform kpi.Platform, profile string) (*Identity, error) {
	m.mu.Lock()

	now := m.now()
	proxy := pickProxy(m.proxies, now)

	var id *Identity
	for attempt := 0; attempt < 32; attempt++ {
		fp := newFingerprint(m.rng, m.cfg.UserAgent)
		if _, blocked := m.retired.Get(fp.key()); blocked {
			continue
		}
		candidate := &Identity{
			Platform:    platform,
			Profile:     profile,
			Fingerprint: fp,
			Proxy:       proxy,
		}
		if m.inflight[candidate.pairKey()] {
			continue
		}
		m.inflight[candidate.pairKey()] = true
		id = candidate
		break
	}
	// Only a committed allocation counts as proxy use; a failed search
	// must not demote the proxy in the rotation order.
	if id != nil && proxy != nil {
		proxy.LastUsedAt = now
	}
	m.mu.Unlock()

	if id == nil {
		return nil, fmt.Errorf("identity: no unused fingerprint available for %s", platform)
	}

	if m.sessions != nil {
		cookies, err := m.sessions.Load(ctx, platform, profile)
		if err != nil {
			// Missing or unreadable sessions must not fail the task.
			m.log.DebugContext(ctx, "no session to restore", "platform", platform, "err", err)
		} else {
			id.Cookies = cookies
		}
	}

	return id, nil
}

// Release returns an identity to the pool. A blocked outcome increments
// the proxy's failure counter (quarantining it past the threshold) and
// retires the fingerprint from near-term reuse; success resets the proxy
// counter and persists the session cookies for the next extraction of
// the same profile.
func (m *Manager) Release(ctx context.Context, id *Identity, outcome Outcome) {
	if id == nil {
		return
	}

	m.mu.Lock()
	delete(m.inflight, id.pairKey())
	now := m.now()

	switch outcome {
	case OutcomeBlocked:
		m.retired.Add(id.Fingerprint.key(), now)
		if id.Proxy != nil {
			id.Proxy.ConsecutiveFailures++
			if id.Proxy.ConsecutiveFailures >= m.cfg.QuarantineThreshold {
				id.Proxy.quarantinedUntil = now.Add(m.cfg.QuarantineWindow)
				m.log.InfoContext(ctx, "quarantining proxy",
					"address", id.Proxy.Address,
					"failures", id.Proxy.ConsecutiveFailures,
					"until", id.Proxy.quarantinedUntil)
			}
		}
	case OutcomeOK:
		if id.Proxy != nil {
			id.Proxy.ConsecutiveFailures = 0
		}
	}
	m.mu.Unlock()

	if outcome == OutcomeOK && m.sessions != nil && len(id.Cookies) > 0 {
		if err := m.sessions.Save(ctx, id.Platform, id.Profile, id.Cookies); err != nil {
			m.log.WarnContext(ctx, "failed to persist session", "platform", id.Platform, "err", err)
		}
	}
}
