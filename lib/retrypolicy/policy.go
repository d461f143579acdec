// Package retrypolicy implements the shared retry/backoff rules applied
// across extraction tiers: exponential backoff with jitter and
// tier-specific attempt budgets.
package retrypolicy

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"socialkpi-backend/lib/kpi"
)

type Config struct {
	// Attempt budgets per tier. The simulation tier defaults lower
	// because each attempt drives a full browser session.
	APIAttempts      int           `json:"api_attempts"`
	ScrapeAttempts   int           `json:"scrape_attempts"`
	SimulateAttempts int           `json:"simulate_attempts"`
	Base             time.Duration `json:"base"`
	Cap              time.Duration `json:"cap"`
	// Seed fixes the jitter source for tests. Zero means time-seeded.
	Seed int64 `json:"-"`
}

func (c *Config) defaults() {
	if c.APIAttempts <= 0 {
		c.APIAttempts = 3
	}
	if c.ScrapeAttempts <= 0 {
		c.ScrapeAttempts = 3
	}
	if c.SimulateAttempts <= 0 {
		c.SimulateAttempts = 1
	}
	if c.Base <= 0 {
		c.Base = 500 * time.Millisecond
	}
	if c.Cap <= 0 {
		c.Cap = 30 * time.Second
	}
}

// State tracks one tier's attempt sequence. Created at the start of a
// tier, discarded on success or exhaustion. Not persisted.
type State struct {
	Tier     kpi.Tier
	Attempt  int
	LastKind kpi.ErrorKind
}

type Policy struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

func New(cfg Config) *Policy {
	cfg.defaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Policy{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Budget returns the attempt budget for a tier.
func (p *Policy) Budget(tier kpi.Tier) int {
	switch tier {
	case kpi.TierAPI:
		return p.cfg.APIAttempts
	case kpi.TierScrape:
		return p.cfg.ScrapeAttempts
	default:
		return p.cfg.SimulateAttempts
	}
}

// ShouldRetry reports whether the tier gets another attempt. Budget
// exhaustion and non-retryable error kinds both end the sequence;
// non-retryable kinds end it regardless of remaining budget.
func (p *Policy) ShouldRetry(s State) bool {
	if s.LastKind != "" && !s.LastKind.Retryable() {
		return false
	}
	return s.Attempt < p.Budget(s.Tier)
}

// NextDelay computes min(cap, base*2^attempt) with up to ±20% jitter.
func (p *Policy) NextDelay(s State) time.Duration {
	backoff := float64(p.cfg.Base) * math.Pow(2, float64(s.Attempt))
	if backoff > float64(p.cfg.Cap) {
		backoff = float64(p.cfg.Cap)
	}

	p.mu.Lock()
	jitter := (p.rng.Float64()*2 - 1) * backoff * 0.2
	p.mu.Unlock()

	return time.Duration(backoff + jitter)
}
