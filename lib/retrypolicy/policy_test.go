package retrypolicy

import (
	"testing"
	"time"

	"socialkpi-backend/lib/kpi"

	"github.com/stretchr/testify/require"
)

func TestShouldRetry_BudgetExhaustion(t *testing.T) {
	p := New(Config{APIAttempts: 3, Seed: 1})

	s := State{Tier: kpi.TierAPI, LastKind: kpi.KindRateLimited}
	for s.Attempt = 0; s.Attempt < 3; s.Attempt++ {
		require.True(t, p.ShouldRetry(s), "attempt %d", s.Attempt)
	}
	s.Attempt = 3
	require.False(t, p.ShouldRetry(s))
	s.Attempt = 4
	require.False(t, p.ShouldRetry(s))
}

func TestShouldRetry_NonRetryableKinds(t *testing.T) {
	p := New(Config{Seed: 1})

	for _, kind := range []kpi.ErrorKind{
		kpi.KindAuthRequired,
		kpi.KindParseError,
		kpi.KindCaptchaDetected,
		kpi.KindUnavailable,
	} {
		s := State{Tier: kpi.TierScrape, Attempt: 0, LastKind: kind}
		require.False(t, p.ShouldRetry(s), "kind %s", kind)
	}
}

func TestShouldRetry_SimulateBudgetIsSmaller(t *testing.T) {
	p := New(Config{Seed: 1})
	require.Equal(t, 3, p.Budget(kpi.TierAPI))
	require.Equal(t, 3, p.Budget(kpi.TierScrape))
	require.Equal(t, 1, p.Budget(kpi.TierSimulate))
}

func TestNextDelay_ExponentialWithJitterBounds(t *testing.T) {
	p := New(Config{Base: 500 * time.Millisecond, Cap: 30 * time.Second, Seed: 42})

	for attempt := 0; attempt < 6; attempt++ {
		base := 500 * time.Millisecond * (1 << attempt)
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		d := p.NextDelay(State{Tier: kpi.TierAPI, Attempt: attempt})
		lo := time.Duration(float64(base) * 0.8)
		hi := time.Duration(float64(base) * 1.2)
		require.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
		require.LessOrEqual(t, d, hi, "attempt %d", attempt)
	}
}

func TestNextDelay_DeterministicWithSeed(t *testing.T) {
	a := New(Config{Seed: 7})
	b := New(Config{Seed: 7})
	for i := 0; i < 4; i++ {
		s := State{Tier: kpi.TierScrape, Attempt: i}
		require.Equal(t, a.NextDelay(s), b.NextDelay(s))
	}
}
