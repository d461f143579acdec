package simulate

import (
	"context"
	"math/rand"
	"time"
)

// point is a page coordinate on a mouse path.
type point struct {
	X, Y float64
}

// Pacer generates the randomized timing and movement that makes a
// browser session read as human: jittered delays instead of a constant
// cadence, curved mouse paths instead of teleports, uneven scrolling.
// Seedable so tests can assert on structure without real-time waits.
type Pacer struct {
	rng *rand.Rand

	// MinDelay/MaxDelay bound the inter-action pause.
	MinDelay time.Duration
	MaxDelay time.Duration
}

func NewPacer(seed int64) *Pacer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Pacer{
		rng:      rand.New(rand.NewSource(seed)),
		MinDelay: time.Second,
		MaxDelay: 3 * time.Second,
	}
}

// Delay draws the next inter-action pause from the jittered range.
func (p *Pacer) Delay() time.Duration {
	spread := p.MaxDelay - p.MinDelay
	return p.MinDelay + time.Duration(p.rng.Float64()*float64(spread))
}

// Wait sleeps for a jittered delay, honoring cancellation.
func (p *Pacer) Wait(ctx context.Context) error {
	return sleep(ctx, p.Delay())
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MousePath traces a quadratic bezier from start to end through a
// randomly displaced control point, sampled at n positions. Straight
// constant-velocity lines are a classic automation tell.
func (p *Pacer) MousePath(start, end point, n int) []point {
	if n < 2 {
		n = 2
	}

	cx := start.X + (end.X-start.X)*p.rng.Float64()
	cy := start.Y + (end.Y-start.Y)*p.rng.Float64()
	cx += p.rng.Float64()*200 - 100
	cy += p.rng.Float64()*200 - 100

	path := make([]point, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		inv := 1 - t
		path[i] = point{
			X: inv*inv*start.X + 2*inv*t*cx + t*t*end.X,
			Y: inv*inv*start.Y + 2*inv*t*cy + t*t*end.Y,
		}
	}
	return path
}

// MoveCount picks how many mouse excursions a page visit performs.
func (p *Pacer) MoveCount() int {
	return 2 + p.rng.Intn(4)
}

// RandomTarget picks a mouse destination inside the viewport, away
// from the edges.
func (p *Pacer) RandomTarget(width, height int) point {
	margin := 100
	if width <= 2*margin || height <= 2*margin {
		return point{X: float64(width) / 2, Y: float64(height) / 2}
	}
	return point{
		X: float64(margin + p.rng.Intn(width-2*margin)),
		Y: float64(margin + p.rng.Intn(height-2*margin)),
	}
}

// ScrollSteps splits a scroll distance into uneven increments with a
// per-step dwell, simulating read-and-scroll pacing.
func (p *Pacer) ScrollSteps(total int) []int {
	steps := 3 + p.rng.Intn(5)
	out := make([]int, steps)
	remaining := total
	for i := 0; i < steps; i++ {
		if i == steps-1 {
			out[i] = remaining
			break
		}
		mean := remaining / (steps - i)
		// ±40% around the even split keeps increments irregular but
		// sums exactly to total.
		step := mean + int(float64(mean)*(p.rng.Float64()*0.8-0.4))
		if step < 1 {
			step = 1
		}
		out[i] = step
		remaining -= step
	}
	return out
}

// StepPause is the short dwell between scroll or mouse increments.
func (p *Pacer) StepPause() time.Duration {
	return time.Duration(50+p.rng.Intn(150)) * time.Millisecond
}
