package simulate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayWithinBounds(t *testing.T) {
	p := NewPacer(1)
	for i := 0; i < 100; i++ {
		d := p.Delay()
		require.GreaterOrEqual(t, d, p.MinDelay)
		require.Less(t, d, p.MaxDelay)
	}
}

func TestMousePathEndpoints(t *testing.T) {
	p := NewPacer(1)
	start := point{X: 100, Y: 100}
	end := point{X: 900, Y: 600}

	path := p.MousePath(start, end, 12)
	require.Len(t, path, 12)
	require.InDelta(t, start.X, path[0].X, 0.001)
	require.InDelta(t, start.Y, path[0].Y, 0.001)
	require.InDelta(t, end.X, path[len(path)-1].X, 0.001)
	require.InDelta(t, end.Y, path[len(path)-1].Y, 0.001)
}

func TestMousePathNotStraight(t *testing.T) {
	p := NewPacer(1)
	start := point{X: 0, Y: 0}
	end := point{X: 1000, Y: 0}

	// A curved path deviates from the straight line between endpoints.
	curved := false
	for _, pt := range p.MousePath(start, end, 20) {
		if pt.Y > 1 || pt.Y < -1 {
			curved = true
		}
	}
	require.True(t, curved)
}

func TestScrollStepsSumToTotal(t *testing.T) {
	p := NewPacer(7)
	for _, total := range []int{400, 600, 1000} {
		steps := p.ScrollSteps(total)
		require.GreaterOrEqual(t, len(steps), 3)
		require.LessOrEqual(t, len(steps), 7)
		sum := 0
		for _, s := range steps {
			sum += s
		}
		require.Equal(t, total, sum)
	}
}

func TestMoveCountRange(t *testing.T) {
	p := NewPacer(3)
	for i := 0; i < 50; i++ {
		n := p.MoveCount()
		require.GreaterOrEqual(t, n, 2)
		require.LessOrEqual(t, n, 5)
	}
}

func TestRandomTargetStaysInsideViewport(t *testing.T) {
	p := NewPacer(5)
	for i := 0; i < 50; i++ {
		pt := p.RandomTarget(1280, 800)
		require.GreaterOrEqual(t, pt.X, float64(100))
		require.Less(t, pt.X, float64(1180))
		require.GreaterOrEqual(t, pt.Y, float64(100))
		require.Less(t, pt.Y, float64(700))
	}

	// Degenerate viewports fall back to the center.
	pt := p.RandomTarget(120, 80)
	require.Equal(t, float64(60), pt.X)
	require.Equal(t, float64(40), pt.Y)
}

func TestStepPauseRange(t *testing.T) {
	p := NewPacer(9)
	for i := 0; i < 50; i++ {
		d := p.StepPause()
		require.GreaterOrEqual(t, d, 50*time.Millisecond)
		require.Less(t, d, 200*time.Millisecond)
	}
}

func TestSeededPacerIsDeterministic(t *testing.T) {
	a, b := NewPacer(42), NewPacer(42)
	require.Equal(t, a.Delay(), b.Delay())
	require.Equal(t, a.MoveCount(), b.MoveCount())
	require.Equal(t, a.ScrollSteps(500), b.ScrollSteps(500))
}
