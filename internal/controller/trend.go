package controller

import (
	"math"

	"github.com/asecurityteam/rolling"
)

// trend is a rolling mean over the last size readings. It is reported
// alongside each tick and never feeds the policy.
type trend struct {
	window *rolling.PointPolicy
	size   int
	filled int
}

func newTrend(size int) *trend {
	if size < 1 {
		size = 1
	}
	return &trend{
		window: rolling.NewPointPolicy(rolling.NewWindow(size)),
		size:   size,
	}
}

// add appends v and returns the rounded mean of the window. Buckets not
// yet written hold zero, so the sum is divided by the filled count.
func (t *trend) add(v int) int {
	t.window.Append(float64(v))
	if t.filled < t.size {
		t.filled++
	}
	return t.mean()
}

// mean is the rounded mean of the readings added so far, 0 when empty
func (t *trend) mean() int {
	if t.filled == 0 {
		return 0
	}
	return int(math.Round(t.window.Reduce(rolling.Sum) / float64(t.filled)))
}
