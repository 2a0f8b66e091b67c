package controller

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/fanctl/internal/policy"
)

// state is the applied cooling level. Only the control goroutine touches it.
type state struct {
	level policy.Level
	// applied is false until the hardware has confirmed a level, so a
	// failed startup baseline is retried on the first tick.
	applied bool
}

func (s *state) needsApply(next policy.Level) bool {
	return !s.applied || next != s.level
}

func (s *state) set(level policy.Level) {
	s.level = level
	s.applied = true
}

// manualControl is held from startup until exit. Release hands the fans
// back to firmware exactly once, however the loop ends.
type manualControl struct {
	once    sync.Once
	restore func(ctx context.Context)
	timeout time.Duration
}

func (m *manualControl) Release() {
	m.once.Do(func() {
		// the loop context is already cancelled here
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.restore(ctx)
	})
}
