package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend-attendhub/internal/location/gpsfilter"
)

var ErrNoFix = errors.New("pipeline: no GPS fix available from any source")

// FixProvider acquires one GPS fix. Implementations wrap platform location
// services; each acquisition honors the passed context deadline.
type FixProvider interface {
	Acquire(ctx context.Context) (gpsfilter.Fix, error)
}

// Stage pairs a provider with its own timeout, forming one rung of the
// cascade (high-accuracy, then coarse, then whatever is cached).
type Stage struct {
	Name     string
	Provider FixProvider
	Timeout  time.Duration
}

// Cascade tries each stage in order and falls back to the last successful fix
// when every stage fails. A cascade never alters attendance state on failure;
// callers surface ErrNoFix as a transient condition.
type Cascade struct {
	stages []Stage

	mu     sync.Mutex
	cached gpsfilter.Fix
	hasFix bool
}

func NewCascade(stages ...Stage) *Cascade {
	return &Cascade{stages: stages}
}

// Acquire walks the cascade. The parent ctx bounds the whole attempt; each
// stage additionally gets its own timeout.
func (c *Cascade) Acquire(ctx context.Context) (gpsfilter.Fix, error) {
	for _, stage := range c.stages {
		if ctx.Err() != nil {
			break
		}
		stageCtx := ctx
		var cancel context.CancelFunc
		if stage.Timeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, stage.Timeout)
		}
		fix, err := stage.Provider.Acquire(stageCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			c.mu.Lock()
			c.cached = fix
			c.hasFix = true
			c.mu.Unlock()
			return fix, nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasFix {
		return c.cached, nil
	}
	return gpsfilter.Fix{}, ErrNoFix
}
