// Package pipeline runs the per-device location loop: sensor events arrive on
// a bounded queue and are processed to completion, one at a time, by a single
// goroutine — no locking inside the estimation path.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend-attendhub/internal/location/fusion"
	"backend-attendhub/internal/location/gpsfilter"
	"backend-attendhub/internal/location/pdr"
)

var (
	ErrQueueFull = errors.New("pipeline: event queue full, sample dropped")
	ErrStopped   = errors.New("pipeline: stopped")
)

// Config sizes the event queue.
type Config struct {
	QueueSize int
}

func DefaultConfig() Config {
	return Config{QueueSize: 64}
}

type eventKind int

const (
	eventFix eventKind = iota
	eventFrame
)

type event struct {
	kind  eventKind
	fix   gpsfilter.Fix
	frame pdr.InertialFrame
}

// Pipeline owns one device's filter, tracker, and fusion engine. Producers
// offer events; a single consumer goroutine drains them.
type Pipeline struct {
	filter *gpsfilter.Filter
	engine *fusion.Engine

	events chan event
	done   chan struct{}
	once   sync.Once

	mu       sync.RWMutex
	latest   fusion.Position
	hasFused bool
	lastErr  error
}

func New(cfg Config, filter *gpsfilter.Filter, engine *fusion.Engine) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Pipeline{
		filter: filter,
		engine: engine,
		events: make(chan event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the consumer loop. It returns when ctx is canceled or Stop
// is called.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case ev := <-p.events:
				p.handle(ev)
			}
		}
	}()
}

func (p *Pipeline) Stop() {
	p.once.Do(func() { close(p.done) })
}

// OfferFix enqueues a raw GPS fix without blocking; a full queue drops the
// sample and reports ErrQueueFull so the producer can decide what to do.
func (p *Pipeline) OfferFix(fix gpsfilter.Fix) error {
	select {
	case <-p.done:
		return ErrStopped
	default:
	}
	select {
	case p.events <- event{kind: eventFix, fix: fix}:
		return nil
	default:
		return ErrQueueFull
	}
}

// OfferFrame enqueues one inertial frame, with the same drop semantics.
func (p *Pipeline) OfferFrame(frame pdr.InertialFrame) error {
	select {
	case <-p.done:
		return ErrStopped
	default:
	}
	select {
	case p.events <- event{kind: eventFrame, frame: frame}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Latest returns the most recent fused position, if any has been produced.
func (p *Pipeline) Latest() (fusion.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.hasFused
}

// LastError reports the most recent processing error, for diagnostics.
func (p *Pipeline) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Reset clears filter and fusion state for a new attendance session.
func (p *Pipeline) Reset() {
	p.filter.Reset()
	p.engine.Reset()
	p.mu.Lock()
	p.hasFused = false
	p.lastErr = nil
	p.mu.Unlock()
}

func (p *Pipeline) handle(ev event) {
	switch ev.kind {
	case eventFrame:
		p.engine.ProcessFrame(ev.frame)
	case eventFix:
		smoothed, err := p.filter.Update(ev.fix)
		if err != nil {
			p.setErr(err)
			return
		}
		ts := ev.fix.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		fused, err := p.engine.Fuse(&smoothed, ts)
		if err != nil {
			p.setErr(err)
			return
		}
		p.mu.Lock()
		p.latest = fused
		p.hasFused = true
		p.lastErr = nil
		p.mu.Unlock()
	}
}

func (p *Pipeline) setErr(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}
