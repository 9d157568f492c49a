package pdr

import (
	"errors"
	"math"
	"time"
)

var ErrSensorUnavailable = errors.New("pdr: inertial sensors unavailable")

// TrackerConfig aggregates the sub-estimator tunings plus the per-step
// confidence decay.
type TrackerConfig struct {
	Detector     DetectorConfig
	Length       LengthConfig
	Heading      HeadingConfig
	DecayPerStep float64
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Detector:     DefaultDetectorConfig(),
		Length:       DefaultLengthConfig(),
		Heading:      DefaultHeadingConfig(),
		DecayPerStep: 0.98,
	}
}

// Tracker composes step detection, step length, and heading into a cumulative
// relative position. It is not safe for concurrent use; the device pipeline
// feeds it from a single goroutine.
type Tracker struct {
	detector *Detector
	length   *LengthEstimator
	heading  *HeadingEstimator
	decay    float64

	x, y       float64
	confidence float64
	steps      int
	stepsSince int // steps since last recalibration
	distanceM  float64
	startedAt  time.Time
	lastAt     time.Time
}

// NewTracker reports ErrSensorUnavailable when the configured decay is
// unusable, which callers treat as an init failure and fall back to GPS-only.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.DecayPerStep <= 0 || cfg.DecayPerStep > 1 || math.IsNaN(cfg.DecayPerStep) {
		return nil, ErrSensorUnavailable
	}
	return &Tracker{
		detector:   NewDetector(cfg.Detector),
		length:     NewLengthEstimator(cfg.Length),
		heading:    NewHeadingEstimator(cfg.Heading),
		decay:      cfg.DecayPerStep,
		confidence: 1.0,
	}, nil
}

// ProcessFrame feeds one inertial frame through heading and step detection,
// advancing the position when a step completes.
func (t *Tracker) ProcessFrame(f InertialFrame) (StepEvent, bool) {
	if t.startedAt.IsZero() {
		t.startedAt = f.Timestamp
	}
	t.lastAt = f.Timestamp

	t.heading.Update(f)

	ev, ok := t.detector.Process(f)
	if !ok {
		return StepEvent{}, false
	}

	length, lengthConf := t.length.Estimate(ev.Peak, ev.Trough)
	theta := t.heading.Heading()
	t.x += length * math.Cos(theta)
	t.y += length * math.Sin(theta)
	t.distanceM += length
	t.steps++
	t.stepsSince++
	t.confidence *= t.decay * lengthConf
	return ev, true
}

// Position returns the current relative position. Confidence is monotonically
// non-increasing between recalibrations.
func (t *Tracker) Position() RelativePosition {
	return RelativePosition{
		X:          t.x,
		Y:          t.y,
		HeadingRad: t.heading.Heading(),
		Confidence: t.confidence,
		Timestamp:  t.lastAt,
	}
}

// SetHeading snaps the heading estimator to an absolute value.
func (t *Tracker) SetHeading(rad float64) { t.heading.SetHeading(rad) }

// ResetPosition zeroes the local frame and restores confidence, used when the
// fusion engine re-anchors dead reckoning on a trusted GPS fix. Cumulative
// step and distance stats survive.
func (t *Tracker) ResetPosition() {
	t.x, t.y = 0, 0
	t.confidence = 1.0
	t.stepsSince = 0
}

func (t *Tracker) StepsSinceRecalibration() int { return t.stepsSince }

func (t *Tracker) Stats() Stats {
	var elapsed time.Duration
	if !t.startedAt.IsZero() {
		elapsed = t.lastAt.Sub(t.startedAt)
	}
	return Stats{Steps: t.steps, DistanceM: t.distanceM, Elapsed: elapsed}
}

// AverageStepLength exposes the length estimator's running mean.
func (t *Tracker) AverageStepLength() float64 { return t.length.Average() }
