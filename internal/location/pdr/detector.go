package pdr

import (
	"math"
	"time"
)

// DetectorConfig tunes the step detector. Thresholds are in g.
type DetectorConfig struct {
	ThresholdG    float64
	MinThresholdG float64
	MaxThresholdG float64
	MinInterval   time.Duration // debounce between emitted steps
	BufferSize    int
	Adaptive      bool
	AdaptiveRate  float64 // how fast the threshold moves toward recent gait
	AdaptiveGapG  float64 // offset above the running mean to aim for
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ThresholdG:    1.5,
		MinThresholdG: 1.3,
		MaxThresholdG: 2.0,
		MinInterval:   200 * time.Millisecond,
		BufferSize:    10,
		Adaptive:      false,
		AdaptiveRate:  0.1,
		AdaptiveGapG:  0.4,
	}
}

// Detector watches acceleration magnitude for threshold crossings, debounced
// so at most one step per MinInterval is emitted.
type Detector struct {
	cfg       DetectorConfig
	threshold float64
	buf       []float64
	prevMag   float64
	havePrev  bool
	lastStep  time.Time
	winMax    float64
	winMin    float64
	winValid  bool
}

func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10
	}
	return &Detector{cfg: cfg, threshold: clamp(cfg.ThresholdG, cfg.MinThresholdG, cfg.MaxThresholdG)}
}

// Process consumes one frame and reports a StepEvent when an upward threshold
// crossing lands outside the debounce window. A constant signal never emits.
func (d *Detector) Process(f InertialFrame) (StepEvent, bool) {
	a := f.Acceleration
	mag := math.Sqrt(a.X*a.X+a.Y*a.Y+a.Z*a.Z) / gravity

	d.push(mag)
	d.trackWindow(mag)

	crossed := d.havePrev && d.prevMag < d.threshold && mag >= d.threshold
	d.prevMag = mag
	d.havePrev = true

	if !crossed {
		return StepEvent{}, false
	}
	if !d.lastStep.IsZero() && f.Timestamp.Sub(d.lastStep) < d.cfg.MinInterval {
		return StepEvent{}, false
	}

	ev := StepEvent{Timestamp: f.Timestamp, Peak: d.winMax, Trough: d.winMin}
	d.lastStep = f.Timestamp
	d.winValid = false

	if d.cfg.Adaptive {
		d.adapt()
	}
	return ev, true
}

// Threshold returns the current (possibly adapted) threshold in g.
func (d *Detector) Threshold() float64 { return d.threshold }

func (d *Detector) Reset() {
	d.buf = d.buf[:0]
	d.havePrev = false
	d.lastStep = time.Time{}
	d.winValid = false
	d.threshold = clamp(d.cfg.ThresholdG, d.cfg.MinThresholdG, d.cfg.MaxThresholdG)
}

func (d *Detector) push(mag float64) {
	d.buf = append(d.buf, mag)
	if len(d.buf) > d.cfg.BufferSize {
		d.buf = d.buf[1:]
	}
}

// trackWindow keeps the magnitude extremes since the last emitted step.
func (d *Detector) trackWindow(mag float64) {
	if !d.winValid {
		d.winMax, d.winMin = mag, mag
		d.winValid = true
		return
	}
	if mag > d.winMax {
		d.winMax = mag
	}
	if mag < d.winMin {
		d.winMin = mag
	}
}

func (d *Detector) adapt() {
	if len(d.buf) == 0 {
		return
	}
	var sum float64
	for _, v := range d.buf {
		sum += v
	}
	target := sum/float64(len(d.buf)) + d.cfg.AdaptiveGapG
	d.threshold += d.cfg.AdaptiveRate * (target - d.threshold)
	d.threshold = clamp(d.threshold, d.cfg.MinThresholdG, d.cfg.MaxThresholdG)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
