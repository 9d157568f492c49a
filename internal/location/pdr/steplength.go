package pdr

import "math"

// LengthConfig tunes the Weinberg step-length model.
type LengthConfig struct {
	ReferenceHeightCm float64
	MinK              float64
	MaxK              float64
	MinStepM          float64
	MaxStepM          float64
	FallbackM         float64 // used when the acceleration range collapses
}

func DefaultLengthConfig() LengthConfig {
	return LengthConfig{
		ReferenceHeightCm: 170,
		MinK:              0.35,
		MaxK:              0.55,
		MinStepM:          0.4,
		MaxStepM:          1.2,
		FallbackM:         0.65,
	}
}

// LengthEstimator computes step length from the acceleration range of a
// completed step window: length = K * (max-min)^(1/4).
type LengthEstimator struct {
	cfg   LengthConfig
	k     float64
	total float64
	count int
}

func NewLengthEstimator(cfg LengthConfig) *LengthEstimator {
	// K scales with the walker's height; 170 cm lands near the canonical 0.43.
	k := clamp(cfg.ReferenceHeightCm*0.0025, cfg.MinK, cfg.MaxK)
	return &LengthEstimator{cfg: cfg, k: k}
}

// Estimate returns the step length in meters plus a confidence in how much the
// raw model output had to be corrected.
func (e *LengthEstimator) Estimate(peakG, troughG float64) (length, confidence float64) {
	span := peakG - troughG
	switch {
	case math.IsNaN(span) || span < 1e-3:
		length, confidence = e.cfg.FallbackM, 0.5
	default:
		raw := e.k * math.Pow(span, 0.25)
		length = clamp(raw, e.cfg.MinStepM, e.cfg.MaxStepM)
		confidence = 1.0
		if length != raw {
			confidence = 0.8
		}
	}

	e.total += length
	e.count++
	return length, confidence
}

// Average returns the running mean step length, for diagnostics.
func (e *LengthEstimator) Average() float64 {
	if e.count == 0 {
		return 0
	}
	return e.total / float64(e.count)
}

func (e *LengthEstimator) Reset() {
	e.total = 0
	e.count = 0
}
