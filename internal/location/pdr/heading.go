package pdr

import (
	"math"
	"time"
)

// HeadingConfig tunes gyro integration and magnetometer recalibration.
type HeadingConfig struct {
	MagBlend    float64       // fraction of the gyro/mag disagreement corrected per recalibration
	MagInterval time.Duration // minimum spacing between magnetometer corrections
}

func DefaultHeadingConfig() HeadingConfig {
	return HeadingConfig{
		MagBlend:    0.2,
		MagInterval: 5 * time.Second,
	}
}

// HeadingEstimator integrates gyroscope yaw rate into a relative heading and
// periodically blends toward the magnetometer to bound integration drift.
// Without a gyro sample the last-known heading is carried forward.
type HeadingEstimator struct {
	cfg        HeadingConfig
	heading    float64
	lastGyroAt time.Time
	lastMagAt  time.Time
}

func NewHeadingEstimator(cfg HeadingConfig) *HeadingEstimator {
	return &HeadingEstimator{cfg: cfg}
}

// Update consumes the gyro and magnetometer parts of a frame.
func (h *HeadingEstimator) Update(f InertialFrame) {
	if f.RotationRate != nil {
		if !h.lastGyroAt.IsZero() {
			dt := f.Timestamp.Sub(h.lastGyroAt).Seconds()
			if dt > 0 {
				h.heading = normalizeAngle(h.heading + f.RotationRate.Z*dt)
			}
		}
		h.lastGyroAt = f.Timestamp
	}

	if f.Magnetometer != nil {
		if h.lastMagAt.IsZero() || f.Timestamp.Sub(h.lastMagAt) >= h.cfg.MagInterval {
			mag := math.Atan2(f.Magnetometer.Y, f.Magnetometer.X)
			h.heading = normalizeAngle(h.heading + h.cfg.MagBlend*angleDiff(mag, h.heading))
			h.lastMagAt = f.Timestamp
		}
	}
}

// Heading returns the current heading in radians, CCW from east, in [-π, π].
func (h *HeadingEstimator) Heading() float64 { return h.heading }

// SetHeading overrides the heading with an absolute value, used when the
// fusion engine recalibrates against a trusted GPS course.
func (h *HeadingEstimator) SetHeading(rad float64) {
	h.heading = normalizeAngle(rad)
}

func (h *HeadingEstimator) Reset() {
	h.heading = 0
	h.lastGyroAt = time.Time{}
	h.lastMagAt = time.Time{}
}

func normalizeAngle(rad float64) float64 {
	for rad > math.Pi {
		rad -= 2 * math.Pi
	}
	for rad < -math.Pi {
		rad += 2 * math.Pi
	}
	return rad
}

// angleDiff returns the signed shortest rotation from 'from' to 'to'.
func angleDiff(to, from float64) float64 {
	return normalizeAngle(to - from)
}
