// Package gpsfilter smooths raw GPS fixes with a per-axis recursive filter.
// Latitude and longitude are filtered independently; measurement noise adapts
// to the accuracy the receiver reports, so coarse fixes pull the estimate less.
package gpsfilter

import (
	"errors"
	"math"
	"time"

	"backend-attendhub/internal/shared/geo"
)

var ErrInvalidFix = errors.New("gpsfilter: fix has invalid coordinates or accuracy")

// Fix is a raw GPS measurement as delivered by a device.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AccuracyM float64   `json:"accuracy_m"`
	Timestamp time.Time `json:"timestamp"`
}

// Position is a smoothed coordinate with a derived confidence score.
type Position struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  float64   `json:"accuracy_m"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Config holds the filter tuning. Measurement noise is tiered by reported
// accuracy; process noise is fixed.
type Config struct {
	ProcessNoise    float64
	NoiseFine       float64 // applied when accuracy <= FineAccuracyM
	NoiseMid        float64 // applied when accuracy <= MidAccuracyM
	NoiseCoarse     float64 // applied otherwise
	FineAccuracyM   float64
	MidAccuracyM    float64
	FullConfidenceN int // sample count at which the count term saturates
}

func DefaultConfig() Config {
	return Config{
		ProcessNoise:    3,
		NoiseFine:       0.01,
		NoiseMid:        0.03,
		NoiseCoarse:     0.05,
		FineAccuracyM:   30,
		MidAccuracyM:    50,
		FullConfidenceN: 5,
	}
}

type axis struct {
	estimate float64
	errCov   float64
	primed   bool
}

func (a *axis) update(z, q, r float64) float64 {
	if !a.primed {
		a.estimate = z
		a.errCov = 1
		a.primed = true
		return z
	}
	a.errCov += q
	gain := a.errCov / (a.errCov + r)
	a.estimate += gain * (z - a.estimate)
	a.errCov *= 1 - gain
	return a.estimate
}

// Filter carries per-session state and must be Reset when a new attendance
// session begins.
type Filter struct {
	cfg          Config
	lat, lng     axis
	samples      int
	lastAccuracy float64
}

func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

// Update feeds one raw fix through the filter and returns the smoothed
// position. Malformed fixes are rejected, leaving the filter state untouched.
func (f *Filter) Update(fix Fix) (Position, error) {
	if !geo.ValidCoordinate(fix.Latitude, fix.Longitude) ||
		math.IsNaN(fix.AccuracyM) || math.IsInf(fix.AccuracyM, 0) || fix.AccuracyM < 0 {
		return Position{}, ErrInvalidFix
	}

	r := f.measurementNoise(fix.AccuracyM)
	lat := f.lat.update(fix.Latitude, f.cfg.ProcessNoise, r)
	lng := f.lng.update(fix.Longitude, f.cfg.ProcessNoise, r)

	f.samples++
	f.lastAccuracy = fix.AccuracyM

	return Position{
		Latitude:   lat,
		Longitude:  lng,
		AccuracyM:  fix.AccuracyM,
		Confidence: f.Confidence(),
		Timestamp:  fix.Timestamp,
	}, nil
}

// Confidence combines how many samples the filter has seen (saturating at
// FullConfidenceN) with the quality of the latest reported accuracy.
func (f *Filter) Confidence() float64 {
	if f.samples == 0 {
		return 0
	}
	countScore := float64(f.samples) / float64(f.cfg.FullConfidenceN)
	if countScore > 1 {
		countScore = 1
	}

	accScore := 0.4
	switch {
	case f.lastAccuracy <= f.cfg.FineAccuracyM:
		accScore = 1.0
	case f.lastAccuracy <= f.cfg.MidAccuracyM:
		accScore = 0.7
	}
	return countScore * accScore
}

func (f *Filter) Samples() int { return f.samples }

// Reset clears all state so estimates cannot leak across sessions.
func (f *Filter) Reset() {
	f.lat = axis{}
	f.lng = axis{}
	f.samples = 0
	f.lastAccuracy = 0
}

func (f *Filter) measurementNoise(accuracyM float64) float64 {
	switch {
	case accuracyM <= f.cfg.FineAccuracyM:
		return f.cfg.NoiseFine
	case accuracyM <= f.cfg.MidAccuracyM:
		return f.cfg.NoiseMid
	default:
		return f.cfg.NoiseCoarse
	}
}
