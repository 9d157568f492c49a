// Package fusion combines filtered GPS and dead-reckoning positions into a
// single geographic estimate, weighting each source by the detected
// environment and recalibrating dead reckoning against trustworthy fixes.
package fusion

import "time"

// Environment classifies the GPS signal environment.
type Environment int

const (
	EnvUnknown Environment = iota
	EnvOutdoor
	EnvIndoor
)

func (e Environment) String() string {
	switch e {
	case EnvOutdoor:
		return "outdoor"
	case EnvIndoor:
		return "indoor"
	default:
		return "unknown"
	}
}

// EnvironmentConfig tunes the indoor/outdoor classifier. The constants are
// policy, supplied at construction, never baked into the classifier.
type EnvironmentConfig struct {
	OutdoorAccuracyM float64       // accuracy consistently better than this -> outdoor
	IndoorAccuracyM  float64       // accuracy consistently worse than this -> indoor
	MinSamples       int           // how many recent samples must agree
	Hysteresis       time.Duration // delay before a switch takes effect
	WindowSize       int
}

func DefaultEnvironmentConfig() EnvironmentConfig {
	return EnvironmentConfig{
		OutdoorAccuracyM: 30,
		IndoorAccuracyM:  50,
		MinSamples:       3,
		Hysteresis:       5 * time.Second,
		WindowSize:       10,
	}
}

// EnvironmentDetector classifies indoor/outdoor from GPS accuracy history,
// with hysteresis so a single boundary sample cannot flap the classification.
type EnvironmentDetector struct {
	cfg            EnvironmentConfig
	recent         []float64
	current        Environment
	candidate      Environment
	candidateSince time.Time
}

func NewEnvironmentDetector(cfg EnvironmentConfig) *EnvironmentDetector {
	if cfg.WindowSize < cfg.MinSamples {
		cfg.WindowSize = cfg.MinSamples
	}
	return &EnvironmentDetector{cfg: cfg, current: EnvUnknown, candidate: EnvUnknown}
}

// Observe records one accuracy sample and returns the current classification.
func (d *EnvironmentDetector) Observe(accuracyM float64, ts time.Time) Environment {
	d.recent = append(d.recent, accuracyM)
	if len(d.recent) > d.cfg.WindowSize {
		d.recent = d.recent[1:]
	}

	class := d.classify()
	if class == d.current {
		d.candidate = d.current
		return d.current
	}

	if class != d.candidate {
		d.candidate = class
		d.candidateSince = ts
		return d.current
	}
	if ts.Sub(d.candidateSince) >= d.cfg.Hysteresis {
		d.current = class
	}
	return d.current
}

func (d *EnvironmentDetector) Current() Environment { return d.current }

func (d *EnvironmentDetector) Reset() {
	d.recent = d.recent[:0]
	d.current = EnvUnknown
	d.candidate = EnvUnknown
	d.candidateSince = time.Time{}
}

func (d *EnvironmentDetector) classify() Environment {
	if len(d.recent) < d.cfg.MinSamples {
		return EnvUnknown
	}
	window := d.recent[len(d.recent)-d.cfg.MinSamples:]

	allOutdoor, allIndoor := true, true
	for _, acc := range window {
		if acc >= d.cfg.OutdoorAccuracyM {
			allOutdoor = false
		}
		if acc <= d.cfg.IndoorAccuracyM {
			allIndoor = false
		}
	}
	switch {
	case allOutdoor:
		return EnvOutdoor
	case allIndoor:
		return EnvIndoor
	default:
		return EnvUnknown
	}
}
