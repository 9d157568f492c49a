package fusion

import (
	"errors"
	"math"
	"time"

	"backend-attendhub/internal/location/gpsfilter"
	"backend-attendhub/internal/location/pdr"
	"backend-attendhub/internal/shared/geo"
)

// metersPerDegree is the local-tangent-plane scale for one degree of latitude;
// longitude additionally scales with cos(lat).
const metersPerDegree = 111320.0

var ErrNoPosition = errors.New("fusion: no position available from any source")

// Config tunes source weighting and recalibration. All values arrive at
// construction; nothing is hard-coded in the fusion math.
type Config struct {
	OutdoorGPSWeight    float64       // starting GPS weight in the outdoor profile
	IndoorGPSWeight     float64       // starting GPS weight in the indoor profile
	AccuracyFloorM      float64       // above this reported accuracy the GPS weight is cut
	PoorAccuracyPenalty float64       // weight subtracted when accuracy exceeds the floor
	DisagreementM       float64       // GPS/PDR disagreement flagged as anomaly (outdoor)
	IndoorDisagreementM float64       // tightened disagreement threshold indoors
	AnomalyGPSWeight    float64       // weight ceiling while an anomaly is active
	DecayRatePerHour    float64       // PDR trust decay per hour since recalibration
	RecalInterval       time.Duration // periodic recalibration
	RecalAccuracyM      float64       // GPS must be at least this accurate to correct PDR
	MinHeadingShiftM    float64       // GPS movement needed before snapping heading
}

func DefaultConfig() Config {
	return Config{
		OutdoorGPSWeight:    0.7,
		IndoorGPSWeight:     0.5,
		AccuracyFloorM:      20,
		PoorAccuracyPenalty: 0.2,
		DisagreementM:       25,
		IndoorDisagreementM: 20,
		AnomalyGPSWeight:    0.3,
		DecayRatePerHour:    0.2,
		RecalInterval:       30 * time.Second,
		RecalAccuracyM:      30,
		MinHeadingShiftM:    5,
	}
}

// Mode describes which sources produced a fused position.
type Mode string

const (
	ModeFusion  Mode = "fusion"
	ModeGPSOnly Mode = "gps-only"
	ModePDROnly Mode = "pdr-only"
)

// Position is the fused output. Anomaly and Recalibrated are surfaced as
// metadata, never as errors.
type Position struct {
	Latitude        float64     `json:"latitude"`
	Longitude       float64     `json:"longitude"`
	AccuracyM       float64     `json:"accuracy_m"`
	SourceWeightGPS float64     `json:"source_weight_gps"`
	Mode            Mode        `json:"tracking_mode"`
	Environment     Environment `json:"environment"`
	Anomaly         bool        `json:"anomaly"`
	Recalibrated    bool        `json:"recalibrated"`
	Timestamp       time.Time   `json:"timestamp"`
}

// Engine blends a filtered GPS position with the dead-reckoning tracker.
// A nil tracker degrades the engine to GPS-only mode.
type Engine struct {
	cfg     Config
	env     *EnvironmentDetector
	tracker *pdr.Tracker

	anchorLat  float64
	anchorLng  float64
	anchored   bool
	lastRecal  time.Time
	lastGPSLat float64
	lastGPSLng float64
}

func NewEngine(cfg Config, env *EnvironmentDetector, tracker *pdr.Tracker) *Engine {
	return &Engine{cfg: cfg, env: env, tracker: tracker}
}

// Fuse combines the latest filtered GPS position with the tracker's relative
// position. Either input may be nil; with both nil it returns ErrNoPosition.
func (e *Engine) Fuse(gps *gpsfilter.Position, now time.Time) (Position, error) {
	if gps == nil {
		return e.pdrOnly(now)
	}
	if !geo.ValidCoordinate(gps.Latitude, gps.Longitude) {
		return Position{}, gpsfilter.ErrInvalidFix
	}

	environment := e.env.Observe(gps.AccuracyM, now)

	if e.tracker == nil {
		e.rememberGPS(gps)
		return Position{
			Latitude:        gps.Latitude,
			Longitude:       gps.Longitude,
			AccuracyM:       gps.AccuracyM,
			SourceWeightGPS: 1,
			Mode:            ModeGPSOnly,
			Environment:     environment,
			Timestamp:       now,
		}, nil
	}

	if !e.anchored {
		e.recalibrate(gps, now)
	}

	rel := e.tracker.Position()
	pdrLat, pdrLng := e.toGeographic(rel)
	disagreementM := geo.HaversineM(gps.Latitude, gps.Longitude, pdrLat, pdrLng)

	threshold := e.cfg.DisagreementM
	if environment == EnvIndoor {
		threshold = e.cfg.IndoorDisagreementM
	}
	anomaly := disagreementM > threshold

	recalibrated := false
	switch {
	case now.Sub(e.lastRecal) >= e.cfg.RecalInterval:
		recalibrated = true
	case anomaly && gps.AccuracyM <= e.cfg.RecalAccuracyM:
		// Recalibrate only when GPS is trustworthy enough to correct PDR.
		recalibrated = true
	}
	if recalibrated {
		e.recalibrate(gps, now)
		rel = e.tracker.Position()
		pdrLat, pdrLng = e.toGeographic(rel)
		disagreementM = 0
		anomaly = false
	}

	weight := e.gpsWeight(environment, gps.AccuracyM, anomaly, rel.Confidence, now)

	fused := Position{
		Latitude:        weight*gps.Latitude + (1-weight)*pdrLat,
		Longitude:       weight*gps.Longitude + (1-weight)*pdrLng,
		AccuracyM:       weight*gps.AccuracyM + (1-weight)*e.pdrUncertaintyM(),
		SourceWeightGPS: weight,
		Mode:            ModeFusion,
		Environment:     environment,
		Anomaly:         anomaly,
		Recalibrated:    recalibrated,
		Timestamp:       now,
	}
	e.rememberGPS(gps)
	return fused, nil
}

// ProcessFrame forwards an inertial frame to the tracker, if one is attached.
func (e *Engine) ProcessFrame(f pdr.InertialFrame) {
	if e.tracker != nil {
		e.tracker.ProcessFrame(f)
	}
}

func (e *Engine) Tracker() *pdr.Tracker { return e.tracker }

// Reset clears anchor and environment state for a new session.
func (e *Engine) Reset() {
	e.anchored = false
	e.lastRecal = time.Time{}
	e.env.Reset()
	if e.tracker != nil {
		e.tracker.ResetPosition()
	}
}

func (e *Engine) pdrOnly(now time.Time) (Position, error) {
	if e.tracker == nil || !e.anchored {
		return Position{}, ErrNoPosition
	}
	rel := e.tracker.Position()
	lat, lng := e.toGeographic(rel)
	return Position{
		Latitude:        lat,
		Longitude:       lng,
		AccuracyM:       e.pdrUncertaintyM(),
		SourceWeightGPS: 0,
		Mode:            ModePDROnly,
		Environment:     e.env.Current(),
		Timestamp:       now,
	}, nil
}

func (e *Engine) gpsWeight(environment Environment, accuracyM float64, anomaly bool, pdrConfidence float64, now time.Time) float64 {
	w := e.cfg.OutdoorGPSWeight
	if environment == EnvIndoor {
		w = e.cfg.IndoorGPSWeight
	}
	if accuracyM > e.cfg.AccuracyFloorM {
		w -= e.cfg.PoorAccuracyPenalty
	}
	if anomaly && w > e.cfg.AnomalyGPSWeight {
		// GPS and PDR disagree with no trustworthy fix to arbitrate; favor
		// dead reckoning.
		w = e.cfg.AnomalyGPSWeight
	}

	// As PDR goes stale its share flows back to GPS.
	hours := now.Sub(e.lastRecal).Hours()
	trust := pdrConfidence * (1 - e.cfg.DecayRatePerHour*hours)
	if trust < 0 {
		trust = 0
	}
	w = w + (1-w)*(1-trust)

	if w < 0.05 {
		w = 0.05
	}
	if w > 0.95 {
		w = 0.95
	}
	return w
}

// recalibrate snaps the dead-reckoning anchor (and heading, when the device
// has moved far enough to derive a course) to the current GPS fix.
func (e *Engine) recalibrate(gps *gpsfilter.Position, now time.Time) {
	if e.anchored {
		shift := geo.HaversineM(e.lastGPSLat, e.lastGPSLng, gps.Latitude, gps.Longitude)
		if shift >= e.cfg.MinHeadingShiftM {
			e.tracker.SetHeading(geo.BearingRad(e.lastGPSLat, e.lastGPSLng, gps.Latitude, gps.Longitude))
		}
	}
	e.anchorLat = gps.Latitude
	e.anchorLng = gps.Longitude
	e.anchored = true
	e.lastRecal = now
	e.tracker.ResetPosition()
}

func (e *Engine) rememberGPS(gps *gpsfilter.Position) {
	e.lastGPSLat = gps.Latitude
	e.lastGPSLng = gps.Longitude
}

func (e *Engine) toGeographic(rel pdr.RelativePosition) (lat, lng float64) {
	lat = e.anchorLat + rel.Y/metersPerDegree
	lng = e.anchorLng + rel.X/(metersPerDegree*math.Cos(e.anchorLat*math.Pi/180))
	return lat, lng
}

// pdrUncertaintyM grows with steps taken since the last recalibration.
func (e *Engine) pdrUncertaintyM() float64 {
	if e.tracker == nil {
		return 0
	}
	return 5 + 0.3*float64(e.tracker.StepsSinceRecalibration())
}
