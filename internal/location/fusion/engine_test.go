package fusion

import (
	"math"
	"testing"
	"time"

	"backend-attendhub/internal/location/gpsfilter"
	"backend-attendhub/internal/location/pdr"
	"backend-attendhub/internal/shared/geo"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	tracker, err := pdr.NewTracker(pdr.DefaultTrackerConfig())
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	return NewEngine(cfg, NewEnvironmentDetector(DefaultEnvironmentConfig()), tracker)
}

func gpsPos(lat, lng, acc float64, ts time.Time) *gpsfilter.Position {
	return &gpsfilter.Position{Latitude: lat, Longitude: lng, AccuracyM: acc, Confidence: 1, Timestamp: ts}
}

// stepEast walks the tracker n detectable steps with heading due east.
func stepEast(e *Engine, n int, ts time.Time) time.Time {
	e.Tracker().SetHeading(0)
	for i := 0; i < n; i++ {
		e.ProcessFrame(pdr.InertialFrame{Acceleration: pdr.Vec3{Z: 1.0 * 9.80665}, Timestamp: ts})
		ts = ts.Add(300 * time.Millisecond)
		e.ProcessFrame(pdr.InertialFrame{Acceleration: pdr.Vec3{Z: 1.9 * 9.80665}, Timestamp: ts})
		ts = ts.Add(300 * time.Millisecond)
	}
	return ts
}

func TestFuseFirstFixAnchorsAndReturnsGPS(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	now := time.Now()

	pos, err := e.Fuse(gpsPos(36.6372, 127.4896, 10, now), now)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if math.Abs(pos.Latitude-36.6372) > 1e-9 || math.Abs(pos.Longitude-127.4896) > 1e-9 {
		t.Fatalf("first fused position should sit on the anchor, got %+v", pos)
	}
	if pos.Mode != ModeFusion {
		t.Fatalf("mode = %v, want fusion", pos.Mode)
	}
}

func TestFuseRejectsInvalidCoordinates(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	now := time.Now()
	if _, err := e.Fuse(gpsPos(math.NaN(), 127.4896, 10, now), now); err == nil {
		t.Fatalf("expected rejection of NaN latitude")
	}
}

func TestFuseBlendsTowardPDR(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	now := time.Now()

	if _, err := e.Fuse(gpsPos(36.6372, 127.4896, 10, now), now); err != nil {
		t.Fatalf("anchor fuse: %v", err)
	}
	now = stepEast(e, 5, now.Add(time.Second))

	// GPS says we have not moved; PDR says we walked east a few meters. The
	// fused longitude must land strictly between the two.
	pos, err := e.Fuse(gpsPos(36.6372, 127.4896, 10, now), now)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if pos.Longitude <= 127.4896 {
		t.Fatalf("fused position ignored PDR displacement: %v", pos.Longitude)
	}
	if pos.Anomaly {
		t.Fatalf("few-meter disagreement should not be an anomaly")
	}
	if pos.SourceWeightGPS <= 0 || pos.SourceWeightGPS >= 1 {
		t.Fatalf("weight out of range: %v", pos.SourceWeightGPS)
	}
}

func TestPoorAccuracyReducesGPSWeight(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	now := time.Now()
	e.Fuse(gpsPos(36.6372, 127.4896, 10, now), now)
	stepEast(e, 2, now.Add(time.Second))

	now = now.Add(5 * time.Second)
	good, err := e.Fuse(gpsPos(36.6372, 127.4896, 10, now), now)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	now = now.Add(5 * time.Second)
	poor, err := e.Fuse(gpsPos(36.6372, 127.4896, 45, now), now)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if poor.SourceWeightGPS >= good.SourceWeightGPS {
		t.Fatalf("poor accuracy did not reduce GPS weight: %v >= %v", poor.SourceWeightGPS, good.SourceWeightGPS)
	}
}

func TestAnomalyFavorsPDRWhenGPSUntrustworthy(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(t, cfg)
	now := time.Now()
	e.Fuse(gpsPos(36.6372, 127.4896, 10, now), now)

	// GPS jumps ~60 m with coarse accuracy: disagreement above threshold but
	// GPS too poor to recalibrate against.
	now = now.Add(2 * time.Second)
	jump := 60.0 / 111320.0
	pos, err := e.Fuse(gpsPos(36.6372+jump, 127.4896, 80, now), now)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if !pos.Anomaly {
		t.Fatalf("expected anomaly flag")
	}
	if pos.Recalibrated {
		t.Fatalf("must not recalibrate against coarse GPS")
	}
	if pos.SourceWeightGPS > cfg.AnomalyGPSWeight+0.05 {
		t.Fatalf("anomaly should cap GPS weight near %v, got %v", cfg.AnomalyGPSWeight, pos.SourceWeightGPS)
	}
}

func TestDisagreementRecalibratesWhenGPSTrustworthy(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	now := time.Now()
	e.Fuse(gpsPos(36.6372, 127.4896, 10, now), now)

	now = now.Add(2 * time.Second)
	jump := 60.0 / 111320.0
	pos, err := e.Fuse(gpsPos(36.6372+jump, 127.4896, 10, now), now)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if !pos.Recalibrated {
		t.Fatalf("accurate GPS disagreeing with PDR should recalibrate")
	}
	if pos.Anomaly {
		t.Fatalf("recalibration clears the anomaly")
	}
	if math.Abs(pos.Latitude-(36.6372+jump)) > 1e-9 {
		t.Fatalf("recalibrated position should snap to GPS, got %v", pos.Latitude)
	}
	if e.Tracker().StepsSinceRecalibration() != 0 {
		t.Fatalf("tracker not re-anchored")
	}
}

func TestPeriodicRecalibration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecalInterval = 30 * time.Second
	e := newTestEngine(t, cfg)
	now := time.Now()
	e.Fuse(gpsPos(36.6372, 127.4896, 10, now), now)

	pos, err := e.Fuse(gpsPos(36.6372, 127.4896, 10, now.Add(31*time.Second)), now.Add(31*time.Second))
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if !pos.Recalibrated {
		t.Fatalf("expected periodic recalibration after interval")
	}
}

func TestGPSOnlyModeWithoutTracker(t *testing.T) {
	e := NewEngine(DefaultConfig(), NewEnvironmentDetector(DefaultEnvironmentConfig()), nil)
	now := time.Now()
	pos, err := e.Fuse(gpsPos(36.6372, 127.4896, 10, now), now)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if pos.Mode != ModeGPSOnly || pos.SourceWeightGPS != 1 {
		t.Fatalf("expected gps-only degradation, got %+v", pos)
	}
}

func TestPDROnlyWhenGPSMissing(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	now := time.Now()
	e.Fuse(gpsPos(36.6372, 127.4896, 10, now), now)
	now = stepEast(e, 3, now.Add(time.Second))

	pos, err := e.Fuse(nil, now)
	if err != nil {
		t.Fatalf("pdr-only fuse: %v", err)
	}
	if pos.Mode != ModePDROnly || pos.SourceWeightGPS != 0 {
		t.Fatalf("expected pdr-only, got %+v", pos)
	}
	if d := geo.HaversineM(pos.Latitude, pos.Longitude, 36.6372, 127.4896); d <= 0 {
		t.Fatalf("pdr-only position should have moved off the anchor")
	}
}

func TestFuseWithNoSources(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	if _, err := e.Fuse(nil, time.Now()); err == nil {
		t.Fatalf("expected ErrNoPosition before any anchor")
	}
}
