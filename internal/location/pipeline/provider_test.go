package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-attendhub/internal/location/gpsfilter"
)

type stubProvider struct {
	fix   gpsfilter.Fix
	err   error
	delay time.Duration
	calls int
}

func (s *stubProvider) Acquire(ctx context.Context) (gpsfilter.Fix, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return gpsfilter.Fix{}, ctx.Err()
		}
	}
	return s.fix, s.err
}

func TestCascadePrefersFirstStage(t *testing.T) {
	high := &stubProvider{fix: gpsfilter.Fix{Latitude: 36.6372, Longitude: 127.4896, AccuracyM: 5}}
	coarse := &stubProvider{fix: gpsfilter.Fix{AccuracyM: 100}}
	c := NewCascade(
		Stage{Name: "high-accuracy", Provider: high, Timeout: time.Second},
		Stage{Name: "coarse", Provider: coarse, Timeout: time.Second},
	)

	fix, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if fix.AccuracyM != 5 {
		t.Fatalf("expected high-accuracy fix, got %+v", fix)
	}
	if coarse.calls != 0 {
		t.Fatalf("coarse stage should not run when the first succeeds")
	}
}

func TestCascadeFallsThroughOnTimeout(t *testing.T) {
	slow := &stubProvider{fix: gpsfilter.Fix{AccuracyM: 5}, delay: time.Second}
	coarse := &stubProvider{fix: gpsfilter.Fix{AccuracyM: 80}}
	c := NewCascade(
		Stage{Name: "high-accuracy", Provider: slow, Timeout: 20 * time.Millisecond},
		Stage{Name: "coarse", Provider: coarse, Timeout: time.Second},
	)

	fix, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if fix.AccuracyM != 80 {
		t.Fatalf("expected coarse fallback, got %+v", fix)
	}
}

func TestCascadeUsesCachedFixWhenAllFail(t *testing.T) {
	flaky := &stubProvider{fix: gpsfilter.Fix{Latitude: 1, Longitude: 2, AccuracyM: 10}}
	c := NewCascade(Stage{Name: "only", Provider: flaky, Timeout: time.Second})

	if _, err := c.Acquire(context.Background()); err != nil {
		t.Fatalf("seed acquire: %v", err)
	}

	flaky.err = errors.New("gps hardware gone")
	fix, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected cached fallback, got %v", err)
	}
	if fix.Latitude != 1 || fix.Longitude != 2 {
		t.Fatalf("cached fix mismatch: %+v", fix)
	}
}

func TestCascadeErrNoFixWithoutCache(t *testing.T) {
	dead := &stubProvider{err: errors.New("unavailable")}
	c := NewCascade(Stage{Name: "only", Provider: dead, Timeout: time.Second})

	if _, err := c.Acquire(context.Background()); !errors.Is(err, ErrNoFix) {
		t.Fatalf("expected ErrNoFix, got %v", err)
	}
}
