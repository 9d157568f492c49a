package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-attendhub/internal/location/gpsfilter"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(t *testing.T) (*fiber.App, *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mgr := NewManager(ctx, DefaultManagerConfig())
	app := fiber.New()
	RegisterRoutes(app.Group("/location"), mgr, func(c *fiber.Ctx) error { return c.Next() })
	return app, mgr
}

func TestGPSIngestAndPosition(t *testing.T) {
	app, _ := newTestApp(t)

	body, _ := json.Marshal(gpsfilter.Fix{
		Latitude: 36.6372, Longitude: 127.4896, AccuracyM: 10, Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/location/dev-1/gps", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusAccepted {
		t.Fatalf("gps ingest status: %v %d", err, resp.StatusCode)
	}

	// Ingestion is asynchronous; poll until the fused position lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/location/dev-1/position", nil))
		if err != nil {
			t.Fatalf("position request: %v", err)
		}
		if resp.StatusCode == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("fused position never appeared, last status %d", resp.StatusCode)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPositionBeforeAnyFix(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/location/dev-1/position", nil))
	if err != nil {
		t.Fatalf("position request: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before any fix, got %d", resp.StatusCode)
	}
}

func TestGPSIngestBadBody(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/location/dev-1/gps", bytes.NewReader([]byte(`nope`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}
}

func TestInertialIngest(t *testing.T) {
	app, _ := newTestApp(t)

	body, _ := json.Marshal(map[string]interface{}{
		"timestamp":    time.Now(),
		"acceleration": map[string]float64{"x": 0, "y": 0, "z": 9.8},
	})
	req := httptest.NewRequest(http.MethodPost, "/location/dev-1/inertial", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusAccepted {
		t.Fatalf("inertial ingest status: %v %d", err, resp.StatusCode)
	}
}

func TestResetRoute(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/location/dev-1/reset", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status: %v %d", err, resp.StatusCode)
	}
}
