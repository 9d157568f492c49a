package session

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v2"
)

func passThrough(c *fiber.Ctx) error { return c.Next() }

func TestSessionHandlers(t *testing.T) {
	mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO class_sessions`).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "auto_end_at"}).
			AddRow(now, now.Add(4*time.Hour)))

	mock.ExpectQuery(`SELECT id, instructor_id, title, ST_Y\(location::geometry\), ST_X\(location::geometry\)`).
		WithArgs("prof-1").
		WillReturnRows(pgxmock.NewRows(sessionColumns()).
			AddRow("sess-1", "prof-1", "Algorithms", 36.6372, 127.4896, 30.0,
				StatusActive, now, now.Add(4*time.Hour), time.Unix(0, 0)))

	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), NewService(mock, DefaultConfig()), passThrough)

	body, _ := json.Marshal(Session{
		InstructorID: "prof-1", Title: "Algorithms",
		Lat: 36.6372, Lng: 127.4896, RadiusM: 30,
	})
	req := httptest.NewRequest(http.MethodPost, "/sessions/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %v %d", err, resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/sessions/?instructor=prof-1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v", err)
	}
}

func TestCreateSessionHandlerMissingInstructor(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), NewService(newMock(t), DefaultConfig()), passThrough)

	body, _ := json.Marshal(Session{Title: "Algorithms", Lat: 36.6, Lng: 127.4, RadiusM: 30})
	req := httptest.NewRequest(http.MethodPost, "/sessions/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}
}

func TestCreateSessionHandlerInvalidRadius(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), NewService(newMock(t), DefaultConfig()), passThrough)

	body, _ := json.Marshal(Session{InstructorID: "prof-1", Lat: 36.6, Lng: 127.4, RadiusM: -5})
	req := httptest.NewRequest(http.MethodPost, "/sessions/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}
}

func TestListSessionsHandlerMissingQuery(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), NewService(newMock(t), DefaultConfig()), passThrough)

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/sessions/", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}
}

func TestEndSessionHandler(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT status FROM class_sessions`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusActive))
	mock.ExpectExec(`UPDATE class_sessions SET status`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE attendance_records SET checked_out_at`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	expectStats(mock, pgxmock.NewRows([]string{"status", "count"}).
		AddRow("present", 2))

	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), NewService(mock, DefaultConfig()), passThrough)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/sessions/sess-1/end", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("end status: %v", err)
	}

	var result EndResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Statistics.Present != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestStatsHandler(t *testing.T) {
	mock := newMock(t)

	expectStats(mock, pgxmock.NewRows([]string{"status", "count"}).
		AddRow("present", 3).AddRow("absent", 1))

	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), NewService(mock, DefaultConfig()), passThrough)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sessions/sess-1/stats", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status: %v", err)
	}

	var stats Statistics
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 4 || stats.AttendanceRate != 0.75 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestGetSessionHandlerError(t *testing.T) {
	mock := newMock(t)

	mock.ExpectQuery(`SELECT id, instructor_id, title, ST_Y\(location::geometry\), ST_X\(location::geometry\)`).
		WithArgs("sess-1").
		WillReturnError(errSession)

	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), NewService(mock, DefaultConfig()), passThrough)

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/sessions/sess-1", nil))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected error status, got %d", resp.StatusCode)
	}
}
