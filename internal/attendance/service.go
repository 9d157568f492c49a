package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"backend-attendhub/internal/db"
	"backend-attendhub/internal/shared/geo"
	"backend-attendhub/internal/stream"

	"github.com/google/uuid"
)

var (
	ErrSessionEnded    = errors.New("attendance: session already ended")
	ErrInvalidAccuracy = errors.New("attendance: accuracy must be a non-negative finite number")
)

// Config carries the state-machine policy. Constants live here, not in the
// transition logic.
type Config struct {
	ViolationLimit int           // consecutive out-of-bounds heartbeats before left_early
	LateAfter      time.Duration // check-ins later than this are marked late
	RecentLogLimit int           // bounded view of the location log
}

func DefaultConfig() Config {
	return Config{
		ViolationLimit: 2,
		LateAfter:      10 * time.Minute,
		RecentLogLimit: 50,
	}
}

// lockStripes bounds the per-record mutex table.
const lockStripes = 64

// Service owns AttendanceRecord mutation. Heartbeats for the same record are
// serialized through a striped lock so violation counting and transitions are
// race-free under duplicate or concurrent delivery.
type Service struct {
	db    db.Querier
	hub   *stream.Hub
	cfg   Config
	locks [lockStripes]sync.Mutex
}

func NewService(q db.Querier, hub *stream.Hub, cfg Config) *Service {
	return &Service{db: q, hub: hub, cfg: cfg}
}

func (s *Service) lockFor(attendanceID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(attendanceID))
	return &s.locks[h.Sum32()%lockStripes]
}

// CheckIn creates the attendance record for an attendee joining a session.
// Joining after the late cutoff yields status late rather than present.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (Record, error) {
	if req.SessionID == "" || req.AttendeeID == "" {
		return Record{}, errors.New("session_id and attendee_id required")
	}

	var sessionStatus string
	var sessionCreatedAt time.Time
	row := s.db.QueryRow(ctx, `
		SELECT status, created_at FROM class_sessions WHERE id=$1
	`, req.SessionID)
	if err := row.Scan(&sessionStatus, &sessionCreatedAt); err != nil {
		return Record{}, err
	}
	if sessionStatus != "active" {
		return Record{}, ErrSessionEnded
	}

	now := time.Now()
	status := StatusPresent
	if now.Sub(sessionCreatedAt) > s.cfg.LateAfter {
		status = StatusLate
	}

	rec := Record{
		ID:          uuid.NewString(),
		SessionID:   req.SessionID,
		AttendeeID:  req.AttendeeID,
		Status:      status,
		CheckedInAt: now,
		LastValidAt: now,
	}
	row = s.db.QueryRow(ctx, `
		INSERT INTO attendance_records (id, session_id, attendee_id, status, checked_in_at, last_valid_at, consecutive_violations)
		VALUES ($1,$2,$3,$4,$5,$6,0)
		ON CONFLICT (session_id, attendee_id) DO UPDATE SET id=attendance_records.id
		RETURNING id, status
	`, rec.ID, rec.SessionID, rec.AttendeeID, rec.Status, rec.CheckedInAt, rec.LastValidAt)
	if err := row.Scan(&rec.ID, &rec.Status); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Heartbeat runs one location report through geofence validation and the
// status state machine. Duplicates and post-end reports are success-shaped
// no-ops; only invalid input and storage failures error.
func (s *Service) Heartbeat(ctx context.Context, attendanceID string, req HeartbeatRequest) (HeartbeatResponse, error) {
	lock := s.lockFor(attendanceID)
	lock.Lock()
	defer lock.Unlock()

	var (
		attendeeID, sessionID string
		status                Status
		violations            int
		lastClientTS          time.Time
		lastAttempt           int
		sessionStatus         string
		autoEndAt             time.Time
		centerLat, centerLng  float64
		radiusM               float64
	)
	row := s.db.QueryRow(ctx, `
		SELECT a.attendee_id, a.session_id, a.status, a.consecutive_violations,
		       COALESCE(a.last_client_ts, to_timestamp(0)), COALESCE(a.last_attempt, 0),
		       s.status, s.auto_end_at,
		       ST_Y(s.location::geometry), ST_X(s.location::geometry), s.radius_m
		FROM attendance_records a
		JOIN class_sessions s ON s.id = a.session_id
		WHERE a.id=$1
	`, attendanceID)
	if err := row.Scan(&attendeeID, &sessionID, &status, &violations,
		&lastClientTS, &lastAttempt, &sessionStatus, &autoEndAt,
		&centerLat, &centerLng, &radiusM); err != nil {
		return HeartbeatResponse{}, err
	}

	// Once the session is observed ended (explicitly or past its auto-end
	// bound), every heartbeat effect is a no-op.
	if sessionStatus != "active" || time.Now().After(autoEndAt) {
		return HeartbeatResponse{SessionEnded: true, AllowedRadiusM: radiusM}, nil
	}

	// Dedup on client timestamp plus attempt counter: anything not strictly
	// newer than the last accepted heartbeat is dropped without side effects.
	if !req.Timestamp.After(lastClientTS) &&
		!(req.Timestamp.Equal(lastClientTS) && req.Attempt > lastAttempt) {
		return HeartbeatResponse{Duplicate: true, AllowedRadiusM: radiusM}, nil
	}

	if math.IsNaN(req.AccuracyM) || math.IsInf(req.AccuracyM, 0) || req.AccuracyM < 0 {
		return HeartbeatResponse{}, ErrInvalidAccuracy
	}

	check, err := geo.Check(req.Latitude, req.Longitude, centerLat, centerLng, radiusM)
	if err != nil {
		return HeartbeatResponse{}, err
	}

	if err := s.appendLog(ctx, attendanceID, req, check); err != nil {
		return HeartbeatResponse{}, err
	}

	resp := HeartbeatResponse{
		LocationValid:  check.WithinBounds,
		DistanceM:      check.DistanceM,
		AllowedRadiusM: check.RadiusM,
	}

	// Terminal records keep logging but never transition again.
	if status.Terminal() {
		_, err = s.db.Exec(ctx, `
			UPDATE attendance_records SET last_client_ts=$2, last_attempt=$3 WHERE id=$1
		`, attendanceID, req.Timestamp, req.Attempt)
		return resp, err
	}

	newStatus := status
	var checkedOutAt *time.Time
	lastValidAt := time.Time{}

	if check.WithinBounds {
		violations = 0
		lastValidAt = req.Timestamp
	} else {
		violations++
		if violations >= s.cfg.ViolationLimit {
			newStatus = StatusLeftEarly
			t := req.Timestamp
			checkedOutAt = &t
		}
	}

	_, err = s.db.Exec(ctx, `
		UPDATE attendance_records
		SET status=$2, consecutive_violations=$3,
		    last_valid_at=COALESCE($4, last_valid_at),
		    checked_out_at=COALESCE($5, checked_out_at),
		    last_client_ts=$6, last_attempt=$7
		WHERE id=$1
	`, attendanceID, newStatus, violations, timePtr(lastValidAt), checkedOutAt, req.Timestamp, req.Attempt)
	if err != nil {
		return HeartbeatResponse{}, err
	}

	if newStatus != status {
		resp.StatusChanged = true
		resp.NewStatus = newStatus
		s.broadcast(StatusUpdate{
			AttendanceID: attendanceID,
			SessionID:    sessionID,
			AttendeeID:   attendeeID,
			OldStatus:    status,
			NewStatus:    newStatus,
			At:           req.Timestamp,
		})
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, session_id, attendee_id, status, checked_in_at,
		       COALESCE(last_valid_at, to_timestamp(0)), consecutive_violations,
		       COALESCE(checked_out_at, to_timestamp(0))
		FROM attendance_records WHERE id=$1
	`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.AttendeeID, &rec.Status,
		&rec.CheckedInAt, &rec.LastValidAt, &rec.ConsecutiveViolations, &rec.CheckedOutAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// RecentLogs returns the newest location-log entries for a record, bounded by
// the configured limit.
func (s *Service) RecentLogs(ctx context.Context, attendanceID string) ([]LocationLog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, attendance_id, ST_Y(location::geometry), ST_X(location::geometry),
		       accuracy_m, distance_m, valid, source, COALESCE(tracking_mode,''), recorded_at, created_at
		FROM location_logs WHERE attendance_id=$1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, attendanceID, s.cfg.RecentLogLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []LocationLog
	for rows.Next() {
		var l LocationLog
		if err := rows.Scan(&l.ID, &l.AttendanceID, &l.Latitude, &l.Longitude,
			&l.AccuracyM, &l.DistanceM, &l.Valid, &l.Source, &l.TrackingMode,
			&l.RecordedAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (s *Service) appendLog(ctx context.Context, attendanceID string, req HeartbeatRequest, check geo.Result) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO location_logs (attendance_id, location, accuracy_m, distance_m, valid, source, tracking_mode, recorded_at)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2,$3), 4326)::geography, $4, $5, $6, $7, $8, $9)
	`, attendanceID, req.Longitude, req.Latitude, req.AccuracyM, check.DistanceM,
		check.WithinBounds, req.Source, req.TrackingMode, req.Timestamp)
	return err
}

func (s *Service) broadcast(update StatusUpdate) {
	if s.hub == nil {
		return
	}
	payload, _ := json.Marshal(update)
	s.hub.Broadcast(update.SessionID, payload)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
