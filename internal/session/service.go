package session

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"backend-attendhub/internal/db"
	"backend-attendhub/internal/shared/geo"

	"github.com/google/uuid"
)

// Config bounds session lifetime. MaxDuration caps how long heartbeats stay
// valid after creation; the sweeper enforces it even without traffic.
type Config struct {
	MaxDuration   time.Duration
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxDuration:   4 * time.Hour,
		SweepInterval: time.Minute,
	}
}

type Service struct {
	db  db.Querier
	cfg Config
}

func NewService(q db.Querier, cfg Config) *Service {
	return &Service{db: q, cfg: cfg}
}

// Create opens a session anchored at a geofenced location. The auto-end bound
// is stamped at creation so every reader agrees on it.
func (s *Service) Create(ctx context.Context, input Session) (Session, error) {
	if !geo.ValidCoordinate(input.Lat, input.Lng) {
		return Session{}, geo.ErrInvalidCoordinate
	}
	if math.IsNaN(input.RadiusM) || input.RadiusM <= 0 {
		return Session{}, geo.ErrInvalidRadius
	}

	input.ID = uuid.NewString()
	input.Status = StatusActive
	if input.CreatedAt.IsZero() {
		input.CreatedAt = time.Now()
	}
	input.AutoEndAt = input.CreatedAt.Add(s.cfg.MaxDuration)

	row := s.db.QueryRow(ctx, `
		INSERT INTO class_sessions (id, instructor_id, title, location, radius_m, status, created_at, auto_end_at)
		VALUES ($1,$2,$3, ST_SetSRID(ST_MakePoint($4,$5), 4326)::geography, $6,$7,$8,$9)
		RETURNING created_at, auto_end_at
	`, input.ID, input.InstructorID, input.Title, input.Lng, input.Lat,
		input.RadiusM, input.Status, input.CreatedAt, input.AutoEndAt)
	if err := row.Scan(&input.CreatedAt, &input.AutoEndAt); err != nil {
		return Session{}, err
	}
	return input, nil
}

func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, instructor_id, title, ST_Y(location::geometry), ST_X(location::geometry),
		       radius_m, status, created_at, auto_end_at, COALESCE(ended_at, to_timestamp(0))
		FROM class_sessions WHERE id=$1
	`, id)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.InstructorID, &sess.Title, &sess.Lat, &sess.Lng,
		&sess.RadiusM, &sess.Status, &sess.CreatedAt, &sess.AutoEndAt, &sess.EndedAt); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) List(ctx context.Context, instructorID string) ([]Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, instructor_id, title, ST_Y(location::geometry), ST_X(location::geometry),
		       radius_m, status, created_at, auto_end_at, COALESCE(ended_at, to_timestamp(0))
		FROM class_sessions WHERE instructor_id=$1
		ORDER BY created_at DESC
	`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.InstructorID, &sess.Title, &sess.Lat, &sess.Lng,
			&sess.RadiusM, &sess.Status, &sess.CreatedAt, &sess.AutoEndAt, &sess.EndedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// End closes a session and finalizes its records. Ending an already-ended
// session is acknowledged with the same statistics, no side effects.
func (s *Service) End(ctx context.Context, id string) (EndResult, error) {
	var status string
	if err := s.db.QueryRow(ctx, `SELECT status FROM class_sessions WHERE id=$1`, id).Scan(&status); err != nil {
		return EndResult{}, err
	}

	if status == StatusEnded {
		stats, err := s.Stats(ctx, id)
		if err != nil {
			return EndResult{}, err
		}
		return EndResult{SessionID: id, AlreadyEnded: true, Statistics: stats}, nil
	}

	now := time.Now()
	tag, err := s.db.Exec(ctx, `
		UPDATE class_sessions SET status=$2, ended_at=$3
		WHERE id=$1 AND status=$4
	`, id, StatusEnded, now, StatusActive)
	if err != nil {
		return EndResult{}, err
	}
	// A concurrent end won the race; report the idempotent ack.
	alreadyEnded := tag.RowsAffected() == 0

	if !alreadyEnded {
		_, err = s.db.Exec(ctx, `
			UPDATE attendance_records SET checked_out_at=$2
			WHERE session_id=$1 AND status IN ('present','late') AND checked_out_at IS NULL
		`, id, now)
		if err != nil {
			return EndResult{}, err
		}
	}

	stats, err := s.Stats(ctx, id)
	if err != nil {
		return EndResult{}, err
	}
	return EndResult{SessionID: id, AlreadyEnded: alreadyEnded, Statistics: stats}, nil
}

// Stats aggregates record counts per status for a session.
func (s *Service) Stats(ctx context.Context, id string) (Statistics, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, COUNT(*) FROM attendance_records
		WHERE session_id=$1 GROUP BY status
	`, id)
	if err != nil {
		return Statistics{}, err
	}
	defer rows.Close()

	var stats Statistics
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Statistics{}, err
		}
		switch status {
		case "present":
			stats.Present = count
		case "late":
			stats.Late = count
		case "absent":
			stats.Absent = count
		case "left_early":
			stats.LeftEarly = count
		}
		stats.Total += count
	}
	if stats.Total > 0 {
		rate := float64(stats.Present+stats.Late) / float64(stats.Total)
		stats.AttendanceRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

// StartSweeper ends expired sessions in the background so the auto-end bound
// holds even when no heartbeats arrive. It returns when ctx is canceled.
func (s *Service) StartSweeper(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.sweepExpired(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("session sweeper: %v", err)
				}
			}
		}
	}()
}

func (s *Service) sweepExpired(ctx context.Context) error {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM class_sessions
		WHERE status=$1 AND auto_end_at < $2
	`, StatusActive, time.Now())
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := s.End(ctx, id); err != nil {
			log.Printf("auto-end session %s: %v", id, err)
		}
	}
	return nil
}
