package session

import "time"

// Session is one bounded attendance-taking window around a geofenced
// location. `ended` is terminal.
type Session struct {
	ID           string    `json:"id"`
	InstructorID string    `json:"instructor_id"`
	Title        string    `json:"title"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	RadiusM      float64   `json:"radius_m"`
	Status       string    `json:"status"` // active | ended
	CreatedAt    time.Time `json:"created_at"`
	AutoEndAt    time.Time `json:"auto_end_at"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
}

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Statistics is the finalized per-status summary returned when a session
// ends. AttendanceRate is (present+late)/total, rounded to two decimals.
type Statistics struct {
	Total          int     `json:"total"`
	Present        int     `json:"present"`
	Late           int     `json:"late"`
	Absent         int     `json:"absent"`
	LeftEarly      int     `json:"left_early"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// EndResult acknowledges an end request. AlreadyEnded means the call was an
// idempotent repeat, not a failure.
type EndResult struct {
	SessionID    string     `json:"session_id"`
	AlreadyEnded bool       `json:"already_ended"`
	Statistics   Statistics `json:"statistics"`
}
