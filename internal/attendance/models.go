package attendance

import "time"

// Status is the attendee's state within a session. Transitions are monotonic
// in severity: present -> {late, left_early}, late -> left_early; left_early
// and absent are terminal for the session.
type Status string

const (
	StatusPresent   Status = "present"
	StatusLate      Status = "late"
	StatusLeftEarly Status = "left_early"
	StatusAbsent    Status = "absent"
)

// Terminal reports whether no further transition is allowed this session.
func (s Status) Terminal() bool {
	return s == StatusLeftEarly || s == StatusAbsent
}

type Record struct {
	ID                    string    `json:"id"`
	SessionID             string    `json:"session_id"`
	AttendeeID            string    `json:"attendee_id"`
	Status                Status    `json:"status"`
	CheckedInAt           time.Time `json:"checked_in_at"`
	LastValidAt           time.Time `json:"last_valid_at,omitempty"`
	ConsecutiveViolations int       `json:"consecutive_violations"`
	CheckedOutAt          time.Time `json:"checked_out_at,omitempty"`
}

type CheckInRequest struct {
	SessionID  string `json:"session_id"`
	AttendeeID string `json:"attendee_id"`
}

// HeartbeatRequest is the periodic client location report. The fusion fields
// are optional metadata from the device pipeline.
type HeartbeatRequest struct {
	SessionID string    `json:"session_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AccuracyM float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
	Attempt   int       `json:"attempt"`
	Source    string    `json:"source"`

	TrackingMode string  `json:"tracking_mode,omitempty"` // gps-only | pdr-only | fusion
	Environment  string  `json:"environment,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	GPSWeight    float64 `json:"gps_weight,omitempty"`
	PDRWeight    float64 `json:"pdr_weight,omitempty"`
}

type HeartbeatResponse struct {
	LocationValid   bool    `json:"location_valid"`
	DistanceM       float64 `json:"distance_m"`
	AllowedRadiusM  float64 `json:"allowed_radius_m"`
	StatusChanged   bool    `json:"status_changed"`
	NewStatus       Status  `json:"new_status,omitempty"`
	SessionEnded    bool    `json:"session_ended"`
	Duplicate       bool    `json:"duplicate,omitempty"`
}

// LocationLog is one append-only heartbeat trace entry. Every accepted
// heartbeat is logged, valid or not.
type LocationLog struct {
	ID           int64     `json:"id"`
	AttendanceID string    `json:"attendance_id"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	AccuracyM    float64   `json:"accuracy_m"`
	DistanceM    float64   `json:"distance_m"`
	Valid        bool      `json:"valid"`
	Source       string    `json:"source"`
	TrackingMode string    `json:"tracking_mode,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// StatusUpdate is the broadcast payload published after a committed status
// transition.
type StatusUpdate struct {
	AttendanceID string    `json:"attendance_id"`
	SessionID    string    `json:"session_id"`
	AttendeeID   string    `json:"attendee_id"`
	OldStatus    Status    `json:"old_status"`
	NewStatus    Status    `json:"new_status"`
	At           time.Time `json:"at"`
}
