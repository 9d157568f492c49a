// Package pdr implements pedestrian dead reckoning: step detection from
// accelerometer magnitude, Weinberg step-length estimation, gyro/magnetometer
// heading, and a tracker composing the three into a relative 2D position.
package pdr

import "time"

// gravity in m/s², used to express accelerometer magnitude in g.
const gravity = 9.80665

// Vec3 is a raw 3-axis sensor sample.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// InertialFrame is one batch of inertial sensor readings. RotationRate and
// Magnetometer are optional; heading estimation degrades gracefully without
// them.
type InertialFrame struct {
	Acceleration Vec3      `json:"acceleration"`      // m/s²
	RotationRate *Vec3     `json:"rotation_rate"`     // rad/s, yaw on Z
	Magnetometer *Vec3     `json:"magnetometer"`      // µT
	Timestamp    time.Time `json:"timestamp"`
}

// StepEvent is emitted by the detector when a step completes. Peak and Trough
// are the max/min acceleration magnitude (in g) over the step window; the
// Weinberg estimator consumes them.
type StepEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Peak      float64   `json:"acceleration_peak"`
	Trough    float64   `json:"acceleration_trough"`
}

// RelativePosition is the tracker output in a local Cartesian frame anchored
// at the last recalibration point. X is east, Y is north, heading is radians
// counter-clockwise from east.
type RelativePosition struct {
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	HeadingRad float64   `json:"heading_rad"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stats is a running diagnostic summary of the tracker.
type Stats struct {
	Steps     int           `json:"steps"`
	DistanceM float64       `json:"distance_m"`
	Elapsed   time.Duration `json:"elapsed"`
}
