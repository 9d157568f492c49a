package geo

import (
	"errors"
	"math"
)

// EarthRadiusM is the mean Earth radius used for great-circle math.
const EarthRadiusM = 6371000.0

var (
	ErrInvalidCoordinate = errors.New("geo: latitude/longitude out of range")
	ErrInvalidRadius     = errors.New("geo: radius must be a positive number")
)

// Result is the outcome of a geofence check.
type Result struct {
	DistanceM    float64 `json:"distance_m"`
	RadiusM      float64 `json:"radius_m"`
	WithinBounds bool    `json:"within_bounds"`
}

// ValidCoordinate reports whether lat/lng form a usable WGS84 coordinate.
// NaN and infinities are rejected along with out-of-range values.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// HaversineM returns the great-circle distance between two coordinates in meters.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// HaversineKm returns the great-circle distance in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return HaversineM(lat1, lng1, lat2, lng2) / 1000
}

// BearingRad returns the initial bearing from point 1 to point 2, in radians
// measured counter-clockwise from east (matching the local x-east/y-north frame
// used by the dead-reckoning tracker).
func BearingRad(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	// atan2(y, x) here is bearing clockwise from north; convert to CCW-from-east.
	return math.Pi/2 - math.Atan2(y, x)
}

// Check validates inputs and compares the great-circle distance between the
// point and the fence center against the fence radius.
func Check(lat, lng, centerLat, centerLng, radiusM float64) (Result, error) {
	if !ValidCoordinate(lat, lng) || !ValidCoordinate(centerLat, centerLng) {
		return Result{}, ErrInvalidCoordinate
	}
	if math.IsNaN(radiusM) || radiusM <= 0 {
		return Result{}, ErrInvalidRadius
	}

	d := HaversineM(lat, lng, centerLat, centerLng)
	return Result{
		DistanceM:    d,
		RadiusM:      radiusM,
		WithinBounds: d <= radiusM,
	}, nil
}
