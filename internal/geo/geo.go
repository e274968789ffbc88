package geo

import (
	"fmt"
	"math"
	"time"
)

// EarthRadiusMeters is the spherical-Earth radius used by DistanceMeters.
const EarthRadiusMeters = 6371000.0

// Coordinate is a GPS fix in degrees plus the capture time in epoch milliseconds.
type Coordinate struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

// At builds a coordinate stamped with t.
func At(lat, lng float64, t time.Time) Coordinate {
	return Coordinate{Lat: lat, Lng: lng, Timestamp: t.UnixMilli()}
}

// Age returns how long ago the fix was taken relative to now.
func (c Coordinate) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-c.Timestamp) * time.Millisecond
}

// DistanceMeters returns the great-circle distance between a and b using the
// Haversine formula. Inputs are not range checked.
func DistanceMeters(a, b Coordinate) float64 {
	φ1 := a.Lat * math.Pi / 180
	φ2 := b.Lat * math.Pi / 180
	Δφ := (b.Lat - a.Lat) * math.Pi / 180
	Δλ := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Proximity is the result of classifying a distance against a Band.
type Proximity string

const (
	TooClose Proximity = "TOO_CLOSE"
	OK       Proximity = "OK"
	TooFar   Proximity = "TOO_FAR"
)

// Band is the accepted [Min, Max] distance annulus in meters. A student sitting
// on top of the beacon is rejected just like one who is too far away.
type Band struct {
	Min float64
	Max float64
}

// DefaultBand is the 10-15 m annulus.
var DefaultBand = Band{Min: 10, Max: 15}

// Classify compares d against the band using strict inequalities at both ends.
func (b Band) Classify(d float64) Proximity {
	switch {
	case d < b.Min:
		return TooClose
	case d > b.Max:
		return TooFar
	default:
		return OK
	}
}

// Validate reports a band that can never be satisfied.
func (b Band) Validate() error {
	if b.Min < 0 || b.Max < b.Min {
		return fmt.Errorf("invalid proximity band [%g, %g]", b.Min, b.Max)
	}
	return nil
}

func (b Band) String() string {
	return fmt.Sprintf("%g-%gm", b.Min, b.Max)
}
