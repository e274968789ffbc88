package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceMetersSymmetricAndZero(t *testing.T) {
	pairs := [][2]Coordinate{
		{{Lat: 28.4089, Lng: 77.3178}, {Lat: 28.4090, Lng: 77.3179}},
		{{Lat: -33.8688, Lng: 151.2093}, {Lat: 51.5074, Lng: -0.1278}},
		{{Lat: 0, Lng: 179.9}, {Lat: 0, Lng: -179.9}},
	}
	for _, p := range pairs {
		assert.InDelta(t, DistanceMeters(p[0], p[1]), DistanceMeters(p[1], p[0]), 1e-9)
		assert.Equal(t, 0.0, DistanceMeters(p[0], p[0]))
	}
}

func TestDistanceMetersEquatorLongitude(t *testing.T) {
	d := DistanceMeters(Coordinate{}, Coordinate{Lng: 0.18})
	assert.InEpsilon(t, 20000, d, 0.01)
}

func TestDistanceMetersIgnoresTimestamp(t *testing.T) {
	a := At(12.9716, 77.5946, time.Unix(0, 0))
	b := At(12.9716, 77.5946, time.Now())
	assert.Equal(t, 0.0, DistanceMeters(a, b))
}

func TestBandClassify(t *testing.T) {
	cases := []struct {
		d    float64
		want Proximity
	}{
		{0, TooClose},
		{9.999, TooClose},
		{10, OK},
		{12.5, OK},
		{15, OK},
		{15.001, TooFar},
		{400, TooFar},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DefaultBand.Classify(tc.d), "distance %v", tc.d)
	}
}

func TestBandCustom(t *testing.T) {
	b := Band{Min: 0, Max: 50}
	require.NoError(t, b.Validate())
	assert.Equal(t, OK, b.Classify(0))
	assert.Equal(t, TooFar, b.Classify(50.5))

	assert.Error(t, Band{Min: 20, Max: 10}.Validate())
	assert.Error(t, Band{Min: -1, Max: 10}.Validate())
}

func TestCoordinateAge(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	c := At(1, 2, now.Add(-90*time.Minute))
	assert.Equal(t, 90*time.Minute, c.Age(now))
}
