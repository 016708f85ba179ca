package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markerpose/internal/marker"
)

const (
	fixtureFOV        = 0.74
	fixtureHeightPx   = 1080
	fixtureSidePx     = 300.0
	fixtureMarkerSide = 18.0
)

func TestEstimateDistanceCanonicalFixture(t *testing.T) {
	d, err := EstimateDistance(fixtureSidePx, fixtureMarkerSide, fixtureHeightPx, fixtureFOV, DistanceOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 64.8, d.ImageHeightCM, 1e-9)
	assert.InDelta(t, 83.53461530525168, d.DistanceCM, 1e-9)

	// The right-angle form is the same as half height over tan(fov/2).
	assert.InDelta(t, 32.4/math.Tan(fixtureFOV/2), d.DistanceCM, 1e-9)
}

func TestEstimateDistanceLegacyDegreeLiteral(t *testing.T) {
	d, err := EstimateDistance(fixtureSidePx, fixtureMarkerSide, fixtureHeightPx, fixtureFOV, DistanceOptions{LegacyDegreeLiteral: true})
	require.NoError(t, err)
	assert.InDelta(t, 64.8, d.ImageHeightCM, 1e-9)
	assert.InDelta(t, 89.19725254063627, d.DistanceCM, 1e-9)
}

func TestEstimateDistanceMonotonic(t *testing.T) {
	prev := math.Inf(1)
	for side := 10.0; side <= 1000; side += 7.5 {
		d, err := EstimateDistance(side, fixtureMarkerSide, fixtureHeightPx, fixtureFOV, DistanceOptions{})
		require.NoError(t, err)
		assert.Less(t, d.DistanceCM, prev, "side %v px", side)
		prev = d.DistanceCM
	}
}

func TestEstimateDistanceScalesWithMarkerSize(t *testing.T) {
	small, err := EstimateDistance(fixtureSidePx, 6, fixtureHeightPx, fixtureFOV, DistanceOptions{})
	require.NoError(t, err)
	large, err := EstimateDistance(fixtureSidePx, 18, fixtureHeightPx, fixtureFOV, DistanceOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 3*small.DistanceCM, large.DistanceCM, 1e-9)
}

func TestEstimateDistanceRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		sidePx  float64
		sideCM  float64
		height  int
		fov     float64
		wantErr error
	}{
		{"zero side", 0, 18, 1080, 0.74, marker.ErrDegenerateGeometry},
		{"tiny side", 1e-12, 18, 1080, 0.74, marker.ErrDegenerateGeometry},
		{"negative side", -3, 18, 1080, 0.74, marker.ErrDegenerateGeometry},
		{"nan side", math.NaN(), 18, 1080, 0.74, marker.ErrDegenerateGeometry},
		{"zero marker", 300, 0, 1080, 0.74, ErrInvalidInput},
		{"zero height", 300, 18, 0, 0.74, ErrInvalidInput},
		{"zero fov", 300, 18, 1080, 0, ErrInvalidInput},
		{"straight angle fov", 300, 18, 1080, math.Pi, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EstimateDistance(tt.sidePx, tt.sideCM, tt.height, tt.fov, DistanceOptions{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
