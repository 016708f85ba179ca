package pose

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/banshee-data/markerpose/internal/marker"
)

// ErrInvalidInput is returned for estimator inputs outside their domain.
var ErrInvalidInput = errors.New("invalid estimation input")

// legacyRightAngle is the literal subtracted from half the FOV by older
// releases, which passed it to a radian sine without conversion.
const legacyRightAngle = 90.0

// DistanceOptions selects between the corrected and the legacy formula.
type DistanceOptions struct {
	// LegacyDegreeLiteral evaluates sin(90 - fov/2) with 90 taken as
	// radians. Estimates made this way are about 7% longer at a 0.74 rad
	// FOV than the right-angle formula.
	LegacyDegreeLiteral bool
}

// Distance is the result of a distance estimate.
type Distance struct {
	// ImageHeightCM is the frame height rescaled to centimetres at the
	// marker's depth, using the marker as a ruler.
	ImageHeightCM float64
	DistanceCM    float64
}

// EstimateDistance converts an apparent side length into a camera to marker
// distance.
//
// The marker is assumed to lie in a plane parallel to the image plane. Half
// the rescaled frame height and half the FOV form a right triangle with the
// lens at its apex:
//
//	imageHeightCM = frameHeightPx / sidePx * markerSideCM
//	distanceCM    = imageHeightCM/2 * sin(pi/2 - fov/2) / sin(fov/2)
func EstimateDistance(sidePx, markerSideCM float64, frameHeightPx int, fovRadians float64, opts DistanceOptions) (Distance, error) {
	if math.IsNaN(sidePx) || math.IsInf(sidePx, 0) || sidePx <= 0 || scalar.EqualWithinAbs(sidePx, 0, marker.MinSideLengthPx) {
		return Distance{}, fmt.Errorf("%w: side length %v px", marker.ErrDegenerateGeometry, sidePx)
	}
	if !validSide(markerSideCM) {
		return Distance{}, fmt.Errorf("%w: marker side %v cm", ErrInvalidInput, markerSideCM)
	}
	if frameHeightPx <= 0 {
		return Distance{}, fmt.Errorf("%w: frame height %d px", ErrInvalidInput, frameHeightPx)
	}
	if !(fovRadians > 0 && fovRadians < math.Pi) {
		return Distance{}, fmt.Errorf("%w: field of view %v rad", ErrInvalidInput, fovRadians)
	}

	imageHeightCM := float64(frameHeightPx) / sidePx * markerSideCM
	halfFOV := fovRadians / 2
	complement := math.Pi/2 - halfFOV
	if opts.LegacyDegreeLiteral {
		complement = legacyRightAngle - halfFOV
	}
	distanceCM := (imageHeightCM / 2 * math.Sin(complement)) / math.Sin(halfFOV)

	return Distance{ImageHeightCM: imageHeightCM, DistanceCM: distanceCM}, nil
}
