package pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/markerpose/internal/marker"
	"github.com/banshee-data/markerpose/internal/units"
)

// Offset is the marker's displacement from the frame centre combined with
// its reference position.
type Offset struct {
	// HorizontalPx is positive when the marker is left of centre.
	HorizontalPx float64
	// VerticalPx is positive when the marker is below centre.
	VerticalPx float64
	PxPerCM    float64
	XM, YM     float64
}

// ComputeOffset converts the marker's pixel offset from center into metres
// and adds the reference position carried by the payload.
func ComputeOffset(q marker.Quad, center r2.Vec, markerSideCM, sidePx float64, ref marker.ReferencePose) (Offset, error) {
	if len(q) == 0 {
		return Offset{}, fmt.Errorf("%w: empty outline", marker.ErrDegenerateGeometry)
	}
	pxPerCM := sidePx / markerSideCM
	if pxPerCM == 0 || math.IsNaN(pxPerCM) || math.IsInf(pxPerCM, 0) {
		return Offset{}, fmt.Errorf("%w: scale %v px/cm", marker.ErrDegenerateGeometry, pxPerCM)
	}

	centroid := q.Centroid()
	h := center.X - centroid.X
	v := centroid.Y - center.Y

	xCM := units.MetersToCentimeters(ref.RefXM) + h/pxPerCM
	yCM := units.MetersToCentimeters(ref.RefYM) + v/pxPerCM

	return Offset{
		HorizontalPx: h,
		VerticalPx:   v,
		PxPerCM:      pxPerCM,
		XM:           units.CentimetersToMeters(xCM),
		YM:           units.CentimetersToMeters(yCM),
	}, nil
}
