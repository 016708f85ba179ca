package pose

import (
	"fmt"
	"image"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/markerpose/internal/marker"
	"github.com/banshee-data/markerpose/internal/units"
)

// Estimate is the camera position for one detection, in metres. X and Y
// are ground coordinates in the markers' reference frame, Z is the distance
// from the marker.
type Estimate struct {
	XM float64 `json:"x_m"`
	YM float64 `json:"y_m"`
	ZM float64 `json:"z_m"`
}

// Vec returns the estimate as a vector.
func (e Estimate) Vec() r3.Vector {
	return r3.Vector{X: e.XM, Y: e.YM, Z: e.ZM}
}

// RangeM is the straight-line distance from the reference origin to the
// camera, in metres.
func (e Estimate) RangeM() float64 { return e.Vec().Norm() }

// Measurement collects the intermediate values for one detection. Offset
// and Estimate are only set by Estimator.Estimate.
type Measurement struct {
	Quad         marker.Quad
	SidePx       float64
	MarkerSideCM float64 // side length used for scaling
	Distance     Distance
	Offset       Offset
	Estimate     Estimate
}

// Estimator holds the per-process camera geometry and the side-length
// memory shared by all detections.
type Estimator struct {
	FrameSize  image.Point
	FOVRadians float64
	Normalizer marker.Normalizer
	Distance   DistanceOptions
	Memory     *SideLengthMemory
}

// Center returns the geometric centre of the frame.
func (e *Estimator) Center() r2.Vec {
	return r2.Vec{X: float64(e.FrameSize.X) / 2, Y: float64(e.FrameSize.Y) / 2}
}

// Measure normalizes the polygon and estimates its distance using the
// remembered side length. It does not read a payload.
func (e *Estimator) Measure(polygon []r2.Vec) (Measurement, error) {
	if e.Memory == nil {
		return Measurement{}, fmt.Errorf("%w: estimator has no side-length memory", ErrInvalidInput)
	}
	q, err := e.Normalizer.Normalize(polygon)
	if err != nil {
		return Measurement{}, err
	}
	side, err := marker.SideLength(q)
	if err != nil {
		return Measurement{Quad: q}, err
	}
	sideCM := e.Memory.SideCM()
	d, err := EstimateDistance(side, sideCM, e.FrameSize.Y, e.FOVRadians, e.Distance)
	if err != nil {
		return Measurement{Quad: q, SidePx: side, MarkerSideCM: sideCM}, err
	}
	return Measurement{Quad: q, SidePx: side, MarkerSideCM: sideCM, Distance: d}, nil
}

// Estimate measures the polygon and adds the lateral offset from ref. The
// caller records ref.SideCM in the memory before calling, so the marker is
// scaled by its own payload.
func (e *Estimator) Estimate(polygon []r2.Vec, ref marker.ReferencePose) (Measurement, error) {
	m, err := e.Measure(polygon)
	if err != nil {
		return m, err
	}
	off, err := ComputeOffset(m.Quad, e.Center(), m.MarkerSideCM, m.SidePx, ref)
	if err != nil {
		return m, err
	}
	m.Offset = off
	m.Estimate = Estimate{
		XM: off.XM,
		YM: off.YM,
		ZM: units.CentimetersToMeters(m.Distance.DistanceCM),
	}
	return m, nil
}
