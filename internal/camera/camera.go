// Package camera defines the frame source and marker detector boundaries
// of the pipeline, plus a fixture-driven implementation of both.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

var (
	// ErrFrameAcquisition wraps any failure to read a frame. The frame is
	// skipped; the source may succeed on the next call.
	ErrFrameAcquisition = errors.New("frame acquisition failed")
	// ErrSourceClosed is returned when the source has no more frames.
	ErrSourceClosed = errors.New("frame source closed")
)

// Params describes the camera for the lifetime of the process.
type Params struct {
	FOVRadians float64 // vertical field of view
	Width      int
	Height     int
}

// Validate checks the parameters can be used for distance estimation.
func (p Params) Validate() error {
	if !(p.FOVRadians > 0 && p.FOVRadians < math.Pi) {
		return fmt.Errorf("field of view must be in (0, pi) rad, got %v", p.FOVRadians)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("frame size must be positive, got %dx%d", p.Width, p.Height)
	}
	return nil
}

// Size returns the frame size as a point.
func (p Params) Size() image.Point { return image.Pt(p.Width, p.Height) }

// Frame is one captured image. Callers must Close it once processed.
type Frame interface {
	Size() image.Point
	Close() error
}

// FrameSource produces frames of a fixed size.
type FrameSource interface {
	// Next blocks until a frame is available. Errors wrap
	// ErrFrameAcquisition or ErrSourceClosed.
	Next(ctx context.Context) (Frame, error)
	// Size is the resolution of every frame the source produces.
	Size() image.Point
	Close() error
}

// Detection is one decoded marker.
type Detection struct {
	Payload []byte
	// Polygon outlines the marker in image coordinates, at least four
	// points in cyclic order.
	Polygon []r2.Vec
}

// Detector finds and decodes markers in a frame.
type Detector interface {
	Detect(f Frame) ([]Detection, error)
}

// ParamsFromSource builds Params from the source resolution.
func ParamsFromSource(src FrameSource, fovRadians float64) (Params, error) {
	size := src.Size()
	p := Params{FOVRadians: fovRadians, Width: size.X, Height: size.Y}
	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("camera parameters: %w", err)
	}
	return p, nil
}
