package pipeline

import (
	"time"

	"github.com/banshee-data/markerpose/internal/marker"
	"github.com/banshee-data/markerpose/internal/pose"
)

// Outcome classifies what happened to one detection.
type Outcome int

const (
	OutcomeEstimated Outcome = iota
	// OutcomeParseFailure: the payload could not be parsed. No estimate is
	// produced and the side-length memory is untouched.
	OutcomeParseFailure
	// OutcomeDegenerateGeometry: the polygon could not be reduced to a
	// usable quadrilateral.
	OutcomeDegenerateGeometry
	// OutcomeFailed covers any other estimation error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEstimated:
		return "estimated"
	case OutcomeParseFailure:
		return "parse_failure"
	case OutcomeDegenerateGeometry:
		return "degenerate_geometry"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DetectionResult is the outcome of one detection in one frame.
type DetectionResult struct {
	Outcome Outcome
	Payload string
	// Reference is set when the payload parsed.
	Reference marker.ReferencePose
	Quad      marker.Quad
	// SidePx, MarkerSideCM and Distance are filled whenever the geometry
	// could be measured, including parse failures, so the detection can
	// still be annotated.
	SidePx       float64
	MarkerSideCM float64
	Distance     pose.Distance
	// Estimate is only meaningful for OutcomeEstimated.
	Estimate pose.Estimate
	Err      error
}

// Estimated reports whether the detection produced a position estimate.
func (r DetectionResult) Estimated() bool { return r.Outcome == OutcomeEstimated }

// FrameResult is everything the pipeline produced for one frame. An empty
// Results slice means the frame held no detection at all.
type FrameResult struct {
	FrameID        string
	Sequence       uint64
	CapturedAt     time.Time
	ProcessingTime time.Duration
	Results        []DetectionResult
}

// Estimates returns the position estimates of the frame, in detection
// order. It is empty when no detection produced an estimate.
func (r FrameResult) Estimates() []pose.Estimate {
	var out []pose.Estimate
	for _, d := range r.Results {
		if d.Estimated() {
			out = append(out, d.Estimate)
		}
	}
	return out
}
