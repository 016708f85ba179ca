// Package sink delivers frame results to the consumers of position
// estimates: the flight controller, message brokers and the log.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/banshee-data/markerpose/internal/pipeline"
	"github.com/banshee-data/markerpose/internal/pose"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink consumes frame results. Publish is called from the frame loop
// goroutine.
type Sink interface {
	Publish(ctx context.Context, r pipeline.FrameResult) error
	Close() error
}

// Fanout publishes to every sink in order. A failing sink does not stop
// the others; their errors are joined.
type Fanout struct {
	sinks []Sink
}

// NewFanout returns a Fanout over sinks, skipping nil entries.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Publish(ctx context.Context, r pipeline.FrameResult) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewSessionID returns a random identifier for one run of the process.
func NewSessionID() string { return uuid.NewString() }

// EstimateSummary is the wire form of one position estimate.
type EstimateSummary struct {
	XM     float64 `json:"x_m"`
	YM     float64 `json:"y_m"`
	ZM     float64 `json:"z_m"`
	RangeM float64 `json:"range_m"`
}

func newEstimateSummary(e pose.Estimate) EstimateSummary {
	return EstimateSummary{XM: e.XM, YM: e.YM, ZM: e.ZM, RangeM: e.RangeM()}
}

// DetectionSummary is the wire form of one detection.
type DetectionSummary struct {
	Outcome    string  `json:"outcome"`
	Payload    string  `json:"payload"`
	SidePx     float64 `json:"side_px,omitempty"`
	DistanceCM float64 `json:"distance_cm,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Message is the JSON document published per frame to brokers.
type Message struct {
	FrameID    string             `json:"frame_id"`
	SessionID  string             `json:"session_id"`
	Sequence   uint64             `json:"sequence"`
	CapturedAt time.Time          `json:"captured_at"`
	Empty      bool               `json:"empty"`
	Estimates  []EstimateSummary  `json:"estimates"`
	Detections []DetectionSummary `json:"detections"`
}

// NewMessage converts a frame result to its wire form.
func NewMessage(sessionID string, r pipeline.FrameResult) Message {
	m := Message{
		FrameID:    r.FrameID,
		SessionID:  sessionID,
		Sequence:   r.Sequence,
		CapturedAt: r.CapturedAt,
		Estimates:  []EstimateSummary{},
		Detections: make([]DetectionSummary, 0, len(r.Results)),
	}
	for _, e := range r.Estimates() {
		m.Estimates = append(m.Estimates, newEstimateSummary(e))
	}
	m.Empty = len(m.Estimates) == 0
	for _, d := range r.Results {
		s := DetectionSummary{
			Outcome:    d.Outcome.String(),
			Payload:    d.Payload,
			SidePx:     d.SidePx,
			DistanceCM: d.Distance.DistanceCM,
		}
		if d.Err != nil {
			s.Error = d.Err.Error()
		}
		m.Detections = append(m.Detections, s)
	}
	return m
}

// Encode marshals the message.
func (m Message) Encode() ([]byte, error) { return json.Marshal(m) }
