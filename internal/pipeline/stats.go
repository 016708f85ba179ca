package pipeline

import (
	"sync/atomic"
	"time"
)

// Stats is a snapshot of the driver counters.
type Stats struct {
	Frames               uint64
	AcquisitionFailures  uint64
	DetectorFailures     uint64
	Detections           uint64
	Estimates            uint64
	ParseFailures        uint64
	DegenerateDetections uint64
	OtherFailures        uint64
	PublishFailures      uint64
	AvgProcessingTime    time.Duration
	LastFrameAt          time.Time
}

type stats struct {
	frames               atomic.Uint64
	acquisitionFailures  atomic.Uint64
	detectorFailures     atomic.Uint64
	detections           atomic.Uint64
	estimates            atomic.Uint64
	parseFailures        atomic.Uint64
	degenerateDetections atomic.Uint64
	otherFailures        atomic.Uint64
	publishFailures      atomic.Uint64
	processingNanos      atomic.Int64
	lastFrameUnixNano    atomic.Int64
}

func (s *stats) record(o Outcome) {
	s.detections.Add(1)
	switch o {
	case OutcomeEstimated:
		s.estimates.Add(1)
	case OutcomeParseFailure:
		s.parseFailures.Add(1)
	case OutcomeDegenerateGeometry:
		s.degenerateDetections.Add(1)
	default:
		s.otherFailures.Add(1)
	}
}

func (s *stats) observe(d time.Duration, at time.Time) {
	s.processingNanos.Add(int64(d))
	s.lastFrameUnixNano.Store(at.UnixNano())
}

// Stats returns a snapshot of the driver counters.
func (d *Driver) Stats() Stats {
	s := &d.stats
	out := Stats{
		Frames:               s.frames.Load(),
		AcquisitionFailures:  s.acquisitionFailures.Load(),
		DetectorFailures:     s.detectorFailures.Load(),
		Detections:           s.detections.Load(),
		Estimates:            s.estimates.Load(),
		ParseFailures:        s.parseFailures.Load(),
		DegenerateDetections: s.degenerateDetections.Load(),
		OtherFailures:        s.otherFailures.Load(),
		PublishFailures:      s.publishFailures.Load(),
	}
	if out.Frames > 0 {
		out.AvgProcessingTime = time.Duration(s.processingNanos.Load() / int64(out.Frames))
	}
	if ns := s.lastFrameUnixNano.Load(); ns != 0 {
		out.LastFrameAt = time.Unix(0, ns)
	}
	return out
}
