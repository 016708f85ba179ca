package sink

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/banshee-data/markerpose/internal/pipeline"
	"github.com/banshee-data/markerpose/internal/units"
)

// LogSink writes every estimate to a logger in the configured length unit.
type LogSink struct {
	log   logrus.FieldLogger
	units string
}

func NewLogSink(log logrus.FieldLogger, unit string) (*LogSink, error) {
	if !units.IsValid(unit) {
		return nil, fmt.Errorf("invalid output units %q, expected one of %s", unit, units.GetValidUnitsString())
	}
	return &LogSink{log: log.WithField("component", "estimates"), units: unit}, nil
}

func (s *LogSink) Publish(_ context.Context, r pipeline.FrameResult) error {
	est := r.Estimates()
	if len(est) == 0 {
		s.log.WithField("frame", r.FrameID).Debugf("no estimate (%d detections)", len(r.Results))
		return nil
	}
	for _, e := range est {
		s.log.WithField("frame", r.FrameID).Infof("x=%.3f y=%.3f z=%.3f %s (range %.3f)",
			units.ConvertLength(e.XM, s.units),
			units.ConvertLength(e.YM, s.units),
			units.ConvertLength(e.ZM, s.units),
			s.units,
			units.ConvertLength(e.RangeM(), s.units))
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
