package pipeline

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/banshee-data/markerpose/internal/monitoring"
)

var (
	opsLogger   *logrus.Entry
	diagLogger  *logrus.Entry
	traceLogger *logrus.Entry
)

// SetLogWriters configures the three logging streams for the pipeline package.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger("ops", ops)
	diagLogger = newLogger("diag", diag)
	traceLogger = newLogger("trace", trace)
}

func newLogger(stream string, w io.Writer) *logrus.Entry {
	if w == nil {
		return nil
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(monitoring.NewFormatter(true))
	return l.WithFields(logrus.Fields{"component": "pipeline", "stream": stream})
}

// opsf logs to the ops stream (actionable warnings, errors, dropped frames).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Warnf(format, args...)
	}
}

// diagf logs to the diag stream (day-to-day diagnostics, per-detection failures).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Infof(format, args...)
	}
}

// tracef logs to the trace stream (per-frame telemetry).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Debugf(format, args...)
	}
}
