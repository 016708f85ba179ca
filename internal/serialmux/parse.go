package serialmux

import (
	"fmt"
	"strings"
	"time"
)

const (
	EventTypeAck       = "ack"
	EventTypeError     = "error"
	EventTypeTelemetry = "telemetry"
	EventTypeUnknown   = "unknown"
)

// UnitsCommand asks the controller to interpret positions in metres.
const UnitsCommand = "U,m"

// HelloCommand announces a new session with the host clock in Unix
// milliseconds.
func HelloCommand(now time.Time) string {
	return fmt.Sprintf("H,%d", now.UnixMilli())
}

// ClassifyLine inspects a line sent back by the controller and returns a
// simple event type token.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case line == "OK" || strings.HasPrefix(line, "OK,"):
		return EventTypeAck
	case strings.HasPrefix(line, "ERR"):
		return EventTypeError
	case strings.HasPrefix(line, "T,"):
		return EventTypeTelemetry
	default:
		return EventTypeUnknown
	}
}
