package sink

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/banshee-data/markerpose/internal/monitoring"
	"github.com/banshee-data/markerpose/internal/pipeline"
	"github.com/banshee-data/markerpose/internal/serialmux"
)

// ControllerSink writes one correction line per estimate to the flight
// controller:
//
//	P,<frame_id>,<x_m>,<y_m>,<z_m>
//	N,<frame_id>              (frame without estimate)
type ControllerSink struct {
	mux serialmux.SerialMuxInterface

	acks   atomic.Uint64
	errors atomic.Uint64
}

// NewControllerSink returns a sink writing to mux. The sink owns mux and
// closes it on Close.
func NewControllerSink(mux serialmux.SerialMuxInterface) *ControllerSink {
	return &ControllerSink{mux: mux}
}

// ControllerLines formats the lines sent for one frame.
func ControllerLines(r pipeline.FrameResult) []string {
	est := r.Estimates()
	if len(est) == 0 {
		return []string{"N," + r.FrameID}
	}
	lines := make([]string, 0, len(est))
	for _, e := range est {
		lines = append(lines, strings.Join([]string{
			"P", r.FrameID, formatMetres(e.XM), formatMetres(e.YM), formatMetres(e.ZM),
		}, ","))
	}
	return lines
}

func formatMetres(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func (c *ControllerSink) Publish(_ context.Context, r pipeline.FrameResult) error {
	for _, line := range ControllerLines(r) {
		if err := c.mux.SendCommand(line); err != nil {
			return fmt.Errorf("controller: %w", err)
		}
	}
	return nil
}

// WatchReplies consumes the controller's replies until ctx is done or the
// mux closes. Error replies are logged.
func (c *ControllerSink) WatchReplies(ctx context.Context) {
	id, lines := c.mux.Subscribe()
	defer c.mux.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch serialmux.ClassifyLine(line) {
			case serialmux.EventTypeAck:
				c.acks.Add(1)
			case serialmux.EventTypeError:
				c.errors.Add(1)
				monitoring.Logf("controller reported %q", line)
			}
		}
	}
}

// Replies returns the number of acknowledgements and error replies seen.
func (c *ControllerSink) Replies() (acks, errors uint64) {
	return c.acks.Load(), c.errors.Load()
}

func (c *ControllerSink) Close() error { return c.mux.Close() }
