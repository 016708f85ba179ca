package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/banshee-data/markerpose/internal/camera"
	"github.com/banshee-data/markerpose/internal/marker"
	"github.com/banshee-data/markerpose/internal/pose"
	"github.com/banshee-data/markerpose/internal/timeutil"
)

// ErrDetection wraps detector failures returned by ProcessFrame.
var ErrDetection = errors.New("marker detection failed")

// DefaultSideCM seeds the side-length memory when no payload has been
// decoded yet.
const DefaultSideCM = 6.0

// State is the driver's position in the frame loop.
type State int32

const (
	StateIdle State = iota
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Publisher receives every processed frame.
type Publisher interface {
	Publish(ctx context.Context, r FrameResult) error
}

// Config holds the driver's collaborators.
type Config struct {
	Params   camera.Params
	Source   camera.FrameSource
	Detector camera.Detector
	// Publisher is optional.
	Publisher Publisher

	// Memory is optional; when nil a memory seeded with DefaultSideCM
	// (or the configured default) is created.
	Memory        *pose.SideLengthMemory
	DefaultSideCM float64

	Normalizer marker.Normalizer
	Distance   pose.DistanceOptions

	// RetryDelay is slept after an acquisition failure. Zero retries
	// immediately.
	RetryDelay time.Duration
	Clock      timeutil.Clock
}

// Driver runs the frame loop. A Driver processes one frame at a time; Run
// must not be called concurrently with itself.
type Driver struct {
	source    camera.FrameSource
	detector  camera.Detector
	publisher Publisher
	estimator pose.Estimator
	clock     timeutil.Clock
	retry     time.Duration

	mu      sync.Mutex // serialises ProcessFrame
	entropy *ulid.MonotonicEntropy
	seq     uint64

	state atomic.Int32
	stats stats
}

// NewDriver validates cfg and returns a driver ready to Run.
func NewDriver(cfg Config) (*Driver, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if cfg.Source == nil {
		return nil, errors.New("pipeline: frame source is required")
	}
	if cfg.Detector == nil {
		return nil, errors.New("pipeline: detector is required")
	}
	mem := cfg.Memory
	if mem == nil {
		def := cfg.DefaultSideCM
		if def == 0 {
			def = DefaultSideCM
		}
		m, err := pose.NewSideLengthMemory(def)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		mem = m
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	d := &Driver{
		source:    cfg.Source,
		detector:  cfg.Detector,
		publisher: cfg.Publisher,
		estimator: pose.Estimator{
			FrameSize:  cfg.Params.Size(),
			FOVRadians: cfg.Params.FOVRadians,
			Normalizer: cfg.Normalizer,
			Distance:   cfg.Distance,
			Memory:     mem,
		},
		clock:   clock,
		retry:   cfg.RetryDelay,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	return d, nil
}

// State returns the current loop state.
func (d *Driver) State() State { return State(d.state.Load()) }

// Memory returns the side-length memory owned by the driver.
func (d *Driver) Memory() *pose.SideLengthMemory { return d.estimator.Memory }

// Run pulls and processes frames until ctx is cancelled or the source is
// closed. Acquisition failures are counted and skipped. Run returns nil on
// cancellation and when the source reports ErrSourceClosed or io.EOF.
func (d *Driver) Run(ctx context.Context) error {
	opsf("frame loop started: %dx%d, fov %.3f rad, default side %.1f cm",
		d.estimator.FrameSize.X, d.estimator.FrameSize.Y, d.estimator.FOVRadians, d.Memory().SideCM())
	defer d.state.Store(int32(StateIdle))

	for {
		if ctx.Err() != nil {
			opsf("frame loop stopped: %v", ctx.Err())
			return nil
		}

		f, err := d.source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, camera.ErrSourceClosed), errors.Is(err, io.EOF):
				opsf("frame source closed after %d frames", d.stats.frames.Load())
				return nil
			case ctx.Err() != nil:
				opsf("frame loop stopped: %v", ctx.Err())
				return nil
			}
			d.stats.acquisitionFailures.Add(1)
			opsf("frame acquisition failed: %v", err)
			if d.retry > 0 {
				d.clock.Sleep(d.retry)
			}
			continue
		}

		d.state.Store(int32(StateProcessing))
		res, err := d.processFrame(f)
		if cerr := f.Close(); cerr != nil {
			diagf("frame %s close: %v", res.FrameID, cerr)
		}
		if err != nil {
			opsf("frame %s: %v", res.FrameID, err)
		}
		d.publish(ctx, res)
		d.state.Store(int32(StateIdle))
	}
}

func (d *Driver) publish(ctx context.Context, res FrameResult) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, res); err != nil {
		d.stats.publishFailures.Add(1)
		opsf("publish frame %s: %v", res.FrameID, err)
	}
}

// ProcessFrame detects the markers in f and estimates a position for each.
// Every detection is handled independently: one failing detection does not
// affect the others. A detector error yields a result with no detections
// and an error wrapping ErrDetection. ProcessFrame does not close f.
func (d *Driver) ProcessFrame(f camera.Frame) (FrameResult, error) {
	d.state.Store(int32(StateProcessing))
	defer d.state.Store(int32(StateIdle))
	return d.processFrame(f)
}

func (d *Driver) processFrame(f camera.Frame) (FrameResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := d.clock.Now()
	d.seq++
	res := FrameResult{
		FrameID:    d.newFrameID(start),
		Sequence:   d.seq,
		CapturedAt: start,
	}
	d.stats.frames.Add(1)

	if size := f.Size(); size != d.estimator.FrameSize {
		diagf("frame %s is %dx%d, estimating with %dx%d", res.FrameID,
			size.X, size.Y, d.estimator.FrameSize.X, d.estimator.FrameSize.Y)
	}

	dets, err := d.detector.Detect(f)
	if err != nil {
		d.stats.detectorFailures.Add(1)
		res.ProcessingTime = d.clock.Since(start)
		d.stats.observe(res.ProcessingTime, start)
		return res, fmt.Errorf("%w: %v", ErrDetection, err)
	}

	res.Results = make([]DetectionResult, 0, len(dets))
	for i, det := range dets {
		r := d.processDetection(det)
		d.stats.record(r.Outcome)
		if r.Err != nil {
			diagf("frame %s detection %d (%q): %s: %v", res.FrameID, i, r.Payload, r.Outcome, r.Err)
		} else {
			tracef("frame %s detection %d: x=%.3f y=%.3f z=%.3f m (side %.1f px, %.1f cm)", res.FrameID, i,
				r.Estimate.XM, r.Estimate.YM, r.Estimate.ZM, r.SidePx, r.MarkerSideCM)
		}
		res.Results = append(res.Results, r)
	}

	res.ProcessingTime = d.clock.Since(start)
	d.stats.observe(res.ProcessingTime, start)
	tracef("frame %s seq %d: %d detections, %d estimates in %v", res.FrameID, res.Sequence,
		len(res.Results), len(res.Estimates()), res.ProcessingTime)
	return res, nil
}

// processDetection runs parse, memory update, normalisation, side length,
// distance and offset for one detection.
func (d *Driver) processDetection(det camera.Detection) DetectionResult {
	r := DetectionResult{Payload: string(det.Payload)}

	ref, perr := marker.ParseDetectionPayload(det.Payload)
	if perr != nil {
		r.Outcome = OutcomeParseFailure
		r.Err = perr
		// Annotation only: measure with the remembered side length.
		if m, err := d.estimator.Measure(det.Polygon); err == nil {
			r.Quad, r.SidePx, r.MarkerSideCM, r.Distance = m.Quad, m.SidePx, m.MarkerSideCM, m.Distance
		}
		return r
	}
	r.Reference = ref
	d.estimator.Memory.Update(ref.SideCM)

	m, err := d.estimator.Estimate(det.Polygon, ref)
	r.Quad, r.SidePx, r.MarkerSideCM, r.Distance = m.Quad, m.SidePx, m.MarkerSideCM, m.Distance
	if err != nil {
		r.Err = err
		if errors.Is(err, marker.ErrDegenerateGeometry) {
			r.Outcome = OutcomeDegenerateGeometry
		} else {
			r.Outcome = OutcomeFailed
		}
		return r
	}
	r.Outcome = OutcomeEstimated
	r.Estimate = m.Estimate
	return r
}

func (d *Driver) newFrameID(t time.Time) string {
	id, err := ulid.New(ulid.Timestamp(t), d.entropy)
	if err != nil {
		return fmt.Sprintf("frame-%d", d.seq)
	}
	return id.String()
}
