package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/markerpose/internal/timeutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxFixtureFileSize = 8 * 1024 * 1024 // 8MB

// FixtureMarker is one marker as it would be decoded from a frame.
type FixtureMarker struct {
	Payload string       `json:"payload"`
	Polygon [][2]float64 `json:"polygon"`
}

// FixtureFrame describes one frame of a recorded or synthetic session.
type FixtureFrame struct {
	// Fail makes the source report an acquisition failure for this frame.
	Fail bool `json:"fail,omitempty"`
	// DetectError makes the detector fail on this frame.
	DetectError string          `json:"detect_error,omitempty"`
	Markers     []FixtureMarker `json:"markers,omitempty"`

	index int
	size  image.Point
}

// Index is the position of the frame in its fixture set.
func (f *FixtureFrame) Index() int { return f.index }

// Size implements Frame.
func (f *FixtureFrame) Size() image.Point { return f.size }

// Close implements Frame.
func (f *FixtureFrame) Close() error { return nil }

// FixtureSet is the on-disk fixture document.
type FixtureSet struct {
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Frames []FixtureFrame `json:"frames"`
}

// Validate checks the fixture set describes a usable camera.
func (s *FixtureSet) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("fixture frame size must be positive, got %dx%d", s.Width, s.Height)
	}
	for i, f := range s.Frames {
		for j, m := range f.Markers {
			if len(m.Polygon) == 0 {
				return fmt.Errorf("fixture frame %d marker %d has no polygon", i, j)
			}
		}
	}
	return nil
}

// LoadFixtures reads a fixture set from a JSON file.
func LoadFixtures(path string) (*FixtureSet, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("fixture file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat fixture file: %w", err)
	}
	if info.Size() > maxFixtureFileSize {
		return nil, fmt.Errorf("fixture file too large: %d bytes (max %d)", info.Size(), maxFixtureFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	set := &FixtureSet{}
	if err := json.Unmarshal(data, set); err != nil {
		return nil, fmt.Errorf("failed to parse fixture JSON: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture file: %w", err)
	}
	return set, nil
}

// FixtureSourceOptions controls replay of a fixture set.
type FixtureSourceOptions struct {
	// Loop restarts from the first frame instead of closing the source.
	Loop bool
	// Interval paces frames. Zero replays as fast as frames are pulled.
	Interval time.Duration
	Clock    timeutil.Clock
}

// FixtureSource replays a FixtureSet as a FrameSource.
type FixtureSource struct {
	set  *FixtureSet
	opts FixtureSourceOptions

	mu     sync.Mutex
	next   int
	closed bool
}

// NewFixtureSource returns a source over set.
func NewFixtureSource(set *FixtureSet, opts FixtureSourceOptions) (*FixtureSource, error) {
	if set == nil {
		return nil, errors.New("fixture set is nil")
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &FixtureSource{set: set, opts: opts}, nil
}

// Size implements FrameSource.
func (s *FixtureSource) Size() image.Point { return image.Pt(s.set.Width, s.set.Height) }

// Next implements FrameSource.
func (s *FixtureSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSourceClosed
	}
	if s.next >= len(s.set.Frames) {
		if !s.opts.Loop || len(s.set.Frames) == 0 {
			s.mu.Unlock()
			return nil, ErrSourceClosed
		}
		s.next = 0
	}
	idx := s.next
	s.next++
	s.mu.Unlock()

	if s.opts.Interval > 0 {
		s.opts.Clock.Sleep(s.opts.Interval)
	}

	entry := s.set.Frames[idx]
	if entry.Fail {
		return nil, fmt.Errorf("%w: fixture frame %d", ErrFrameAcquisition, idx)
	}
	f := entry
	f.index = idx
	f.size = s.Size()
	return &f, nil
}

// Close implements FrameSource. Subsequent calls to Next return
// ErrSourceClosed.
func (s *FixtureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FixtureDetector decodes the markers recorded in a FixtureFrame.
type FixtureDetector struct{}

// Detect implements Detector.
func (FixtureDetector) Detect(f Frame) ([]Detection, error) {
	ff, ok := f.(*FixtureFrame)
	if !ok {
		return nil, fmt.Errorf("fixture detector cannot decode %T", f)
	}
	if ff.DetectError != "" {
		return nil, fmt.Errorf("fixture frame %d: %s", ff.index, ff.DetectError)
	}
	out := make([]Detection, 0, len(ff.Markers))
	for _, m := range ff.Markers {
		poly := make([]r2.Vec, len(m.Polygon))
		for i, p := range m.Polygon {
			poly[i] = r2.Vec{X: p[0], Y: p[1]}
		}
		out = append(out, Detection{Payload: []byte(m.Payload), Polygon: poly})
	}
	return out, nil
}
