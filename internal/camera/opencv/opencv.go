// Package opencv implements the camera boundary on top of gocv: a
// VideoCapture frame source and a QR code marker detector.
package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/markerpose/internal/camera"
)

// CaptureOptions selects and configures the capture device.
type CaptureOptions struct {
	// Device is a camera index ("0") or a file/stream URL.
	Device string
	// Width and Height request a capture resolution; zero keeps the
	// device default.
	Width  int
	Height int
	// AutoFocus enables the device autofocus when supported.
	AutoFocus bool
}

// Capture reads frames from an OpenCV VideoCapture.
type Capture struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	size   image.Point
	closed bool
}

// OpenCapture opens the device and reads its resolution once.
func OpenCapture(opts CaptureOptions) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(opts.Device)
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", opts.Device, err)
	}
	if opts.Width > 0 && opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	if opts.AutoFocus {
		vc.Set(gocv.VideoCaptureAutoFocus, 1)
	}
	size := image.Pt(int(vc.Get(gocv.VideoCaptureFrameWidth)), int(vc.Get(gocv.VideoCaptureFrameHeight)))
	if size.X <= 0 || size.Y <= 0 {
		vc.Close()
		return nil, fmt.Errorf("capture %q reported no frame size", opts.Device)
	}
	return &Capture{vc: vc, size: size}, nil
}

// Size implements camera.FrameSource.
func (c *Capture) Size() image.Point { return c.size }

// Next implements camera.FrameSource. The returned frame owns a Mat that
// is released by Close.
func (c *Capture) Next(ctx context.Context) (camera.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, camera.ErrSourceClosed
	}
	mat := gocv.NewMat()
	if ok := c.vc.Read(&mat); !ok {
		mat.Close()
		return nil, fmt.Errorf("%w: capture read returned no data", camera.ErrFrameAcquisition)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: empty frame", camera.ErrFrameAcquisition)
	}
	return &Frame{Mat: mat}, nil
}

// Close implements camera.FrameSource.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.vc.Close()
}

// Frame wraps a captured Mat.
type Frame struct {
	Mat gocv.Mat
}

// Size implements camera.Frame.
func (f *Frame) Size() image.Point { return image.Pt(f.Mat.Cols(), f.Mat.Rows()) }

// Close implements camera.Frame.
func (f *Frame) Close() error { return f.Mat.Close() }

// QRDetector decodes QR code markers.
type QRDetector struct {
	det gocv.QRCodeDetector
}

// NewQRDetector returns a detector. Close releases it.
func NewQRDetector() *QRDetector {
	return &QRDetector{det: gocv.NewQRCodeDetector()}
}

// Detect implements camera.Detector. OpenCV reports at most one decoded
// code per call; a frame with no decodable code yields no detections.
func (d *QRDetector) Detect(f camera.Frame) ([]camera.Detection, error) {
	frame, ok := f.(*Frame)
	if !ok {
		return nil, fmt.Errorf("qr detector cannot decode %T", f)
	}
	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	payload := d.det.DetectAndDecode(frame.Mat, &points, &straight)
	if payload == "" || points.Empty() {
		return nil, nil
	}
	poly := polygon(points)
	if len(poly) == 0 {
		return nil, nil
	}
	return []camera.Detection{{Payload: []byte(payload), Polygon: poly}}, nil
}

// Close releases the detector.
func (d *QRDetector) Close() error { return d.det.Close() }

// polygon converts a CV_32FC2 point Mat into image coordinates.
func polygon(points gocv.Mat) []r2.Vec {
	cols := points.Cols()
	if cols == 0 {
		return nil
	}
	n := points.Rows() * cols
	out := make([]r2.Vec, 0, n)
	for k := 0; k < n; k++ {
		v := points.GetVecfAt(k/cols, k%cols)
		if len(v) < 2 {
			return nil
		}
		out = append(out, r2.Vec{X: float64(v[0]), Y: float64(v[1])})
	}
	return out
}
