// Package pipeline drives the per-frame marker pose estimation loop.
//
// It pulls frames from a camera.FrameSource, decodes markers with a
// camera.Detector, turns every detection into a position estimate through
// the marker and pose packages, and hands the frame result to a Publisher.
// The pipeline owns the side-length memory, the only state that survives
// from one frame to the next.
package pipeline
