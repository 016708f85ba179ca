package sink

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markerpose/internal/marker"
	"github.com/banshee-data/markerpose/internal/pipeline"
	"github.com/banshee-data/markerpose/internal/pose"
)

var capturedAt = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func estimatedFrame() pipeline.FrameResult {
	return pipeline.FrameResult{
		FrameID:    "01JAB3XKQ4V4Q3Y4P6D8W7Z8N1",
		Sequence:   7,
		CapturedAt: capturedAt,
		Results: []pipeline.DetectionResult{
			{
				Outcome:  pipeline.OutcomeEstimated,
				Payload:  "18,1,-2.5",
				SidePx:   300,
				Distance: pose.Distance{ImageHeightCM: 64.8, DistanceCM: 83.5},
				Estimate: pose.Estimate{XM: 1.18, YM: -2.41, ZM: 0.835},
			},
			{
				Outcome: pipeline.OutcomeParseFailure,
				Payload: "junk",
				SidePx:  120,
				Err:     fmt.Errorf("%w: bad", marker.ErrPayload),
			},
		},
	}
}

func emptyFrame() pipeline.FrameResult {
	return pipeline.FrameResult{FrameID: "01JAB3XKQ4V4Q3Y4P6D8W7Z8N2", Sequence: 8, CapturedAt: capturedAt}
}

func TestNewMessage(t *testing.T) {
	t.Parallel()
	got := NewMessage("session-1", estimatedFrame())
	want := Message{
		FrameID:    "01JAB3XKQ4V4Q3Y4P6D8W7Z8N1",
		SessionID:  "session-1",
		Sequence:   7,
		CapturedAt: capturedAt,
		Empty:      false,
		Estimates:  []EstimateSummary{{XM: 1.18, YM: -2.41, ZM: 0.835, RangeM: 2.810289131032606}},
		Detections: []DetectionSummary{
			{Outcome: "estimated", Payload: "18,1,-2.5", SidePx: 300, DistanceCM: 83.5},
			{Outcome: "parse_failure", Payload: "junk", SidePx: 120, Error: "invalid marker payload: bad"},
		},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("NewMessage mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageEncodeEmptyFrame(t *testing.T) {
	t.Parallel()
	data, err := NewMessage("s", emptyFrame()).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"frame_id": "01JAB3XKQ4V4Q3Y4P6D8W7Z8N2",
		"session_id": "s",
		"sequence": 8,
		"captured_at": "2026-10-17T09:30:00Z",
		"empty": true,
		"estimates": [],
		"detections": []
	}`, string(data))
}

func TestNewSessionID(t *testing.T) {
	t.Parallel()
	a, b := NewSessionID(), NewSessionID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

type stubSink struct {
	published []string
	err       error
	closeErr  error
	closed    bool
}

func (s *stubSink) Publish(_ context.Context, r pipeline.FrameResult) error {
	s.published = append(s.published, r.FrameID)
	return s.err
}

func (s *stubSink) Close() error {
	s.closed = true
	return s.closeErr
}

func TestFanout(t *testing.T) {
	t.Parallel()
	failing := &stubSink{err: errors.New("down"), closeErr: errors.New("stuck")}
	ok := &stubSink{}
	f := NewFanout(failing, nil, ok)
	assert.Equal(t, 2, f.Len())

	err := f.Publish(context.Background(), emptyFrame())
	assert.EqualError(t, err, "down")
	assert.Equal(t, []string{emptyFrame().FrameID}, ok.published, "a failing sink does not stop the rest")

	assert.EqualError(t, f.Close(), "stuck")
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)

	assert.NoError(t, NewFanout().Publish(context.Background(), emptyFrame()))
}
