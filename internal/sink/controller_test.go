package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markerpose/internal/monitoring"
	"github.com/banshee-data/markerpose/internal/serialmux"
)

func TestControllerLines(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"P,01JAB3XKQ4V4Q3Y4P6D8W7Z8N1,1.1800,-2.4100,0.8350"}, ControllerLines(estimatedFrame()))
	assert.Equal(t, []string{"N,01JAB3XKQ4V4Q3Y4P6D8W7Z8N2"}, ControllerLines(emptyFrame()))
}

func TestControllerSinkPublish(t *testing.T) {
	t.Parallel()
	port := serialmux.NewTestableSerialPort()
	s := NewControllerSink(serialmux.NewSerialMux(port))

	require.NoError(t, s.Publish(context.Background(), estimatedFrame()))
	require.NoError(t, s.Publish(context.Background(), emptyFrame()))
	assert.Equal(t,
		"P,01JAB3XKQ4V4Q3Y4P6D8W7Z8N1,1.1800,-2.4100,0.8350\nN,01JAB3XKQ4V4Q3Y4P6D8W7Z8N2\n",
		port.Written())

	port.WriteError = errors.New("unplugged")
	assert.ErrorContains(t, s.Publish(context.Background(), emptyFrame()), "unplugged")

	require.NoError(t, s.Close())
	assert.True(t, port.Closed())
}

func TestControllerSinkDisabled(t *testing.T) {
	t.Parallel()
	mux := serialmux.NewDisabledSerialMux()
	s := NewControllerSink(mux)
	require.NoError(t, s.Publish(context.Background(), estimatedFrame()))
	assert.Equal(t, 1, mux.Sent())
}

func TestControllerSinkWatchReplies(t *testing.T) {
	original := monitoring.Logf
	defer monitoring.SetLogger(original)
	logged := make(chan string, 4)
	monitoring.SetLogger(func(format string, v ...interface{}) {
		select {
		case logged <- format:
		default:
		}
	})

	port := serialmux.NewTestableSerialPort()
	mux := serialmux.NewSerialMux(port)
	s := NewControllerSink(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan struct{})
	go func() {
		s.WatchReplies(ctx)
		close(watchDone)
	}()
	go mux.Monitor(ctx)

	// Wait for the subscription before feeding lines.
	require.Eventually(t, func() bool {
		port.AddReadData([]byte("OK,1\n"))
		acks, _ := s.Replies()
		return acks > 0
	}, time.Second, 10*time.Millisecond)

	port.AddReadData([]byte("ERR,checksum\nT,bat=11.9\n"))
	select {
	case <-logged:
	case <-time.After(time.Second):
		t.Fatal("error reply not logged")
	}
	_, errs := s.Replies()
	assert.Equal(t, uint64(1), errs)

	cancel()
	select {
	case <-watchDone:
	case <-time.After(time.Second):
		t.Fatal("WatchReplies did not return")
	}
	require.NoError(t, s.Close())
}
