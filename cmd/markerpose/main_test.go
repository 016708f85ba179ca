package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/markerpose/internal/config"
	"github.com/banshee-data/markerpose/internal/serialmux"
)

const sessionFixture = `{
  "width": 1920,
  "height": 1080,
  "frames": [
    {"markers": [{"payload": "18,0,0", "polygon": [[810, 390], [1110, 390], [1110, 690], [810, 690]]}]},
    {"markers": [{"payload": "bogus", "polygon": [[810, 390], [1110, 390], [1110, 690], [810, 690]]}]}
  ]
}`

func testLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return l, &buf
}

func noEnv(string) string { return "" }

func TestLoadSettingsPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "markerpose.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"log_level": "warn", "serial_port": "/dev/ttyS0", "fov_radians": 0.7}`), 0o644))

	env := map[string]string{"MARKERPOSE_FOV_RADIANS": "0.8", "MARKERPOSE_LOG_LEVEL": "error"}
	s, err := loadSettings(cfgPath, "", flagOverrides{LogLevel: "debug"}, func(k string) string { return env[k] })
	require.NoError(t, err)

	assert.Equal(t, 0.8, s.FOVRadians, "environment beats file")
	assert.Equal(t, "debug", s.LogLevel, "flags beat environment")
	assert.Equal(t, "/dev/ttyS0", s.SerialPort)
}

func TestLoadSettingsErrors(t *testing.T) {
	_, err := loadSettings(filepath.Join(t.TempDir(), "missing.json"), "", flagOverrides{}, noEnv)
	assert.Error(t, err)

	_, err = loadSettings("", "", flagOverrides{Fixtures: "frames.txt"}, noEnv)
	assert.Error(t, err, "fixture files must be JSON")
}

func TestBuildSinksController(t *testing.T) {
	s, err := (&config.Config{}).Resolve()
	require.NoError(t, err)
	s.SerialPort = "/dev/ttyACM0"

	port := serialmux.NewTestableSerialPort()
	factory := serialmux.NewMockSerialPortFactory(port)
	logger, _ := testLogger()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	sinks, err := buildSinks(ctx, s, "session", logger, factory, &wg)
	require.NoError(t, err)
	assert.Equal(t, 2, sinks.Len())
	require.NotNil(t, sinks.controller)
	assert.Nil(t, sinks.kafka)
	assert.Equal(t, "/dev/ttyACM0", factory.LastCall().Path)
	assert.True(t, strings.HasPrefix(port.Written(), "H,"), "controller is initialised")

	cancel()
	require.NoError(t, sinks.Close())
	wg.Wait()
	assert.True(t, port.Closed())
}

func TestBuildSinksBadUnits(t *testing.T) {
	s, err := (&config.Config{}).Resolve()
	require.NoError(t, err)
	s.OutputUnits = "yd"
	logger, _ := testLogger()
	var wg sync.WaitGroup
	_, err = buildSinks(context.Background(), s, "session", logger, serialmux.NewMockSerialPortFactory(nil), &wg)
	assert.Error(t, err)
}

func TestRunDevMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(sessionFixture), 0o644))

	interval := "0s"
	listen := ""
	cfg := &config.Config{FixturesPath: &path, FixtureInterval: &interval, HealthListen: &listen}
	s, err := cfg.Resolve()
	require.NoError(t, err)

	logger, buf := testLogger()
	done := make(chan error, 1)
	go func() { done <- run(context.Background(), s, logger) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish after the fixtures ran out")
	}

	out := buf.String()
	assert.Contains(t, out, "camera 1920x1080")
	assert.Contains(t, out, "x=0.000 y=0.000 z=0.835 m")
	assert.Contains(t, out, "processed 2 frames: 1 estimates, 1 parse failures")
	assert.Contains(t, out, "marker side 18.0 cm after 1 payload updates")
	assert.Contains(t, out, "controller replies: 0 acks, 0 errors")
	assert.NotContains(t, out, "kafka:")
}
