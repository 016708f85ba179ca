// Command markerpose estimates the camera position relative to printed
// markers and streams the estimates to the flight controller.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/banshee-data/markerpose/internal/camera"
	"github.com/banshee-data/markerpose/internal/camera/opencv"
	"github.com/banshee-data/markerpose/internal/config"
	"github.com/banshee-data/markerpose/internal/health"
	"github.com/banshee-data/markerpose/internal/marker"
	"github.com/banshee-data/markerpose/internal/monitoring"
	"github.com/banshee-data/markerpose/internal/pipeline"
	"github.com/banshee-data/markerpose/internal/pose"
	"github.com/banshee-data/markerpose/internal/serialmux"
	"github.com/banshee-data/markerpose/internal/sink"
	"github.com/banshee-data/markerpose/internal/units"
	"github.com/banshee-data/markerpose/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON config file")
	envPath     = flag.String("env", ".env", "Optional dotenv file with MARKERPOSE_* overrides")
	fixtures    = flag.String("fixtures", "", "Replay frames from a fixture JSON file instead of the camera (dev mode)")
	serialPort  = flag.String("serial-port", "", "Flight controller serial port (overrides config)")
	logLevel    = flag.String("log-level", "", "Log level (overrides config)")
	diagLog     = flag.Bool("diag", false, "Enable the pipeline diagnostics stream")
	traceLog    = flag.Bool("trace", false, "Enable the per-frame trace stream")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	settings, err := loadSettings(*configPath, *envPath, flagOverrides{
		Fixtures:   *fixtures,
		SerialPort: *serialPort,
		LogLevel:   *logLevel,
	}, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "markerpose: %v\n", err)
		os.Exit(2)
	}

	logger, logCloser, err := monitoring.NewLogger(monitoring.LogOptions{
		Level: settings.LogLevel,
		File:  settings.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "markerpose: %v\n", err)
		os.Exit(2)
	}
	defer logCloser.Close()
	monitoring.SetLogger(logger.Infof)
	configureStreams(logger.Out, *diagLog || logger.IsLevelEnabled(logrus.DebugLevel), *traceLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("%s starting", version.String())
	if err := run(ctx, settings, logger); err != nil {
		logger.Errorf("markerpose: %v", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func configureStreams(out io.Writer, diag, trace bool) {
	var diagW, traceW io.Writer
	if diag {
		diagW = out
	}
	if trace {
		traceW = out
	}
	pipeline.SetLogWriters(out, diagW, traceW)
}

func openCamera(s config.Settings) (camera.FrameSource, camera.Detector, func(), error) {
	if s.DevMode() {
		set, err := camera.LoadFixtures(s.FixturesPath)
		if err != nil {
			return nil, nil, nil, err
		}
		src, err := camera.NewFixtureSource(set, camera.FixtureSourceOptions{
			Loop:     s.FixtureLoop,
			Interval: s.FixtureInterval,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return src, camera.FixtureDetector{}, func() { src.Close() }, nil
	}

	src, err := opencv.OpenCapture(opencv.CaptureOptions{
		Device:    s.CameraDevice,
		Width:     s.CaptureWidth,
		Height:    s.CaptureHeight,
		AutoFocus: s.AutoFocus,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	det := opencv.NewQRDetector()
	return src, det, func() {
		det.Close()
		src.Close()
	}, nil
}

func run(ctx context.Context, s config.Settings, logger *logrus.Logger) error {
	src, det, closeCamera, err := openCamera(s)
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	defer closeCamera()

	params, err := camera.ParamsFromSource(src, s.FOVRadians)
	if err != nil {
		return err
	}
	logger.Infof("camera %dx%d, fov %.3f rad (%.1f deg)", params.Width, params.Height,
		params.FOVRadians, units.RadiansToDegrees(params.FOVRadians))

	sessionID := sink.NewSessionID()
	var wg sync.WaitGroup
	sinkCtx, cancelSinks := context.WithCancel(ctx)
	defer cancelSinks()
	sinks, err := buildSinks(sinkCtx, s, sessionID, logger, serialmux.RealSerialPortFactory{}, &wg)
	if err != nil {
		return err
	}
	defer func() {
		cancelSinks()
		if err := sinks.Close(); err != nil {
			logger.Warnf("closing sinks: %v", err)
		}
		wg.Wait()
	}()

	mem, err := pose.NewSideLengthMemory(s.DefaultSideCM)
	if err != nil {
		return err
	}
	driver, err := pipeline.NewDriver(pipeline.Config{
		Params:     params,
		Source:     src,
		Detector:   det,
		Publisher:  sinks,
		Memory:     mem,
		Normalizer: marker.Normalizer{LegacyHullIndexing: s.LegacyHullIndexing},
		Distance:   pose.DistanceOptions{LegacyDegreeLiteral: s.LegacyDegreeLiteral},
		RetryDelay: s.AcquisitionRetry,
	})
	if err != nil {
		return err
	}

	if s.HealthListen != "" {
		hs := health.NewServer(health.Config{ListenAddr: s.HealthListen, StaleAfter: s.HealthStaleAfter}, driver)
		if err := hs.Start(); err != nil {
			return fmt.Errorf("health: %w", err)
		}
		defer hs.Stop()
	}

	logger.Infof("session %s: publishing to %d sinks", sessionID, sinks.Len())
	err = driver.Run(ctx)
	st := driver.Stats()
	logger.Infof("processed %d frames: %d estimates, %d parse failures, %d degenerate, %d acquisition failures, avg %v",
		st.Frames, st.Estimates, st.ParseFailures, st.DegenerateDetections, st.AcquisitionFailures, st.AvgProcessingTime)
	logger.Infof("marker side %.1f cm after %d payload updates", mem.SideCM(), mem.Updates())
	sinks.logSummary(logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
