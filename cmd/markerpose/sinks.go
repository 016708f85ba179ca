package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/banshee-data/markerpose/internal/config"
	"github.com/banshee-data/markerpose/internal/serialmux"
	"github.com/banshee-data/markerpose/internal/sink"
)

const redisPingTimeout = 3 * time.Second

// sinkSet is the fanout handed to the driver plus the sinks whose
// counters are reported at exit.
type sinkSet struct {
	*sink.Fanout
	controller *sink.ControllerSink
	kafka      *sink.KafkaSink
}

func (ss *sinkSet) logSummary(logger logrus.FieldLogger) {
	if ss.controller != nil {
		acks, errs := ss.controller.Replies()
		logger.Infof("controller replies: %d acks, %d errors", acks, errs)
	}
	if ss.kafka != nil {
		st := ss.kafka.Stats()
		logger.Infof("kafka: %d sent, %d acked, %d failed", st.Sent, st.Acked, st.Failed)
	}
}

// buildSinks assembles the configured sinks. Background goroutines (serial
// monitor, controller replies) are tracked by wg and stop with ctx or when
// the sinks close.
func buildSinks(ctx context.Context, s config.Settings, sessionID string, logger *logrus.Logger,
	ports serialmux.SerialPortFactory, wg *sync.WaitGroup) (*sinkSet, error) {

	logSink, err := sink.NewLogSink(logger, s.OutputUnits)
	if err != nil {
		return nil, err
	}
	sinks := []sink.Sink{logSink}
	ss := &sinkSet{}
	closeAll := func() { sink.NewFanout(sinks...).Close() }

	var mux serialmux.SerialMuxInterface
	switch {
	case s.SerialPort != "":
		m, err := serialmux.Open(ports, s.SerialPort, s.Serial)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("controller: %w", err)
		}
		mux = m
		logger.Infof("controller on %s at %d baud", s.SerialPort, s.Serial.BaudRate)
	case s.DevMode():
		mux = serialmux.NewDisabledSerialMux()
		logger.Info("controller disabled in dev mode")
	}
	if mux != nil {
		controller := sink.NewControllerSink(mux)
		sinks = append(sinks, controller)
		ss.controller = controller
		if err := mux.Initialize(); err != nil {
			closeAll()
			return nil, fmt.Errorf("controller: %w", err)
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warnf("controller monitor: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			controller.WatchReplies(ctx)
		}()
	}

	if s.KafkaBrokers != "" {
		p, err := sink.NewKafkaProducer(s.KafkaBrokers)
		if err != nil {
			closeAll()
			return nil, err
		}
		ss.kafka = sink.NewKafkaSink(p, s.KafkaTopic, sessionID, sink.KafkaOptions{})
		sinks = append(sinks, ss.kafka)
		logger.Infof("kafka topic %s on %s", s.KafkaTopic, s.KafkaBrokers)
	}

	if s.RedisAddr != "" {
		client := sink.NewRedisClient(s.RedisAddr, s.RedisPassword, s.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			client.Close()
			closeAll()
			return nil, fmt.Errorf("redis %s: %w", s.RedisAddr, err)
		}
		sinks = append(sinks, sink.NewRedisSink(client, s.RedisChannel, sessionID))
		logger.Infof("redis channel %s on %s", s.RedisChannel, s.RedisAddr)
	}

	ss.Fanout = sink.NewFanout(sinks...)
	return ss, nil
}
