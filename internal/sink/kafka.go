package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/banshee-data/markerpose/internal/monitoring"
	"github.com/banshee-data/markerpose/internal/pipeline"
	"github.com/banshee-data/markerpose/internal/timeutil"
)

// KafkaProducer is the part of *kafka.Producer the sink uses.
type KafkaProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// NewKafkaProducer connects to brokers (comma separated host:port list).
func NewKafkaProducer(brokers string) (*kafka.Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"acks":               "1",
		"linger.ms":          5,
		"compression.type":   "snappy",
		"enable.idempotence": false,
		"request.timeout.ms": 10000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return p, nil
}

// KafkaOptions tunes retries and shutdown.
type KafkaOptions struct {
	MaxRetries   int
	BaseBackoff  time.Duration
	FlushTimeout time.Duration
	Clock        timeutil.Clock
}

// KafkaStats counts produced and delivered messages.
type KafkaStats struct {
	Sent, Acked, Failed int64
}

// KafkaSink produces one JSON message per frame, keyed by frame ID.
type KafkaSink struct {
	producer   KafkaProducer
	topic      string
	sessionID  string
	opts       KafkaOptions
	deliveries chan kafka.Event

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64
}

// NewKafkaSink starts the delivery report handler and returns the sink.
func NewKafkaSink(p KafkaProducer, topic, sessionID string, opts KafkaOptions) *KafkaSink {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 50 * time.Millisecond
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	k := &KafkaSink{
		producer:   p,
		topic:      topic,
		sessionID:  sessionID,
		opts:       opts,
		deliveries: make(chan kafka.Event, 1024),
	}
	k.wg.Add(1)
	go k.handleDeliveryReports()
	return k
}

func (k *KafkaSink) handleDeliveryReports() {
	defer k.wg.Done()
	for e := range k.deliveries {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			k.failed.Add(1)
			monitoring.Logf("kafka delivery failed: %v", m.TopicPartition.Error)
			continue
		}
		k.acked.Add(1)
	}
}

var errSinkClosed = errors.New("sink closed")

func (k *KafkaSink) Publish(_ context.Context, r pipeline.FrameResult) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errSinkClosed
	}

	payload, err := NewMessage(k.sessionID, r).Encode()
	if err != nil {
		return fmt.Errorf("failed to serialize frame: %w", err)
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(r.FrameID),
		Value:          payload,
		Headers: []kafka.Header{
			{Key: "session_id", Value: []byte(k.sessionID)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= k.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			k.opts.Clock.Sleep(k.opts.BaseBackoff * time.Duration(1<<uint(attempt-1)))
		}
		err := k.producer.Produce(msg, k.deliveries)
		if err == nil {
			k.sent.Add(1)
			return nil
		}
		lastErr = err

		var kerr kafka.Error
		if errors.As(err, &kerr) && !kerr.IsRetriable() {
			k.failed.Add(1)
			return fmt.Errorf("kafka: non-retriable error: %w", err)
		}
	}
	k.failed.Add(1)
	return fmt.Errorf("kafka: failed after %d retries: %w", k.opts.MaxRetries, lastErr)
}

// Stats returns the message counters.
func (k *KafkaSink) Stats() KafkaStats {
	return KafkaStats{Sent: k.sent.Load(), Acked: k.acked.Load(), Failed: k.failed.Load()}
}

// Close flushes outstanding messages, closes the producer and waits for
// the remaining delivery reports.
func (k *KafkaSink) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	remaining := k.producer.Flush(int(k.opts.FlushTimeout / time.Millisecond))
	// The producer may still write delivery reports until Close returns.
	k.producer.Close()
	close(k.deliveries)
	k.wg.Wait()
	if remaining > 0 {
		return fmt.Errorf("kafka: %d messages not delivered before close", remaining)
	}
	return nil
}
