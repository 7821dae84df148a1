// Package kafka publishes frames as JSON messages to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ericogr/weather-station/pkg/config"
	"github.com/ericogr/weather-station/pkg/telemetry"
)

const DefaultTopic = "weather.telemetry"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaUploader struct {
	mu        sync.Mutex
	cfg       config.KafkaConfig
	timeout   time.Duration
	stationID string
	bootID    string
	newWriter func() messageWriter
	writer    messageWriter
}

func NewKafka(cfg config.KafkaConfig, stationID, bootID string, timeout time.Duration) (*KafkaUploader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	k := &KafkaUploader{cfg: cfg, timeout: timeout, stationID: stationID, bootID: bootID}
	k.newWriter = func() messageWriter {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			WriteTimeout: timeout,
			ReadTimeout:  timeout,
		}
	}
	k.writer = k.newWriter()
	return k, nil
}

func (k *KafkaUploader) Upload(ctx context.Context, f telemetry.Frame) error {
	k.mu.Lock()
	w := k.writer
	k.mu.Unlock()

	b, err := json.Marshal(telemetry.NewPayload(k.stationID, k.bootID, f))
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: []byte(k.stationID), Value: b, Time: f.Timestamp}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Reset closes the writer and its broker connections and starts a fresh one.
func (k *KafkaUploader) Reset(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	err := k.writer.Close()
	k.writer = k.newWriter()
	if err != nil {
		return fmt.Errorf("kafka close: %w", err)
	}
	return nil
}

func (k *KafkaUploader) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.writer.Close()
}
