package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smartenergy/aeos/internal/config"
	"github.com/smartenergy/aeos/pkg/models"
)

// Sink is the piece of the streaming engine the source feeds. Ingest
// returns false when the reading was dropped under backpressure.
type Sink interface {
	Ingest(r models.Reading) bool
}

// readingMessage is the wire format devices publish. Missing IDs and
// timestamps are filled in on receipt.
type readingMessage struct {
	ID        string  `json:"id"`
	DeviceID  string  `json:"device_id"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	ErrorBits int     `json:"error_bits"`
}

// KafkaSource consumes device readings from a Kafka topic and feeds them
// into the streaming engine. Dropped readings are counted by the engine's
// backpressure metrics; the source never retries them.
type KafkaSource struct {
	reader *kafka.Reader
	sink   Sink
	logger *zap.SugaredLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaSource creates a source reading from the configured topic.
func NewKafkaSource(cfg config.KafkaConfig, sink Sink, logger *zap.Logger) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})
	return &KafkaSource{
		reader: reader,
		sink:   sink,
		logger: logger.Sugar().Named("kafka-source"),
	}
}

// Start launches the consume loop.
func (s *KafkaSource) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.consume(runCtx)

	s.logger.Infow("kafka source started", "topic", s.reader.Config().Topic)
}

// Stop cancels the consume loop and closes the reader.
func (s *KafkaSource) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.reader.Close()
	s.wg.Wait()
	return err
}

func (s *KafkaSource) consume(ctx context.Context) {
	defer s.wg.Done()

	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			s.logger.Warnw("failed to read message", "error", err)
			continue
		}

		var payload readingMessage
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			s.logger.Warnw("failed to decode reading",
				"error", err,
				"offset", msg.Offset,
				"partition", msg.Partition,
			)
			continue
		}

		reading := s.toReading(payload)
		if !s.sink.Ingest(reading) {
			s.logger.Debugw("reading dropped under backpressure",
				"device_id", reading.DeviceID, "offset", msg.Offset)
		}
	}
}

func (s *KafkaSource) toReading(payload readingMessage) models.Reading {
	// NewReading assigns a fresh ID and timestamp; keep the producer's when
	// it supplied them.
	reading := models.NewReading(payload.DeviceID, payload.Value, payload.ErrorBits)
	if payload.ID != "" {
		reading.ID = payload.ID
	}
	if payload.Timestamp > 0 {
		reading.Timestamp = time.UnixMilli(payload.Timestamp).UTC()
	}
	return reading
}
