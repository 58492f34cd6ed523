package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/smartenergy/aeos/internal/config"
	"github.com/smartenergy/aeos/pkg/models"
)

type captureSink struct {
	readings []models.Reading
	accept   bool
}

func (s *captureSink) Ingest(r models.Reading) bool {
	s.readings = append(s.readings, r)
	return s.accept
}

func newTestSource(t *testing.T, sink Sink) *KafkaSource {
	t.Helper()
	cfg := config.KafkaConfig{
		Brokers:       []string{"localhost:9092"},
		Topic:         "energy.readings",
		ConsumerGroup: "aeos-test",
		MinBytes:      1,
		MaxBytes:      1 << 20,
		MaxWait:       time.Second,
	}
	return NewKafkaSource(cfg, sink, zaptest.NewLogger(t))
}

func TestToReadingFillsDefaults(t *testing.T) {
	source := newTestSource(t, &captureSink{accept: true})

	var payload readingMessage
	require.NoError(t, json.Unmarshal(
		[]byte(`{"device_id":"M-001","value":45.5,"error_bits":2}`), &payload))

	reading := source.toReading(payload)
	assert.Equal(t, "M-001", reading.DeviceID)
	assert.Equal(t, 45.5, reading.Value)
	assert.Equal(t, 2, reading.ErrorBits)
	assert.NotEmpty(t, reading.ID, "missing IDs are generated on receipt")
	assert.False(t, reading.Timestamp.IsZero())
}

func TestToReadingKeepsProducerFields(t *testing.T) {
	source := newTestSource(t, &captureSink{accept: true})

	sent := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	payload := readingMessage{
		ID:        "0f8fad5b-d9cb-469f-a165-70867728950e",
		DeviceID:  "M-001",
		Value:     52.3,
		Timestamp: sent.UnixMilli(),
	}

	reading := source.toReading(payload)
	assert.Equal(t, payload.ID, reading.ID)
	assert.True(t, reading.Timestamp.Equal(sent))
}
