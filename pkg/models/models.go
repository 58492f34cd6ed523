package models

import (
	"time"

	"github.com/google/uuid"
)

// Reading represents a single energy consumption sample reported by a device.
// Readings are immutable once created; every layer of the system passes them
// by value.
type Reading struct {
	ID        string    `json:"id" validate:"required"`
	DeviceID  string    `json:"device_id" validate:"required,max=64"`
	Value     float64   `json:"value" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
	ErrorBits int       `json:"error_bits" validate:"min=0,max=64"`
}

// NewReading builds a reading with a generated ID and the current timestamp.
func NewReading(deviceID string, value float64, errorBits int) Reading {
	return Reading{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Value:     value,
		Timestamp: time.Now().UTC(),
		ErrorBits: errorBits,
	}
}

// PredictionStatus classifies a prediction by its confidence score.
type PredictionStatus string

const (
	StatusLowConfidence  PredictionStatus = "LOW_CONFIDENCE"
	StatusNormal         PredictionStatus = "NORMAL"
	StatusHighConfidence PredictionStatus = "HIGH_CONFIDENCE"
)

// Prediction is the output of the streaming prediction engine. It is produced
// fresh per call and never persisted.
type Prediction struct {
	Value      float64          `json:"value"`
	Confidence float64          `json:"confidence"`
	Status     PredictionStatus `json:"status"`
	Timestamp  time.Time        `json:"timestamp"`
}

// StatusForConfidence derives the prediction status from a confidence score.
func StatusForConfidence(confidence float64) PredictionStatus {
	switch {
	case confidence < 0.5:
		return StatusLowConfidence
	case confidence > 0.9:
		return StatusHighConfidence
	default:
		return StatusNormal
	}
}

// CorrectedRecord is a before/after comparison produced by the correction
// applier for a single reading.
type CorrectedRecord struct {
	DeviceID          string    `json:"device_id"`
	Original          float64   `json:"original"`
	Corrected         float64   `json:"corrected"`
	Correction        float64   `json:"correction"`
	CorrectionPercent float64   `json:"correction_percent"`
	ErrorBits         int       `json:"error_bits"`
	Timestamp         time.Time `json:"timestamp"`
}

// MachineStatistics summarises the learned adaptation state for one device.
type MachineStatistics struct {
	DeviceID         string  `json:"machine_id"`
	ErrorRate        float64 `json:"error_rate"`
	CorrectionFactor float64 `json:"correction_factor"`
	Reliability      float64 `json:"reliability"`
	Confidence       float64 `json:"confidence"`
	SamplesProcessed int64   `json:"samples_processed"`
}

// MachineProfileExport is the per-device entry of a profile export. The field
// set and names are consumed by external report tooling and must not change.
type MachineProfileExport struct {
	ErrorRate        float64 `json:"errorRate"`
	CorrectionFactor float64 `json:"correctionFactor"`
	Reliability      float64 `json:"reliability"`
}

// ProfileExport is the serialized form of the adaptation profile store.
type ProfileExport struct {
	MachineProfiles  map[string]MachineProfileExport `json:"machineProfiles"`
	GlobalThreshold  float64                         `json:"globalThreshold"`
	SamplesProcessed int64                           `json:"samplesProcessed"`
}

// WindowStats carries single-shot statistics over the current rolling
// history window.
type WindowStats struct {
	Mean             float64 `json:"mean"`
	Min              float64 `json:"min"`
	Max              float64 `json:"max"`
	StdDev           float64 `json:"std_dev"`
	Trend            float64 `json:"trend"`
	WindowSize       int     `json:"window_size"`
	BufferDepth      int     `json:"buffer_depth"`
	RecordsProcessed int64   `json:"records_processed"`
}
