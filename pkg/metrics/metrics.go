package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReadingsIngested counts readings accepted into the ingestion buffer.
var ReadingsIngested = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "aeos_readings_ingested_total",
		Help: "Total number of readings accepted into the ingestion buffer",
	},
)

// ReadingsDropped counts readings dropped because the buffer stayed full
// past the ingest timeout.
var ReadingsDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "aeos_readings_dropped_total",
		Help: "Total number of readings dropped due to backpressure",
	},
)

// RetrainCycles counts online trainer retrain cycles by trigger
// (interval/threshold).
var RetrainCycles = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aeos_retrain_cycles_total",
		Help: "Total number of ensemble retrain cycles",
	},
	[]string{"trigger"},
)

// WindowDepth tracks the current rolling history window length.
var WindowDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "aeos_rolling_window_depth",
		Help: "Current number of readings held in the rolling window",
	},
)

// CorrectionsApplied counts corrections produced by the adaptation engine.
var CorrectionsApplied = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aeos_corrections_applied_total",
		Help: "Total number of corrected records produced",
	},
	[]string{"device"},
)

// AnomaliesDetected counts readings flagged by the z-score anomaly check.
var AnomaliesDetected = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "aeos_anomalies_detected_total",
		Help: "Total number of readings flagged as anomalous",
	},
)

// PredictionLatency records latency distribution for predict calls.
var PredictionLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "aeos_prediction_latency_seconds",
		Help:    "Latency in seconds to serve individual predictions",
		Buckets: prometheus.DefBuckets,
	},
)

func init() {
	prometheus.MustRegister(ReadingsIngested, ReadingsDropped, RetrainCycles)
	prometheus.MustRegister(WindowDepth, CorrectionsApplied, AnomaliesDetected, PredictionLatency)
}
