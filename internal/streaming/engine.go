package streaming

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/smartenergy/aeos/internal/config"
	"github.com/smartenergy/aeos/pkg/metrics"
	"github.com/smartenergy/aeos/pkg/models"
)

// Engine is the streaming prediction pipeline: a bounded ingestion buffer
// feeding a rolling history window, with a background trainer that
// periodically refits the model ensemble and publishes it atomically.
//
// Two goroutines run between Start and Stop: the consumer (sole mutator of
// the rolling window) and the online trainer. Predict, IsAnomaly and Stats
// may be called concurrently from any goroutine.
type Engine struct {
	cfg    config.StreamingConfig
	logger *zap.SugaredLogger

	buffer *IngestBuffer
	window *RollingWindow

	// Published ensemble. Readers load the pointer once per call and never
	// observe a partially trained instance.
	ensemble atomic.Pointer[Ensemble]

	processed     atomic.Int64
	sinceRetrain  atomic.Int64
	retrainSignal chan struct{}

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates a streaming engine from configuration. Call Start to
// launch the background workers.
func NewEngine(cfg config.StreamingConfig, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:           cfg,
		logger:        logger.Sugar().Named("streaming"),
		buffer:        NewIngestBuffer(cfg.BufferSize),
		window:        NewRollingWindow(cfg.WindowCapacity),
		retrainSignal: make(chan struct{}, 1),
	}
}

// Start launches the consumer and trainer goroutines. Calling Start on a
// running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(2)
	go e.consumeLoop(runCtx)
	go e.trainLoop(runCtx)

	e.logger.Infow("streaming engine started",
		"buffer_size", e.cfg.BufferSize,
		"window_capacity", e.cfg.WindowCapacity,
		"retrain_interval", e.cfg.RetrainInterval,
	)
}

// Stop signals both loops and waits for them to exit. The window and the
// published ensemble stay valid for reads after Stop.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.logger.Infow("streaming engine stopped", "records_processed", e.processed.Load())
}

// Ingest feeds one reading into the pipeline. It blocks up to the configured
// timeout when the buffer is full and then returns false; the dropped
// reading may simply be re-submitted by the caller.
func (e *Engine) Ingest(r models.Reading) bool {
	if e.buffer.Offer(r, e.cfg.IngestTimeout) {
		metrics.ReadingsIngested.Inc()
		return true
	}
	metrics.ReadingsDropped.Inc()
	e.logger.Debugw("reading dropped, ingestion buffer full",
		"device_id", r.DeviceID, "value", r.Value)
	return false
}

func (e *Engine) consumeLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		r, ok := e.buffer.Poll(e.cfg.ConsumerPoll)
		if !ok {
			continue
		}

		e.window.Append(r)
		e.processed.Add(1)
		metrics.WindowDepth.Set(float64(e.window.Len()))

		if e.sinceRetrain.Add(1) >= int64(e.cfg.RetrainThreshold) {
			select {
			case e.retrainSignal <- struct{}{}:
			default:
			}
		}
	}
}

func (e *Engine) trainLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.RetrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.retrain("interval")
		case <-e.retrainSignal:
			e.retrain("threshold")
			ticker.Reset(e.cfg.RetrainInterval)
		}
	}
}

// retrain snapshots the window, fits a brand-new ensemble and publishes it
// with a single pointer swap. The live ensemble is never touched.
func (e *Engine) retrain(trigger string) {
	values := e.window.Values()
	if len(values) < 2 {
		return
	}

	next := e.newEnsemble()
	next.Train(values)
	next.AdaptWeights()

	e.ensemble.Store(next)
	e.sinceRetrain.Store(0)
	metrics.RetrainCycles.WithLabelValues(trigger).Inc()

	e.logger.Debugw("ensemble retrained",
		"trigger", trigger,
		"samples", len(values),
		"rmse", next.RMSE(),
	)
}

func (e *Engine) newEnsemble() *Ensemble {
	return NewEnsemble(
		NewLinearFit(),
		NewNearestNeighbor(),
		NewKNN(e.cfg.KNNNeighbors),
		NewBootstrapForest(e.cfg.ForestTrees, e.cfg.ForestDepth),
	)
}

// Predict forecasts consumption at position x and scores its own confidence
// against the current history. With no history the result defaults to value
// 0 and confidence 0.5.
func (e *Engine) Predict(x float64) models.Prediction {
	start := time.Now()
	defer func() {
		metrics.PredictionLatency.Observe(time.Since(start).Seconds())
	}()

	ens := e.ensemble.Load()
	values := e.window.Values()

	if ens == nil || len(values) == 0 {
		return models.Prediction{
			Value:      0,
			Confidence: 0.5,
			Status:     models.StatusForConfidence(0.5),
			Timestamp:  time.Now().UTC(),
		}
	}

	value := ens.Predict(x)
	confidence := e.confidence(ens, values)

	return models.Prediction{
		Value:      value,
		Confidence: confidence,
		Status:     models.StatusForConfidence(confidence),
		Timestamp:  time.Now().UTC(),
	}
}

// confidence re-scores the ensemble over the history snapshot and maps the
// normalized error into [0,1]. Lower error means higher confidence.
func (e *Engine) confidence(ens *Ensemble, values []float64) float64 {
	var sse float64
	for i, v := range values {
		diff := ens.Predict(float64(i)) - v
		sse += diff * diff
	}
	rmse := math.Sqrt(sse / float64(len(values)))

	avg := mean(values)
	mape := rmse / (math.Abs(avg) + epsilon)

	return math.Max(0, math.Min(1, 1-mape))
}

// IsAnomaly flags a reading whose z-score against the current window
// exceeds the configured threshold. Windows below the minimum sample count
// never flag.
func (e *Engine) IsAnomaly(r models.Reading) bool {
	values := e.window.Values()
	if len(values) < e.cfg.AnomalyMinSamples {
		return false
	}

	m := mean(values)
	var variance float64
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	stdDev := math.Sqrt(variance / float64(len(values)))

	zScore := math.Abs(r.Value-m) / (stdDev + epsilon)
	if zScore > e.cfg.AnomalyZScore {
		metrics.AnomaliesDetected.Inc()
		return true
	}
	return false
}

// Forecast extrapolates the published ensemble steps positions past the end
// of the window. Without a trained ensemble it returns zeros.
func (e *Engine) Forecast(steps int) []float64 {
	ens := e.ensemble.Load()
	if ens == nil {
		return make([]float64, steps)
	}
	return ens.Forecast(steps)
}

// ModelAccuracies exposes the per-member accuracy of the published ensemble.
func (e *Engine) ModelAccuracies() map[string]float64 {
	ens := e.ensemble.Load()
	if ens == nil {
		return map[string]float64{}
	}
	return ens.Accuracies()
}

// Stats computes single-shot statistics over the current window.
func (e *Engine) Stats() models.WindowStats {
	values := e.window.Values()
	stats := models.WindowStats{
		WindowSize:       len(values),
		BufferDepth:      e.buffer.Len(),
		RecordsProcessed: e.processed.Load(),
	}
	if len(values) == 0 {
		return stats
	}

	stats.Mean = mean(values)
	stats.Min = values[0]
	stats.Max = values[0]
	var variance float64
	for _, v := range values {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		variance += (v - stats.Mean) * (v - stats.Mean)
	}
	stats.StdDev = math.Sqrt(variance / float64(len(values)))

	if len(values) >= 2 {
		recent := values[len(values)-1]
		base := values[maxInt(0, len(values)-11)]
		stats.Trend = (recent - base) / (math.Abs(base) + epsilon)
	}
	return stats
}

// Reset clears the window, the buffer and the processed counters. The
// published ensemble is left in place until the next retrain.
func (e *Engine) Reset() {
	e.window.Clear()
	e.processed.Store(0)
	e.sinceRetrain.Store(0)
	for {
		if _, ok := e.buffer.Poll(0); !ok {
			return
		}
	}
}

// Running reports whether the background workers are active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
