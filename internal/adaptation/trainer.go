package adaptation

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/smartenergy/aeos/internal/config"
	"github.com/smartenergy/aeos/pkg/models"
)

// Trainer advances per-device adaptation profiles from batches of observed
// readings. Batches run a fixed number of synthetic epochs per device and
// smooth the result into the profile; callers serialize TrainBatch calls,
// readers may observe a slightly stale profile in the meantime.
type Trainer struct {
	cfg    config.AdaptationConfig
	store  *Store
	logger *zap.SugaredLogger

	baseLearningRate float64
}

// NewTrainer creates a trainer writing into the given store.
func NewTrainer(cfg config.AdaptationConfig, store *Store, logger *zap.Logger) *Trainer {
	return &Trainer{
		cfg:              cfg,
		store:            store,
		logger:           logger.Sugar().Named("adaptation"),
		baseLearningRate: 0.1,
	}
}

// TrainBatch groups the records by device and trains each group. Empty
// batches are a no-op.
func (t *Trainer) TrainBatch(records []models.Reading) {
	if len(records) == 0 {
		return
	}

	groups := make(map[string][]models.Reading)
	for _, r := range records {
		groups[r.DeviceID] = append(groups[r.DeviceID], r)
	}

	for deviceID, group := range groups {
		t.trainDevice(deviceID, group)
	}

	t.logger.Infow("adaptation batch trained",
		"records", len(records),
		"devices", len(groups),
	)
}

func (t *Trainer) trainDevice(deviceID string, records []models.Reading) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profileLocked(deviceID)

	avgErrorBits := 0.0
	for _, r := range records {
		avgErrorBits += float64(r.ErrorBits)
	}
	avgErrorBits /= float64(len(records))

	for epoch := 0; epoch < t.cfg.EpochsPerBatch; epoch++ {
		p.EpochCount++

		epochAccuracy := epochAccuracy(avgErrorBits, epoch, p.EpochCount)
		p.Accuracy = t.cfg.AccuracyAlpha*epochAccuracy + (1-t.cfg.AccuracyAlpha)*p.Accuracy

		// Learning rate decays across the epochs of a batch.
		learningRate := t.baseLearningRate / (1 + 0.1*float64(epoch))

		s.learningHistory[deviceID] = append(s.learningHistory[deviceID], LearningEpoch{
			DeviceID:     deviceID,
			Epoch:        p.EpochCount,
			LearningRate: learningRate,
			Accuracy:     p.Accuracy,
			Confidence:   blendedConfidence(len(records), p.EpochCount),
			Records:      len(records),
			Timestamp:    time.Now().UTC(),
		})
	}

	// Per-record error-pattern tracking, independently keyed and smoothed.
	for _, r := range records {
		detected := DetectErrorPattern(r.Value)
		s.errorRates[deviceID] = t.cfg.ErrorRateAlpha*detected +
			(1-t.cfg.ErrorRateAlpha)*s.errorRates[deviceID]
		s.multipliers[deviceID] = correctionMultiplier(detected)
	}
	p.SampleCount += int64(len(records))
}

// epochAccuracy models the synthetic learning curve: error bits set the
// base, repeated epochs within a batch boost it, and total epoch count
// saturates the improvement. The result is capped at 0.95.
func epochAccuracy(avgErrorBits float64, epoch, totalEpochs int) float64 {
	baseAccuracy := math.Max(0, 100-avgErrorBits*8) / 100.0
	epochFactor := 1 + math.Min(0.3, float64(epoch)*0.1)
	learningCurve := 1 - math.Exp(-float64(totalEpochs)*0.3)

	return math.Min(0.95, baseAccuracy*epochFactor*(0.7+0.3*learningCurve))
}

// blendedConfidence weighs data volume against completed epochs.
func blendedConfidence(recordCount, epochs int) float64 {
	dataConfidence := math.Min(1.0, float64(recordCount)/100.0)
	epochConfidence := math.Min(1.0, float64(epochs)/10.0)
	return dataConfidence*0.6 + epochConfidence*0.4
}
