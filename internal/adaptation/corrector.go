package adaptation

import (
	"math"
	"math/bits"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/smartenergy/aeos/pkg/metrics"
	"github.com/smartenergy/aeos/pkg/models"
)

// Correction clamp bounds: a corrected value never leaves
// [0.7*original, 1.3*original].
const (
	clampLow  = 0.7
	clampHigh = 1.3

	// A correction whose raw magnitude exceeds half the original value is
	// considered implausible and replaced with a conservative one.
	sanityRatio = 0.5
)

// DetectErrorPattern estimates a transmission-error magnitude from the
// population count of the value's IEEE-754 bit pattern, measured as the
// deviation from the expected 32 of 64 set bits. The correction tiers and
// thresholds downstream are tuned to this exact signal.
func DetectErrorPattern(value float64) float64 {
	bitCount := bits.OnesCount64(math.Float64bits(value))

	const expectedBitCount = 32.0
	return math.Abs(float64(bitCount)-expectedBitCount) / expectedBitCount
}

// correctionMultiplier maps a detected error magnitude onto the
// multiplicative-path correction factor, tiered so high-error devices get
// proportionally stronger corrections.
func correctionMultiplier(detectedError float64) float64 {
	switch {
	case detectedError > 0.3:
		return 1.0 + detectedError*0.5
	case detectedError > 0.15:
		return 1.0 + detectedError*0.3
	default:
		return 1.0 + detectedError*0.1
	}
}

// errorInfluence scales how strongly a reading's error bits drive the
// bounded correction path, saturating at 10 error bits.
func errorInfluence(errorBits int) float64 {
	return math.Min(1.0, float64(errorBits)/10.0)
}

// Corrector applies learned corrections to raw readings. Two correction
// paths coexist: ApplyCorrections uses the bounded factor learned by the
// epoch trainer, AdaptiveCorrect uses the multiplicative factor learned from
// bit patterns. Both clamp their result to the same bounds.
type Corrector struct {
	store  *Store
	logger *zap.SugaredLogger
}

// NewCorrector creates a corrector reading from the given store.
func NewCorrector(store *Store, logger *zap.Logger) *Corrector {
	return &Corrector{
		store:  store,
		logger: logger.Sugar().Named("corrector"),
	}
}

// ApplyCorrections corrects a batch of readings using each device's bounded
// correction factor and records the before/after comparison per device.
func (c *Corrector) ApplyCorrections(records []models.Reading) []models.CorrectedRecord {
	out := make([]models.CorrectedRecord, 0, len(records))

	for _, r := range records {
		corrected := c.correctBounded(r)

		record := models.CorrectedRecord{
			DeviceID:   r.DeviceID,
			Original:   r.Value,
			Corrected:  corrected,
			Correction: corrected - r.Value,
			ErrorBits:  r.ErrorBits,
			Timestamp:  r.Timestamp,
		}
		if r.Value != 0 {
			record.CorrectionPercent = record.Correction / r.Value * 100
		}
		out = append(out, record)

		c.store.mu.Lock()
		c.store.correctionHistory[r.DeviceID] = append(c.store.correctionHistory[r.DeviceID], record)
		c.store.mu.Unlock()

		metrics.CorrectionsApplied.WithLabelValues(r.DeviceID).Inc()
	}
	return out
}

// correctBounded is the bounded correction path: the factor learned by the
// epoch trainer, scaled by how many error bits the reading carries.
func (c *Corrector) correctBounded(r models.Reading) float64 {
	var factor float64
	if p, ok := c.store.Profile(r.DeviceID); ok {
		factor = p.CorrectionFactor()
	} else {
		// Unseen device: seeded accuracy, same as a first training batch.
		factor = 0.5 * 0.15
	}

	corrected := r.Value * (1 + factor*errorInfluence(r.ErrorBits))
	return c.guard(r, corrected)
}

// AdaptiveCorrect is the multiplicative correction path driven by the
// bit-pattern factor, defaulting to the identity multiplier.
func (c *Corrector) AdaptiveCorrect(r models.Reading) float64 {
	corrected := r.Value * c.store.Multiplier(r.DeviceID)
	return c.guard(r, corrected)
}

// PredictiveCorrect applies a device's multiplicative factor to a predicted
// value with no history of its own.
func (c *Corrector) PredictiveCorrect(deviceID string, value float64) float64 {
	return value * c.store.Multiplier(deviceID)
}

// guard rejects implausibly large corrections in favor of a conservative
// one, then clamps the result to the fixed bounds around the original.
func (c *Corrector) guard(r models.Reading, corrected float64) float64 {
	original := r.Value

	if math.Abs(corrected-original) > math.Abs(original)*sanityRatio {
		detected := DetectErrorPattern(original)
		corrected = original * (1 + detected*0.1)
		c.logger.Debugw("correction exceeded sanity bound, using conservative factor",
			"device_id", r.DeviceID,
			"original", original,
			"detected_error", detected,
		)
	}

	low := original * clampLow
	high := original * clampHigh
	if low > high {
		// Negative original flips the bounds.
		low, high = high, low
	}
	return math.Min(high, math.Max(low, corrected))
}

// CorrectionStatistics aggregates a device's correction history. Energy
// totals accumulate in decimals so long histories do not drift.
type CorrectionStatistics struct {
	DeviceID             string          `json:"machine_id"`
	RecordCount          int             `json:"record_count"`
	AvgCorrectionPercent float64         `json:"avg_correction_percent"`
	TotalEnergyBefore    decimal.Decimal `json:"total_energy_before"`
	TotalEnergyAfter     decimal.Decimal `json:"total_energy_after"`
	TotalCorrection      decimal.Decimal `json:"total_correction"`
}

// Statistics summarises the corrections applied to one device so far.
func (c *Corrector) Statistics(deviceID string) CorrectionStatistics {
	history := c.store.CorrectionHistory(deviceID)

	stats := CorrectionStatistics{
		DeviceID:          deviceID,
		RecordCount:       len(history),
		TotalEnergyBefore: decimal.Zero,
		TotalEnergyAfter:  decimal.Zero,
		TotalCorrection:   decimal.Zero,
	}
	if len(history) == 0 {
		return stats
	}

	var pctSum float64
	for _, record := range history {
		pctSum += record.CorrectionPercent
		stats.TotalEnergyBefore = stats.TotalEnergyBefore.Add(decimal.NewFromFloat(record.Original))
		stats.TotalEnergyAfter = stats.TotalEnergyAfter.Add(decimal.NewFromFloat(record.Corrected))
	}
	stats.AvgCorrectionPercent = pctSum / float64(len(history))
	stats.TotalCorrection = stats.TotalEnergyAfter.Sub(stats.TotalEnergyBefore)
	return stats
}
