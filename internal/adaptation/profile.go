package adaptation

import (
	"math"
	"sync"
	"time"

	"github.com/smartenergy/aeos/pkg/models"
)

// Profile is the learned adaptation state for one device. Accuracy is an
// exponentially smoothed estimate seeded at 0.5 for unseen devices; the
// correction factor derived from it is bounded to [0, 0.15] by construction.
type Profile struct {
	DeviceID    string
	Accuracy    float64
	EpochCount  int
	SampleCount int64
}

// CorrectionFactor scales the smoothed accuracy into the correction range.
func (p *Profile) CorrectionFactor() float64 {
	return p.Accuracy * 0.15
}

// LearningEpoch records one synthetic training epoch for a device.
type LearningEpoch struct {
	DeviceID     string    `json:"machine_id"`
	Epoch        int       `json:"epoch"`
	LearningRate float64   `json:"learning_rate"`
	Accuracy     float64   `json:"accuracy"`
	Confidence   float64   `json:"confidence"`
	Records      int       `json:"records"`
	Timestamp    time.Time `json:"timestamp"`
}

// Store holds all per-device adaptation state. Training batches write under
// the lock; statistics and correction lookups take read locks and tolerate
// observing a profile mid-update between two batches.
//
// Two independently-keyed maps coexist deliberately: profiles carry the
// epoch-trained accuracy, errorRates carry the per-record bit-pattern error
// estimate, each with its own smoothing factor.
type Store struct {
	mu sync.RWMutex

	profiles    map[string]*Profile
	errorRates  map[string]float64
	multipliers map[string]float64

	learningHistory   map[string][]LearningEpoch
	correctionHistory map[string][]models.CorrectedRecord

	globalThreshold float64
	minSamples      int
}

// NewStore creates an empty profile store.
func NewStore(globalThreshold float64, minSamples int) *Store {
	return &Store{
		profiles:          make(map[string]*Profile),
		errorRates:        make(map[string]float64),
		multipliers:       make(map[string]float64),
		learningHistory:   make(map[string][]LearningEpoch),
		correctionHistory: make(map[string][]models.CorrectedRecord),
		globalThreshold:   globalThreshold,
		minSamples:        minSamples,
	}
}

// profileLocked returns the profile for a device, creating it lazily with
// the seeded accuracy. Callers hold the write lock.
func (s *Store) profileLocked(deviceID string) *Profile {
	p, ok := s.profiles[deviceID]
	if !ok {
		p = &Profile{DeviceID: deviceID, Accuracy: 0.5}
		s.profiles[deviceID] = p
	}
	return p
}

// Profile returns a copy of the device profile and whether it exists.
func (s *Store) Profile(deviceID string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[deviceID]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// ErrorRate returns the smoothed bit-pattern error estimate for a device.
func (s *Store) ErrorRate(deviceID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errorRates[deviceID]
}

// Multiplier returns the multiplicative-path correction factor, defaulting
// to the identity multiplier for unknown devices.
func (s *Store) Multiplier(deviceID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.multipliers[deviceID]; ok {
		return m
	}
	return 1.0
}

// Reliability converts a device's error rate into a reliability score.
func (s *Store) Reliability(deviceID string) float64 {
	return math.Max(0, 1.0-s.ErrorRate(deviceID))
}

// CorrectionConfidence scores how much observed data backs corrections for
// a device: it ramps linearly until the minimum sample threshold is met.
func (s *Store) CorrectionConfidence(deviceID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var samples int64
	if p, ok := s.profiles[deviceID]; ok {
		samples = p.SampleCount
	}
	return math.Min(1.0, float64(samples)/float64(s.minSamples))
}

// Statistics assembles the externally visible view of a device's learned
// state. Unknown devices report zeroed statistics with the seeded defaults.
func (s *Store) Statistics(deviceID string) models.MachineStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.MachineStatistics{DeviceID: deviceID}
	stats.ErrorRate = s.errorRates[deviceID]
	stats.Reliability = math.Max(0, 1.0-stats.ErrorRate)

	if p, ok := s.profiles[deviceID]; ok {
		stats.CorrectionFactor = p.CorrectionFactor()
		stats.SamplesProcessed = p.SampleCount
		stats.Confidence = math.Min(1.0, float64(p.SampleCount)/float64(s.minSamples))
	}
	return stats
}

// LearningHistory returns a copy of the recorded epochs for a device.
func (s *Store) LearningHistory(deviceID string) []LearningEpoch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LearningEpoch(nil), s.learningHistory[deviceID]...)
}

// CorrectionHistory returns a copy of the corrected records for a device.
func (s *Store) CorrectionHistory(deviceID string) []models.CorrectedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CorrectedRecord(nil), s.correctionHistory[deviceID]...)
}

// Reset deletes a device's profile and every piece of associated history.
// Profiles are never destroyed implicitly; this is the only removal path.
func (s *Store) Reset(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.profiles, deviceID)
	delete(s.errorRates, deviceID)
	delete(s.multipliers, deviceID)
	delete(s.learningHistory, deviceID)
	delete(s.correctionHistory, deviceID)
}

// Export serializes every trained profile in the structure consumed by the
// external report tooling. The field set must be preserved exactly.
func (s *Store) Export() models.ProfileExport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	export := models.ProfileExport{
		MachineProfiles: make(map[string]models.MachineProfileExport, len(s.profiles)),
		GlobalThreshold: s.globalThreshold,
	}
	for id, p := range s.profiles {
		errorRate := s.errorRates[id]
		export.MachineProfiles[id] = models.MachineProfileExport{
			ErrorRate:        errorRate,
			CorrectionFactor: p.CorrectionFactor(),
			Reliability:      math.Max(0, 1.0-errorRate),
		}
		export.SamplesProcessed += p.SampleCount
	}
	return export
}

// Seed warm-starts the store from previously persisted profiles. The
// persisted correction factor is folded back into the accuracy it was
// derived from; epoch and sample counts restart at zero so confidence is
// re-earned from fresh data. Seeding never overwrites a live profile.
func (s *Store) Seed(profiles map[string]models.MachineProfileExport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range profiles {
		if _, ok := s.profiles[id]; ok {
			continue
		}
		s.profiles[id] = &Profile{
			DeviceID: id,
			Accuracy: math.Min(1, math.Max(0, p.CorrectionFactor/0.15)),
		}
		s.errorRates[id] = p.ErrorRate
	}
}

// Devices lists every device with a trained profile.
func (s *Store) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		out = append(out, id)
	}
	return out
}
