package adaptation

import "fmt"

// Recommendations maps every tracked device to maintenance advice derived
// from its smoothed error rate, measured against the global threshold.
func (s *Store) Recommendations() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.errorRates))
	for deviceID, errorRate := range s.errorRates {
		switch {
		case errorRate > s.globalThreshold:
			out[deviceID] = fmt.Sprintf("High error rate (%.1f%%). Recommend maintenance inspection.", errorRate*100)
		case errorRate > s.globalThreshold*0.5:
			out[deviceID] = fmt.Sprintf("Elevated error rate (%.1f%%). Monitor closely.", errorRate*100)
		default:
			out[deviceID] = "Nominal operation. No action required."
		}
	}
	return out
}
