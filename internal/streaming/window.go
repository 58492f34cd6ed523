package streaming

import (
	"sync"

	"github.com/smartenergy/aeos/pkg/models"
)

// RollingWindow is a bounded, FIFO-evicting history of readings. It is
// mutated only by the engine's consumer goroutine; every other reader must
// go through Snapshot, which copies the contents under the lock while the
// consumer keeps appending.
type RollingWindow struct {
	mu       sync.Mutex
	capacity int
	readings []models.Reading
}

// NewRollingWindow creates a window holding at most capacity readings.
func NewRollingWindow(capacity int) *RollingWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &RollingWindow{
		capacity: capacity,
		readings: make([]models.Reading, 0, capacity),
	}
}

// Append adds a reading, evicting the oldest entry when the window is full.
func (w *RollingWindow) Append(r models.Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.readings) >= w.capacity {
		// Shift instead of re-slicing so the backing array does not grow
		// without bound over the life of the process.
		copy(w.readings, w.readings[1:])
		w.readings[len(w.readings)-1] = r
		return
	}
	w.readings = append(w.readings, r)
}

// Snapshot returns a copy of the current contents in insertion order.
func (w *RollingWindow) Snapshot() []models.Reading {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]models.Reading, len(w.readings))
	copy(out, w.readings)
	return out
}

// Len returns the current number of readings held.
func (w *RollingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.readings)
}

// Values returns a copy of just the consumption values in insertion order.
func (w *RollingWindow) Values() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]float64, len(w.readings))
	for i, r := range w.readings {
		out[i] = r.Value
	}
	return out
}

// Clear empties the window.
func (w *RollingWindow) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readings = w.readings[:0]
}
