package streaming

import (
	"time"

	"github.com/smartenergy/aeos/pkg/models"
)

// IngestBuffer is the bounded producer/consumer queue between callers and
// the rolling window. Producers block up to a timeout when the buffer is
// full and then drop; that is the backpressure contract, not an error.
type IngestBuffer struct {
	ch chan models.Reading
}

// NewIngestBuffer creates a buffer with the given capacity.
func NewIngestBuffer(capacity int) *IngestBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &IngestBuffer{ch: make(chan models.Reading, capacity)}
}

// Offer enqueues a reading, waiting up to timeout for space. It returns
// false when the buffer stayed full; the reading is dropped, not retried.
// A non-positive timeout makes the call non-blocking.
func (b *IngestBuffer) Offer(r models.Reading, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case b.ch <- r:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b.ch <- r:
		return true
	case <-timer.C:
		return false
	}
}

// Poll removes the oldest buffered reading, waiting up to timeout for one
// to arrive. The timeout keeps the consumer loop responsive to stop signals.
// A non-positive timeout makes the call non-blocking.
func (b *IngestBuffer) Poll(timeout time.Duration) (models.Reading, bool) {
	if timeout <= 0 {
		select {
		case r := <-b.ch:
			return r, true
		default:
			return models.Reading{}, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-b.ch:
		return r, true
	case <-timer.C:
		return models.Reading{}, false
	}
}

// Len reports the number of buffered readings.
func (b *IngestBuffer) Len() int {
	return len(b.ch)
}
