package streaming

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartenergy/aeos/pkg/models"
)

func TestIngestBufferOfferAndPoll(t *testing.T) {
	b := NewIngestBuffer(2)

	require.True(t, b.Offer(models.NewReading("M-001", 1, 0), 0))
	require.True(t, b.Offer(models.NewReading("M-001", 2, 0), 0))
	assert.Equal(t, 2, b.Len())

	r, ok := b.Poll(0)
	require.True(t, ok)
	assert.Equal(t, 1.0, r.Value, "buffer is FIFO")
}

func TestIngestBufferRejectsWhenFull(t *testing.T) {
	b := NewIngestBuffer(1)
	require.True(t, b.Offer(models.NewReading("M-001", 1, 0), 0))

	assert.False(t, b.Offer(models.NewReading("M-001", 2, 0), 0),
		"zero-timeout offers must not block on a full buffer")
	assert.False(t, b.Offer(models.NewReading("M-001", 3, 0), 10*time.Millisecond))
}

func TestIngestBufferConcurrentOffersDropExactlyOne(t *testing.T) {
	b := NewIngestBuffer(1)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.Offer(models.NewReading("M-001", float64(i), 0), 0)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, ok := range results {
		if ok {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted, "a full buffer accepts exactly one of two concurrent offers")
}

func TestIngestBufferPollTimesOut(t *testing.T) {
	b := NewIngestBuffer(1)

	start := time.Now()
	_, ok := b.Poll(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	_, ok = b.Poll(0)
	assert.False(t, ok, "zero-timeout poll on an empty buffer returns immediately")
}

func TestIngestBufferOfferUnblocksOnPoll(t *testing.T) {
	b := NewIngestBuffer(1)
	require.True(t, b.Offer(models.NewReading("M-001", 1, 0), 0))

	done := make(chan bool, 1)
	go func() {
		done <- b.Offer(models.NewReading("M-001", 2, 0), time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	_, ok := b.Poll(0)
	require.True(t, ok)

	select {
	case accepted := <-done:
		assert.True(t, accepted, "pending offer completes once capacity frees up")
	case <-time.After(time.Second):
		t.Fatal("offer did not complete after capacity freed up")
	}
}
