package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartenergy/aeos/pkg/models"
)

func TestRollingWindowEvictsOldest(t *testing.T) {
	w := NewRollingWindow(3)

	for _, v := range []float64{1, 2, 3, 4} {
		w.Append(models.NewReading("M-001", v, 0))
	}

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []float64{2, 3, 4}, w.Values())
}

func TestRollingWindowSnapshotIsACopy(t *testing.T) {
	w := NewRollingWindow(4)
	w.Append(models.NewReading("M-001", 1, 0))

	snap := w.Snapshot()
	require.Len(t, snap, 1)

	w.Append(models.NewReading("M-001", 2, 0))
	assert.Len(t, snap, 1, "snapshot must not see later appends")
}

func TestRollingWindowClear(t *testing.T) {
	w := NewRollingWindow(4)
	w.Append(models.NewReading("M-001", 1, 0))
	w.Append(models.NewReading("M-001", 2, 0))

	w.Clear()
	assert.Zero(t, w.Len())
	assert.Empty(t, w.Values())

	// Still usable after a clear.
	w.Append(models.NewReading("M-001", 3, 0))
	assert.Equal(t, []float64{3}, w.Values())
}
