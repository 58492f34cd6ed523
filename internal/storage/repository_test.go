package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/smartenergy/aeos/pkg/models"
)

func newTestRepository(t *testing.T) *ProfileRepository {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "aeos_test.db")
	repo, err := NewProfileRepository(dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	return repo
}

func TestSaveAndLoadProfiles(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	export := models.ProfileExport{
		MachineProfiles: map[string]models.MachineProfileExport{
			"M-001": {ErrorRate: 0.12, CorrectionFactor: 0.09, Reliability: 0.88},
			"M-002": {ErrorRate: 0.01, CorrectionFactor: 0.075, Reliability: 0.99},
		},
		GlobalThreshold:  0.05,
		SamplesProcessed: 42,
	}
	require.NoError(t, repo.SaveProfiles(ctx, export))

	loaded, err := repo.LoadProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, export.MachineProfiles["M-001"], loaded["M-001"])
	assert.Equal(t, export.MachineProfiles["M-002"], loaded["M-002"])
}

func TestSaveProfilesUpserts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first := models.ProfileExport{
		MachineProfiles: map[string]models.MachineProfileExport{
			"M-001": {ErrorRate: 0.2, CorrectionFactor: 0.05, Reliability: 0.8},
		},
	}
	require.NoError(t, repo.SaveProfiles(ctx, first))

	second := models.ProfileExport{
		MachineProfiles: map[string]models.MachineProfileExport{
			"M-001": {ErrorRate: 0.1, CorrectionFactor: 0.06, Reliability: 0.9},
		},
	}
	require.NoError(t, repo.SaveProfiles(ctx, second))

	loaded, err := repo.LoadProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1, "saving the same device twice keeps one row")
	assert.Equal(t, 0.1, loaded["M-001"].ErrorRate)
}

func TestDeleteProfile(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	export := models.ProfileExport{
		MachineProfiles: map[string]models.MachineProfileExport{
			"M-001": {ErrorRate: 0.2, CorrectionFactor: 0.05, Reliability: 0.8},
			"M-002": {ErrorRate: 0.1, CorrectionFactor: 0.06, Reliability: 0.9},
		},
	}
	require.NoError(t, repo.SaveProfiles(ctx, export))
	require.NoError(t, repo.DeleteProfile(ctx, "M-001"))

	loaded, err := repo.LoadProfiles(ctx)
	require.NoError(t, err)
	assert.NotContains(t, loaded, "M-001")
	assert.Contains(t, loaded, "M-002")

	// Deleting a device that was never persisted is not an error.
	assert.NoError(t, repo.DeleteProfile(ctx, "ghost"))
}
