package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/smartenergy/aeos/pkg/models"
)

// ProfileRecord is the persisted form of one device adaptation profile.
type ProfileRecord struct {
	DeviceID         string    `gorm:"primaryKey;column:device_id"`
	ErrorRate        float64   `gorm:"column:error_rate"`
	CorrectionFactor float64   `gorm:"column:correction_factor"`
	Reliability      float64   `gorm:"column:reliability"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (ProfileRecord) TableName() string { return "machine_profiles" }

// ProfileRepository persists adaptation profiles between process restarts.
type ProfileRepository struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// NewProfileRepository opens (or creates) the profile database at dsn and
// migrates the schema.
func NewProfileRepository(dsn string, logger *zap.Logger) (*ProfileRepository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open profile database: %w", err)
	}
	if err := db.AutoMigrate(&ProfileRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate profile schema: %w", err)
	}

	return &ProfileRepository{
		db:     db,
		logger: logger.Sugar().Named("storage"),
	}, nil
}

// SaveProfiles upserts every profile of an export in one transaction.
func (r *ProfileRepository) SaveProfiles(ctx context.Context, export models.ProfileExport) error {
	now := time.Now().UTC()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for deviceID, p := range export.MachineProfiles {
			record := ProfileRecord{
				DeviceID:         deviceID,
				ErrorRate:        p.ErrorRate,
				CorrectionFactor: p.CorrectionFactor,
				Reliability:      p.Reliability,
				UpdatedAt:        now,
			}
			if err := tx.Save(&record).Error; err != nil {
				return fmt.Errorf("failed to save profile for %s: %w", deviceID, err)
			}
		}
		return nil
	})
}

// LoadProfiles reads all persisted profiles.
func (r *ProfileRepository) LoadProfiles(ctx context.Context) (map[string]models.MachineProfileExport, error) {
	var records []ProfileRecord
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	out := make(map[string]models.MachineProfileExport, len(records))
	for _, record := range records {
		out[record.DeviceID] = models.MachineProfileExport{
			ErrorRate:        record.ErrorRate,
			CorrectionFactor: record.CorrectionFactor,
			Reliability:      record.Reliability,
		}
	}
	return out, nil
}

// DeleteProfile removes a persisted profile, mirroring a store reset.
func (r *ProfileRepository) DeleteProfile(ctx context.Context, deviceID string) error {
	if err := r.db.WithContext(ctx).Delete(&ProfileRecord{}, "device_id = ?", deviceID).Error; err != nil {
		return fmt.Errorf("failed to delete profile for %s: %w", deviceID, err)
	}
	return nil
}
