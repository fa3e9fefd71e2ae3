package geoloc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nvaidyanathan/panchangam-today/internal/models"
)

// preferenceRecord is the single-row table backing the durable preference.
// The fixed primary key makes Save an upsert.
type preferenceRecord struct {
	ID        uint `gorm:"primaryKey"`
	Latitude  float64
	Longitude float64
	Timezone  string
	Label     string
	Source    string
	UpdatedAt time.Time
}

func (preferenceRecord) TableName() string {
	return "location_preference"
}

const preferenceRowID = 1

// SQLiteStore is the durable PreferenceStore. One record, read at startup,
// written on every resolution or manual override, deleted on explicit clear.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if needed) the preference database at path
// and migrates its schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create preference directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open preference database: %w", err)
	}
	if err := db.AutoMigrate(&preferenceRecord{}); err != nil {
		return nil, fmt.Errorf("migrate preference schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads the stored preference. Returns ok=false when none is stored.
func (s *SQLiteStore) Load(ctx context.Context) (models.LocationPreference, bool, error) {
	var rec preferenceRecord
	err := s.db.WithContext(ctx).First(&rec, preferenceRowID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.LocationPreference{}, false, nil
		}
		return models.LocationPreference{}, false, fmt.Errorf("load preference: %w", err)
	}
	return models.LocationPreference{
		Coordinates: models.Coordinates{Latitude: rec.Latitude, Longitude: rec.Longitude},
		Timezone:    rec.Timezone,
		Label:       rec.Label,
		Source:      models.Source(rec.Source),
	}, true, nil
}

// Save upserts the single preference row.
func (s *SQLiteStore) Save(ctx context.Context, pref models.LocationPreference) error {
	rec := preferenceRecord{
		ID:        preferenceRowID,
		Latitude:  pref.Coordinates.Latitude,
		Longitude: pref.Coordinates.Longitude,
		Timezone:  pref.Timezone,
		Label:     pref.Label,
		Source:    string(pref.Source),
		UpdatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	return nil
}

// Clear deletes the stored preference. Clearing an empty store is not an error.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Delete(&preferenceRecord{}, preferenceRowID).Error; err != nil {
		return fmt.Errorf("clear preference: %w", err)
	}
	return nil
}
