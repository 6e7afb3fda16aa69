package metadata

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SlpAus/habit-tracker-backend/pkg/civil"
)

// Migrate creates the metadata table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Metadata{}); err != nil {
		return fmt.Errorf("无法迁移metadata表: %w", err)
	}
	return nil
}

// --- Generic Accessors ---

// GetValue retrieves a value for a given key. A missing key yields "".
func GetValue(ctx context.Context, db *gorm.DB, key string) (string, error) {
	var meta Metadata
	err := db.WithContext(ctx).Where("key = ?", key).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return meta.Value, nil
}

// SetValue creates or updates a value for a given key.
func SetValue(ctx context.Context, db *gorm.DB, key, value string) error {
	meta := Metadata{
		Key:   key,
		Value: value,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&meta).Error
}

// --- Specific Helpers for Type Conversion ---

// GetLastReminderDate returns the date of the last reminder run, or the zero Date.
func GetLastReminderDate(ctx context.Context, db *gorm.DB) (civil.Date, error) {
	value, err := GetValue(ctx, db, LastReminderDateKey)
	if err != nil || value == "" {
		return civil.Date{}, err
	}
	d, err := civil.Parse(value)
	if err != nil {
		return civil.Date{}, fmt.Errorf("无法解析元数据 '%s' 的值: %w", LastReminderDateKey, err)
	}
	return d, nil
}

// SetLastReminderDate records the date of a completed reminder run.
func SetLastReminderDate(ctx context.Context, db *gorm.DB, d civil.Date) error {
	return SetValue(ctx, db, LastReminderDateKey, d.String())
}
