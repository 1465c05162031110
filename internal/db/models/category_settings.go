package models

import (
	"time"

	"gorm.io/datatypes"
)

// CategorySettings holds all settings of a category as one JSON document (blob layout).
type CategorySettings struct {
	// ID is the unique identifier for the record.
	ID uint64 `gorm:"primaryKey"`
	// Category is the unique name of the settings category.
	Category string `gorm:"size:100;not null;uniqueIndex" validate:"required,max=100"`
	// Settings is the nested settings document.
	Settings datatypes.JSON `validate:"required"`
	// CreatedAt is the time the record was created.
	CreatedAt time.Time
	// UpdatedAt is the time of the last write.
	UpdatedAt time.Time
}

// TableName returns the table name for gorm.
func (CategorySettings) TableName() string {
	return "category_settings"
}

// All returns all models to be migrated.
func All() []any {
	return []any{
		&Setting{},
		&CategorySettings{},
	}
}
