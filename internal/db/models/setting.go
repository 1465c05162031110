// Package models contains database model definitions.
package models

import (
	"time"
)

// Setting is a single flattened setting of a category (rows layout).
type Setting struct {
	// ID is the unique identifier for the row.
	ID uint64 `gorm:"primaryKey"`
	// Category groups related settings, an empty category holds global settings.
	Category string `gorm:"size:100;not null;default:'';uniqueIndex:idx_settings_category_name" validate:"max=100"`
	// Name is the dotted path of the setting within its category.
	Name string `gorm:"size:255;not null;uniqueIndex:idx_settings_category_name" validate:"required,max=255"`
	// Value is the JSON encoded value.
	Value []byte
	// CreatedAt is the time the setting was first written.
	CreatedAt time.Time
	// UpdatedAt is the time of the last write.
	UpdatedAt time.Time
}

// TableName returns the table name for gorm.
func (Setting) TableName() string {
	return "settings"
}
