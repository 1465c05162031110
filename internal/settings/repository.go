package settings

import (
	"context"
	"time"
)

// Record is the persisted state of a settings category.
type Record struct {
	Category string
	Settings Settings
	// UpdatedAt is the time of the last write, zero if unknown.
	UpdatedAt time.Time
}

// Repository persists settings scoped by category.
type Repository interface {
	// Load returns the persisted settings of category without defaults.
	// ErrCategoryNotFound is returned if nothing is stored for category.
	Load(ctx context.Context, category string) (*Record, error)

	// Replace stores s for category within a single transaction. With deletePrevious
	// all existing settings of the category are removed first, an empty s then only deletes.
	// Without deletePrevious s is merged into the existing settings.
	Replace(ctx context.Context, category string, s Settings, deletePrevious bool) error

	// DeleteByNames removes the named (flattened) settings of category.
	// If names is empty all settings of category are removed.
	DeleteByNames(ctx context.Context, category string, names []string) error
}
