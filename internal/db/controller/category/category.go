// Package category persists settings categories as one JSON document per category.
package category

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/confstore/confstore/internal/db/models"
	"github.com/confstore/confstore/internal/db/tx"
	"github.com/confstore/confstore/internal/settings"
)

const (
	categoryQueryPattern = "category = ?"
)

// ErrDBNil is returned when the database connection is nil.
var ErrDBNil = errors.New("database connection is nil")

// Repository implements settings.Repository on the category_settings table.
type Repository struct {
	db *gorm.DB
}

// New creates a blob layout repository.
func New(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	return &Repository{db: db}, nil
}

// Load returns the settings document of category.
func (r *Repository) Load(ctx context.Context, category string) (*settings.Record, error) {
	return find(tx.Get(ctx, r.db), category)
}

// Replace stores s for category. See settings.Repository.
func (r *Repository) Replace(ctx context.Context, category string, s settings.Settings, deletePrevious bool) error {
	entries, err := settings.Flatten(s)
	if err != nil {
		return err
	}

	if len(entries) == 0 && !deletePrevious {
		return nil
	}

	values, err := settings.Expand(entries)
	if err != nil {
		return err
	}

	return tx.Run(ctx, r.db, func(_ context.Context, db *gorm.DB) error {
		if len(entries) == 0 {
			return remove(db, category)
		}

		if !deletePrevious {
			existing, err := find(db, category)

			switch {
			case err == nil:
				values = settings.Merge(existing.Settings, values)
			case !errors.Is(err, settings.ErrCategoryNotFound):
				return err
			}
		}

		return upsert(db, category, values)
	})
}

// DeleteByNames removes the named settings of category, or the whole record if names is empty.
func (r *Repository) DeleteByNames(ctx context.Context, category string, names []string) error {
	if len(names) == 0 {
		return remove(tx.Get(ctx, r.db), category)
	}

	drop := make(map[string]struct{}, len(names))
	for _, name := range names {
		drop[name] = struct{}{}
	}

	return tx.Run(ctx, r.db, func(_ context.Context, db *gorm.DB) error {
		existing, err := find(db, category)
		if errors.Is(err, settings.ErrCategoryNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		entries, err := settings.Flatten(existing.Settings)
		if err != nil {
			return err
		}

		kept := entries[:0]
		for _, e := range entries {
			if _, ok := drop[e.Path]; !ok {
				kept = append(kept, e)
			}
		}

		if len(kept) == len(entries) {
			return nil
		}

		if len(kept) == 0 {
			return remove(db, category)
		}

		values, err := settings.Expand(kept)
		if err != nil {
			return err
		}

		return upsert(db, category, values)
	})
}

func find(db *gorm.DB, category string) (*settings.Record, error) {
	var record models.CategorySettings

	result := db.Where(categoryQueryPattern, category).First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, settings.ErrCategoryNotFound
		}

		return nil, &settings.BackendError{Op: "load", Category: category, Err: result.Error}
	}

	values := settings.Settings{}
	if err := json.Unmarshal(record.Settings, &values); err != nil {
		return nil, &settings.BackendError{Op: "decode", Category: category, Err: err}
	}

	if values == nil {
		values = settings.Settings{}
	}

	return &settings.Record{
		Category:  record.Category,
		Settings:  values,
		UpdatedAt: record.UpdatedAt,
	}, nil
}

func upsert(db *gorm.DB, category string, values settings.Settings) error {
	data, err := json.Marshal(values)
	if err != nil {
		return &settings.ValidationError{Messages: []string{"Field 'Settings' " + err.Error()}}
	}

	record := models.CategorySettings{
		Category: category,
		Settings: datatypes.JSON(data),
	}

	if err = settings.Validate(&record); err != nil {
		return err
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"settings", "updated_at"}),
	}).Create(&record)
	if result.Error != nil {
		return &settings.BackendError{Op: "save", Category: category, Err: result.Error}
	}

	return nil
}

func remove(db *gorm.DB, category string) error {
	result := db.Where(categoryQueryPattern, category).Delete(&models.CategorySettings{})
	if result.Error != nil {
		return &settings.BackendError{Op: "delete", Category: category, Err: result.Error}
	}

	return nil
}
