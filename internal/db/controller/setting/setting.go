// Package setting persists settings categories as one row per flattened setting.
package setting

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/confstore/confstore/internal/db/models"
	"github.com/confstore/confstore/internal/db/tx"
	"github.com/confstore/confstore/internal/settings"
)

const (
	categoryQueryPattern      = "category = ?"
	categoryNamesQueryPattern = "category = ? AND name IN ?"

	// DefaultBatchSize is the number of rows inserted per statement.
	DefaultBatchSize = 100
)

// ErrDBNil is returned when the database connection is nil.
var ErrDBNil = errors.New("database connection is nil")

type (
	// Repository implements settings.Repository on the settings table.
	Repository struct {
		db        *gorm.DB
		batchSize int
	}

	// Option configures a Repository.
	Option func(*Repository)
)

// WithBatchSize sets the number of rows inserted per statement.
func WithBatchSize(size int) Option {
	return func(r *Repository) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// New creates a rows layout repository.
func New(db *gorm.DB, opts ...Option) (*Repository, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	r := &Repository{db: db, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Load returns all settings of category.
func (r *Repository) Load(ctx context.Context, category string) (*settings.Record, error) {
	var rows []models.Setting

	result := tx.Get(ctx, r.db).
		Where(categoryQueryPattern, category).
		Order("id").
		Find(&rows)
	if result.Error != nil {
		return nil, &settings.BackendError{Op: "load", Category: category, Err: result.Error}
	}

	if len(rows) == 0 {
		return nil, settings.ErrCategoryNotFound
	}

	record := &settings.Record{Category: category}
	entries := make([]settings.Entry, len(rows))

	for i, row := range rows {
		var value any
		if err := json.Unmarshal(row.Value, &value); err != nil {
			return nil, &settings.BackendError{Op: "decode " + row.Name, Category: category, Err: err}
		}

		entries[i] = settings.Entry{Path: row.Name, Value: value}

		if row.UpdatedAt.After(record.UpdatedAt) {
			record.UpdatedAt = row.UpdatedAt
		}
	}

	expanded, err := settings.Expand(entries)
	if err != nil {
		return nil, err
	}

	record.Settings = expanded

	return record, nil
}

// Replace stores s for category. See settings.Repository.
func (r *Repository) Replace(ctx context.Context, category string, s settings.Settings, deletePrevious bool) error {
	rows, err := r.rows(category, s)
	if err != nil {
		return err
	}

	if len(rows) == 0 && !deletePrevious {
		return nil
	}

	return tx.Run(ctx, r.db, func(_ context.Context, db *gorm.DB) error {
		if deletePrevious {
			if result := db.Where(categoryQueryPattern, category).Delete(&models.Setting{}); result.Error != nil {
				return &settings.BackendError{Op: "delete", Category: category, Err: result.Error}
			}
		}

		if len(rows) == 0 {
			return nil
		}

		// the surrounding transaction is enough, no savepoint per batch
		insert := db.Session(&gorm.Session{SkipDefaultTransaction: true})
		if !deletePrevious {
			insert = insert.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "category"}, {Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			})
		}

		if result := insert.CreateInBatches(&rows, r.batchSize); result.Error != nil {
			return &settings.BackendError{Op: "insert", Category: category, Err: result.Error}
		}

		return nil
	})
}

// DeleteByNames removes the named settings of category, or all of them if names is empty.
// Deleting single names touches the remaining rows, so the category update time moves forward.
func (r *Repository) DeleteByNames(ctx context.Context, category string, names []string) error {
	if len(names) == 0 {
		if result := tx.Get(ctx, r.db).Where(categoryQueryPattern, category).Delete(&models.Setting{}); result.Error != nil {
			return &settings.BackendError{Op: "delete", Category: category, Err: result.Error}
		}

		return nil
	}

	return tx.Run(ctx, r.db, func(_ context.Context, db *gorm.DB) error {
		result := db.Where(categoryNamesQueryPattern, category, names).Delete(&models.Setting{})
		if result.Error != nil {
			return &settings.BackendError{Op: "delete", Category: category, Err: result.Error}
		}

		if result.RowsAffected == 0 {
			return nil
		}

		result = db.Model(&models.Setting{}).
			Where(categoryQueryPattern, category).
			UpdateColumn("updated_at", time.Now())
		if result.Error != nil {
			return &settings.BackendError{Op: "touch", Category: category, Err: result.Error}
		}

		return nil
	})
}

// rows flattens s into validated rows of category.
func (r *Repository) rows(category string, s settings.Settings) ([]models.Setting, error) {
	entries, err := settings.Flatten(s)
	if err != nil {
		return nil, err
	}

	rows := make([]models.Setting, len(entries))

	for i, e := range entries {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, &settings.ValidationError{Messages: []string{"Field '" + e.Path + "' " + err.Error()}}
		}

		rows[i] = models.Setting{Category: category, Name: e.Path, Value: value}

		if err = settings.Validate(&rows[i]); err != nil {
			return nil, err
		}
	}

	return rows, nil
}
