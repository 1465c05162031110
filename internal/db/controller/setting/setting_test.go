package setting

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/confstore/confstore/internal/db/models"
	"github.com/confstore/confstore/internal/db/tx"
	"github.com/confstore/confstore/internal/settings"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create test database")

	// an in memory database lives in a single connection
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	// Migrate the schema
	err = db.AutoMigrate(&models.Setting{})
	require.NoError(t, err, "failed to migrate test database")

	return db
}

func setupRepository(t *testing.T, opts ...Option) (*Repository, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	repo, err := New(db, opts...)
	require.NoError(t, err)

	return repo, db
}

// seedSettings inserts test data into the database.
func seedSettings(t *testing.T, db *gorm.DB, rows []models.Setting) {
	t.Helper()

	for _, row := range rows {
		err := db.Create(&row).Error
		require.NoError(t, err, "failed to seed test data")
	}
}

func names(t *testing.T, db *gorm.DB, category string) []string {
	t.Helper()

	var out []string
	require.NoError(t, db.Model(&models.Setting{}).
		Where("category = ?", category).
		Order("name").
		Pluck("name", &out).Error)

	return out
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrDBNil)

	repo, err := New(setupTestDB(t), WithBatchSize(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, repo.batchSize, "invalid batch sizes are ignored")
}

func TestLoad(t *testing.T) {
	testCases := []struct {
		name          string
		category      string
		seedData      []models.Setting
		expectedError error
		expected      settings.Settings
	}{
		{
			name:          "category not found",
			category:      "mail",
			expectedError: settings.ErrCategoryNotFound,
		},
		{
			name:     "nested settings",
			category: "mail",
			seedData: []models.Setting{
				{Category: "mail", Name: "fromName", Value: []byte(`"Site"`)},
				{Category: "mail", Name: "transport.port", Value: []byte(`25`)},
				{Category: "mail", Name: "transport.tls", Value: []byte(`false`)},
				{Category: "system", Name: "siteName", Value: []byte(`"other"`)},
			},
			expected: settings.Settings{
				"fromName": "Site",
				"transport": map[string]any{
					"port": float64(25),
					"tls":  false,
				},
			},
		},
		{
			name:     "global category",
			category: "",
			seedData: []models.Setting{
				{Name: "siteName", Value: []byte(`"global"`)},
			},
			expected: settings.Settings{"siteName": "global"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, db := setupRepository(t)
			seedSettings(t, db, tc.seedData)

			record, err := repo.Load(context.Background(), tc.category)

			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				assert.Nil(t, record)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.category, record.Category)
			assert.Equal(t, tc.expected, record.Settings)
			assert.False(t, record.UpdatedAt.IsZero())
		})
	}
}

func TestLoadStructuralConflict(t *testing.T) {
	repo, db := setupRepository(t)
	seedSettings(t, db, []models.Setting{
		{Category: "mail", Name: "transport", Value: []byte(`"smtp"`)},
		{Category: "mail", Name: "transport.port", Value: []byte(`25`)},
	})

	_, err := repo.Load(context.Background(), "mail")

	var conflict *settings.StructuralConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "transport.port", conflict.Path)
}

func TestLoadUndecodableValue(t *testing.T) {
	repo, db := setupRepository(t)
	seedSettings(t, db, []models.Setting{
		{Category: "mail", Name: "broken", Value: []byte(`{not json`)},
	})

	_, err := repo.Load(context.Background(), "mail")
	assert.True(t, settings.IsBackendError(err))
}

func TestLoadUpdatedAt(t *testing.T) {
	repo, db := setupRepository(t)
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	seedSettings(t, db, []models.Setting{
		{Category: "mail", Name: "a", Value: []byte(`1`), UpdatedAt: older},
		{Category: "mail", Name: "b", Value: []byte(`2`), UpdatedAt: newer},
	})

	record, err := repo.Load(context.Background(), "mail")
	require.NoError(t, err)
	assert.True(t, newer.Equal(record.UpdatedAt), "the newest row defines the update time, got %s", record.UpdatedAt)
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	repo, db := setupRepository(t)

	seedSettings(t, db, []models.Setting{
		{Category: "mail", Name: "old", Value: []byte(`"value"`)},
		{Category: "system", Name: "siteName", Value: []byte(`"other"`)},
	})

	err := repo.Replace(ctx, "mail", settings.Settings{
		"fromName":  "Site",
		"transport": map[string]any{"port": 25, "host": "localhost"},
	}, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"fromName", "transport.host", "transport.port"}, names(t, db, "mail"))
	assert.Equal(t, []string{"siteName"}, names(t, db, "system"), "other categories are untouched")

	record, err := repo.Load(ctx, "mail")
	require.NoError(t, err)
	assert.Equal(t, settings.Settings{
		"fromName":  "Site",
		"transport": map[string]any{"port": float64(25), "host": "localhost"},
	}, record.Settings)
}

func TestReplaceEmptyDeletes(t *testing.T) {
	ctx := context.Background()
	repo, db := setupRepository(t)

	seedSettings(t, db, []models.Setting{
		{Category: "mail", Name: "old", Value: []byte(`"value"`)},
	})

	require.NoError(t, repo.Replace(ctx, "mail", nil, true))

	_, err := repo.Load(ctx, "mail")
	require.ErrorIs(t, err, settings.ErrCategoryNotFound)
}

func TestReplaceMerge(t *testing.T) {
	ctx := context.Background()
	repo, db := setupRepository(t)

	seedSettings(t, db, []models.Setting{
		{Category: "mail", Name: "fromName", Value: []byte(`"old"`)},
		{Category: "mail", Name: "keep", Value: []byte(`true`)},
	})

	require.NoError(t, repo.Replace(ctx, "mail", settings.Settings{"fromName": "new", "added": 1}, false))

	record, err := repo.Load(ctx, "mail")
	require.NoError(t, err)
	assert.Equal(t, settings.Settings{"fromName": "new", "keep": true, "added": float64(1)}, record.Settings)

	// merging nothing is a no-op
	require.NoError(t, repo.Replace(ctx, "mail", settings.Settings{}, false))
	assert.Len(t, names(t, db, "mail"), 3)
}

func TestReplaceInvalid(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name     string
		category string
		values   settings.Settings
		check    func(t *testing.T, err error)
	}{
		{
			name:     "key with separator",
			category: "mail",
			values:   settings.Settings{"transport.port": 25},
			check: func(t *testing.T, err error) {
				t.Helper()

				var invalid *settings.InvalidKeyError
				require.ErrorAs(t, err, &invalid)
			},
		},
		{
			name:     "category too long",
			category: string(make([]byte, 101)),
			values:   settings.Settings{"a": 1},
			check: func(t *testing.T, err error) {
				t.Helper()

				var validation *settings.ValidationError
				require.ErrorAs(t, err, &validation)
				assert.Equal(t, []string{"Field 'Category' failed validation tag 'max'"}, validation.Messages)
			},
		},
		{
			name:     "value not encodable",
			category: "mail",
			values:   settings.Settings{"fn": func() {}},
			check: func(t *testing.T, err error) {
				t.Helper()

				var validation *settings.ValidationError
				require.ErrorAs(t, err, &validation)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, db := setupRepository(t)
			seedSettings(t, db, []models.Setting{
				{Category: "mail", Name: "old", Value: []byte(`"value"`)},
			})

			err := repo.Replace(ctx, tc.category, tc.values, true)
			tc.check(t, err)

			assert.Equal(t, []string{"old"}, names(t, db, "mail"), "nothing was written")
		})
	}
}

func TestReplaceIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo, db := setupRepository(t, WithBatchSize(1))

	require.NoError(t, repo.Replace(ctx, "mail", settings.Settings{"fromName": "before"}, true))

	var (
		armed atomic.Bool
		calls atomic.Int32
	)

	err := db.Callback().Create().Before("gorm:create").Register("test:fail_third_insert", func(tx *gorm.DB) {
		if armed.Load() && calls.Add(1) == 3 {
			_ = tx.AddError(errors.New("insert failed")) //nolint:goerr113
		}
	})
	require.NoError(t, err)

	armed.Store(true)

	err = repo.Replace(ctx, "mail", settings.Settings{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}, true)
	require.Error(t, err)
	assert.True(t, settings.IsBackendError(err))
	assert.Contains(t, err.Error(), "insert failed")
	assert.EqualValues(t, 3, calls.Load(), "insertion stopped at the failing row")

	armed.Store(false)

	record, err := repo.Load(ctx, "mail")
	require.NoError(t, err)
	assert.Equal(t, settings.Settings{"fromName": "before"}, record.Settings, "the previous state survives")
}

func TestReplaceJoinsAmbientTransaction(t *testing.T) {
	ctx := context.Background()
	repo, db := setupRepository(t)

	require.NoError(t, repo.Replace(ctx, "mail", settings.Settings{"fromName": "before"}, true))

	outer := db.Begin()
	require.NoError(t, outer.Error)

	txCtx := tx.WithTx(ctx, outer)
	require.NoError(t, repo.Replace(txCtx, "mail", settings.Settings{"fromName": "inside"}, true))
	require.NoError(t, repo.Replace(txCtx, "system", settings.Settings{"siteName": "inside"}, true))

	// reads within the transaction see its writes
	record, err := repo.Load(txCtx, "mail")
	require.NoError(t, err)
	assert.Equal(t, "inside", record.Settings["fromName"])

	require.NoError(t, outer.Rollback().Error)

	record, err = repo.Load(ctx, "mail")
	require.NoError(t, err)
	assert.Equal(t, "before", record.Settings["fromName"], "the outer rollback undid the replace")

	_, err = repo.Load(ctx, "system")
	require.ErrorIs(t, err, settings.ErrCategoryNotFound)
}

func TestReplaceAmbientTransactionCommit(t *testing.T) {
	ctx := context.Background()
	repo, db := setupRepository(t)

	err := db.Transaction(func(outer *gorm.DB) error {
		return repo.Replace(tx.WithTx(ctx, outer), "mail", settings.Settings{"fromName": "committed"}, true)
	})
	require.NoError(t, err)

	record, err := repo.Load(ctx, "mail")
	require.NoError(t, err)
	assert.Equal(t, "committed", record.Settings["fromName"])
}

func TestDeleteByNames(t *testing.T) {
	seed := []models.Setting{
		{Category: "c", Name: "k1", Value: []byte(`1`)},
		{Category: "c", Name: "k2", Value: []byte(`2`)},
		{Category: "c", Name: "k3", Value: []byte(`3`)},
		{Category: "other", Name: "k1", Value: []byte(`1`)},
	}

	testCases := []struct {
		name          string
		deleteNames   []string
		expectedC     []string
		expectedOther []string
	}{
		{
			name:          "selected names",
			deleteNames:   []string{"k1", "k2"},
			expectedC:     []string{"k3"},
			expectedOther: []string{"k1"},
		},
		{
			name:          "no names deletes the category",
			deleteNames:   []string{},
			expectedC:     nil,
			expectedOther: []string{"k1"},
		},
		{
			name:          "unknown names",
			deleteNames:   []string{"missing"},
			expectedC:     []string{"k1", "k2", "k3"},
			expectedOther: []string{"k1"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, db := setupRepository(t)
			seedSettings(t, db, seed)

			require.NoError(t, repo.DeleteByNames(context.Background(), "c", tc.deleteNames))

			assert.Equal(t, tc.expectedC, names(t, db, "c"))
			assert.Equal(t, tc.expectedOther, names(t, db, "other"))
		})
	}
}

func TestDeleteByNamesTouchesRemainingRows(t *testing.T) {
	ctx := context.Background()
	repo, db := setupRepository(t)
	older := time.Now().Add(-2 * time.Hour).UTC().Truncate(time.Second)
	newer := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	seedSettings(t, db, []models.Setting{
		{Category: "mail", Name: "a", Value: []byte(`1`), UpdatedAt: older},
		{Category: "mail", Name: "b", Value: []byte(`2`), UpdatedAt: newer},
		{Category: "other", Name: "a", Value: []byte(`1`), UpdatedAt: older},
	})

	require.NoError(t, repo.DeleteByNames(ctx, "mail", []string{"b"}))

	record, err := repo.Load(ctx, "mail")
	require.NoError(t, err)
	assert.True(t, record.UpdatedAt.After(newer), "deleting the newest row moves the update time forward, got %s", record.UpdatedAt)

	other, err := repo.Load(ctx, "other")
	require.NoError(t, err)
	assert.True(t, older.Equal(other.UpdatedAt), "other categories keep their update time, got %s", other.UpdatedAt)

	require.NoError(t, repo.DeleteByNames(ctx, "other", []string{"missing"}))

	other, err = repo.Load(ctx, "other")
	require.NoError(t, err)
	assert.True(t, older.Equal(other.UpdatedAt), "deleting unknown names changes nothing, got %s", other.UpdatedAt)
}

func TestBackendErrors(t *testing.T) {
	ctx := context.Background()
	repo, db := setupRepository(t)

	// without a table every statement fails
	require.NoError(t, db.Migrator().DropTable(&models.Setting{}))

	_, err := repo.Load(ctx, "mail")
	assert.True(t, settings.IsBackendError(err))

	err = repo.Replace(ctx, "mail", settings.Settings{"a": 1}, true)
	assert.True(t, settings.IsBackendError(err))

	err = repo.DeleteByNames(ctx, "mail", nil)
	assert.True(t, settings.IsBackendError(err))
}
