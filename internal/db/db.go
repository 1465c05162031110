// Package db opens the configured database and migrates the settings schema.
package db

import (
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/confstore/confstore/internal/config"
	"github.com/confstore/confstore/internal/db/dsn"
	"github.com/confstore/confstore/internal/db/models"
	gormadapter "github.com/confstore/confstore/internal/logger/adapter/gorm"
)

// Dialector returns the gorm dialector of the configured engine.
func Dialector(cfg *config.DB) (gorm.Dialector, error) {
	switch cfg.GormEngine {
	case config.EngineMySQL:
		return gormmysql.Open(dsn.Create(cfg)), nil
	case config.EnginePostgres:
		return postgres.Open(dsn.Create(cfg)), nil
	case config.EngineSQLite, "":
		return sqlite.Open(dsn.Create(cfg)), nil
	default:
		return nil, errors.Wrap(config.ErrUnknownEngine, cfg.GormEngine)
	}
}

// Open connects to the configured database. SQL statements are logged through zerolog.
func Open(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := Dialector(&cfg.DB)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormadapter.New(cfg.Log),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if cfg.DB.GormEngine == config.EngineSQLite || cfg.DB.GormEngine == "" {
		// sqlite allows only one writer, an in memory database only lives in its connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "failed to access sqlite connection pool")
		}

		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// Migrate creates or updates the settings tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}

	return nil
}
