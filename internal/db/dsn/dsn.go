// Package dsn provides Data Source Name construction utilities for database connections.
package dsn

import (
	"fmt"
	"strings"

	"github.com/confstore/confstore/internal/config"
)

const sqliteMemory = ":memory:"

// Create builds the Data Source Name for the configured gorm engine, sqlite if none is set.
func Create(dbCfg *config.DB) string {
	switch dbCfg.GormEngine {
	case config.EngineMySQL:
		return mysql(dbCfg)
	case config.EnginePostgres:
		return postgres(dbCfg)
	default:
		return sqlite(dbCfg)
	}
}

func mysql(dbCfg *config.DB) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.Name,
		dbCfg.Extras,
	)
}

func postgres(dbCfg *config.DB) string {
	out := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Name,
	)

	// extras are space separated key=value pairs, e.g. "sslmode=disable TimeZone=UTC"
	if dbCfg.Extras != "" {
		out += " " + dbCfg.Extras
	}

	return out
}

func sqlite(dbCfg *config.DB) string {
	path := dbCfg.Path
	if path == "" {
		path = sqliteMemory
	}

	if dbCfg.Extras == "" {
		return path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + dbCfg.Extras
}
