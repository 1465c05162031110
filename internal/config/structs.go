package config

import (
	"time"

	"github.com/confstore/confstore/internal/logger"
)

const (
	// LayoutRows stores one row per flattened setting.
	LayoutRows = "rows"
	// LayoutBlob stores one JSON document per category.
	LayoutBlob = "blob"
)

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	Store     Store
}

// Webserver implement webserver settings.
type Webserver struct {
	DisableRecover bool   // disable recover middleware
	Port           int    // listening port for the webserver
	ShutDownTime   int    // wait time for shutdown
	URL            string // base url for the webserver
}

// Store implements settings store settings.
type Store struct {
	Layout       string        // rows or blob
	CacheTTL     time.Duration // 0 = cache until invalidated
	BatchSize    int           // rows inserted per statement
	DefaultsFile string        // toml file with default settings per category, relative to the config path
}
