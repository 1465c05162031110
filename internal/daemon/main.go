// Package daemon wires database, settings store and web service together.
package daemon

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/confstore/confstore/internal/config"
	"github.com/confstore/confstore/internal/db"
	"github.com/confstore/confstore/internal/db/controller/category"
	"github.com/confstore/confstore/internal/db/controller/setting"
	"github.com/confstore/confstore/internal/db/tx"
	"github.com/confstore/confstore/internal/settings"
	"github.com/confstore/confstore/internal/web"
)

// ErrConfigNil is returned if no config was passed.
var ErrConfigNil = errors.New("config is nil")

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	DB         *gorm.DB
	Store      *settings.Store
	webService *web.Service
}

// Start starts the Daemon's web service and blocks until it is shut down by a signal.
func (d *Daemon) Start() error {
	if d.webService == nil {
		service, err := web.New(d.cfg, d.Store)
		if err != nil {
			return err
		}

		d.webService = service
	}

	go d.webService.WaitShutdown()

	addr := fmt.Sprintf(":%d", d.cfg.Webserver.Port)
	log.Info().Str("addr", addr).Str("layout", d.cfg.Store.Layout).Msg("starting web service")

	return d.webService.Start(addr)
}

// New opens and migrates the database and builds the settings store.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	gdb, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}

	if err = db.Migrate(gdb); err != nil {
		return nil, err
	}

	store, err := NewStore(cfg, gdb)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		cfg:   cfg,
		DB:    gdb,
		Store: store,
	}, nil
}

// NewRepository returns the repository of the configured storage layout.
func NewRepository(cfg *config.Config, gdb *gorm.DB) (settings.Repository, error) {
	switch cfg.Store.Layout {
	case config.LayoutRows, "":
		return setting.New(gdb, setting.WithBatchSize(cfg.Store.BatchSize))
	case config.LayoutBlob:
		return category.New(gdb)
	default:
		return nil, errors.Wrap(config.ErrUnknownLayout, cfg.Store.Layout)
	}
}

// NewStore builds the settings store with the configured defaults and cache.
func NewStore(cfg *config.Config, gdb *gorm.DB) (*settings.Store, error) {
	repo, err := NewRepository(cfg, gdb)
	if err != nil {
		return nil, err
	}

	defaults, err := config.ReadDefaults(cfg.Store.DefaultsFile)
	if err != nil {
		return nil, err
	}

	log.Debug().Int("categories", len(defaults)).Str("file", cfg.Store.DefaultsFile).Msg("default settings read")

	return settings.New(repo,
		settings.WithDefaults(defaults),
		settings.WithCacheTTL(cfg.Store.CacheTTL),
		settings.WithTxDetector(tx.InTransaction),
	)
}
