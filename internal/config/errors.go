package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("toml config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("toml config webserver.port listening port can not be 0")

	// ErrUnknownLayout error if config store.layout is neither rows nor blob.
	ErrUnknownLayout = errors.New("toml config store.layout must be rows or blob")

	// ErrUnknownEngine error if config db.gormEngine is not supported.
	ErrUnknownEngine = errors.New("toml config db.gormEngine must be mysql, postgres or sqlite")
)
