// Package config handles input from etc/*.toml files
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/confstore/confstore/internal/settings"
)

const (
	// EnvConfigJSON names the environment variable overriding the config file with a JSON document.
	EnvConfigJSON = "CONFSTORE_CONFIG_JSON"

	defaultPath         = "./etc/"
	defaultShutDownTime = 5
)

// ReadConfig from config file.
func ReadConfig(path string) (Config, error) {
	var (
		c             Config
		JSONConfigEnv string
		err           error
	)

	// Read main configuration
	if path == "" {
		path = defaultPath
	}

	v := viper.New()
	v.SetConfigName("main")
	v.SetConfigType("toml")
	v.AddConfigPath(path)

	if err = v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	if err = v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode main config file")
	}

	// override it from env
	JSONConfigEnv = os.Getenv(EnvConfigJSON)

	if JSONConfigEnv != "" {
		c, err = decodeAndMergeConfig(c, JSONConfigEnv)
		if err != nil {
			return c, err
		}
	}

	if c.Store.DefaultsFile != "" && !filepath.IsAbs(c.Store.DefaultsFile) {
		c.Store.DefaultsFile = filepath.Join(path, c.Store.DefaultsFile)
	}

	return c, validate(&c)
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	err := json.Unmarshal([]byte(configAsJSON), &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config from env")
	}

	return c, nil
}

// ReadDefaults reads the default settings per category from a toml file.
// Every top level table is a category. An empty path returns no defaults.
func ReadDefaults(path string) (map[string]settings.Settings, error) {
	if path == "" {
		return map[string]settings.Settings{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the config
	if err != nil {
		return nil, errors.Wrap(err, "failed to read defaults file")
	}

	var raw map[string]map[string]any
	if err = toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode defaults file")
	}

	defaults := make(map[string]settings.Settings, len(raw))
	for category, values := range raw {
		defaults[category] = values
	}

	return defaults, nil
}

// DumpConfig config as TOML String.
func DumpConfig(c *Config) (string, error) {
	var buffer bytes.Buffer
	t := toml.NewEncoder(&buffer)

	if err := t.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// DumpConfigJSON config as JSON String.
func DumpConfigJSON(c *Config) (string, error) {
	var buffer bytes.Buffer
	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// validate minimal config settings and apply defaults.
func validate(c *Config) error {
	invalidErrMessage := "invalid config"

	// validate webserver listening port
	if c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.URL == "" {
		return errors.Wrap(ErrEmptyURL, invalidErrMessage)
	}

	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = defaultShutDownTime
	}

	switch c.Store.Layout {
	case "":
		c.Store.Layout = LayoutRows
	case LayoutRows, LayoutBlob:
	default:
		return errors.Wrap(ErrUnknownLayout, invalidErrMessage)
	}

	switch c.DB.GormEngine {
	case "":
		c.DB.GormEngine = EngineSQLite
	case EngineMySQL, EnginePostgres, EngineSQLite:
	default:
		return errors.Wrap(ErrUnknownEngine, invalidErrMessage)
	}

	return nil
}
