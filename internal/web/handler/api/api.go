// Package api implements the JSON settings API.
package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/confstore/confstore/internal/config"
	"github.com/confstore/confstore/internal/settings"
	"github.com/confstore/confstore/internal/web/handler"
)

const (
	// Path is the prefix of all settings routes.
	Path = "/api/settings"

	paramCategory = "category"
	paramKey      = "key"
	queryNames    = "names"
)

var (
	// ErrInitArguments is returned by Init if a required argument is nil.
	ErrInitArguments = errors.New(handler.ErrNilACSFatalLogMsg)

	errBodyNotObject = errors.New("request body must be a JSON object")
)

type (
	// Service is the settings API handler service.
	Service struct {
		handler.Service
		cfg   *config.Config
		store *settings.Store
	}

	// KeyResponse is returned for a single setting.
	KeyResponse struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}

	// UpdatedResponse is returned for the update time of a category.
	UpdatedResponse struct {
		Category string    `json:"category"`
		Updated  time.Time `json:"updated"`
	}

	// ErrorResponse is returned on failures.
	ErrorResponse struct {
		Error    string   `json:"error"`
		Messages []string `json:"messages,omitempty"`
	}
)

// Init registers the settings routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, store *settings.Store) error {
	if app == nil || cfg == nil || store == nil {
		return ErrInitArguments
	}

	s.cfg = cfg
	s.store = store

	router := app.Group(Path)
	router.Get("/:category", s.Get)
	router.Get("/:category/key/:key", s.GetKey)
	router.Get("/:category/updated", s.GetUpdated)
	router.Put("/:category", s.Put)
	router.Delete("/:category", s.Delete)

	return nil
}

// Get returns the merged settings of a category.
func (s *Service) Get(c fiber.Ctx) error {
	category := c.Params(paramCategory)

	values, err := s.store.GetSettings(c.Context(), category)
	if err != nil {
		return s.fail(c, category, err)
	}

	return c.JSON(values)
}

// GetKey returns a single setting, nested values are addressed by a dotted key.
func (s *Service) GetKey(c fiber.Ctx) error {
	category := c.Params(paramCategory)
	key := c.Params(paramKey)

	value, ok, err := s.store.GetSetting(c.Context(), category, key)
	if err != nil {
		return s.fail(c, category, err)
	}

	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "setting " + key + " not found"})
	}

	return c.JSON(KeyResponse{Key: key, Value: value})
}

// GetUpdated returns the time of the last write to a category.
func (s *Service) GetUpdated(c fiber.Ctx) error {
	category := c.Params(paramCategory)

	updated, ok, err := s.store.GetCategoryTimeUpdated(c.Context(), category)
	if err != nil {
		return s.fail(c, category, err)
	}

	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "category " + category + " not found"})
	}

	return c.JSON(UpdatedResponse{Category: category, Updated: updated})
}

// Put replaces all settings of a category. An empty object deletes them.
func (s *Service) Put(c fiber.Ctx) error {
	category := c.Params(paramCategory)

	var values settings.Settings
	if err := c.App().Config().JSONDecoder(c.Body(), &values); err != nil {
		log.Debug().Err(err).Str("category", category).Msg("invalid settings body")
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	if values == nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: errBodyNotObject.Error()})
	}

	if err := s.store.SaveSettings(c.Context(), category, values); err != nil {
		return s.fail(c, category, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Delete removes the settings given by the comma separated names query, or the whole category.
func (s *Service) Delete(c fiber.Ctx) error {
	category := c.Params(paramCategory)

	var names []string

	for _, name := range strings.Split(c.Query(queryNames), ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	if err := s.store.DeleteSettings(c.Context(), category, names...); err != nil {
		return s.fail(c, category, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// fail maps store errors to responses. Client errors are answered with 400, everything else with 500.
func (s *Service) fail(c fiber.Ctx, category string, err error) error {
	var (
		invalid    *settings.InvalidKeyError
		validation *settings.ValidationError
	)

	switch {
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), Messages: validation.Messages})
	case errors.As(err, &invalid):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	log.Error().Err(err).Str("category", category).Str("path", c.Path()).Msg("settings request failed")

	message := "internal server error"
	if s.cfg.DevMode {
		message = err.Error()
	}

	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: message})
}
