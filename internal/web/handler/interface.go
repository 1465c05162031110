package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/confstore/confstore/internal/config"
	"github.com/confstore/confstore/internal/settings"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, cfg *config.Config, store *settings.Store) error
}
