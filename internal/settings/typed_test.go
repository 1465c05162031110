package settings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confstore/confstore/internal/settings"
)

type mailSettings struct {
	FromName  string        `json:"fromName"  validate:"required"`
	FromEmail string        `json:"fromEmail" validate:"required,email"`
	Transport mailTransport `json:"transport"`
}

type mailTransport struct {
	Host string `json:"host" validate:"required"`
	Port int    `json:"port" validate:"min=1,max=65535"`
}

func TestBind(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	store := newStore(t, repo, settings.WithDefaults(map[string]settings.Settings{
		"mail": {"fromName": "Site", "transport": map[string]any{"host": "localhost", "port": 25}},
	}))

	require.NoError(t, store.SaveSettings(ctx, "mail", settings.Settings{
		"fromEmail": "noreply@example.com",
		"transport": map[string]any{"port": 587},
	}))

	var mail mailSettings
	require.NoError(t, store.Bind(ctx, "mail", &mail))
	assert.Equal(t, mailSettings{
		FromName:  "Site",
		FromEmail: "noreply@example.com",
		Transport: mailTransport{Host: "localhost", Port: 587},
	}, mail)
}

func TestBindInvalid(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newMemoryRepository(), settings.WithDefaults(map[string]settings.Settings{
		"mail":   {"fromName": "Site", "transport": map[string]any{"host": "localhost", "port": 25}},
		"broken": {"transport": "smtp"},
	}))

	var mail mailSettings

	err := store.Bind(ctx, "mail", &mail)

	var validation *settings.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, []string{"Field 'FromEmail' failed validation tag 'required'"}, validation.Messages)

	require.Error(t, store.Bind(ctx, "broken", &mail), "a string does not decode into a struct")
}

func TestSaveStruct(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	store := newStore(t, repo)

	err := store.SaveStruct(ctx, "mail", &mailSettings{FromName: "Site", FromEmail: "not an address"})

	var validation *settings.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Zero(t, repo.replaces)

	require.NoError(t, store.SaveStruct(ctx, "mail", &mailSettings{
		FromName:  "Site",
		FromEmail: "noreply@example.com",
		Transport: mailTransport{Host: "smtp", Port: 465},
	}))

	v, ok, err := store.GetSetting(ctx, "mail", "transport.port")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, float64(465), v)
}
