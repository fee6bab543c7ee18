package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 15, cfg.Enrich.DefaultLimit)
	assert.Equal(t, 500, cfg.Enrich.DelayMillis)
	assert.Equal(t, 60, cfg.Enrich.TitleMaxLength)
	assert.Contains(t, cfg.Enrich.TitleDenylist, "envio gratis")
	assert.Equal(t, 5, cfg.ImageSearch.MaxResults)
	assert.Contains(t, cfg.ImageSearch.DomainBlocklist, "pinterest.com")
	assert.Equal(t, "https://api.mercadolibre.com", cfg.MercadoLibre.BaseURL)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CATALOG_ENRICH_DEFAULT_LIMIT", "3")
	t.Setenv("CATALOG_STORE_DRIVER", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Enrich.DefaultLimit)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestValidateGeneration(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.ValidateGeneration())

	cfg.Anthropic.Key = "sk-test"
	assert.NoError(t, cfg.ValidateGeneration())
}

func TestValidateImageSearch(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.ValidateImageSearch())

	cfg.ImageSearch.Key = "k"
	assert.Error(t, cfg.ValidateImageSearch(), "engine id is still missing")

	cfg.ImageSearch.EngineID = "cx"
	assert.NoError(t, cfg.ValidateImageSearch())
}

func TestValidateMarketplace(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.ValidateMarketplace())

	cfg.MercadoLibre.ClientID = "app-id"
	cfg.MercadoLibre.Secret = "app-secret"
	assert.NoError(t, cfg.ValidateMarketplace())
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
