package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is constructed once at
// startup and injected into every orchestrator; business logic never reads
// ambient state.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	ImageSearch  ImageSearchConfig  `yaml:"image_search" mapstructure:"image_search"`
	ImageProc    ImageProcConfig    `yaml:"image_proc" mapstructure:"image_proc"`
	MercadoLibre MercadoLibreConfig `yaml:"mercadolibre" mapstructure:"mercadolibre"`
	Supplier     SupplierConfig     `yaml:"supplier" mapstructure:"supplier"`
	Telegram     TelegramConfig     `yaml:"telegram" mapstructure:"telegram"`
	Enrich       EnrichConfig       `yaml:"enrich" mapstructure:"enrich"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds generation-service settings.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	ContentModel   string `yaml:"content_model" mapstructure:"content_model"`
	SpecsModel     string `yaml:"specs_model" mapstructure:"specs_model"`
	GTINModel      string `yaml:"gtin_model" mapstructure:"gtin_model"`
	MaxTokens      int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestTimeout int    `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// ImageSearchConfig holds Google Custom Search settings.
type ImageSearchConfig struct {
	Key            string   `yaml:"key" mapstructure:"key"`
	EngineID       string   `yaml:"engine_id" mapstructure:"engine_id"`
	BaseURL        string   `yaml:"base_url" mapstructure:"base_url"`
	MaxResults     int      `yaml:"max_results" mapstructure:"max_results"`
	DomainBlocklist []string `yaml:"domain_blocklist" mapstructure:"domain_blocklist"`
}

// ImageProcConfig holds the image processing service and object storage settings.
type ImageProcConfig struct {
	ProcessURL string `yaml:"process_url" mapstructure:"process_url"`
	UploadURL  string `yaml:"upload_url" mapstructure:"upload_url"`
	UploadKey  string `yaml:"upload_key" mapstructure:"upload_key"`
}

// MercadoLibreConfig holds marketplace API settings.
type MercadoLibreConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	ClientID    string `yaml:"client_id" mapstructure:"client_id"`
	Secret      string `yaml:"secret" mapstructure:"secret"`
	RedirectURI string `yaml:"redirect_uri" mapstructure:"redirect_uri"`
	UserID      string `yaml:"user_id" mapstructure:"user_id"`
	SiteID      string `yaml:"site_id" mapstructure:"site_id"`
	CurrencyID  string `yaml:"currency_id" mapstructure:"currency_id"`
	ListingType string `yaml:"listing_type" mapstructure:"listing_type"`
	Quantity    int    `yaml:"quantity" mapstructure:"quantity"`
	Sandbox     bool   `yaml:"sandbox" mapstructure:"sandbox"`
}

// SupplierConfig configures supplier integrations (detail scraping, price list).
type SupplierConfig struct {
	DetailBaseURL string `yaml:"detail_base_url" mapstructure:"detail_base_url"`
	FTPAddr       string `yaml:"ftp_addr" mapstructure:"ftp_addr"`
	FTPUser       string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword   string `yaml:"ftp_password" mapstructure:"ftp_password"`
	PriceListPath string `yaml:"price_list_path" mapstructure:"price_list_path"`
}

// TelegramConfig holds the notification sink settings.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" mapstructure:"bot_token"`
	ChatID   string `yaml:"chat_id" mapstructure:"chat_id"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
}

// EnrichConfig configures batch stage behavior.
type EnrichConfig struct {
	DefaultLimit   int      `yaml:"default_limit" mapstructure:"default_limit"`
	DelayMillis    int      `yaml:"delay_millis" mapstructure:"delay_millis"`
	TitleDenylist  []string `yaml:"title_denylist" mapstructure:"title_denylist"`
	TitleMaxLength int      `yaml:"title_max_length" mapstructure:"title_max_length"`
}

// ServerConfig configures the catalog API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.content_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.specs_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.gtin_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.request_timeout_secs", 60)
	v.SetDefault("image_search.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("image_search.max_results", 5)
	v.SetDefault("image_search.domain_blocklist", []string{
		"facebook.com", "instagram.com", "pinterest.com",
		"amazon.com", "ebay.com", "aliexpress.com",
		"shutterstock.com", "gettyimages.com", "istockphoto.com",
	})
	v.SetDefault("mercadolibre.base_url", "https://api.mercadolibre.com")
	v.SetDefault("mercadolibre.site_id", "MEC")
	v.SetDefault("mercadolibre.currency_id", "USD")
	v.SetDefault("mercadolibre.listing_type", "gold_special")
	v.SetDefault("mercadolibre.quantity", 1)
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("enrich.default_limit", 15)
	v.SetDefault("enrich.delay_millis", 500)
	v.SetDefault("enrich.title_max_length", 60)
	v.SetDefault("enrich.title_denylist", []string{
		"nuevo", "usado", "reacondicionado", "oferta", "descuento",
		"envio gratis", "garantia",
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ValidateGeneration checks settings required by the content/specs/gtin stages.
func (c *Config) ValidateGeneration() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: anthropic.key is required")
	}
	return nil
}

// ValidateImageSearch checks settings required by the image stage.
func (c *Config) ValidateImageSearch() error {
	if c.ImageSearch.Key == "" || c.ImageSearch.EngineID == "" {
		return eris.New("config: image_search.key and image_search.engine_id are required")
	}
	return nil
}

// ValidateMarketplace checks settings required by any marketplace operation.
func (c *Config) ValidateMarketplace() error {
	if c.MercadoLibre.ClientID == "" || c.MercadoLibre.Secret == "" {
		return eris.New("config: mercadolibre.client_id and mercadolibre.secret are required")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
