package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	ListenAddr   string `mapstructure:"LISTEN_ADDR"`
	BadgerDBPath string `mapstructure:"BADGERDB_PATH"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	LogFormat    string `mapstructure:"LOG_FORMAT"`

	PreviewCacheTTL time.Duration `mapstructure:"PREVIEW_CACHE_TTL"`
	ScrapeTimeout   time.Duration `mapstructure:"SCRAPE_TIMEOUT"`
	// PreviewServiceURL points at a remote metadata service. When empty,
	// previews are scraped locally with a headless browser.
	PreviewServiceURL string `mapstructure:"PREVIEW_SERVICE_URL"`

	// Optional: forward toasts to a Telegram chat.
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `mapstructure:"TELEGRAM_CHAT_ID"`
}

var defaults = map[string]any{
	"LISTEN_ADDR":         ":8089",
	"BADGERDB_PATH":       "./badger_data",
	"LOG_LEVEL":           "info",
	"LOG_FORMAT":          "json",
	"PREVIEW_CACHE_TTL":   "24h",
	"SCRAPE_TIMEOUT":      "30s",
	"PREVIEW_SERVICE_URL": "",
	"TELEGRAM_BOT_TOKEN":  "",
	"TELEGRAM_CHAT_ID":    0,
}

// LoadConfig reads configuration from config.yaml in path and from
// environment variables, which take precedence.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Defaults also register every key so AutomaticEnv picks them up on Unmarshal.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		// A missing file is fine, env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks values that cannot be fixed by defaults.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: must be json or text", c.LogFormat)
	}
	if c.PreviewCacheTTL < 0 {
		return fmt.Errorf("PREVIEW_CACHE_TTL must not be negative")
	}
	if c.ScrapeTimeout <= 0 {
		return fmt.Errorf("SCRAPE_TIMEOUT must be positive")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

// TelegramEnabled reports whether toasts should be forwarded to Telegram.
func (c Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// NewLogger builds the application logger from the log settings.
func (c Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	log := logrus.New()
	log.SetLevel(level)
	if c.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log, nil
}
