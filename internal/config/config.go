package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	App          AppConfig
	Server       ServerConfig
	Log          LogConfig
	Poll         PollConfig
	HTTP         HTTPConfig
	History      HistoryConfig
	Settings     SettingsConfig
	Valr         UpstreamConfig
	ExchangeRate UpstreamConfig `mapstructure:"exchangerate"`
}

// AppConfig defines process-wide settings.
type AppConfig struct {
	Env string
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Addr string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// PollConfig defines the background refresh cadence.
type PollConfig struct {
	Interval time.Duration
}

// HTTPConfig defines the outbound client used by the rate fetchers.
type HTTPConfig struct {
	Timeout time.Duration
}

// HistoryConfig defines the in-memory report buffer.
type HistoryConfig struct {
	Capacity int
}

// SettingsConfig defines where the mutable calculation inputs live and their startup values.
type SettingsConfig struct {
	File              string
	InitialInvestment float64 `mapstructure:"initial_investment"`
	USDPurchased      float64 `mapstructure:"usd_purchased"`
}

// UpstreamConfig defines settings for a specific rate provider.
type UpstreamConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// LoadConfig reads configuration from file or environment variables.
// A config.yaml under path is optional. The settings file (.env by default) is loaded into the
// environment first so RANDS, USD_PURCHASED and the API keys can live there.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Variable names used by existing .env files.
	_ = v.BindEnv("settings.initial_investment", "RANDS")
	_ = v.BindEnv("settings.usd_purchased", "USD_PURCHASED")
	_ = v.BindEnv("valr.api_key", "VALR_API_KEY")
	_ = v.BindEnv("exchangerate.api_key", "EXCHANGERATE_API_KEY")

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	settingsFile := v.GetString("settings.file")
	if err = godotenv.Load(settingsFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("poll.interval", "300s")
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("history.capacity", 1000)
	v.SetDefault("settings.file", ".env")
	v.SetDefault("settings.initial_investment", 0.0)
	v.SetDefault("settings.usd_purchased", 0.0)
	v.SetDefault("valr.base_url", "https://api.valr.com")
	v.SetDefault("valr.api_key", "")
	v.SetDefault("exchangerate.base_url", "https://v6.exchangerate-api.com")
	v.SetDefault("exchangerate.api_key", "")
}
