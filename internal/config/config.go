// Package config loads apod-api settings from defaults, an optional YAML file,
// a .env file, APOD_* environment variables and command-line flags.
//
// Precedence, lowest first: defaults, config file, environment, flags.
// Keys are dotted (server.port); the matching variable is APOD_SERVER_PORT.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pfrederiksen/apod-api/internal/scraper"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "APOD"

// Config is the full service configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
}

// Addr returns the listen address for Port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// ScraperConfig configures upstream fetching
type ScraperConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Extractor string        `mapstructure:"extractor"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("scraper.base_url", scraper.BaseURL)
	v.SetDefault("scraper.user_agent", scraper.UserAgent)
	v.SetDefault("scraper.timeout", scraper.Timeout)
	v.SetDefault("scraper.extractor", scraper.DefaultExtractorVersion)
	v.SetDefault("log.level", "info")
}

// NewViper returns a viper instance with defaults and environment lookup configured
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads cfgFile (if set) into v and decodes the result.
// A .env file in the working directory is loaded first; variables already set win.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	u, err := url.Parse(c.Scraper.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("scraper.base_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https", u.Host == "":
		errs = append(errs, fmt.Errorf("scraper.base_url %q must be an absolute http(s) URL", c.Scraper.BaseURL))
	}

	if c.Scraper.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("scraper.timeout must be positive, got %s", c.Scraper.Timeout))
	}

	if _, err := scraper.Lookup(c.Scraper.Extractor); err != nil {
		errs = append(errs, fmt.Errorf("scraper.extractor: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
