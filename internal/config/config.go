// Package config loads the client's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/naveenspark/sphere/internal/credstore"
)

// DefaultAPIURL is the API base used when SPHERE_API_URL is unset.
const DefaultAPIURL = "http://127.0.0.1:8000/api/"

type Config struct {
	APIURL          string        `env:"SPHERE_API_URL" default:"http://127.0.0.1:8000/api/"`
	Home            string        `env:"SPHERE_HOME"`
	HTTPTimeout     time.Duration `env:"SPHERE_HTTP_TIMEOUT" default:"30s"`
	CoalesceRefresh bool          `env:"SPHERE_COALESCE_REFRESH" default:"false"`
	LogLevel        string        `env:"LOG_LEVEL" default:"info"`
	LogFormat       string        `env:"LOG_FORMAT" default:"text"`
}

// Load reads an optional .env file from the working directory, then the
// process environment.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env is optional

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if cfg.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.Home = filepath.Join(home, ".sphere")
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(cfg.APIURL, "/") {
		cfg.APIURL += "/"
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.APIURL)
	if err != nil {
		return fmt.Errorf("SPHERE_API_URL is invalid: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("SPHERE_API_URL must be an absolute http(s) URL")
	}
	if cfg.HTTPTimeout <= 0 {
		return errors.New("SPHERE_HTTP_TIMEOUT must be positive")
	}
	return nil
}

// CredentialsPath is where the session's credentials are persisted.
func (c *Config) CredentialsPath() string {
	return filepath.Join(c.Home, credstore.FileName)
}

// LogPath is the log file used while the interactive UI owns the terminal.
func (c *Config) LogPath() string {
	return filepath.Join(c.Home, "sphere.log")
}
