package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultVersion      = "v19.0"
	DefaultPort         = 3000
	DefaultGraphBaseURL = "https://graph.facebook.com"
)

// Construction preconditions. Each missing required field has its own
// sentinel so callers can tell operators exactly what to fix.
var (
	ErrMissingAccessToken = errors.New("messenger page access token is required")
	ErrMissingPageID      = errors.New("messenger page id is required")
	ErrMissingVerifyToken = errors.New("messenger verify token is required")
)

// MessengerConfig holds everything the Messenger channel needs. GraphBaseURL
// exists so tests can point the channel at a local server; production leaves
// it on the default.
type MessengerConfig struct {
	AccessToken  string `env:"MESSENGER_ACCESS_TOKEN"`
	PageID       string `env:"MESSENGER_PAGE_ID"`
	VerifyToken  string `env:"MESSENGER_VERIFY_TOKEN"`
	Version      string `env:"MESSENGER_API_VERSION"`
	Port         int    `env:"MESSENGER_PORT"`
	GraphBaseURL string `env:"MESSENGER_GRAPH_BASE_URL"`
	MediaDir     string `env:"MESSENGER_MEDIA_DIR"`
	LogLevel     string `env:"PAGERELAY_LOG_LEVEL"`
}

func Defaults() MessengerConfig {
	return MessengerConfig{
		Version:      DefaultVersion,
		Port:         DefaultPort,
		GraphBaseURL: DefaultGraphBaseURL,
	}
}

// New merges the non-zero fields of overrides on top of Defaults and
// validates the result. An invalid config is never returned.
func New(overrides MessengerConfig) (MessengerConfig, error) {
	cfg := Defaults()

	if overrides.AccessToken != "" {
		cfg.AccessToken = overrides.AccessToken
	}
	if overrides.PageID != "" {
		cfg.PageID = overrides.PageID
	}
	if overrides.VerifyToken != "" {
		cfg.VerifyToken = overrides.VerifyToken
	}
	if overrides.Version != "" {
		cfg.Version = overrides.Version
	}
	if overrides.Port != 0 {
		cfg.Port = overrides.Port
	}
	if overrides.GraphBaseURL != "" {
		cfg.GraphBaseURL = overrides.GraphBaseURL
	}
	if overrides.MediaDir != "" {
		cfg.MediaDir = overrides.MediaDir
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return MessengerConfig{}, err
	}
	return cfg, nil
}

// Load binds overrides from the environment and merges them over defaults.
func Load() (MessengerConfig, error) {
	var overrides MessengerConfig
	if err := env.Parse(&overrides); err != nil {
		return MessengerConfig{}, err
	}
	return New(overrides)
}

func (c MessengerConfig) Validate() error {
	if c.AccessToken == "" {
		return ErrMissingAccessToken
	}
	if c.PageID == "" {
		return ErrMissingPageID
	}
	if c.VerifyToken == "" {
		return ErrMissingVerifyToken
	}
	return nil
}
