package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/utafrali/TrainingPlatform/pkg/authclient"
	pkgconfig "github.com/utafrali/TrainingPlatform/pkg/config"
)

// Config holds authctl settings.
type Config struct {
	BaseURL  string        `env:"AUTHCTL_BASE_URL" envDefault:"http://localhost:8010"`
	Timeout  time.Duration `env:"AUTHCTL_TIMEOUT" envDefault:"10s"`
	LogLevel string        `env:"AUTHCTL_LOG_LEVEL" envDefault:"warn"`

	// TokenFile defaults to <user config dir>/training/authctl.json.
	TokenFile string `env:"AUTHCTL_TOKEN_FILE"`
	TokenKey  string `env:"AUTHCTL_TOKEN_KEY" envDefault:"training.access_token"`
}

// LoadConfig reads authctl settings from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load authctl config: %w", err)
	}
	if cfg.TokenFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve token file: %w", err)
		}
		cfg.TokenFile = filepath.Join(dir, "training", "authctl.json")
	}
	if cfg.TokenKey == "" {
		cfg.TokenKey = authclient.DefaultTokenKey
	}
	return cfg, nil
}

// ClientConfig converts cfg into session manager settings.
func (c *Config) ClientConfig() authclient.Config {
	cc := authclient.DefaultConfig(c.BaseURL)
	cc.Timeout = c.Timeout
	return cc
}

// TokenStore returns the file-backed access token store.
func (c *Config) TokenStore() authclient.TokenStore {
	return authclient.NewFileTokenStore(c.TokenFile, c.TokenKey)
}
