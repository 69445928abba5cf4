package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"kaaj/internal/apperrors"

	"github.com/ilyakaznacheev/cleanenv"
)

// ClientConfig configures the kaaj client. It is read from a TOML file when
// one exists and overridden by KAAJ_* environment variables.
type ClientConfig struct {
	BackendURL     string          `toml:"backend_url" env:"KAAJ_BACKEND_URL" env-default:"http://localhost:8080"`
	RequestTimeout time.Duration   `toml:"request_timeout" env:"KAAJ_REQUEST_TIMEOUT" env-default:"15s"`
	MaxRetries     int             `toml:"max_retries" env:"KAAJ_MAX_RETRIES" env-default:"3"`
	SessionCache   string          `toml:"session_cache" env:"KAAJ_SESSION_CACHE"`
	ImageHost      ImageHostConfig `toml:"image_host"`
	Log            LogConfig       `toml:"log"`
}

type ImageHostConfig struct {
	BaseURL      string `toml:"base_url" env:"KAAJ_IMAGE_BASE_URL" env-default:"https://api.cloudinary.com"`
	CloudName    string `toml:"cloud_name" env:"KAAJ_IMAGE_CLOUD_NAME"`
	UploadPreset string `toml:"upload_preset" env:"KAAJ_IMAGE_UPLOAD_PRESET"`
}

// Validate reports missing image host secrets as a configuration error.
func (c ImageHostConfig) Validate() error {
	var missing []string
	if c.CloudName == "" {
		missing = append(missing, "KAAJ_IMAGE_CLOUD_NAME")
	}
	if c.UploadPreset == "" {
		missing = append(missing, "KAAJ_IMAGE_UPLOAD_PRESET")
	}
	if len(missing) > 0 {
		return apperrors.Wrap(apperrors.KindConfig, fmt.Errorf("missing image host configuration: %v", missing))
	}
	return nil
}

// DefaultClientConfigPath is $XDG_CONFIG_HOME/kaaj/config.toml or its
// platform equivalent.
func DefaultClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "kaaj.toml"
	}
	return filepath.Join(dir, "kaaj", "config.toml")
}

func LoadClientConfig(path string) (*ClientConfig, error) {
	var cfg ClientConfig

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read client config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat client config %s: %w", path, err)
		} else if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read client env: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read client env: %w", err)
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max_retries must be at least 1, got %d", cfg.MaxRetries)
	}
	if cfg.SessionCache == "" {
		cfg.SessionCache = filepath.Join(filepath.Dir(DefaultClientConfigPath()), "session.toml")
	}
	return &cfg, nil
}
