// Package properties loads the runtime configuration from the environment,
// optionally seeded by a .env file.
package properties

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	RootPath string `env:"ROOT_PATH" envDefault:"."`

	Project         string `env:"EE_PROJECT"`
	CredentialsFile string `env:"EE_CREDENTIALS_FILE"`
	AccessToken     string `env:"EE_ACCESS_TOKEN"`
	BaseURL         string `env:"EE_BASE_URL" envDefault:"https://earthengine.googleapis.com"`
	DriveFolder     string `env:"EE_DRIVE_FOLDER" envDefault:"earthengine"`
	Bucket          string `env:"EE_BUCKET"`
	Workers         int    `env:"EE_WORKERS" envDefault:"4"`
	Retries         uint   `env:"EE_RETRIES" envDefault:"5"`

	// Scale is the export and download resolution in meters per pixel.
	Scale     float64 `env:"EE_SCALE" envDefault:"10"`
	MaxPixels int64   `env:"EE_MAX_PIXELS" envDefault:"1000000000000"`

	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"24h"`

	DiscordErrorURL   string `env:"DISCORD_ERROR_NOTIFICATION_URL"`
	DiscordSuccessURL string `env:"DISCORD_SUCCESS_NOTIFICATION_URL"`
}

// envFiles are tried in order; the first one found wins.
var envFiles = []string{".env", "../.env", "../../.env"}

// Load reads the first .env file found, then the process environment.
// Variables already set in the environment are not overridden.
func Load() (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err == nil {
			break
		}
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &cfg, nil
}

func (c *Config) DataPath(elem ...string) string {
	return filepath.Join(append([]string{c.RootPath, "data"}, elem...)...)
}

func (c *Config) TasksDBPath() string {
	return c.DataPath("tasks.db")
}

func (c *Config) CachePath() string {
	return c.DataPath("cache", "dates")
}

// OutputPath is where maps, quicklooks, downloads and manifests are written.
func (c *Config) OutputPath(elem ...string) string {
	return filepath.Join(append([]string{c.RootPath, "output"}, elem...)...)
}
