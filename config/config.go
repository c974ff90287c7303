// Package config loads stagehand settings from an optional YAML file and
// STAGEHAND_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full runtime configuration.
type Config struct {
	Debug    bool     `yaml:"debug" env:"STAGEHAND_DEBUG" env-default:"false"`
	Site     Site     `yaml:"site"`
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Admin    Admin    `yaml:"admin"`
	Storage  Storage  `yaml:"storage"`
}

type Site struct {
	Name        string `yaml:"name" env:"STAGEHAND_SITE_NAME" env-default:"Stagehand"`
	URL         string `yaml:"url" env:"STAGEHAND_SITE_URL" env-default:"http://localhost:3000"`
	Description string `yaml:"description" env:"STAGEHAND_SITE_DESCRIPTION"`
	// Sections lists the editable page sections in display order.
	Sections []string `yaml:"sections" env:"STAGEHAND_SECTIONS" env-separator:"," env-default:"hero,mission,programs,contact"`
}

type Server struct {
	Addr           string        `yaml:"addr" env:"STAGEHAND_ADDR" env-default:":3000"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"STAGEHAND_ALLOWED_ORIGINS" env-separator:","`
	CacheTTL       time.Duration `yaml:"cache_ttl" env:"STAGEHAND_CACHE_TTL" env-default:"5m"`
}

type Database struct {
	Driver string `yaml:"driver" env:"STAGEHAND_DB_DRIVER" env-default:"sqlite"`
	DSN    string `yaml:"dsn" env:"STAGEHAND_DB_DSN" env-default:"data/stagehand.db"`
}

type Admin struct {
	// Password is either plain text or a bcrypt hash.
	Password      string `yaml:"password" env:"STAGEHAND_ADMIN_PASSWORD"`
	SessionSecret string `yaml:"session_secret" env:"STAGEHAND_SESSION_SECRET"`
	CookieSecure  bool   `yaml:"cookie_secure" env:"STAGEHAND_COOKIE_SECURE" env-default:"false"`
}

type Storage struct {
	StaticDir string `yaml:"static_dir" env:"STAGEHAND_STATIC_DIR" env-default:"public"`
	URLPrefix string `yaml:"url_prefix" env:"STAGEHAND_STATIC_PREFIX" env-default:"/public"`
}

// Load reads path when it exists, then applies the environment on top. An
// empty path reads the environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
			return &cfg, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	return &cfg, nil
}

// RequireServer checks the settings only the HTTP server needs.
func (c *Config) RequireServer() error {
	if c.Admin.Password == "" {
		return errors.New("config: admin password is required (STAGEHAND_ADMIN_PASSWORD)")
	}
	if c.Admin.SessionSecret == "" {
		return errors.New("config: session secret is required (STAGEHAND_SESSION_SECRET)")
	}
	return nil
}

// Usage describes every environment variable Config reads.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
