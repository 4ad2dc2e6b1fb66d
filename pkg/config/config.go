package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	xdgAppName = "agendify"
	configFile = "config.yaml"
)

const (
	SourceGoogle = "google"
	SourceICS    = "ics"
)

type Google struct {
	ClientID          string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret      string `yaml:"client_secret" env:"CLIENT_SECRET"`
	RedirectURL       string `yaml:"redirect_url" env:"REDIRECT_URL"`
	ClientSecretsFile string `yaml:"client_secrets_file" env:"CLIENT_SECRETS_FILE"`
}

type SMTP struct {
	Server   string `yaml:"server" env:"SERVER"`
	Port     int    `yaml:"port" env:"PORT"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	From     string `yaml:"from" env:"FROM"`
}

// Enabled reports whether enough is set to deliver mail.
func (s SMTP) Enabled() bool {
	return s.Server != "" && s.From != ""
}

type Config struct {
	Listen    string `yaml:"listen" env:"LISTEN"`
	DBPath    string `yaml:"db_path" env:"DB_PATH"`
	Timezone  string `yaml:"timezone" env:"TIMEZONE"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	Lookahead int    `yaml:"lookahead_minutes" env:"LOOKAHEAD_MINUTES"`

	// DigestCron is a five-field cron schedule for the daily digest email.
	DigestCron string `yaml:"digest_cron" env:"DIGEST_CRON"`

	// CalendarSource selects the upstream: "google" or "ics".
	CalendarSource string `yaml:"calendar_source" env:"CALENDAR_SOURCE"`
	// Calendar is a Google calendar ID, "primary", or a calendar display name.
	Calendar string `yaml:"calendar" env:"CALENDAR"`
	ICSURL   string `yaml:"ics_url" env:"ICS_URL"`

	Google Google `yaml:"google" envPrefix:"GOOGLE_"`
	SMTP   SMTP   `yaml:"smtp" envPrefix:"SMTP_"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	dbPath := "agendify.db"
	if dir, err := configDir(); err == nil {
		dbPath = filepath.Join(dir, "agendify.db")
	}
	return &Config{
		Listen:         "127.0.0.1:8080",
		DBPath:         dbPath,
		Timezone:       "UTC",
		LogLevel:       "info",
		Lookahead:      120,
		DigestCron:     "0 7 * * *",
		CalendarSource: SourceGoogle,
		Calendar:       "primary",
		SMTP:           SMTP{Port: 587},
	}
}

func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, xdgAppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the config file at path (the default path when empty), then
// applies AGENDIFY_* environment overrides. A missing file yields defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("no config file, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "AGENDIFY_"}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path (the default path when empty) with owner-only permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if c.Lookahead <= 0 {
		errs = append(errs, fmt.Errorf("lookahead_minutes must be positive, got %d", c.Lookahead))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path must be set"))
	}
	switch c.CalendarSource {
	case SourceGoogle:
	case SourceICS:
		if c.ICSURL == "" {
			errs = append(errs, errors.New("ics_url is required when calendar_source is ics"))
		}
	default:
		errs = append(errs, fmt.Errorf("calendar_source %q: want %s or %s", c.CalendarSource, SourceGoogle, SourceICS))
	}
	if c.DigestCron != "" {
		if _, err := cron.ParseStandard(c.DigestCron); err != nil {
			errs = append(errs, fmt.Errorf("digest_cron %q: %w", c.DigestCron, err))
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location returns the configured timezone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level %q: want debug, info, warn or error", s)
}
