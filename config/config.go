package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds all configurable server parameters. The board size is not
// configurable; see game.GridSize.
type Config struct {
	RevealDelayMS int    `json:"reveal_delay_ms" yaml:"reveal_delay_ms"`
	HideDelayMS   int    `json:"hide_delay_ms" yaml:"hide_delay_ms"`
	PlayerAName   string `json:"player_a_name" yaml:"player_a_name"`
	PlayerBName   string `json:"player_b_name" yaml:"player_b_name"`
	MaxNameLength int    `json:"max_name_length" yaml:"max_name_length"`

	Port   int    `json:"port" yaml:"port"`
	WebDir string `json:"web_dir" yaml:"web_dir"` // serve the UI from disk instead of the embedded copy

	MaxTables           int `json:"max_tables" yaml:"max_tables"`
	TableIdleTimeoutSec int `json:"table_idle_timeout_sec" yaml:"table_idle_timeout_sec"`

	DatabaseURL string `json:"database_url" yaml:"database_url"`
	SQLitePath  string `json:"sqlite_path" yaml:"sqlite_path"`
	NATSURL     string `json:"nats_url" yaml:"nats_url"`
	NATSSubject string `json:"nats_subject" yaml:"nats_subject"`
	AuthBaseURL string `json:"auth_base_url" yaml:"auth_base_url"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		RevealDelayMS:       500,
		HideDelayMS:         1000,
		PlayerAName:         "Player A",
		PlayerBName:         "Player B",
		MaxNameLength:       24,
		Port:                3000,
		MaxTables:           256,
		TableIdleTimeoutSec: 60,
		NATSSubject:         "memory.game.finished",
		LogLevel:            "info",
	}
}

// RevealDelay is the pause between the second selection and its resolution.
func (c *Config) RevealDelay() time.Duration {
	return time.Duration(c.RevealDelayMS) * time.Millisecond
}

// HideDelay is how long a mismatched pair stays face up.
func (c *Config) HideDelay() time.Duration {
	return time.Duration(c.HideDelayMS) * time.Millisecond
}

// TableIdleTimeout is how long an empty table is kept before it is closed.
func (c *Config) TableIdleTimeout() time.Duration {
	return time.Duration(c.TableIdleTimeoutSec) * time.Second
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.RevealDelayMS <= 0:
		return fmt.Errorf("reveal_delay_ms must be positive, got %d", c.RevealDelayMS)
	case c.HideDelayMS <= 0:
		return fmt.Errorf("hide_delay_ms must be positive, got %d", c.HideDelayMS)
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	case c.MaxTables < 1:
		return fmt.Errorf("max_tables must be at least 1, got %d", c.MaxTables)
	case c.PlayerAName == "" || c.PlayerBName == "":
		return errors.New("player names must not be empty")
	case len(c.PlayerAName) > c.MaxNameLength || len(c.PlayerBName) > c.MaxNameLength:
		return fmt.Errorf("player names must be at most %d characters", c.MaxNameLength)
	}
	return nil
}

// Load reads configuration from an optional config.json or config.yaml in
// the working directory, then applies environment variable overrides.
// Fields not set in either source retain their default values.
func Load() *Config {
	return LoadFrom(".")
}

// LoadFrom is Load with an explicit directory for the config file.
func LoadFrom(dir string) *Config {
	cfg := Defaults()

	if data, err := os.ReadFile(dir + "/config.json"); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			slog.Warn("failed to parse config.json", "tag", "config", "err", err)
		}
	} else if data, err := os.ReadFile(dir + "/config.yaml"); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			slog.Warn("failed to parse config.yaml", "tag", "config", "err", err)
		}
	}

	// Environment variable overrides
	overrideInt(&cfg.RevealDelayMS, "REVEAL_DELAY_MS")
	overrideInt(&cfg.HideDelayMS, "HIDE_DELAY_MS")
	overrideString(&cfg.PlayerAName, "PLAYER_A_NAME")
	overrideString(&cfg.PlayerBName, "PLAYER_B_NAME")
	overrideInt(&cfg.MaxNameLength, "MAX_NAME_LENGTH")
	overrideInt(&cfg.Port, "PORT")
	overrideString(&cfg.WebDir, "WEB_DIR")
	overrideInt(&cfg.MaxTables, "MAX_TABLES")
	overrideInt(&cfg.TableIdleTimeoutSec, "TABLE_IDLE_TIMEOUT_SEC")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.SQLitePath, "SQLITE_PATH")
	overrideString(&cfg.NATSURL, "NATS_URL")
	overrideString(&cfg.NATSSubject, "NATS_SUBJECT")
	overrideString(&cfg.AuthBaseURL, "AUTH_BASE_URL")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")

	return cfg
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			slog.Warn("invalid value for "+envKey, "tag", "config", "value", val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
