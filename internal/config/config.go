// Package config loads daemon configuration from a YAML file with
// CONTACTSD_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/matthewvogt/contactsd/internal/engine"
	"github.com/matthewvogt/contactsd/internal/reconcile"
	"github.com/matthewvogt/contactsd/internal/redact"
)

// Config is the daemon configuration. Values are resolved in order:
// defaults, the config file, then environment variables.
type Config struct {
	// Source names the sync source; it scopes anchors and out-of-band state.
	Source string `yaml:"source" env:"CONTACTSD_SOURCE"`

	PrivilegedDB    string `yaml:"privileged_db" env:"CONTACTSD_PRIVILEGED_DB"`
	NonprivilegedDB string `yaml:"nonprivileged_db" env:"CONTACTSD_NONPRIVILEGED_DB"`
	StateDB         string `yaml:"state_db" env:"CONTACTSD_STATE_DB"`

	Import   bool `yaml:"import" env:"CONTACTSD_IMPORT"`
	Disabled bool `yaml:"disabled" env:"CONTACTSD_DISABLED"`
	Debug    bool `yaml:"debug" env:"CONTACTSD_DEBUG"`

	SyncDelay         time.Duration `yaml:"sync_delay" env:"CONTACTSD_SYNC_DELAY"`
	PresenceSyncDelay time.Duration `yaml:"presence_sync_delay" env:"CONTACTSD_PRESENCE_SYNC_DELAY"`
	MaxSaveRetries    int           `yaml:"max_save_retries" env:"CONTACTSD_MAX_SAVE_RETRIES"`

	AvatarMarker  string `yaml:"avatar_marker" env:"CONTACTSD_AVATAR_MARKER"`
	AvatarSegment string `yaml:"avatar_segment" env:"CONTACTSD_AVATAR_SEGMENT"`
	NicknameRule  string `yaml:"nickname_rule" env:"CONTACTSD_NICKNAME_RULE"`

	// TriggerCommand is run after a pass when external sync sources were
	// requested. Empty logs the request instead.
	TriggerCommand []string `yaml:"trigger_command" env:"CONTACTSD_TRIGGER_COMMAND" envSeparator:" "`

	MetricsAddr   string `yaml:"metrics_addr" env:"CONTACTSD_METRICS_ADDR"`
	MetricsLabels string `yaml:"metrics_labels" env:"CONTACTSD_METRICS_LABELS"`

	Watch bool `yaml:"watch" env:"CONTACTSD_WATCH"`

	LogLevel  string `yaml:"log_level" env:"CONTACTSD_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"CONTACTSD_LOG_FORMAT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Source:            "contacts-export",
		PrivilegedDB:      "privileged/contacts.db",
		NonprivilegedDB:   "contacts.db",
		StateDB:           "privileged/contactsd-state.db",
		SyncDelay:         engine.DefaultSyncDelay,
		PresenceSyncDelay: engine.DefaultPresenceSyncDelay,
		MaxSaveRetries:    reconcile.DefaultMaxSaveRetries,
		AvatarMarker:      redact.DefaultMarker,
		AvatarSegment:     redact.DefaultSegment,
		NicknameRule:      reconcile.NicknameLegacy.String(),
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML onto the defaults without consulting the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decode(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Source) == "" {
		errs = append(errs, errors.New("source is required"))
	}
	for _, db := range []struct{ name, path string }{
		{"privileged_db", c.PrivilegedDB},
		{"nonprivileged_db", c.NonprivilegedDB},
		{"state_db", c.StateDB},
	} {
		if db.path == "" {
			errs = append(errs, fmt.Errorf("%s is required", db.name))
		}
	}
	if c.SyncDelay <= 0 {
		errs = append(errs, fmt.Errorf("sync_delay must be positive, got %s", c.SyncDelay))
	}
	if c.PresenceSyncDelay <= 0 {
		errs = append(errs, fmt.Errorf("presence_sync_delay must be positive, got %s", c.PresenceSyncDelay))
	}
	if c.MaxSaveRetries < 0 {
		errs = append(errs, fmt.Errorf("max_save_retries must not be negative, got %d", c.MaxSaveRetries))
	}
	if _, err := redact.NewVirtualizer(c.AvatarMarker, c.AvatarSegment, nil); err != nil {
		errs = append(errs, err)
	}
	if _, err := reconcile.ParseNicknameRule(c.NicknameRule); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Nickname returns the parsed nickname rule. Call it on validated configs.
func (c Config) Nickname() reconcile.NicknameRule {
	rule, _ := reconcile.ParseNicknameRule(c.NicknameRule)
	return rule
}

// Level returns the parsed log level. Call it on validated configs.
func (c Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
	}
	return level, nil
}
