package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewvogt/contactsd/internal/engine"
	"github.com/matthewvogt/contactsd/internal/reconcile"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contactsd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, engine.DefaultSyncDelay, cfg.SyncDelay)
	assert.Equal(t, reconcile.NicknameLegacy, cfg.Nickname())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
source: phone
privileged_db: /data/privileged/contacts.db
nonprivileged_db: /data/contacts.db
state_db: /data/privileged/state.db
import: true
sync_delay: 250ms
presence_sync_delay: 20s
nickname_rule: prefer-display-name
trigger_command: [/usr/bin/sync-trigger, --session]
log_level: debug
`)
	t.Setenv("CONTACTSD_SOURCE", "tablet")
	t.Setenv("CONTACTSD_PRESENCE_SYNC_DELAY", "5s")
	t.Setenv("CONTACTSD_TRIGGER_COMMAND", "/bin/trigger --bus")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tablet", cfg.Source, "environment overrides the file")
	assert.Equal(t, "/data/contacts.db", cfg.NonprivilegedDB)
	assert.True(t, cfg.Import)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncDelay)
	assert.Equal(t, 5*time.Second, cfg.PresenceSyncDelay)
	assert.Equal(t, []string{"/bin/trigger", "--bus"}, cfg.TriggerCommand)
	assert.Equal(t, reconcile.NicknamePreferDisplayName, cfg.Nickname())
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "open config")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := Load(writeConfig(t, "sync_dealy: 1s\n"))
		assert.ErrorContains(t, err, "sync_dealy")
	})

	t.Run("bad env", func(t *testing.T) {
		t.Setenv("CONTACTSD_IMPORT", "maybe")
		_, err := Load("")
		assert.ErrorContains(t, err, "parse env")
	})
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty source", func(c *Config) { c.Source = " " }, "source is required"},
		{"missing db", func(c *Config) { c.StateDB = "" }, "state_db is required"},
		{"zero delay", func(c *Config) { c.SyncDelay = 0 }, "sync_delay must be positive"},
		{"negative retries", func(c *Config) { c.MaxSaveRetries = -1 }, "max_save_retries"},
		{"bad avatar layout", func(c *Config) { c.AvatarSegment = "/other" }, "not a prefix"},
		{"bad nickname rule", func(c *Config) { c.NicknameRule = "shortest" }, "unknown nickname rule"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "unknown log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}
