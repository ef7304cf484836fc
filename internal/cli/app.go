package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matthewvogt/contactsd/internal/config"
	"github.com/matthewvogt/contactsd/internal/metrics"
	"github.com/matthewvogt/contactsd/internal/reconcile"
	"github.com/matthewvogt/contactsd/internal/redact"
	"github.com/matthewvogt/contactsd/internal/store"
	"github.com/matthewvogt/contactsd/internal/trigger"
)

// app is the wiring shared by every command: the three stores, the
// driver built on them and the configured trigger.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	privileged    *store.Store
	nonprivileged *store.Store
	state         *store.Store

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	driver  *reconcile.Driver
	trigger trigger.Trigger
}

// openApp loads configuration and opens the stores. With instrument set,
// the stores handed to the driver record latency into a fresh registry.
func openApp(opts *RootOptions, logOut io.Writer, instrument bool) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := newLogger(logOut, cfg.Level(), cfg.LogFormat, opts.Verbose)

	a := &app{cfg: cfg, logger: logger}
	for _, db := range []struct {
		path string
		dst  **store.Store
	}{
		{cfg.PrivilegedDB, &a.privileged},
		{cfg.NonprivilegedDB, &a.nonprivileged},
		{cfg.StateDB, &a.state},
	} {
		s, err := openStore(db.path)
		if err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		*db.dst = s
	}

	virtualizer, err := redact.NewVirtualizer(cfg.AvatarMarker, cfg.AvatarSegment, logger)
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "invalid avatar layout", err)
	}

	var (
		privileged    reconcile.PrivilegedStore = a.privileged
		nonprivileged reconcile.RecordStore     = a.nonprivileged
	)
	if instrument {
		constLabels, err := metrics.ParseLabels(cfg.MetricsLabels)
		if err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "invalid metrics labels", err)
		}
		a.registry = prometheus.NewRegistry()
		a.metrics = metrics.New(a.registry, constLabels)
		privileged = a.metrics.WrapPrivileged("privileged", privileged)
		nonprivileged = a.metrics.WrapStore("nonprivileged", nonprivileged)
	}

	a.driver = reconcile.New(cfg.Source, privileged, nonprivileged, a.state,
		reconcile.WithImport(cfg.Import),
		reconcile.WithDebug(cfg.Debug),
		reconcile.WithLogger(logger),
		reconcile.WithVirtualizer(virtualizer),
		reconcile.WithMaxSaveRetries(cfg.MaxSaveRetries),
		reconcile.WithNicknameRule(cfg.Nickname()),
	)
	a.trigger = newTrigger(cfg, logger)
	return a, nil
}

func openStore(path string) (*store.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", path, err)
		}
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return s, nil
}

func newTrigger(cfg config.Config, logger *slog.Logger) trigger.Trigger {
	if len(cfg.TriggerCommand) == 0 {
		return trigger.Log{Logger: logger}
	}
	return &trigger.Command{
		Path:   cfg.TriggerCommand[0],
		Args:   cfg.TriggerCommand[1:],
		Logger: logger,
	}
}

// Close closes every opened store.
func (a *app) Close() error {
	var errs []error
	for _, s := range []*store.Store{a.privileged, a.nonprivileged, a.state} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
