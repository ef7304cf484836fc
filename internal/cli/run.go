package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/matthewvogt/contactsd/internal/engine"
	"github.com/matthewvogt/contactsd/internal/metrics"
	"github.com/matthewvogt/contactsd/internal/watch"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsAddr string

	// Clock overrides the engine's timer source (for testing).
	Clock engine.Clock

	// Started, if set, is called once the daemon is wired and before the
	// engine loop starts (for testing).
	Started func(eng *engine.Engine, metricsAddr string)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the reconciliation daemon",
		Long: `Start the contactsd daemon.

The daemon opens the privileged, nonprivileged and state databases, runs an
initial pass, and then reconciles after every change the stores report.
With watch enabled, writes to the database files by other processes are
picked up too. Metrics are served on --metrics-addr when set.

Example:
  contactsd run --config /etc/contactsd.yaml
  contactsd run --metrics-addr 127.0.0.1:9464 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")

	return cmd
}

func runDaemon(cmd *cobra.Command, opts *RunOptions) error {
	a, err := openApp(opts.RootOptions, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.logger.Error("error closing databases", "error", closeErr)
		}
	}()
	cfg := a.cfg
	logger := a.logger

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	engineOpts := []engine.Option{
		engine.WithImport(cfg.Import),
		engine.WithDisabled(cfg.Disabled),
		engine.WithDelays(cfg.SyncDelay, cfg.PresenceSyncDelay),
		engine.WithLogger(logger),
		engine.WithObserver(a.metrics),
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(opts.Clock))
	}
	eng := engine.New(a.driver, a.trigger, engineOpts...)

	a.privileged.OnChange(eng.NotifyPrivileged)
	a.nonprivileged.OnChange(eng.NotifyNonprivileged)

	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	if cfg.Watch {
		w, err := startWatcher(ctx, &wg, eng, cfg.PrivilegedDB, cfg.NonprivilegedDB, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to watch databases", err)
		}
		defer w.Close()
	}

	metricsAddr := cfg.MetricsAddr
	if opts.MetricsAddr != "" {
		metricsAddr = opts.MetricsAddr
	}
	if metricsAddr != "" {
		addr, err := serveMetrics(ctx, &wg, a, metricsAddr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
		metricsAddr = addr
	}

	if opts.Started != nil {
		opts.Started(eng, metricsAddr)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "contactsd started (source %s). Press Ctrl-C to stop.\n", cfg.Source)

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	logger.Info("daemon stopped gracefully")
	return nil
}

// startWatcher reports writes by other processes to either record store
// as data changes of that side. In-memory stores have no files to watch.
func startWatcher(ctx context.Context, wg *sync.WaitGroup, eng *engine.Engine, privileged, nonprivileged string, logger *slog.Logger) (*watch.Watcher, error) {
	w, err := watch.New(logger)
	if err != nil {
		return nil, err
	}
	for _, target := range []struct {
		path string
		kind engine.EventKind
	}{
		{privileged, engine.EventPrivilegedData},
		{nonprivileged, engine.EventNonprivilegedData},
	} {
		if target.path == ":memory:" {
			continue
		}
		kind := target.kind
		if err := w.Add(target.path, func() { eng.Enqueue(engine.Event{Kind: kind}) }); err != nil {
			w.Close()
			return nil, err
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("file watcher stopped", "error", err)
		}
	}()
	return w, nil
}

// serveMetrics listens on addr and serves /metrics until ctx is done. It
// returns the bound address, which differs from addr for port 0.
func serveMetrics(ctx context.Context, wg *sync.WaitGroup, a *app, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}
