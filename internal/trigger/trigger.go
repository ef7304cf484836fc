// Package trigger asks external sync sources to run after a reconciliation
// pass has changed the nonprivileged store.
package trigger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Trigger requests a sync of the named sources. onlyIfAlwaysUpToDate limits
// the request to sources whose profile asks to be kept up to date;
// onlyIfUpsync limits it to sources that sync upstream.
type Trigger interface {
	TriggerSync(ctx context.Context, names []string, onlyIfAlwaysUpToDate, onlyIfUpsync bool) error
}

// DefaultTimeout bounds one Command invocation.
const DefaultTimeout = 30 * time.Second

// Command runs an executable with the source names joined by ":" followed by
// the two flags as "1" or "0":
//
//	<path> [args...] carddav:google 1 1
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

func (c *Command) TriggerSync(ctx context.Context, names []string, onlyIfAlwaysUpToDate, onlyIfUpsync bool) error {
	if c.Path == "" {
		return errors.New("trigger command not configured")
	}
	if len(names) == 0 {
		return nil
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, c.Args...),
		strings.Join(names, ":"),
		flag(onlyIfAlwaysUpToDate),
		flag(onlyIfUpsync),
	)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("trigger sync %s: %w: %s", strings.Join(names, ":"), err, strings.TrimSpace(output.String()))
	}
	c.logger().Debug("triggered external sync", "names", names, "command", c.Path)
	return nil
}

func (c *Command) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Log only records the request. It is used when no command is configured.
type Log struct {
	Logger *slog.Logger
}

func (l Log) TriggerSync(_ context.Context, names []string, onlyIfAlwaysUpToDate, onlyIfUpsync bool) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("external sync requested",
		"names", strings.Join(names, ":"),
		"only_if_always_up_to_date", onlyIfAlwaysUpToDate,
		"only_if_upsync", onlyIfUpsync,
	)
	return nil
}

// Func adapts a function to Trigger.
type Func func(ctx context.Context, names []string, onlyIfAlwaysUpToDate, onlyIfUpsync bool) error

func (f Func) TriggerSync(ctx context.Context, names []string, onlyIfAlwaysUpToDate, onlyIfUpsync bool) error {
	return f(ctx, names, onlyIfAlwaysUpToDate, onlyIfUpsync)
}
