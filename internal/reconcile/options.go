package reconcile

import (
	"log/slog"
	"time"

	"github.com/matthewvogt/contactsd/internal/redact"
)

// DefaultMaxSaveRetries bounds the export recreate-and-retry loop.
const DefaultMaxSaveRetries = 1

// Option configures a Driver.
type Option func(*Driver)

// WithImport enables the nonprivileged → privileged import pass.
func WithImport(enabled bool) Option {
	return func(d *Driver) {
		d.importEnabled = enabled
	}
}

// WithDebug logs every planned decision with the record contents.
func WithDebug(enabled bool) Option {
	return func(d *Driver) {
		d.debug = enabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock sets the time source used for report timestamps and the remote
// anchor.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// WithVirtualizer replaces the default avatar path layout.
func WithVirtualizer(v *redact.Virtualizer) Option {
	return func(d *Driver) {
		if v != nil {
			d.virtualizer = v
		}
	}
}

// WithMaxSaveRetries bounds how many times a failed export batch is
// rewritten and retried. Negative values are treated as zero.
func WithMaxSaveRetries(n int) Option {
	return func(d *Driver) {
		d.maxSaveRetries = max(n, 0)
	}
}

func WithNicknameRule(rule NicknameRule) Option {
	return func(d *Driver) {
		d.nicknameRule = rule
	}
}

func WithPassIDs(gen PassIDGenerator) Option {
	return func(d *Driver) {
		if gen != nil {
			d.passIDs = gen
		}
	}
}
