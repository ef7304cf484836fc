package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/matthewvogt/contactsd/internal/reconcile"
)

// SyncOptions holds flags for the sync and request-sync commands.
type SyncOptions struct {
	*RootOptions
	Notify []string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass",
		Long: `Run a single reconciliation pass and print its report.

Sources named with --notify are triggered after a successful pass, the way
the daemon triggers sources requested through the privileged store.

Example:
  contactsd sync --config contactsd.yaml
  contactsd sync --notify carddav --notify google --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, opts.Notify)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Notify, "notify", nil, "sync sources to trigger after the pass")

	return cmd
}

// NewRequestSyncCommand creates the request-sync command.
func NewRequestSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "request-sync <source>...",
		Short: "Run one pass, then trigger external sync sources",
		Long: `Run a single reconciliation pass and then ask the named external sync
sources to synchronize, limited to sources that are always kept up to date
and allow upsync.

Example:
  contactsd request-sync carddav google`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, args)
		},
	}
}

func runSync(cmd *cobra.Command, opts *SyncOptions, names []string) error {
	a, err := openApp(opts.RootOptions, cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	report, err := a.driver.Sync(ctx)
	if err != nil {
		if report != nil {
			_ = out.Error(CodeAborted, err.Error(), report)
		}
		return WrapExitError(ExitFailure, "pass failed", err)
	}

	names = sourceNames(names)
	if len(names) > 0 {
		if err := a.trigger.TriggerSync(ctx, names, true, true); err != nil {
			_ = out.Error(CodeTrigger, err.Error(), names)
			return WrapExitError(ExitFailure, "trigger failed", err)
		}
	}
	return out.Success(reportView{report})
}

// sourceNames sorts and dedupes names, dropping empty ones.
func sourceNames(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// reportView renders a report in text mode and as the report itself in
// JSON mode.
type reportView struct {
	*reconcile.Report
}

func (v reportView) WriteText(w io.Writer) error {
	r := v.Report
	if _, err := fmt.Fprintf(w, "pass %s (%s): %s in %s\n",
		r.PassID, r.Source, r.State, r.Finished.Sub(r.Started)); err != nil {
		return err
	}
	for _, dir := range []struct {
		name string
		c    reconcile.Counts
	}{
		{"import", r.Import},
		{"export", r.Export},
	} {
		fmt.Fprintf(w, "  %-7s added=%d modified=%d removed=%d presence=%d self=%d recreated=%d skipped=%d\n",
			dir.name, dir.c.Added, dir.c.Modified, dir.c.Removed, dir.c.Presence, dir.c.Self, dir.c.Recreated, dir.c.Skipped)
	}
	_, err := fmt.Fprintf(w, "  pairs=%d writes=%d\n", r.Pairs, r.Writes())
	return err
}
