package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/syncstate"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the identifier mapping and avatar shadow tables",
		Long: `Print the persisted reconciliation state of the configured sync source:
the anchors, every privileged/nonprivileged id pair, and the avatar paths
rewritten for each privileged record.

Example:
  contactsd inspect --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, rootOpts)
		},
	}
}

// inspection is the persisted state of one sync source.
type inspection struct {
	Source  string                           `json:"source"`
	Anchor  contact.Anchor                   `json:"anchor"`
	Pairs   []syncstate.Pair                 `json:"pairs"`
	Avatars map[contact.ID]map[string]string `json:"avatars"`
}

func runInspect(cmd *cobra.Command, opts *RootOptions) error {
	a, err := openApp(opts, cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	source := a.cfg.Source
	anchor, err := a.state.ReadAnchor(ctx, source)
	if err != nil {
		_ = out.Error(CodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to read anchor", err)
	}
	tables, err := syncstate.Load(ctx, a.state, source, a.logger)
	if err != nil {
		_ = out.Error(CodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to load sync state", err)
	}

	view := inspection{
		Source:  source,
		Anchor:  anchor,
		Pairs:   tables.IDs.Pairs(),
		Avatars: make(map[contact.ID]map[string]string),
	}
	for _, id := range tables.Avatars.IDs() {
		view.Avatars[id] = tables.Avatars.Lookup(id)
	}
	return out.Success(view)
}

func (v inspection) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "source %s\n", v.Source)
	fmt.Fprintf(w, "  anchor remote=%s local=%s\n", formatTime(v.Anchor.Remote), formatTime(v.Anchor.Local))
	fmt.Fprintf(w, "pairs (%d)\n", len(v.Pairs))
	for _, p := range v.Pairs {
		fmt.Fprintf(w, "  %s -> %s\n", p.Privileged, p.Nonprivileged)
	}
	fmt.Fprintf(w, "avatars (%d)\n", len(v.Avatars))
	for _, id := range slices.Sorted(maps.Keys(v.Avatars)) {
		for _, url := range slices.Sorted(maps.Keys(v.Avatars[id])) {
			fmt.Fprintf(w, "  %s %s <- %s\n", id, url, v.Avatars[id][url])
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
