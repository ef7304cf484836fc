package reconcile

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/redact"
	"github.com/matthewvogt/contactsd/internal/syncstate"
)

// Driver runs reconciliation passes between a privileged store and its
// nonprivileged mirror.
//
// Thread-safety model:
//   - Sync(): at most one pass runs at a time; overlapping calls fail fast
//   - State(): safe from any goroutine
type Driver struct {
	source        string
	privileged    PrivilegedStore
	nonprivileged RecordStore
	state         StateStore

	importEnabled  bool
	debug          bool
	logger         *slog.Logger
	now            func() time.Time
	virtualizer    *redact.Virtualizer
	maxSaveRetries int
	nicknameRule   NicknameRule
	passIDs        PassIDGenerator

	running atomic.Bool
	current atomic.Int32
}

// New creates a Driver for the sync source named source. The source name
// scopes anchors and out-of-band state.
func New(
	source string,
	privileged PrivilegedStore,
	nonprivileged RecordStore,
	state StateStore,
	opts ...Option,
) *Driver {
	v, err := redact.NewVirtualizer(redact.DefaultMarker, redact.DefaultSegment, nil)
	if err != nil {
		panic("reconcile: default avatar layout rejected: " + err.Error())
	}

	d := &Driver{
		source:         source,
		privileged:     privileged,
		nonprivileged:  nonprivileged,
		state:          state,
		logger:         slog.Default(),
		now:            time.Now,
		virtualizer:    v,
		maxSaveRetries: DefaultMaxSaveRetries,
		nicknameRule:   NicknameLegacy,
		passIDs:        UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Source returns the sync source name.
func (d *Driver) Source() string { return d.source }

// ImportEnabled reports whether nonprivileged edits are imported.
func (d *Driver) ImportEnabled() bool { return d.importEnabled }

// State returns the state of the running pass, or StateIdle.
func (d *Driver) State() State {
	return State(d.current.Load())
}

// Sync runs one full pass. The report is non-nil whenever a pass was
// started, including aborted passes.
func (d *Driver) Sync(ctx context.Context) (*Report, error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, ErrPassInProgress
	}
	defer d.running.Store(false)

	p := &pass{
		d:        d,
		imported: make(map[contact.ID]bool),
		report: &Report{
			PassID:  d.passIDs.Generate(),
			Source:  d.source,
			Started: d.now(),
		},
	}
	p.log = d.logger.With("pass", p.report.PassID, "source", d.source)

	err := p.run(ctx)
	p.report.Finished = d.now()
	d.current.Store(int32(StateIdle))
	return p.report, err
}

// pass owns all state mutated during one Sync call.
type pass struct {
	d      *Driver
	log    *slog.Logger
	report *Report

	tables *syncstate.State
	anchor contact.Anchor
	next   contact.Anchor

	privilegedSelf    contact.ID
	nonprivilegedSelf contact.ID

	// imported holds privileged ids written by this pass's import so the
	// export pass does not echo them back.
	imported map[contact.ID]bool
}

func (p *pass) enter(s State) {
	p.report.State = s
	p.d.current.Store(int32(s))
}

func (p *pass) run(ctx context.Context) error {
	p.enter(StatePreparing)
	if err := p.prepare(ctx); err != nil {
		return p.fail(err)
	}

	if p.d.importEnabled {
		p.enter(StateImport)
		if err := p.importChanges(ctx); err != nil {
			return p.fail(err)
		}
	}

	p.enter(StateExport)
	if err := p.exportChanges(ctx); err != nil {
		return p.fail(err)
	}

	p.enter(StateFinalizing)
	if err := p.finalize(ctx); err != nil {
		return p.fail(err)
	}

	p.enter(StateIdle)
	p.log.Info("pass complete",
		"imported", p.report.Import.Writes(),
		"exported", p.report.Export.Writes(),
		"pairs", p.report.Pairs,
	)
	return nil
}

func (p *pass) fail(err error) error {
	p.log.Error("pass aborted", "state", p.report.State, "error", err)
	p.enter(StateAborted)
	return err
}

func (p *pass) prepare(ctx context.Context) error {
	anchor, err := p.d.state.ReadAnchor(ctx, p.d.source)
	if err != nil {
		return abort(StatePreparing, "read anchor", err)
	}
	tables, err := syncstate.Load(ctx, p.d.state, p.d.source, p.log)
	if err != nil {
		return abort(StatePreparing, "load state", err)
	}

	p.anchor = anchor
	p.next = anchor
	// Nonprivileged writes from here on, including this pass's own, are
	// found by the next import; echoes of the export are told apart by
	// their digests.
	p.next.Remote = p.d.now()
	p.tables = tables
	if !p.d.importEnabled {
		tables.Echoes.Clear()
	}
	p.privilegedSelf = p.d.privileged.SelfID()
	p.nonprivilegedSelf = p.d.nonprivileged.SelfID()

	if tables.IDs.SeedSelf(p.privilegedSelf, p.nonprivilegedSelf) {
		p.log.Debug("paired self records",
			"privileged", p.privilegedSelf,
			"nonprivileged", p.nonprivilegedSelf,
		)
	}
	return nil
}

// finalize persists dirty tables and then the anchors. Anchors go last so a
// failure leaves them where the pass found them.
func (p *pass) finalize(ctx context.Context) error {
	keys, err := p.tables.Persist(ctx, p.d.state, p.d.source)
	if err != nil {
		return abort(StateFinalizing, "persist state", err)
	}
	if err := p.d.state.WriteAnchor(ctx, p.d.source, p.next); err != nil {
		return abort(StateFinalizing, "write anchor", err)
	}

	p.report.Persisted = keys
	p.report.Anchor = p.next
	p.report.Pairs = p.tables.IDs.Len()
	return nil
}

func (p *pass) plan(d Decision, rec *contact.Record) {
	p.report.plan(d)
	if !p.d.debug {
		return
	}
	attrs := []any{
		"direction", d.Direction,
		"op", d.Op,
		"privileged", d.Privileged,
		"nonprivileged", d.Nonprivileged,
	}
	if rec != nil {
		attrs = append(attrs, "record", *rec)
	}
	p.log.Info("planned write", attrs...)
}
