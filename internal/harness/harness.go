package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/reconcile"
	"github.com/matthewvogt/contactsd/internal/store"
	"github.com/matthewvogt/contactsd/internal/syncstate"
	"github.com/matthewvogt/contactsd/internal/testutil"
)

// Source is the sync source name scenarios run under.
const Source = "harness"

const selfRef = "self"

// Harness is the scenario execution engine.
type Harness struct {
	privileged    *testutil.FaultyStore
	nonprivileged *testutil.FaultyStore
	state         *testutil.FaultyStore
	clock         *testutil.StepClock
	driver        *reconcile.Driver
	logger        *slog.Logger

	refs map[string]*refIDs
}

// refIDs are the ids a ref is known by on each side.
type refIDs struct {
	privileged    contact.ID
	nonprivileged contact.ID
}

// passIDs numbers passes in order.
type passIDs struct{ n int }

func (g *passIDs) Generate() string {
	g.n++
	return fmt.Sprintf("pass-%d", g.n)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh in-memory databases. An error is
// returned when the scenario cannot be executed at all; failed
// expectations and assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	clock := testutil.NewStepClock()

	h := &Harness{
		clock:  clock,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		refs:   make(map[string]*refIDs),
	}
	for _, s := range []struct {
		self contact.ID
		dst  **testutil.FaultyStore
	}{
		{testutil.PrivilegedSelf, &h.privileged},
		{testutil.NonprivilegedSelf, &h.nonprivileged},
		{"state-self", &h.state},
	} {
		st, err := store.Open(":memory:", store.WithClock(clock.Now), store.WithSelfID(s.self))
		if err != nil {
			h.close()
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		*s.dst = testutil.NewFaultyStore(st)
	}
	defer h.close()

	rule, err := reconcile.ParseNicknameRule(scenario.NicknameRule)
	if err != nil {
		return nil, err
	}
	opts := []reconcile.Option{
		reconcile.WithImport(scenario.Import),
		reconcile.WithClock(clock.Now),
		reconcile.WithLogger(h.logger),
		reconcile.WithNicknameRule(rule),
		reconcile.WithPassIDs(&passIDs{}),
	}
	if scenario.MaxSaveRetries != nil {
		opts = append(opts, reconcile.WithMaxSaveRetries(*scenario.MaxSaveRetries))
	}
	h.driver = reconcile.New(Source, h.privileged, h.nonprivileged, h.state, opts...)

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Kind(), err)
		}
	}

	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a, result.Trace); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func (h *Harness) close() {
	for _, s := range []*testutil.FaultyStore{h.privileged, h.nonprivileged, h.state} {
		if s != nil {
			s.Close()
		}
	}
}

func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) error {
	switch {
	case step.Save != nil:
		if err := h.save(ctx, step.Save); err != nil {
			return err
		}
		result.AddTrace(TraceEvent{Step: "save", Side: step.Save.Side, Ref: step.Save.Ref})

	case step.Remove != nil:
		id, ok := h.id(step.Remove.Side, step.Remove.Ref)
		if !ok {
			return fmt.Errorf("ref %q is unknown on the %s side", step.Remove.Ref, step.Remove.Side)
		}
		if err := h.raw(step.Remove.Side).Remove(ctx, []contact.ID{id}); err != nil {
			return err
		}
		result.AddTrace(TraceEvent{Step: "remove", Side: step.Remove.Side, Ref: step.Remove.Ref})

	case step.Fail != nil:
		f := step.Fail
		times := max(f.Times, 1)
		for range times {
			h.faulty(f.Store).Fail(f.Op, f.Err())
		}
		result.AddTrace(TraceEvent{Step: "fail", Side: f.Store, Fault: fmt.Sprintf("%s:%s", f.Op, f.Error)})

	case step.Sync != nil:
		return h.sync(ctx, i, step.Sync, result)
	}
	return nil
}

func (h *Harness) save(ctx context.Context, s *SaveStep) error {
	rec := contact.Record{}
	for _, ds := range s.Details {
		d, err := ds.Detail()
		if err != nil {
			return err
		}
		rec.Details = append(rec.Details, d)
	}
	if id, ok := h.id(s.Side, s.Ref); ok {
		rec.ID = id
	}

	records := []contact.Record{rec}
	if err := h.raw(s.Side).Save(ctx, records); err != nil {
		return err
	}
	if rec.ID.IsZero() {
		h.setID(s.Side, s.Ref, records[0].ID)
	}
	return nil
}

func (h *Harness) sync(ctx context.Context, i int, step *SyncStep, result *Result) error {
	report, err := h.driver.Sync(ctx)
	if err != nil && !reconcile.IsAborted(err) {
		return err
	}

	ev := TraceEvent{
		Step:      "sync",
		State:     report.State.String(),
		Decisions: h.decisions(report.Decisions),
		Pairs:     report.Pairs,
	}
	var pe *reconcile.PassError
	if errors.As(err, &pe) {
		ev.AbortedIn = pe.State.String()
	}
	result.AddTrace(ev)

	if err := h.resolveRefs(ctx); err != nil {
		return err
	}

	if step.Expect != nil {
		for _, msg := range checkReport(step.Expect, report, ev.AbortedIn) {
			result.AddError(fmt.Sprintf("steps[%d] sync: %s", i, msg))
		}
	}
	return nil
}

// decisions renders planned decisions by ref, sorted.
func (h *Harness) decisions(ds []reconcile.Decision) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		name := h.refOf(SidePrivileged, d.Privileged)
		if d.Privileged.IsZero() {
			name = h.refOf(SideNonprivileged, d.Nonprivileged)
		}
		out = append(out, fmt.Sprintf("%s %s %s", d.Direction, d.Op, name))
	}
	sort.Strings(out)
	return out
}

// resolveRefs fills in ids that a pass paired with known ones.
func (h *Harness) resolveRefs(ctx context.Context) error {
	tables, err := syncstate.Load(ctx, h.state.Store, Source, h.logger)
	if err != nil {
		return err
	}
	for _, ids := range h.refs {
		switch {
		case !ids.privileged.IsZero():
			if n, ok := tables.IDs.Nonprivileged(ids.privileged); ok {
				ids.nonprivileged = n
			}
		case !ids.nonprivileged.IsZero():
			if p, ok := tables.IDs.Privileged(ids.nonprivileged); ok {
				ids.privileged = p
			}
		}
	}
	return nil
}

func (h *Harness) faulty(side string) *testutil.FaultyStore {
	switch side {
	case SidePrivileged:
		return h.privileged
	case SideNonprivileged:
		return h.nonprivileged
	default:
		return h.state
	}
}

// raw returns the store behind a side, bypassing fault injection.
func (h *Harness) raw(side string) *store.Store {
	return h.faulty(side).Store
}

// id returns the id ref is known by on side.
func (h *Harness) id(side, ref string) (contact.ID, bool) {
	if ref == selfRef {
		return h.raw(side).SelfID(), true
	}
	ids, ok := h.refs[ref]
	if !ok {
		return "", false
	}
	id := ids.nonprivileged
	if side == SidePrivileged {
		id = ids.privileged
	}
	return id, !id.IsZero()
}

func (h *Harness) setID(side, ref string, id contact.ID) {
	ids, ok := h.refs[ref]
	if !ok {
		ids = &refIDs{}
		h.refs[ref] = ids
	}
	if side == SidePrivileged {
		ids.privileged = id
	} else {
		ids.nonprivileged = id
	}
}

// refOf names id by its ref. Ids no ref knows are rendered verbatim.
func (h *Harness) refOf(side string, id contact.ID) string {
	if id == h.raw(side).SelfID() {
		return selfRef
	}
	for ref, ids := range h.refs {
		if (side == SidePrivileged && ids.privileged == id) || (side == SideNonprivileged && ids.nonprivileged == id) {
			return ref
		}
	}
	return "?" + string(id)
}

// checkReport compares a pass report against expectations.
func checkReport(want *SyncExpect, report *reconcile.Report, abortedIn string) []string {
	var errs []string
	if want.State != "" && want.State != report.State.String() {
		errs = append(errs, fmt.Sprintf("state = %s, expected %s", report.State, want.State))
	}
	if want.AbortedIn != "" && want.AbortedIn != abortedIn {
		errs = append(errs, fmt.Sprintf("aborted in %q, expected %q", abortedIn, want.AbortedIn))
	}
	errs = append(errs, checkCounts("import", want.Import, report.Import)...)
	errs = append(errs, checkCounts("export", want.Export, report.Export)...)
	if want.Pairs != nil && *want.Pairs != report.Pairs {
		errs = append(errs, fmt.Sprintf("pairs = %d, expected %d", report.Pairs, *want.Pairs))
	}
	if want.Writes != nil && *want.Writes != report.Writes() {
		errs = append(errs, fmt.Sprintf("writes = %d, expected %d", report.Writes(), *want.Writes))
	}
	return errs
}

func checkCounts(direction string, want map[string]int, got reconcile.Counts) []string {
	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []string
	for _, name := range names {
		actual, ok := countOf(got, name)
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: unknown counter %q", direction, name))
			continue
		}
		if actual != want[name] {
			errs = append(errs, fmt.Sprintf("%s %s = %d, expected %d", direction, name, actual, want[name]))
		}
	}
	return errs
}

func countOf(c reconcile.Counts, name string) (int, bool) {
	switch name {
	case "added":
		return c.Added, true
	case "modified":
		return c.Modified, true
	case "removed":
		return c.Removed, true
	case "presence":
		return c.Presence, true
	case "self":
		return c.Self, true
	case "recreated":
		return c.Recreated, true
	case "skipped":
		return c.Skipped, true
	default:
		return 0, false
	}
}
