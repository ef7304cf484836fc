package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/syncstate"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Step)
			if ev.Ref != "" {
				fmt.Fprintf(&buf, " %s/%s", ev.Side, ev.Ref)
			}
			if ev.State != "" {
				fmt.Fprintf(&buf, " -> %s %v", ev.State, ev.Decisions)
			}
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

// evaluate checks one assertion against the final store contents.
func (h *Harness) evaluate(ctx context.Context, a Assertion, trace []TraceEvent) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: trace}
	}

	switch a.Type {
	case AssertRecordCount:
		all, err := h.raw(a.Side).All(ctx)
		if err != nil {
			return err
		}
		if len(all) != a.Count {
			return fail(fmt.Sprintf("%d %s records", a.Count, a.Side), fmt.Sprintf("%d records", len(all)))
		}

	case AssertPairCount:
		tables, err := syncstate.Load(ctx, h.state.Store, Source, h.logger)
		if err != nil {
			return err
		}
		if tables.IDs.Len() != a.Count {
			return fail(fmt.Sprintf("%d identifier pairs", a.Count), fmt.Sprintf("%d pairs", tables.IDs.Len()))
		}

	case AssertRecordMissing:
		rec, found, err := h.fetch(ctx, a.Side, a.Ref)
		if err != nil {
			return err
		}
		if found {
			return fail(fmt.Sprintf("no %s record for %s", a.Side, a.Ref), fmt.Sprintf("record %s exists", rec.ID))
		}

	case AssertRecordDetail, AssertDetailAbsent:
		t, err := contact.ParseDetailType(a.Detail)
		if err != nil {
			return err
		}
		rec, found, err := h.fetch(ctx, a.Side, a.Ref)
		if err != nil {
			return err
		}
		if !found {
			return fail(fmt.Sprintf("a %s record for %s", a.Side, a.Ref), "no record")
		}
		d, has := rec.First(t)
		if a.Type == AssertDetailAbsent {
			if has {
				return fail(fmt.Sprintf("no %s detail on %s", a.Detail, a.Ref), fmt.Sprintf("%s %v", a.Detail, d.Fields))
			}
			return nil
		}
		if !has {
			return fail(fmt.Sprintf("%s.%s = %q on %s", a.Detail, a.Field, a.Value, a.Ref), "no such detail")
		}
		if got := d.Value(a.Field); got != a.Value {
			return fail(fmt.Sprintf("%s.%s = %q on %s", a.Detail, a.Field, a.Value, a.Ref), fmt.Sprintf("%q", got))
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// fetch loads ref's live record on side.
func (h *Harness) fetch(ctx context.Context, side, ref string) (contact.Record, bool, error) {
	id, ok := h.id(side, ref)
	if !ok {
		return contact.Record{}, false, nil
	}
	recs, err := h.raw(side).Fetch(ctx, []contact.ID{id})
	if err != nil {
		return contact.Record{}, false, err
	}
	if len(recs) == 0 {
		return contact.Record{}, false, nil
	}
	return recs[0], true, nil
}
