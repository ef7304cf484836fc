package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewvogt/contactsd/internal/contact"
)

func TestSave_InsertAssignsIDs(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	records := []contact.Record{
		{Details: []contact.Detail{aggregate(), phone("+1555")}},
		{Details: []contact.Detail{aggregate(), phone("+1666")}},
	}
	require.NoError(t, s.Save(ctx, records))

	require.False(t, records[0].ID.IsZero())
	require.False(t, records[1].ID.IsZero())
	assert.NotEqual(t, records[0].ID, records[1].ID)

	fetched, err := s.Fetch(ctx, []contact.ID{records[1].ID, records[0].ID})
	require.NoError(t, err)
	require.Len(t, fetched, 2)
	assert.Equal(t, records[1], withoutTimestamp(fetched[0]))
	assert.True(t, fetched[0].Has(contact.TypeTimestamp), "fetch synthesizes the timestamp")
}

func TestSave_TimestampNeverStored(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	rec := contact.Record{Details: []contact.Detail{
		phone("+1555"),
		contact.NewDetail(contact.TypeTimestamp, contact.FieldModified, "1999-01-01T00:00:00Z"),
	}}
	require.NoError(t, s.Save(ctx, []contact.Record{rec}))

	var data string
	require.NoError(t, s.db.QueryRow("SELECT details FROM records WHERE id = ?", string(rec.ID)).Scan(&data))
	assert.NotContains(t, data, "1999")
}

func TestSave_UnchangedIsNoOp(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	rec := contact.Record{Details: []contact.Detail{aggregate(), phone("+1555")}}
	require.NoError(t, s.Save(ctx, []contact.Record{rec}))

	var notes []contact.Notification
	s.OnChange(func(n contact.Notification) { notes = append(notes, n) })

	fetched, err := s.Fetch(ctx, []contact.ID{rec.ID})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, fetched))

	var changes int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM changes").Scan(&changes))
	assert.Equal(t, 1, changes, "only the insert is logged")
	assert.Empty(t, notes)
}

func TestSave_MissingRecordLocksBatch(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	existing := contact.Record{Details: []contact.Detail{phone("+1555")}}
	require.NoError(t, s.Save(ctx, []contact.Record{existing}))
	require.NoError(t, s.Remove(ctx, []contact.ID{existing.ID}))

	batch := []contact.Record{
		{Details: []contact.Detail{phone("+1666")}},
		{ID: existing.ID, Details: []contact.Detail{phone("+1777")}},
		{ID: "never-existed", Details: []contact.Detail{phone("+1888")}},
	}
	err := s.Save(ctx, batch)
	require.Error(t, err)

	be, ok := contact.AsBatchError(err)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 2}, be.Indices())
	assert.ErrorIs(t, be.Errors[0], contact.ErrLocked)
	assert.ErrorIs(t, be.Errors[1], contact.ErrNotExist)
	assert.ErrorIs(t, be.Errors[2], contact.ErrNotExist)
	assert.True(t, be.Only(contact.ErrNotExist, contact.ErrLocked))

	assert.True(t, batch[0].ID.IsZero(), "ids are only assigned on commit")
	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "only the self record remains")
}

func TestSave_MaskReplacesOnlyMaskedTypes(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	rec := contact.Record{Details: []contact.Detail{aggregate(), phone("+1555"), presence("available")}}
	require.NoError(t, s.Save(ctx, []contact.Record{rec}))

	var notes []contact.Notification
	s.OnChange(func(n contact.Notification) { notes = append(notes, n) })

	update := contact.Record{ID: rec.ID, Details: []contact.Detail{phone("+1999"), presence("away")}}
	require.NoError(t, s.Save(ctx, []contact.Record{update}, contact.PresenceTypes()...))

	fetched, err := s.Fetch(ctx, []contact.ID{rec.ID})
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	got := fetched[0]
	assert.Equal(t, "+1555", got.DetailsOf(contact.TypePhoneNumber)[0].Value("number"))
	assert.Equal(t, "away", got.DetailsOf(contact.TypePresence)[0].Value(contact.FieldPresenceState))

	require.Len(t, notes, 1)
	assert.Equal(t, contact.NotifyPresenceChanged, notes[0].Kind)
	assert.Equal(t, []contact.ID{rec.ID}, notes[0].IDs)
}

func TestRemove_BatchSemantics(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	recs := []contact.Record{
		{Details: []contact.Detail{phone("1")}},
		{Details: []contact.Detail{phone("2")}},
	}
	require.NoError(t, s.Save(ctx, recs))

	err := s.Remove(ctx, []contact.ID{recs[0].ID, "missing"})
	be, ok := contact.AsBatchError(err)
	require.True(t, ok)
	assert.ErrorIs(t, be.Errors[0], contact.ErrLocked)
	assert.ErrorIs(t, be.Errors[1], contact.ErrNotExist)

	require.NoError(t, s.Remove(ctx, []contact.ID{recs[0].ID}))
	fetched, err := s.Fetch(ctx, []contact.ID{recs[0].ID, recs[1].ID})
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	assert.Equal(t, recs[1].ID, fetched[0].ID)

	err = s.Remove(ctx, []contact.ID{recs[0].ID})
	be, ok = contact.AsBatchError(err)
	require.True(t, ok, "removing twice reports the record as missing")
	assert.ErrorIs(t, be.Errors[0], contact.ErrNotExist)
}

func TestApply_ToleratesAbsentRemovals(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	doomed := contact.Record{Details: []contact.Detail{phone("1")}}
	require.NoError(t, s.Save(ctx, []contact.Record{doomed}))

	saved := []contact.Record{{Details: []contact.Detail{phone("2")}}}
	require.NoError(t, s.Apply(ctx, []contact.ID{doomed.ID, "missing"}, saved))
	assert.False(t, saved[0].ID.IsZero())

	all, err := s.All(ctx)
	require.NoError(t, err)
	ids := []contact.ID{}
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []contact.ID{DefaultSelfID, saved[0].ID}, ids)

	err = s.Apply(ctx, nil, []contact.Record{{ID: doomed.ID, Details: []contact.Detail{phone("3")}}})
	be, ok := contact.AsBatchError(err)
	require.True(t, ok)
	assert.ErrorIs(t, be.Errors[0], contact.ErrNotExist)
}

func TestNotifications(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	var notes []contact.Notification
	s.OnChange(func(n contact.Notification) { notes = append(notes, n) })

	rec := contact.Record{Details: []contact.Detail{phone("1")}}
	require.NoError(t, s.Save(ctx, []contact.Record{rec}))
	rec.Details = []contact.Detail{phone("2")}
	require.NoError(t, s.Save(ctx, []contact.Record{rec}))
	require.NoError(t, s.Remove(ctx, []contact.ID{rec.ID}))
	s.RequestSync([]string{"carddav", "google"})
	s.RequestSync(nil)

	kinds := make([]contact.NotificationKind, 0, len(notes))
	for _, n := range notes {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []contact.NotificationKind{
		contact.NotifyAdded,
		contact.NotifyChanged,
		contact.NotifyRemoved,
		contact.NotifySyncSourcesChanged,
	}, kinds)
	assert.Equal(t, []string{"carddav", "google"}, notes[3].Names)
}
