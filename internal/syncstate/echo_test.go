package syncstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewvogt/contactsd/internal/contact"
)

func mustDigest(t *testing.T, r contact.Record) Digest {
	t.Helper()
	d, err := DigestOf(r)
	require.NoError(t, err)
	return d
}

func TestDigestOf(t *testing.T) {
	phone := contact.NewDetail(contact.TypePhoneNumber, "number", "+1555")
	name := contact.NewDetail(contact.TypeName, "first", "Ada")
	stamp := contact.NewDetail(contact.TypeTimestamp, contact.FieldModified, "2026-01-01T00:00:00Z")

	base := mustDigest(t, contact.Record{ID: "n1", Details: []contact.Detail{phone, name}})

	assert.Equal(t, base, mustDigest(t, contact.Record{ID: "n2", Details: []contact.Detail{name, phone, stamp}}),
		"order, id and timestamp do not matter")

	emptied := phone.Clone()
	emptied.LinkedURIs = []string{}
	assert.Equal(t, base, mustDigest(t, contact.Record{Details: []contact.Detail{emptied, name}}))

	edited := contact.NewDetail(contact.TypePhoneNumber, "number", "+1556")
	assert.NotEqual(t, base, mustDigest(t, contact.Record{Details: []contact.Detail{edited, name}}))

	linked := phone.Clone()
	linked.URI = "aggregate:home"
	assert.NotEqual(t, base, mustDigest(t, contact.Record{Details: []contact.Detail{linked, name}}))
}

func TestExportEchoes_Consume(t *testing.T) {
	e := NewExportEchoes()
	d := Digest{1}

	assert.False(t, e.Consume("n1", d))
	assert.False(t, e.Dirty())

	e.Record("n1", d)
	assert.True(t, e.Dirty())
	assert.True(t, e.Consume("n1", d))
	assert.Equal(t, 0, e.Len())

	e.Record("n1", d)
	assert.False(t, e.Consume("n1", Digest{2}), "a different digest is an edit")
	assert.Equal(t, 0, e.Len(), "the entry is consumed either way")

	e.Record("n2", d)
	e.Forget("n2")
	e.Record("n3", d)
	e.Clear()
	assert.Equal(t, 0, e.Len())
}

func TestExportEchoes_RoundTrip(t *testing.T) {
	ctx := context.Background()
	oob := newMemOOB()

	st, err := Load(ctx, oob, "export", nil)
	require.NoError(t, err)
	st.Echoes.Record("n1", Digest{7})

	keys, err := st.Persist(ctx, oob, "export")
	require.NoError(t, err)
	assert.Equal(t, []string{KeyExportEchoes}, keys)

	reloaded, err := Load(ctx, oob, "export", nil)
	require.NoError(t, err)
	assert.False(t, reloaded.Echoes.Dirty())
	assert.True(t, reloaded.Echoes.Consume("n1", Digest{7}))
}

func TestDecodeExportEchoes_BadDigest(t *testing.T) {
	data, err := marshal(map[string][]byte{"n1": {1, 2, 3}})
	require.NoError(t, err)

	_, err = DecodeExportEchoes(data)
	assert.ErrorContains(t, err, "has 3 bytes")
}
