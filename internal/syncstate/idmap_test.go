package syncstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// assertBijection checks that every pair resolves both ways.
func assertBijection(t *testing.T, m *IDMap) {
	t.Helper()
	seenP := map[contact.ID]bool{}
	for _, pair := range m.Pairs() {
		p, ok := m.Privileged(pair.Nonprivileged)
		require.True(t, ok)
		assert.Equal(t, pair.Privileged, p)
		n, ok := m.Nonprivileged(pair.Privileged)
		require.True(t, ok)
		assert.Equal(t, pair.Nonprivileged, n)
		assert.False(t, seenP[pair.Privileged], "privileged id %s paired twice", pair.Privileged)
		seenP[pair.Privileged] = true
	}
	assert.Len(t, m.toNonprivileged, len(m.toPrivileged))
}

func TestIDMap_RegisterEvictsConflicts(t *testing.T) {
	m := NewIDMap(nil)
	m.Register("p1", "n1")
	m.Register("p2", "n2")
	assert.True(t, m.Dirty())

	// n1 moves to p2: both p2→n2 and p1→n1 go away.
	m.Register("p2", "n1")
	assertBijection(t, m)
	assert.Equal(t, []Pair{{Privileged: "p2", Nonprivileged: "n1"}}, m.Pairs())

	_, ok := m.Nonprivileged("p1")
	assert.False(t, ok)
	_, ok = m.Privileged("n2")
	assert.False(t, ok)
}

func TestIDMap_RegisterSamePairIsClean(t *testing.T) {
	m, err := DecodeIDMap(mustEncode(t, map[string]string{"n1": "p1"}), nil)
	require.NoError(t, err)
	require.False(t, m.Dirty())

	m.Register("p1", "n1")
	assert.False(t, m.Dirty())

	m.Register("", "n9")
	assert.False(t, m.Dirty())
	assert.Equal(t, 1, m.Len())
}

func TestIDMap_Deregister(t *testing.T) {
	m := NewIDMap(nil)
	m.Register("p1", "n1")
	m.Register("p2", "n2")

	assert.True(t, m.Deregister("p1", "n1"))
	assert.Equal(t, []Pair{{Privileged: "p2", Nonprivileged: "n2"}}, m.Pairs())
	assert.False(t, m.Deregister("p1", "n1"))

	// Mismatched ids still drop whatever each of them was paired with.
	m.Register("p3", "n3")
	assert.True(t, m.Deregister("p2", "n3"))
	assert.Equal(t, 0, m.Len())
	assertBijection(t, m)
}

func TestIDMap_SeedSelf(t *testing.T) {
	m := NewIDMap(nil)
	assert.False(t, m.SeedSelf("", "n-self"))
	assert.True(t, m.SeedSelf("p-self", "n-self"))
	assert.False(t, m.SeedSelf("p-self", "n-self"))

	p, ok := m.Privileged("n-self")
	require.True(t, ok)
	assert.Equal(t, contact.ID("p-self"), p)

	// A stale pairing of either self id is repaired.
	m.Register("p-self", "n-stale")
	assert.True(t, m.SeedSelf("p-self", "n-self"))
	assert.Equal(t, []Pair{{Privileged: "p-self", Nonprivileged: "n-self"}}, m.Pairs())
}

func TestIDMap_EncodeDeterministic(t *testing.T) {
	a := NewIDMap(nil)
	a.Register("p1", "n1")
	a.Register("p2", "n2")
	a.Register("p3", "n3")

	b := NewIDMap(nil)
	b.Register("p3", "n3")
	b.Register("p1", "n1")
	b.Register("p2", "n2")

	da, err := a.MarshalBinary()
	require.NoError(t, err)
	db, err := b.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, da, db)

	decoded, err := DecodeIDMap(da, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Pairs(), decoded.Pairs())
	assert.False(t, decoded.Dirty())
}

func TestDecodeIDMap_RepairsDuplicates(t *testing.T) {
	m, err := DecodeIDMap(mustEncode(t, map[string]string{
		"n1": "p1",
		"n2": "p1",
		"n3": "",
	}), nil)
	require.NoError(t, err)

	assert.True(t, m.Dirty())
	assert.Equal(t, []Pair{{Privileged: "p1", Nonprivileged: "n1"}}, m.Pairs())
	assertBijection(t, m)
}

func TestDecodeIDMap_Errors(t *testing.T) {
	m, err := DecodeIDMap(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())

	_, err = DecodeIDMap([]byte{0xff, 0x00, 0x13}, nil)
	assert.Error(t, err)

	// A CBOR array is well-formed but not a table.
	_, err = DecodeIDMap(mustEncode(t, []string{"n1", "p1"}), nil)
	assert.Error(t, err)
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := marshal(v)
	require.NoError(t, err)
	return data
}
