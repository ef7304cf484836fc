package syncstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewvogt/contactsd/internal/contact"
)

func TestAvatarShadow_SetDrop(t *testing.T) {
	s := NewAvatarShadow()
	s.Set("p1", nil)
	assert.False(t, s.Dirty(), "empty set on a missing entry is a no-op")

	changes := map[string]string{"file:///c/a.jpg": "/p/c/a.jpg"}
	s.Set("p1", changes)
	assert.True(t, s.Dirty())
	assert.Equal(t, changes, s.Lookup("p1"))

	// Stored copy is independent of the caller's map.
	changes["file:///c/b.jpg"] = "/p/c/b.jpg"
	assert.Len(t, s.Lookup("p1"), 1)

	s.Set("p1", map[string]string{})
	assert.Nil(t, s.Lookup("p1"))
	assert.False(t, s.Drop("p1"))
}

func TestAvatarShadow_SetUnchangedStaysClean(t *testing.T) {
	orig := NewAvatarShadow()
	orig.Set("p1", map[string]string{"new": "old"})
	data, err := orig.MarshalBinary()
	require.NoError(t, err)

	s, err := DecodeAvatarShadow(data)
	require.NoError(t, err)
	s.Set("p1", map[string]string{"new": "old"})
	assert.False(t, s.Dirty())
	assert.Equal(t, []contact.ID{"p1"}, s.IDs())
}

func TestAvatarShadow_RoundTrip(t *testing.T) {
	s := NewAvatarShadow()
	s.Set("p2", map[string]string{"n2": "o2"})
	s.Set("p1", map[string]string{"n1": "o1", "n1b": "o1b"})

	data, err := s.MarshalBinary()
	require.NoError(t, err)
	decoded, err := DecodeAvatarShadow(data)
	require.NoError(t, err)

	assert.Equal(t, []contact.ID{"p1", "p2"}, decoded.IDs())
	assert.Equal(t, s.Lookup("p1"), decoded.Lookup("p1"))
	assert.Equal(t, s.Lookup("p2"), decoded.Lookup("p2"))

	_, err = DecodeAvatarShadow([]byte("not cbor"))
	assert.Error(t, err)
}
