package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewvogt/contactsd/internal/contact"
)

func TestAnchors(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	a, err := s.ReadAnchor(ctx, "export")
	require.NoError(t, err)
	assert.True(t, a.Remote.IsZero())
	assert.True(t, a.Local.IsZero())

	want := contact.Anchor{
		Remote: time.Date(2024, 5, 1, 10, 0, 0, 123, time.UTC),
		Local:  time.Date(2024, 5, 1, 10, 0, 1, 0, time.UTC),
	}
	require.NoError(t, s.WriteAnchor(ctx, "export", want))
	got, err := s.ReadAnchor(ctx, "export")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want.Local = want.Local.Add(time.Minute)
	require.NoError(t, s.WriteAnchor(ctx, "export", want))
	got, err = s.ReadAnchor(ctx, "export")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	other, err := s.ReadAnchor(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, contact.Anchor{}, other)
}

func TestOOB(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	got, err := s.GetOOB(ctx, "export", []string{"privilegedIds"})
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.PutOOB(ctx, "export", map[string][]byte{
		"privilegedIds": {0xa0},
		"avatarPaths":   {0xa1, 0x61, 0x78, 0xa0},
	}))
	require.NoError(t, s.PutOOB(ctx, "export", map[string][]byte{"privilegedIds": {0xa1}}))

	got, err = s.GetOOB(ctx, "export", []string{"privilegedIds", "avatarPaths", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"privilegedIds": {0xa1},
		"avatarPaths":   {0xa1, 0x61, 0x78, 0xa0},
	}, got)

	keys, err := s.OOBKeys(ctx, "export")
	require.NoError(t, err)
	assert.Equal(t, []string{"avatarPaths", "privilegedIds"}, keys)

	none, err := s.GetOOB(ctx, "other", []string{"privilegedIds"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
