package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/testutil"
)

func TestNicknameRule_Choose(t *testing.T) {
	tests := []struct {
		rule        NicknameRule
		displayName string
		nickname    string
		want        string
	}{
		{NicknameLegacy, "", "", ""},
		{NicknameLegacy, "", "nick", ""},
		{NicknameLegacy, "Ada", "", ""},
		{NicknameLegacy, "Ada", "nick", ""},
		{NicknamePreferDisplayName, "Ada", "nick", "Ada"},
		{NicknamePreferDisplayName, "", "nick", "nick"},
		{NicknamePreferNickname, "Ada", "nick", "nick"},
		{NicknamePreferNickname, "Ada", "", "Ada"},
	}
	for _, tt := range tests {
		got := tt.rule.Choose(tt.displayName, tt.nickname)
		assert.Equal(t, tt.want, got, "%s(%q, %q)", tt.rule, tt.displayName, tt.nickname)
	}
}

func TestParseNicknameRule(t *testing.T) {
	for _, rule := range []NicknameRule{NicknameLegacy, NicknamePreferDisplayName, NicknamePreferNickname} {
		parsed, err := ParseNicknameRule(rule.String())
		require.NoError(t, err)
		assert.Equal(t, rule, parsed)
	}

	parsed, err := ParseNicknameRule("")
	require.NoError(t, err)
	assert.Equal(t, NicknameLegacy, parsed)

	_, err = ParseNicknameRule("inverted")
	assert.Error(t, err)
}

func TestApplyNicknameRule(t *testing.T) {
	build := func() contact.Record {
		presence := testutil.Presence("available", "acc")
		presence.Set(contact.FieldNickname, "stale")
		return testutil.Record(
			testutil.Account("acc", "me@jabber", contact.FieldDisplayName, "Ada", contact.FieldNickname, "ada"),
			presence,
			testutil.Presence("away", "other"),
		)
	}

	rec := build()
	assert.True(t, applyNicknameRule(&rec, NicknamePreferNickname))
	assert.Equal(t, "ada", rec.Details[1].Value(contact.FieldNickname))
	assert.False(t, rec.Details[2].HasValue(contact.FieldNickname), "unlinked presence untouched")
	assert.False(t, applyNicknameRule(&rec, NicknamePreferNickname))

	rec = build()
	assert.True(t, applyNicknameRule(&rec, NicknameLegacy))
	assert.False(t, rec.Details[1].HasValue(contact.FieldNickname))

	plain := testutil.Record(testutil.Presence("available"))
	assert.False(t, applyNicknameRule(&plain, NicknamePreferDisplayName))
}
