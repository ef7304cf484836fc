package reconcile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// NicknameRule chooses the nickname shown on the self record's presence
// details from the linked account's display name and nickname.
type NicknameRule int

const (
	// NicknameLegacy reproduces the deployed precedence: an empty display
	// name selects the display name, otherwise an empty nickname selects the
	// nickname, otherwise the nickname is cleared. Every branch yields an
	// empty nickname. Pending product-owner confirmation.
	NicknameLegacy NicknameRule = iota

	// NicknamePreferDisplayName uses the display name, falling back to the
	// nickname.
	NicknamePreferDisplayName

	// NicknamePreferNickname uses the nickname, falling back to the display
	// name.
	NicknamePreferNickname
)

func (r NicknameRule) String() string {
	switch r {
	case NicknameLegacy:
		return "legacy"
	case NicknamePreferDisplayName:
		return "prefer-display-name"
	case NicknamePreferNickname:
		return "prefer-nickname"
	default:
		return fmt.Sprintf("NicknameRule(%d)", int(r))
	}
}

// ParseNicknameRule parses the names produced by String.
func ParseNicknameRule(s string) (NicknameRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "legacy":
		return NicknameLegacy, nil
	case "prefer-display-name":
		return NicknamePreferDisplayName, nil
	case "prefer-nickname":
		return NicknamePreferNickname, nil
	default:
		return NicknameLegacy, fmt.Errorf("unknown nickname rule %q", s)
	}
}

// Choose applies the rule.
func (r NicknameRule) Choose(displayName, nickname string) string {
	switch r {
	case NicknamePreferDisplayName:
		if displayName != "" {
			return displayName
		}
		return nickname
	case NicknamePreferNickname:
		if nickname != "" {
			return nickname
		}
		return displayName
	default:
		if displayName == "" {
			return displayName
		} else if nickname == "" {
			return nickname
		}
		return ""
	}
}

// applyNicknameRule sets the nickname of every presence detail that links to
// an online account carrying a display name or nickname. It reports whether
// any detail changed.
func applyNicknameRule(rec *contact.Record, rule NicknameRule) bool {
	accounts := make(map[string]contact.Detail)
	for _, d := range rec.Details {
		if d.Type != contact.TypeOnlineAccount || d.URI == "" {
			continue
		}
		if d.HasValue(contact.FieldDisplayName) || d.HasValue(contact.FieldNickname) {
			accounts[d.URI] = d
		}
	}
	if len(accounts) == 0 {
		return false
	}

	changed := false
	for i, d := range rec.Details {
		if d.Type != contact.TypePresence {
			continue
		}
		idx := slices.IndexFunc(d.LinkedURIs, func(uri string) bool {
			_, ok := accounts[uri]
			return ok
		})
		if idx == -1 {
			continue
		}
		account := accounts[d.LinkedURIs[idx]]
		nickname := rule.Choose(account.Value(contact.FieldDisplayName), account.Value(contact.FieldNickname))

		updated := d.Clone()
		if nickname == "" {
			if !updated.Unset(contact.FieldNickname) {
				continue
			}
		} else {
			if updated.Value(contact.FieldNickname) == nickname {
				continue
			}
			updated.Set(contact.FieldNickname, nickname)
		}
		rec.Details[i] = updated
		changed = true
	}
	return changed
}
