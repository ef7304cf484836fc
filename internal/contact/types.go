package contact

import "fmt"

// DetailType tags a Detail with its kind.
type DetailType uint8

const (
	TypeName DetailType = iota + 1
	TypeNickname
	TypePhoneNumber
	TypeEmailAddress
	TypeAddress
	TypeNote
	TypeURL
	TypeBirthday
	TypeOrganization
	TypeAvatar
	TypeOnlineAccount
	TypePresence
	TypeGlobalPresence
	TypeOriginMetadata
	TypeSyncTarget
	TypeTimestamp
	TypeGUID
	TypeDisplayLabel
	TypeDeactivated
	TypeIncidental
	TypeStatusFlags

	maxDetailType = TypeStatusFlags
)

var detailTypeNames = map[DetailType]string{
	TypeName:           "name",
	TypeNickname:       "nickname",
	TypePhoneNumber:    "phone-number",
	TypeEmailAddress:   "email-address",
	TypeAddress:        "address",
	TypeNote:           "note",
	TypeURL:            "url",
	TypeBirthday:       "birthday",
	TypeOrganization:   "organization",
	TypeAvatar:         "avatar",
	TypeOnlineAccount:  "online-account",
	TypePresence:       "presence",
	TypeGlobalPresence: "global-presence",
	TypeOriginMetadata: "origin-metadata",
	TypeSyncTarget:     "sync-target",
	TypeTimestamp:      "timestamp",
	TypeGUID:           "guid",
	TypeDisplayLabel:   "display-label",
	TypeDeactivated:    "deactivated",
	TypeIncidental:     "incidental",
	TypeStatusFlags:    "status-flags",
}

// AllDetailTypes returns every known detail type in declaration order.
func AllDetailTypes() []DetailType {
	types := make([]DetailType, 0, int(maxDetailType))
	for t := TypeName; t <= maxDetailType; t++ {
		types = append(types, t)
	}
	return types
}

// String returns the kebab-case name of the type.
func (t DetailType) String() string {
	if name, ok := detailTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("detail-type(%d)", uint8(t))
}

// Valid reports whether t is part of the known vocabulary.
func (t DetailType) Valid() bool {
	return t >= TypeName && t <= maxDetailType
}

// MarshalText encodes the type by name so persisted records and scenario
// files stay readable.
func (t DetailType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("marshal detail type: unknown type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name produced by MarshalText.
func (t *DetailType) UnmarshalText(text []byte) error {
	parsed, err := ParseDetailType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseDetailType resolves a kebab-case type name.
func ParseDetailType(name string) (DetailType, error) {
	for t, n := range detailTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown detail type %q", name)
}

// Class partitions detail types for comparison purposes.
type Class int

const (
	ClassContent Class = iota
	ClassIgnorable
	ClassPresence
)

// Classify returns the comparison class of t. Unknown types panic: every
// type in the vocabulary must be classified here.
func Classify(t DetailType) Class {
	switch t {
	case TypeDeactivated,
		TypeDisplayLabel,
		TypeGlobalPresence,
		TypeIncidental,
		TypeStatusFlags,
		TypeSyncTarget,
		TypeTimestamp:
		return ClassIgnorable
	case TypePresence,
		TypeOnlineAccount,
		TypeOriginMetadata:
		return ClassPresence
	case TypeName,
		TypeNickname,
		TypePhoneNumber,
		TypeEmailAddress,
		TypeAddress,
		TypeNote,
		TypeURL,
		TypeBirthday,
		TypeOrganization,
		TypeAvatar,
		TypeGUID:
		return ClassContent
	}
	panic(fmt.Sprintf("contact: unclassified detail type %d", uint8(t)))
}

// IsIgnorable reports whether t never participates in change comparison.
func IsIgnorable(t DetailType) bool { return Classify(t) == ClassIgnorable }

// IsPresenceRelated reports whether t may be touched by a presence-only change.
func IsPresenceRelated(t DetailType) bool { return Classify(t) == ClassPresence }

// IgnorableTypes returns the ignorable set in declaration order.
func IgnorableTypes() []DetailType { return typesOf(ClassIgnorable) }

// PresenceTypes returns the presence-related set in declaration order.
func PresenceTypes() []DetailType { return typesOf(ClassPresence) }

func typesOf(c Class) []DetailType {
	var out []DetailType
	for _, t := range AllDetailTypes() {
		if Classify(t) == c {
			out = append(out, t)
		}
	}
	return out
}

// TypeMask is a set of detail types packed into a bitmask.
type TypeMask uint64

// MaskOf builds a mask from the given types.
func MaskOf(types ...DetailType) TypeMask {
	var m TypeMask
	for _, t := range types {
		m |= 1 << uint(t)
	}
	return m
}

// Has reports whether t is in the mask.
func (m TypeMask) Has(t DetailType) bool { return m&(1<<uint(t)) != 0 }

// Without returns m minus the types in other.
func (m TypeMask) Without(other TypeMask) TypeMask { return m &^ other }

// Types lists the members of m in ascending order.
func (m TypeMask) Types() []DetailType {
	var out []DetailType
	for _, t := range AllDetailTypes() {
		if m.Has(t) {
			out = append(out, t)
		}
	}
	return out
}
