package contact

import (
	"strings"
	"time"
)

// Event is a change-log event kind.
type Event uint8

const (
	EventAdded Event = 1 << iota
	EventChanged
	EventRemoved
)

func (e Event) String() string {
	var parts []string
	if e&EventAdded != 0 {
		parts = append(parts, "added")
	}
	if e&EventChanged != 0 {
		parts = append(parts, "changed")
	}
	if e&EventRemoved != 0 {
		parts = append(parts, "removed")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Filter selects record ids from a store.
//
// With Events unset the filter matches every live record. Otherwise it
// matches records with at least one of the given change-log events at or
// after Since; EventRemoved only ever matches records that are currently
// deleted, the other events only records that are still live.
type Filter struct {
	SyncTarget string
	Events     Event
	Since      time.Time
}

// NotificationKind classifies a store change signal.
type NotificationKind int

const (
	NotifyAdded NotificationKind = iota + 1
	NotifyChanged
	NotifyRemoved
	NotifyPresenceChanged
	NotifySyncSourcesChanged
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyAdded:
		return "added"
	case NotifyChanged:
		return "changed"
	case NotifyRemoved:
		return "removed"
	case NotifyPresenceChanged:
		return "presence-changed"
	case NotifySyncSourcesChanged:
		return "sync-sources-changed"
	default:
		return "unknown"
	}
}

// Notification is emitted by a store after a committed change.
type Notification struct {
	Kind  NotificationKind
	IDs   []ID
	Names []string // sync source names, for NotifySyncSourcesChanged
}
