package testutil

import "github.com/matthewvogt/contactsd/internal/contact"

// Record builds a record without an id.
func Record(details ...contact.Detail) contact.Record {
	return contact.Record{Details: details}
}

// RecordWithID builds a record with the given id.
func RecordWithID(id contact.ID, details ...contact.Detail) contact.Record {
	return contact.Record{ID: id, Details: details}
}

func Name(first, last string) contact.Detail {
	return contact.NewDetail(contact.TypeName, "first", first, "last", last)
}

func Phone(number string) contact.Detail {
	return contact.NewDetail(contact.TypePhoneNumber, "number", number)
}

func Email(address string) contact.Detail {
	return contact.NewDetail(contact.TypeEmailAddress, "address", address)
}

func Avatar(url string) contact.Detail {
	return contact.NewDetail(contact.TypeAvatar, contact.FieldImageURL, url)
}

func Aggregate() contact.Detail {
	return contact.NewDetail(contact.TypeSyncTarget, contact.FieldSyncTarget, contact.SyncTargetAggregate)
}

// Account builds an online-account detail identified by uri.
func Account(uri, accountURI string, kv ...string) contact.Detail {
	d := contact.NewDetail(contact.TypeOnlineAccount, append([]string{contact.FieldAccountURI, accountURI}, kv...)...)
	d.URI = uri
	return d
}

// Presence builds a presence detail linked to the given account uris.
func Presence(state string, linked ...string) contact.Detail {
	d := contact.NewDetail(contact.TypePresence, contact.FieldPresenceState, state)
	d.LinkedURIs = linked
	return d
}
