package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// marshalDetails converts details to JSON TEXT for storage. HTML escaping
// is disabled so stored values read back byte for byte.
func marshalDetails(details []contact.Detail) (string, error) {
	if len(details) == 0 {
		return "[]", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(details); err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalDetails(data string) ([]contact.Detail, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var details []contact.Detail
	if err := json.Unmarshal([]byte(data), &details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	return details, nil
}

// storedDetails drops the synthesized timestamp detail.
func storedDetails(details []contact.Detail) []contact.Detail {
	out := make([]contact.Detail, 0, len(details))
	for _, d := range details {
		if d.Type == contact.TypeTimestamp {
			continue
		}
		out = append(out, d)
	}
	return out
}

func timestampDetail(created, modified time.Time) contact.Detail {
	return contact.NewDetail(contact.TypeTimestamp,
		contact.FieldCreated, created.Format(time.RFC3339Nano),
		contact.FieldModified, modified.Format(time.RFC3339Nano),
	)
}

// toNanos maps the zero time to 0 so it round-trips through fromNanos.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
