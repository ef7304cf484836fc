package redact

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// Default avatar path layout: files under DefaultMarker are unreadable to
// nonprivileged clients, and dropping DefaultSegment yields the readable
// sibling location.
const (
	DefaultMarker  = "/privileged/Contacts/"
	DefaultSegment = "/privileged"
)

// Virtualizer rewrites avatar paths that point into the privileged-only
// directory so that they point at a hard-linked sibling outside it.
type Virtualizer struct {
	marker  string
	segment string
	logger  *slog.Logger
}

// NewVirtualizer validates the layout. segment must be a prefix of marker.
func NewVirtualizer(marker, segment string, logger *slog.Logger) (*Virtualizer, error) {
	if marker == "" || segment == "" {
		return nil, errors.New("avatar marker and segment are required")
	}
	if !strings.HasPrefix(marker, segment) {
		return nil, fmt.Errorf("avatar segment %q is not a prefix of marker %q", segment, marker)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Virtualizer{marker: marker, segment: segment, logger: logger}, nil
}

// Virtualize rewrites every eligible avatar detail of r in place and returns
// the substitutions made, keyed by new URL with the original URL as value.
// Link failures are logged and leave the avatar untouched.
func (v *Virtualizer) Virtualize(r *contact.Record) map[string]string {
	changes := make(map[string]string)
	for i := range r.Details {
		d := r.Details[i]
		if d.Type != contact.TypeAvatar {
			continue
		}
		original := d.Value(contact.FieldImageURL)
		path, ok := localPath(original)
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		idx := strings.Index(abs, v.marker)
		if idx == -1 {
			continue
		}
		sibling := abs[:idx] + abs[idx+len(v.segment):]
		if err := v.ensureLink(abs, sibling); err != nil {
			v.logger.Warn("unable to link avatar for export",
				"source", abs,
				"target", sibling,
				"error", err,
			)
			continue
		}

		replacement := fileURL(sibling)
		updated := d.Clone()
		updated.Set(contact.FieldImageURL, replacement)
		r.Details[i] = updated
		changes[replacement] = original
	}
	return changes
}

func (v *Virtualizer) ensureLink(source, target string) error {
	if _, err := os.Stat(target); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		v.logger.Warn("unable to create avatar directory", "dir", dir, "error", err)
	}
	return os.Link(source, target)
}

// ReverseAvatars restores avatar URLs that match a recorded substitution so
// that an export-side rewrite is not mistaken for an external edit.
func ReverseAvatars(r *contact.Record, changes map[string]string) bool {
	if len(changes) == 0 {
		return false
	}
	reversed := false
	for i := range r.Details {
		d := r.Details[i]
		if d.Type != contact.TypeAvatar {
			continue
		}
		original, ok := changes[d.Value(contact.FieldImageURL)]
		if !ok {
			continue
		}
		updated := d.Clone()
		updated.Set(contact.FieldImageURL, original)
		r.Details[i] = updated
		reversed = true
	}
	return reversed
}

// localPath extracts a filesystem path from a scheme-less path or a file URL.
func localPath(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "":
		return raw, true
	case "file":
		if u.Path == "" {
			return "", false
		}
		return u.Path, true
	default:
		return "", false
	}
}

func fileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
