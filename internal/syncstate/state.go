package syncstate

import (
	"context"
	"fmt"
	"log/slog"
)

// Out-of-band keys, scoped by sync source name.
const (
	KeyPrivilegedIDs = "privilegedIds"
	KeyAvatarPaths   = "avatarPaths"
	KeyExportEchoes  = "exportEchoes"
)

// OOB is the out-of-band key/value storage the tables persist into.
type OOB interface {
	GetOOB(ctx context.Context, scope string, keys []string) (map[string][]byte, error)
	PutOOB(ctx context.Context, scope string, values map[string][]byte) error
}

// State bundles the tables for one pass.
type State struct {
	IDs     *IDMap
	Avatars *AvatarShadow
	Echoes  *ExportEchoes
}

// Dirty reports whether any table needs persisting.
func (s *State) Dirty() bool {
	return s.IDs.Dirty() || s.Avatars.Dirty() || s.Echoes.Dirty()
}

// Load reads the tables for scope. Missing keys yield empty tables; a blob
// that fails to decode is an error.
func Load(ctx context.Context, oob OOB, scope string, logger *slog.Logger) (*State, error) {
	values, err := oob.GetOOB(ctx, scope, []string{KeyPrivilegedIDs, KeyAvatarPaths, KeyExportEchoes})
	if err != nil {
		return nil, fmt.Errorf("load sync state %q: %w", scope, err)
	}
	ids, err := DecodeIDMap(values[KeyPrivilegedIDs], logger)
	if err != nil {
		return nil, fmt.Errorf("load sync state %q: %w", scope, err)
	}
	avatars, err := DecodeAvatarShadow(values[KeyAvatarPaths])
	if err != nil {
		return nil, fmt.Errorf("load sync state %q: %w", scope, err)
	}
	echoes, err := DecodeExportEchoes(values[KeyExportEchoes])
	if err != nil {
		return nil, fmt.Errorf("load sync state %q: %w", scope, err)
	}
	return &State{IDs: ids, Avatars: avatars, Echoes: echoes}, nil
}

// Persist writes the dirty tables in one call. It returns the keys written,
// which is empty when nothing was dirty.
func (s *State) Persist(ctx context.Context, oob OOB, scope string) ([]string, error) {
	values := make(map[string][]byte, 3)
	var keys []string
	if s.IDs.Dirty() {
		data, err := s.IDs.MarshalBinary()
		if err != nil {
			return nil, err
		}
		values[KeyPrivilegedIDs] = data
		keys = append(keys, KeyPrivilegedIDs)
	}
	if s.Avatars.Dirty() {
		data, err := s.Avatars.MarshalBinary()
		if err != nil {
			return nil, err
		}
		values[KeyAvatarPaths] = data
		keys = append(keys, KeyAvatarPaths)
	}
	if s.Echoes.Dirty() {
		data, err := s.Echoes.MarshalBinary()
		if err != nil {
			return nil, err
		}
		values[KeyExportEchoes] = data
		keys = append(keys, KeyExportEchoes)
	}
	if len(values) == 0 {
		return nil, nil
	}
	if err := oob.PutOOB(ctx, scope, values); err != nil {
		return nil, fmt.Errorf("persist sync state %q: %w", scope, err)
	}
	return keys, nil
}
