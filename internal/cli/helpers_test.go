package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/store"
)

// lockedBuffer is a bytes.Buffer safe for the daemon's logging goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testEnv is a config file pointing at databases in a temp dir.
type testEnv struct {
	dir           string
	config        string
	privileged    string
	nonprivileged string
	state         string
}

func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:           dir,
		config:        filepath.Join(dir, "contactsd.yaml"),
		privileged:    filepath.Join(dir, "privileged", "contacts.db"),
		nonprivileged: filepath.Join(dir, "contacts.db"),
		state:         filepath.Join(dir, "privileged", "state.db"),
	}
	cfg := fmt.Sprintf("privileged_db: %s\nnonprivileged_db: %s\nstate_db: %s\n%s",
		env.privileged, env.nonprivileged, env.state, extra)
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o644))
	return env
}

// openStore opens one of the env's databases outside the CLI.
func (e *testEnv) openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	s, err := store.Open(path)
	require.NoError(t, err)
	return s
}

// seed saves records into the privileged database.
func (e *testEnv) seed(t *testing.T, records ...contact.Record) {
	t.Helper()
	s := e.openStore(t, e.privileged)
	defer s.Close()
	require.NoError(t, s.Save(context.Background(), records))
}

// execute runs the root command with args, returning stdout.
func (e *testEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &lockedBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}
