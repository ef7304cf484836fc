package cli

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewvogt/contactsd/internal/engine"
	"github.com/matthewvogt/contactsd/internal/testutil"
)

func startDaemon(t *testing.T, env *testEnv, args ...string) (addr string, stdout *lockedBuffer, cancel context.CancelFunc, done <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan string, 1)

	cmd := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Config: env.config, Format: "text"},
		Started: func(_ *engine.Engine, metricsAddr string) {
			started <- metricsAddr
		},
	})
	stdout = &lockedBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&lockedBuffer{})
	cmd.SetArgs(args)

	errc := make(chan error, 1)
	go func() { errc <- cmd.ExecuteContext(ctx) }()

	select {
	case addr = <-started:
	case err := <-errc:
		cancel()
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon did not start")
	}
	return addr, stdout, cancel, errc
}

// scrape returns the metrics exposition, or "" when the request fails.
func scrape(t *testing.T, addr string) string {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	return string(body)
}

func TestRun_InitialPassAndMetrics(t *testing.T) {
	env := newTestEnv(t, "")
	env.seed(t, testutil.Record(testutil.Name("Ada", "Lovelace")))

	addr, stdout, cancel, done := startDaemon(t, env, "--metrics-addr", "127.0.0.1:0")
	defer cancel()
	require.NotEmpty(t, addr)

	require.Eventually(t, func() bool {
		return strings.Contains(scrape(t, addr), `contactsd_passes_total{result="ok"} 1`)
	}, 5*time.Second, 20*time.Millisecond)

	body := scrape(t, addr)
	assert.Contains(t, body, `contactsd_records_written_total{direction="export",op="add"} 1`)
	assert.Contains(t, body, `contactsd_mapped_pairs 2`)
	assert.Contains(t, body, `contactsd_store_latency_seconds_count{op="local_changes",store="privileged"} 1`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Contains(t, stdout.String(), "contactsd started (source contacts-export)")

	np := env.openStore(t, env.nonprivileged)
	defer np.Close()
	all, err := np.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRun_WatchPicksUpExternalWrites(t *testing.T) {
	env := newTestEnv(t, "watch: true\nsync_delay: 10ms\n")

	addr, _, cancel, done := startDaemon(t, env, "--metrics-addr", "127.0.0.1:0")
	defer cancel()

	require.Eventually(t, func() bool {
		return strings.Contains(scrape(t, addr), `contactsd_passes_total{result="ok"}`)
	}, 5*time.Second, 20*time.Millisecond)

	// Another process writes to the privileged database.
	env.seed(t, testutil.Record(testutil.Name("Grace", "Hopper")))

	require.Eventually(t, func() bool {
		return strings.Contains(scrape(t, addr), `contactsd_records_written_total{direction="export",op="add"} 1`)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_BadConfig(t *testing.T) {
	env := newTestEnv(t, "sync_delay: -1s\n")
	_, err := env.execute(t, "run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
