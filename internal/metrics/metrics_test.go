package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/reconcile"
	"github.com/matthewvogt/contactsd/internal/testutil"
)

// scrape renders the registry in text exposition format.
func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObservePass(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, prometheus.Labels{"instance": "phone"})

	m.ObservePass(&reconcile.Report{
		Import: reconcile.Counts{Added: 2},
		Export: reconcile.Counts{Modified: 1, Recreated: 1, Skipped: 4},
		Pairs:  7,
	}, nil, 20*time.Millisecond)
	m.ObservePass(&reconcile.Report{Export: reconcile.Counts{Added: 9}}, errors.New("disk I/O error"), time.Millisecond)
	m.ObservePass(nil, reconcile.ErrPassInProgress, 0)

	out := scrape(t, reg)
	assert.Contains(t, out, `contactsd_passes_total{instance="phone",result="ok"} 1`)
	assert.Contains(t, out, `contactsd_passes_total{instance="phone",result="aborted"} 1`)
	assert.Contains(t, out, `contactsd_passes_total{instance="phone",result="in_progress"} 1`)
	assert.Contains(t, out, `contactsd_pass_duration_seconds_count{instance="phone"} 2`)
	assert.Contains(t, out, `contactsd_records_written_total{direction="import",instance="phone",op="add"} 2`)
	assert.Contains(t, out, `contactsd_records_written_total{direction="export",instance="phone",op="modify"} 1`)
	assert.Contains(t, out, `contactsd_records_written_total{direction="export",instance="phone",op="recreate"} 1`)
	assert.NotContains(t, out, `op="add"} 9`, "aborted passes record no writes")
	assert.Contains(t, out, `contactsd_mapped_pairs{instance="phone"} 7`)
}

func TestWrapStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, nil)
	st := testutil.OpenStores(t)
	ctx := context.Background()

	privileged := m.WrapPrivileged("privileged", st.Privileged)
	nonprivileged := m.WrapStore("nonprivileged", st.Nonprivileged)

	records := []contact.Record{testutil.Record(testutil.Aggregate(), testutil.Phone("1"))}
	require.NoError(t, privileged.Save(ctx, records))
	assert.False(t, records[0].ID.IsZero(), "ids are assigned through the wrapper")
	_, err := privileged.LocalChanges(ctx, "export", time.Time{}, contact.IgnorableTypes())
	require.NoError(t, err)
	require.NoError(t, privileged.Apply(ctx, []contact.ID{records[0].ID}, nil))
	_, err = nonprivileged.Find(ctx, contact.Filter{})
	require.NoError(t, err)
	assert.Equal(t, testutil.NonprivilegedSelf, nonprivileged.SelfID())

	out := scrape(t, reg)
	for _, want := range []string{
		`contactsd_store_latency_seconds_count{op="save",store="privileged"} 1`,
		`contactsd_store_latency_seconds_count{op="local_changes",store="privileged"} 1`,
		`contactsd_store_latency_seconds_count{op="apply",store="privileged"} 1`,
		`contactsd_store_latency_seconds_count{op="find",store="nonprivileged"} 1`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestParseLabels(t *testing.T) {
	t.Setenv("CONTACTSD_TEST_HOST", "phone-1")

	labels, err := ParseLabels("host=${CONTACTSD_TEST_HOST},zone=eu")
	require.NoError(t, err)
	assert.Equal(t, prometheus.Labels{"host": "phone-1", "zone": "eu"}, labels)

	labels, err = ParseLabels("")
	require.NoError(t, err)
	assert.Nil(t, labels)

	_, err = ParseLabels("novalue")
	assert.Error(t, err)
	_, err = ParseLabels("1bad=x")
	assert.Error(t, err)
}
