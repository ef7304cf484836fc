// Package metrics exposes Prometheus instrumentation for reconciliation
// passes and store calls.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matthewvogt/contactsd/internal/reconcile"
)

// Pass results used as the "result" label.
const (
	ResultOK         = "ok"
	ResultAborted    = "aborted"
	ResultInProgress = "in_progress"
)

// Metrics holds the collectors of one daemon instance.
type Metrics struct {
	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	written      *prometheus.CounterVec
	pairs        prometheus.Gauge
	storeLatency *prometheus.HistogramVec
}

// New registers the collectors with reg, wrapped with constLabels.
func New(reg prometheus.Registerer, constLabels prometheus.Labels) *Metrics {
	if len(constLabels) > 0 {
		reg = prometheus.WrapRegistererWith(constLabels, reg)
	}
	f := promauto.With(reg)

	return &Metrics{
		passes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contactsd_passes_total",
				Help: "Total number of reconciliation passes by result",
			},
			[]string{"result"},
		),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "contactsd_pass_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		written: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contactsd_records_written_total",
				Help: "Records written by completed passes",
			},
			[]string{"direction", "op"},
		),
		pairs: f.NewGauge(prometheus.GaugeOpts{
			Name: "contactsd_mapped_pairs",
			Help: "Identifier pairs after the last completed pass",
		}),
		storeLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contactsd_store_latency_seconds",
				Help:    "Store operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"store", "op"},
		),
	}
}

// ObservePass records one pass. Write counts are only recorded for passes
// that completed.
func (m *Metrics) ObservePass(report *reconcile.Report, err error, elapsed time.Duration) {
	switch {
	case errors.Is(err, reconcile.ErrPassInProgress):
		m.passes.WithLabelValues(ResultInProgress).Inc()
		return
	case err != nil:
		m.passes.WithLabelValues(ResultAborted).Inc()
	default:
		m.passes.WithLabelValues(ResultOK).Inc()
	}
	m.passDuration.Observe(elapsed.Seconds())

	if err != nil || report == nil {
		return
	}
	m.addCounts(string(reconcile.DirectionImport), report.Import)
	m.addCounts(string(reconcile.DirectionExport), report.Export)
	m.pairs.Set(float64(report.Pairs))
}

func (m *Metrics) addCounts(direction string, c reconcile.Counts) {
	for op, n := range map[reconcile.Op]int{
		reconcile.OpAdd:      c.Added,
		reconcile.OpModify:   c.Modified,
		reconcile.OpRemove:   c.Removed,
		reconcile.OpPresence: c.Presence,
		reconcile.OpSelf:     c.Self,
		reconcile.OpRecreate: c.Recreated,
	} {
		if n > 0 {
			m.written.WithLabelValues(direction, string(op)).Add(float64(n))
		}
	}
}

func (m *Metrics) observeStore(store, op string, start time.Time) {
	m.storeLatency.WithLabelValues(store, op).Observe(time.Since(start).Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseLabels parses a comma-separated list of key=value pairs into
// constant labels. Values support ${VAR} / $VAR expansion. Returns nil for
// an empty string.
func ParseLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}
