// Package metrics exposes run instrumentation in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"favesave/internal/model"
)

const namespace = "favesave"

// Metrics holds one registry per process so tests can build their own.
type Metrics struct {
	registry *prometheus.Registry

	outcomes      *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	inFlight      prometheus.Gauge
	stalled       prometheus.Gauge
	runs          *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Work items by category and terminal disposition.",
		},
		[]string{"category", "disposition"},
	)
	m.fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Wall time of successful fetches.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
	m.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fetches_in_flight",
		Help:      "Fetches submitted and not yet harvested.",
	})
	m.stalled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_stalled",
		Help:      "1 while some in-flight fetch exceeds the stall threshold.",
	})
	m.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by terminal state.",
		},
		[]string{"state"},
	)

	m.registry.MustRegister(m.outcomes, m.fetchDuration, m.inFlight, m.stalled, m.runs)
	return m
}

func (m *Metrics) Disposition(c model.Category, d model.Disposition) {
	m.outcomes.WithLabelValues(string(c), string(d)).Inc()
}

func (m *Metrics) FetchDuration(d time.Duration) {
	m.fetchDuration.Observe(d.Seconds())
}

func (m *Metrics) InFlight(n int) {
	m.inFlight.Set(float64(n))
}

func (m *Metrics) Stalled(stalled bool) {
	if stalled {
		m.stalled.Set(1)
		return
	}
	m.stalled.Set(0)
}

func (m *Metrics) RunFinished(state model.RunState) {
	m.runs.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *log.Entry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
