// Package metrics exposes job and pass instrumentation for Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"diskwipe/internal/wipe"
)

// Metrics implements wipe.Recorder on its own registry.
type Metrics struct {
	reg *prometheus.Registry

	jobsStarted  *prometheus.CounterVec
	jobsFinished *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	passes       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	active       prometheus.Gauge
	percent      *prometheus.GaugeVec
}

var _ wipe.Recorder = (*Metrics)(nil)

func New(version string) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diskwipe_jobs_started_total",
			Help: "Jobs started by kind.",
		}, []string{"kind"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diskwipe_jobs_finished_total",
			Help: "Jobs that reached a terminal state, by kind and state.",
		}, []string{"kind", "state"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diskwipe_job_duration_seconds",
			Help:    "Wall time of finished jobs.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}, []string{"kind"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diskwipe_passes_total",
			Help: "External passes that exited, by pass type and exit code.",
		}, []string{"kind", "pass", "exit_code"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diskwipe_pass_duration_seconds",
			Help:    "Wall time of exited passes.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		}, []string{"kind", "pass"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "diskwipe_job_active",
			Help: "1 while a job holds the lease.",
		}),
		percent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "diskwipe_pass_percent",
			Help: "Percent complete of the current pass.",
		}, []string{"kind"}),
	}

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "diskwipe_build_info",
		Help:        "Build info of diskwipe.",
		ConstLabels: prometheus.Labels{"version": version},
	})
	buildInfo.Set(1)

	m.reg.MustRegister(
		m.jobsStarted, m.jobsFinished, m.jobDuration,
		m.passes, m.passDuration, m.active, m.percent,
		buildInfo,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) JobStarted(kind wipe.OpKind) {
	m.jobsStarted.WithLabelValues(string(kind)).Inc()
	m.active.Set(1)
	m.percent.WithLabelValues(string(kind)).Set(0)
}

func (m *Metrics) JobFinished(kind wipe.OpKind, state wipe.State, d time.Duration) {
	m.jobsFinished.WithLabelValues(string(kind), state.String()).Inc()
	m.jobDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	m.active.Set(0)
}

func (m *Metrics) PassFinished(kind wipe.OpKind, pass string, code int, d time.Duration) {
	m.passes.WithLabelValues(string(kind), pass, strconv.Itoa(code)).Inc()
	m.passDuration.WithLabelValues(string(kind), pass).Observe(d.Seconds())
}

func (m *Metrics) Progress(kind wipe.OpKind, percent float64) {
	m.percent.WithLabelValues(string(kind)).Set(percent)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics endpoint listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "metrics server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
