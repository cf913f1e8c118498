package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thywilljoshua/catalogdeck/internal/imagegen"
)

// PrometheusRecorder reports image acquisition metrics using Prometheus primitives.
type PrometheusRecorder struct {
	attempts     *prometheus.CounterVec
	backoff      *prometheus.CounterVec
	acquisitions *prometheus.CounterVec
	durations    *prometheus.HistogramVec
}

func NewPrometheusRecorder(registry *prometheus.Registry) (*PrometheusRecorder, error) {
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	r := &PrometheusRecorder{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogdeck_image_attempts_total",
			Help: "Total image generation attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		backoff: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogdeck_image_backoff_seconds_total",
			Help: "Total seconds spent waiting before retries",
		}, []string{"provider", "reason"}),
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogdeck_image_acquisitions_total",
			Help: "Total image acquisitions by final provider and reason",
		}, []string{"provider", "reason"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalogdeck_image_acquisition_duration_seconds",
			Help:    "Image acquisition latency in seconds, retries included",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"reason"}),
	}

	for _, collector := range []prometheus.Collector{r.attempts, r.backoff, r.acquisitions, r.durations} {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

func providerLabel(p string) string {
	if p == "" {
		return "none"
	}
	return p
}

func (r *PrometheusRecorder) ObserveAttempt(provider string, outcome imagegen.Reason) {
	r.attempts.WithLabelValues(providerLabel(provider), outcome.String()).Inc()
}

func (r *PrometheusRecorder) ObserveBackoff(provider string, reason imagegen.Reason, wait time.Duration) {
	r.backoff.WithLabelValues(providerLabel(provider), reason.String()).Add(wait.Seconds())
}

func (r *PrometheusRecorder) ObserveResult(provider string, reason imagegen.Reason, elapsed time.Duration) {
	r.acquisitions.WithLabelValues(providerLabel(provider), reason.String()).Inc()
	r.durations.WithLabelValues(reason.String()).Observe(elapsed.Seconds())
}

func StartPrometheusServer(addr string, registry *prometheus.Registry) (*http.Server, error) {
	if addr == "" {
		addr = ":2112"
	}
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is nil")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics endpoint %q: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	return srv, nil
}

func StopServer(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
