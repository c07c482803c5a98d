// Package metrics exposes controller activity as Prometheus metrics on a
// private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbweber/anvil/internal/resource"
)

// DefaultNamespace prefixes every metric name when none is configured.
const DefaultNamespace = "anvil"

// Recorder implements lifecycle.Observer.
type Recorder struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	backendUp  *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry. The Go runtime and
// process collectors are registered alongside the operation metrics.
func NewRecorder(namespace string) (*Recorder, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of lifecycle operations",
			},
			[]string{"operation", "kind", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of lifecycle operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~41s
			},
			[]string{"operation", "kind"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of failed operations by error kind",
			},
			[]string{"operation", "error"},
		),
		backendUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_up",
				Help:      "Whether the last health check of a backend succeeded",
			},
			[]string{"kind"},
		),
	}

	collectors := []prometheus.Collector{
		r.operations,
		r.duration,
		r.errors,
		r.backendUp,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	}
	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// ObserveOperation records one completed operation.
func (r *Recorder) ObserveOperation(op string, kind resource.Kind, err error, elapsed time.Duration) {
	k := string(kind)
	if k == "" {
		k = "unresolved"
	}

	status := "success"
	if err != nil {
		status = "error"
		r.errors.WithLabelValues(op, string(resource.KindOf(err))).Inc()
	}

	r.operations.WithLabelValues(op, k, status).Inc()
	r.duration.WithLabelValues(op, k).Observe(elapsed.Seconds())
}

// SetBackendUp records the outcome of a backend health check.
func (r *Recorder) SetBackendUp(kind resource.Kind, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	r.backendUp.WithLabelValues(string(kind)).Set(v)
}

// Registry returns the registry the metrics live in.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
