package hooks

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// MetricsHook records per-query Prometheus metrics
type MetricsHook struct {
	queryDuration *prometheus.HistogramVec
	queryErrors   *prometheus.CounterVec
}

// NewMetricsHook creates a new metrics hook and registers its collectors
func NewMetricsHook(namespace string, registry prometheus.Registerer) (*MetricsHook, error) {
	h := &MetricsHook{
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		queryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_errors_total",
				Help:      "Total number of failed database queries",
			},
			[]string{"operation"},
		),
	}

	var err error
	if h.queryDuration, err = reuse(registry, h.queryDuration); err != nil {
		return nil, err
	}
	if h.queryErrors, err = reuse(registry, h.queryErrors); err != nil {
		return nil, err
	}

	return h, nil
}

// BeforeQuery is called before a query is executed
func (h *MetricsHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery is called after a query is executed
func (h *MetricsHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	op := OperationType(event.Query)

	h.queryDuration.WithLabelValues(op).Observe(time.Since(event.StartTime).Seconds())
	if event.Err != nil {
		h.queryErrors.WithLabelValues(op).Inc()
	}
}

// reuse registers c, or returns the collector already registered under the
// same descriptor when it has the same type.
func reuse[C prometheus.Collector](registry prometheus.Registerer, c C) (C, error) {
	if err := registry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
