package pgtx

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Transaction lifecycle events, used as the "event" label value.
const (
	EventStart    = "start"
	EventCommit   = "commit"
	EventRollback = "rollback"
)

// Metrics holds the connection and transaction instruments shared by every
// Conn and Tx of a Database. All instruments are safe for concurrent use.
type Metrics struct {
	ConnectionsActive  prometheus.Gauge
	ConnectionsTotal   prometheus.Counter
	TransactionsActive prometheus.Gauge
	TransactionsTotal  *prometheus.CounterVec
}

// NewMetrics creates the instruments and registers them with registry.
// A nil registry leaves them unregistered but fully functional. When a
// collector with the same description is already registered, the existing
// one is reused so that several Databases report into the same series.
func NewMetrics(namespace string, registry prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "pgtx"
	}

	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of database connections currently checked out of the pool",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of database connections checked out of the pool",
		}),
		TransactionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transactions_active",
			Help:      "Number of database transactions currently open",
		}),
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of database transaction lifecycle events",
			},
			[]string{"event"},
		),
	}

	// Pre-create the series so all three events are exported from the start
	for _, event := range []string{EventStart, EventCommit, EventRollback} {
		m.TransactionsTotal.WithLabelValues(event)
	}

	if registry == nil {
		return m, nil
	}

	var err error
	if m.ConnectionsActive, err = register(registry, m.ConnectionsActive); err != nil {
		return nil, err
	}
	if m.ConnectionsTotal, err = register(registry, m.ConnectionsTotal); err != nil {
		return nil, err
	}
	if m.TransactionsActive, err = register(registry, m.TransactionsActive); err != nil {
		return nil, err
	}
	if m.TransactionsTotal, err = register(registry, m.TransactionsTotal); err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](registry prometheus.Registerer, c C) (C, error) {
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

func (m *Metrics) connectionAcquired() {
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

func (m *Metrics) connectionReleased() {
	m.ConnectionsActive.Dec()
}

func (m *Metrics) transactionStarted() {
	m.TransactionsActive.Inc()
	m.TransactionsTotal.WithLabelValues(EventStart).Inc()
}

// transactionFinished records the terminal event of a transaction. It is
// called exactly once per Tx.
func (m *Metrics) transactionFinished(event string) {
	m.TransactionsTotal.WithLabelValues(event).Inc()
	m.TransactionsActive.Dec()
}

// gaugeValue reads the current value of a gauge. Unreadable gauges report 0.
func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
