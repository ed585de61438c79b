package pgtx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// mockEnv is a Database backed by sqlmock with observable metrics, spans and logs
type mockEnv struct {
	db       *Database
	mock     sqlmock.Sqlmock
	registry *prometheus.Registry
	spans    *tracetest.SpanRecorder
	logs     *bytes.Buffer
}

// newMockDB returns a Database on top of sqlmock with statements matched exactly
func newMockDB(t *testing.T) *mockEnv {
	t.Helper()
	return newMockDBMatching(t, sqlmock.QueryMatcherEqual)
}

// newMockDBMatching is newMockDB with a custom statement matcher
func newMockDBMatching(t *testing.T, matcher sqlmock.QueryMatcher) *mockEnv {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}

	env := &mockEnv{
		mock:     mock,
		registry: prometheus.NewRegistry(),
		spans:    tracetest.NewSpanRecorder(),
		logs:     &bytes.Buffer{},
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(env.spans))

	cfg := Config{
		Logger:          slog.New(slog.NewTextHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		MetricsRegistry: env.registry,
		Tracer:          provider.Tracer("pgtx-test"),
	}
	cfg.applyDefaults()

	env.db, err = open(context.Background(), sqlDB, cfg)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	t.Cleanup(func() {
		_ = env.db.Close()
	})

	return env
}

func (e *mockEnv) expectationsMet(t *testing.T) {
	t.Helper()
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet sqlmock expectations: %v", err)
	}
}

// counters is a snapshot of every instrument
type counters struct {
	connActive float64
	connTotal  float64
	txActive   float64
	start      float64
	commit     float64
	rollback   float64
}

func (e *mockEnv) counters() counters {
	m := e.db.Metrics()
	return counters{
		connActive: testutil.ToFloat64(m.ConnectionsActive),
		connTotal:  testutil.ToFloat64(m.ConnectionsTotal),
		txActive:   testutil.ToFloat64(m.TransactionsActive),
		start:      testutil.ToFloat64(m.TransactionsTotal.WithLabelValues(EventStart)),
		commit:     testutil.ToFloat64(m.TransactionsTotal.WithLabelValues(EventCommit)),
		rollback:   testutil.ToFloat64(m.TransactionsTotal.WithLabelValues(EventRollback)),
	}
}

// span returns the last ended span with the given name
func (e *mockEnv) span(t *testing.T, name string) sdktrace.ReadOnlySpan {
	t.Helper()

	ended := e.spans.Ended()
	for i := len(ended) - 1; i >= 0; i-- {
		if ended[i].Name() == name {
			return ended[i]
		}
	}
	t.Fatalf("No span named %s was recorded", name)
	return nil
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// beginTx connects and begins a transaction, expecting BEGIN on the mock
func (e *mockEnv) beginTx(t *testing.T) (*Conn, *Tx) {
	t.Helper()

	ctx := context.Background()
	conn, err := e.db.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	e.mock.ExpectBegin()
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Close()
		t.Fatalf("Begin failed: %v", err)
	}

	return conn, tx
}

// queryErrors reads pgtx_query_errors_total for one operation label
func (e *mockEnv) queryErrors(t *testing.T, operation string) float64 {
	t.Helper()

	families, err := e.registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "pgtx_query_errors_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "operation" && l.GetValue() == operation {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
