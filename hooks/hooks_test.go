package hooks

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOperationType(t *testing.T) {
	tests := []struct {
		query    string
		expected string
	}{
		{"SELECT 1", "select"},
		{"  with x as (select 1) select * from x", "select"},
		{"INSERT INTO items VALUES (1)", "insert"},
		{"update items set n = 1", "update"},
		{"DELETE FROM items", "delete"},
		{"CREATE TABLE a (id INT)", "create"},
		{"DROP TABLE a", "drop"},
		{"ALTER TABLE a ADD COLUMN b INT", "alter"},
		{"BEGIN", "begin"},
		{"START TRANSACTION ISOLATION LEVEL SERIALIZABLE", "begin"},
		{"COMMIT", "commit"},
		{"ROLLBACK", "rollback"},
		{"VACUUM", "other"},
	}

	for _, tt := range tests {
		if got := OperationType(tt.query); got != tt.expected {
			t.Errorf("OperationType(%q) = %s, want %s", tt.query, got, tt.expected)
		}
	}
}

func TestTruncate(t *testing.T) {
	short := "SELECT 1"
	if Truncate(short) != short {
		t.Error("Short statements should be unchanged")
	}

	long := strings.Repeat("x", maxStatementLen+10)
	got := Truncate(long)
	if len(got) != maxStatementLen+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("Expected truncation to %d chars plus ellipsis, got %d", maxStatementLen, len(got))
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	// The single x puts every two-byte é on an odd offset
	query := "INSERT INTO t (name) VALUES ('x" + strings.Repeat("é", 300) + "')"

	got := Truncate(query)
	if !utf8.ValidString(got) {
		t.Fatalf("Truncated statement is not valid UTF-8: %q", got[len(got)-8:])
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("Expected ellipsis")
	}
	if len(got) > maxStatementLen+3 {
		t.Errorf("Expected at most %d bytes, got %d", maxStatementLen+3, len(got))
	}

	for n := 0; n < 8; n++ {
		if s := TruncateTo("ééé", n); !utf8.ValidString(s) {
			t.Errorf("TruncateTo(%d) produced invalid UTF-8: %q", n, s)
		}
	}
}

func TestLoggerHook(t *testing.T) {
	tests := []struct {
		name     string
		logAll   bool
		slow     time.Duration
		elapsed  time.Duration
		err      error
		expected string
	}{
		{"quiet", false, 0, 0, nil, ""},
		{"all", true, 0, 0, nil, "level=DEBUG msg=\"database query\""},
		{"slow", false, time.Millisecond, time.Second, nil, "level=WARN msg=\"slow database query\""},
		{"error", false, 0, 0, errors.New("boom"), "level=ERROR msg=\"database query failed\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			hook := NewLoggerHook(log, tt.logAll, tt.slow)

			event := &bun.QueryEvent{
				Query:     "SELECT 1",
				StartTime: time.Now().Add(-tt.elapsed),
				Err:       tt.err,
			}
			ctx := hook.BeforeQuery(context.Background(), event)
			hook.AfterQuery(ctx, event)

			if tt.expected == "" {
				if buf.Len() != 0 {
					t.Errorf("Expected no output, got %s", buf.String())
				}
				return
			}
			if !strings.Contains(buf.String(), tt.expected) {
				t.Errorf("Expected %q in %s", tt.expected, buf.String())
			}
		})
	}
}

func TestMetricsHook(t *testing.T) {
	registry := prometheus.NewRegistry()
	hook, err := NewMetricsHook("pgtx", registry)
	if err != nil {
		t.Fatalf("NewMetricsHook failed: %v", err)
	}

	ctx := context.Background()
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "INSERT INTO x VALUES (1)", StartTime: time.Now(), Err: errors.New("boom")})

	if got := testutil.ToFloat64(hook.queryErrors.WithLabelValues("insert")); got != 1 {
		t.Errorf("Expected 1 insert error, got %v", got)
	}
	if got := testutil.ToFloat64(hook.queryErrors.WithLabelValues("select")); got != 0 {
		t.Errorf("Expected no select errors, got %v", got)
	}
	if count := testutil.CollectAndCount(hook.queryDuration); count != 2 {
		t.Errorf("Expected 2 duration series, got %d", count)
	}

	// A second hook on the same registry shares the collectors
	again, err := NewMetricsHook("pgtx", registry)
	if err != nil {
		t.Fatalf("Second NewMetricsHook failed: %v", err)
	}
	if again.queryErrors != hook.queryErrors {
		t.Error("Expected the already registered collector to be reused")
	}
}

func TestMetricsHook_ConflictingCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	// Same descriptor as the duration histogram, but a counter
	registry.MustRegister(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pgtx",
		Name:      "query_duration_seconds",
		Help:      "Duration of database queries in seconds",
	}, []string{"operation"}))

	hook, err := NewMetricsHook("pgtx", registry)
	if err == nil {
		t.Fatalf("Expected a registration error, got hook %+v", hook)
	}
}

type recordingHook struct {
	name  string
	calls *[]string
	err   error
}

func (h recordingHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	*h.calls = append(*h.calls, "before "+h.name)
	return ctx
}

func (h recordingHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	*h.calls = append(*h.calls, "after "+h.name+" "+event.Query)
	if event.Err != nil {
		*h.calls = append(*h.calls, "error "+h.name)
	}
}

func TestExec(t *testing.T) {
	var calls []string
	queryHooks := []bun.QueryHook{
		recordingHook{name: "a", calls: &calls},
		recordingHook{name: "b", calls: &calls},
	}

	boom := errors.New("boom")
	err := Exec(context.Background(), queryHooks, "CREATE TABLE a (id INT)", func(context.Context) error {
		calls = append(calls, "exec")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected exec error, got %v", err)
	}

	expected := []string{
		"before a",
		"before b",
		"exec",
		"after b CREATE TABLE a (id INT)",
		"error b",
		"after a CREATE TABLE a (id INT)",
		"error a",
	}
	if strings.Join(calls, "|") != strings.Join(expected, "|") {
		t.Errorf("Unexpected hook order:\n got %v\nwant %v", calls, expected)
	}
}

func TestExec_NoHooks(t *testing.T) {
	ran := false
	err := Exec(context.Background(), nil, "SELECT 1", func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Errorf("Expected fn to run without hooks, ran=%v err=%v", ran, err)
	}
}

func TestMetricsHook_Exec(t *testing.T) {
	registry := prometheus.NewRegistry()
	hook, err := NewMetricsHook("pgtx", registry)
	if err != nil {
		t.Fatalf("NewMetricsHook failed: %v", err)
	}

	_ = Exec(context.Background(), []bun.QueryHook{hook}, "DROP TABLE a", func(context.Context) error {
		return errors.New("boom")
	})

	if got := testutil.ToFloat64(hook.queryErrors.WithLabelValues("drop")); got != 1 {
		t.Errorf("Expected 1 drop error, got %v", got)
	}
}

func TestStatementSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("hooks-test")

	_, ok := StartStatement(context.Background(), tracer, "ok", "UPDATE items SET n = 1")
	ok.SetResult(3)
	ok.End(nil)

	_, failed := StartStatement(context.Background(), tracer, "failed", "SELECT broken")
	failed.End(errors.New("syntax error"))

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(ended))
	}

	attrs := func(span sdktrace.ReadOnlySpan) map[string]any {
		out := map[string]any{}
		for _, kv := range span.Attributes() {
			out[string(kv.Key)] = kv.Value.AsInterface()
		}
		return out
	}

	okAttrs := attrs(ended[0])
	if okAttrs[string(AttrOperation)] != "update" || okAttrs[string(AttrResult)] != int64(3) || okAttrs[string(AttrError)] != false {
		t.Errorf("Unexpected attributes on successful span: %v", okAttrs)
	}
	if ended[0].Status().Code != codes.Ok {
		t.Errorf("Expected Ok status, got %v", ended[0].Status().Code)
	}

	failedAttrs := attrs(ended[1])
	if failedAttrs[string(AttrError)] != true || failedAttrs[string(AttrStatement)] != "SELECT broken" {
		t.Errorf("Unexpected attributes on failed span: %v", failedAttrs)
	}
	if ended[1].Status().Code != codes.Error {
		t.Errorf("Expected Error status, got %v", ended[1].Status().Code)
	}
}
