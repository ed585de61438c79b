package hooks

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys recorded on statement spans
const (
	AttrStatement = attribute.Key("db.statement")
	AttrOperation = attribute.Key("db.operation")
	AttrResult    = attribute.Key("result")
	AttrRows      = attribute.Key("rows")
	AttrError     = attribute.Key("error")
)

// StatementSpan is a client span around one transaction operation. The
// error flag is always recorded by End, whatever the outcome.
type StatementSpan struct {
	span trace.Span
}

// StartStatement starts a span named name carrying the statement text
func StartStatement(ctx context.Context, tracer trace.Tracer, name, statement string) (context.Context, *StatementSpan) {
	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			AttrStatement.String(Truncate(statement)),
			AttrOperation.String(OperationType(statement)),
		),
	)
	return ctx, &StatementSpan{span: span}
}

// SetResult records the number of rows affected by a statement
func (s *StatementSpan) SetResult(n int64) {
	s.span.SetAttributes(AttrResult.Int64(n))
}

// SetRows records the number of rows returned by a query
func (s *StatementSpan) SetRows(n int) {
	s.span.SetAttributes(AttrRows.Int(n))
}

// End records the error flag and ends the span
func (s *StatementSpan) End(err error) {
	defer s.span.End()

	s.span.SetAttributes(AttrError.Bool(err != nil))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		return
	}
	s.span.SetStatus(codes.Ok, "")
}
