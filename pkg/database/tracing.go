package database

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/utafrali/TrainingPlatform/pkg/database"

type slowQuery struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowQuery]

// SetSlowQueryLogging logs a warning for every traced operation that takes
// at least threshold. A zero threshold or nil logger turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowQuery{threshold: threshold, logger: logger})
}

// TraceQuery starts a client span for a PostgreSQL statement. Call the
// returned function with the operation's error when it completes:
//
//	ctx, end := database.TraceQuery(ctx, "RotateRefreshToken", consumeRefreshSQL)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	return traceOp(ctx, "postgresql", operation, statement)
}

// TraceRedis is TraceQuery for Redis commands and scripts.
func TraceRedis(ctx context.Context, operation, command string) (context.Context, func(error)) {
	return traceOp(ctx, "redis", operation, command)
}

func traceOp(ctx context.Context, system, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		sq := slowQueries.Load()
		if sq == nil {
			return
		}
		elapsed := time.Since(start)
		if elapsed < sq.threshold {
			return
		}
		attrs := []slog.Attr{
			slog.String("db_system", system),
			slog.String("operation", operation),
			slog.String("statement", statement),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		sq.logger.LogAttrs(ctx, slog.LevelWarn, "slow query detected", attrs...)
	}
}
