// Package telemetry defines the narrow logging, metrics, and tracing
// interfaces the runtime depends on. Concrete implementations wrap
// goa.design/clue/log for logging and go.opentelemetry.io/otel for metrics
// and tracing; a no-op implementation of each is provided for tests and for
// embedders who don't want observability wired in.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger is the structured logging interface every component accepts.
	// Key-value pairs follow the conventional alternating key/value
	// calling convention (key1, value1, key2, value2, ...).
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters and timers for runtime operations (tool
	// invocations, plan activity latency, queue depth).
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, d time.Duration, tags ...string)
	}

	// Tracer starts spans around suspension points: LLM calls, tool
	// dispatch, journal and artifact I/O.
	Tracer interface {
		StartSpan(ctx context.Context, name string) (context.Context, Span)
	}

	// Span is a single trace span. SetError marks the span as failed
	// without ending it; End finalizes it.
	Span interface {
		SetError(err error)
		SetAttributes(keyvals ...any)
		End()
	}
)
