package engine

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"lawgraph/internal/conflict"
	"lawgraph/internal/metrics"
	lawtrace "lawgraph/internal/trace"
)

const tracerName = "lawgraph/engine"

type options struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *metrics.Collector
	sink        lawtrace.Sink
	blocking    conflict.Severity
	parallelism int
}

// Option configures ExecuteGraph and Check.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:      slog.New(slog.DiscardHandler),
		tracer:      otel.Tracer(tracerName),
		sink:        lawtrace.NopSink{},
		blocking:    conflict.SeverityCritical,
		parallelism: 1,
	}
}

func apply(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithLogger sets the structured logger. Node transitions log at Debug.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer sets the OpenTelemetry tracer used for run and node spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMetrics records runs, nodes and conflicts in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithTraceSink receives the execution trace events.
func WithTraceSink(s lawtrace.Sink) Option {
	return func(o *options) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithBlockingSeverity sets the lowest conflict severity that prevents a run.
// The default is critical.
func WithBlockingSeverity(s conflict.Severity) Option {
	return func(o *options) { o.blocking = s }
}

// WithParallelism runs up to n independent nodes at once. Values below 2
// keep the serial runner.
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}
