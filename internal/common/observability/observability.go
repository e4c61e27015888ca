package observability

import (
	"context"
	"time"

	"receipt-agent/internal/common/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	sessionCounter otelmetric.Int64Counter
	sessionLatency otelmetric.Float64Histogram
}

// Options enables optional exporters.
type Options struct {
	JaegerEndpoint string
}

// New registers the prometheus metric reader and, when configured, a jaeger span exporter.
// Exporter failures degrade to no-op instruments.
func New(serviceName string, opts Options, log logger.Logger) *Observability {
	o := &Observability{tracer: noop.NewTracerProvider().Tracer(serviceName)}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err})
	} else {
		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(o.meterProvider)

		meter := o.meterProvider.Meter(serviceName)
		o.sessionCounter, _ = meter.Int64Counter(
			"receipt.sessions",
			otelmetric.WithDescription("Receipt sessions by final state"),
		)
		o.sessionLatency, _ = meter.Float64Histogram(
			"receipt.session.duration",
			otelmetric.WithDescription("Receipt session duration"),
			otelmetric.WithUnit("ms"),
		)
	}

	if opts.JaegerEndpoint != "" {
		jexp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(opts.JaegerEndpoint)))
		if err != nil {
			log.Warn("failed to create jaeger exporter", map[string]interface{}{"error": err})
		} else {
			o.tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(jexp),
				sdktrace.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceName(serviceName),
				)),
			)
			otel.SetTracerProvider(o.tracerProvider)
			o.tracer = o.tracerProvider.Tracer(serviceName)
		}
	}

	return o
}

// Tracer returns the service tracer. It is a no-op tracer when tracing is disabled.
func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

// StartSpan starts a span named name with string attributes.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, trace.Span) {
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, v))
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(kv...))
}

func (o *Observability) RecordSession(ctx context.Context, state, category string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("state", state),
		attribute.String("category", category),
	)
	if o.sessionCounter != nil {
		o.sessionCounter.Add(ctx, 1, attrs)
	}
	if o.sessionLatency != nil {
		o.sessionLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
