package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/2lab-ai/hal9go/core"
)

// OTelTelemetry implements core.Telemetry over the OpenTelemetry SDK.
// Spans export through the stdout trace exporter; metric instruments are
// created lazily per name and recorded as float64 counters.
type OTelTelemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	mu       sync.Mutex
	counters map[string]metric.Float64Counter
}

// Initialize sets up the tracer and meter providers for a service name.
// Call Shutdown on the returned value to flush exporters.
func Initialize(serviceName string) (*OTelTelemetry, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
	)

	return &OTelTelemetry{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer(serviceName),
		meter:          mp.Meter(serviceName),
		counters:       make(map[string]metric.Float64Counter),
	}, nil
}

// StartSpan opens a span and returns the derived context.
func (t *OTelTelemetry) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric records a value on the named counter with the given labels.
func (t *OTelTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
	counter, err := t.counter(name)
	if err != nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

func (t *OTelTelemetry) counter(name string) (metric.Float64Counter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.counters[name]; ok {
		return c, nil
	}
	c, err := t.meter.Float64Counter(name)
	if err != nil {
		return nil, err
	}
	t.counters[name] = c
	return c, nil
}

// Shutdown flushes and stops the providers.
func (t *OTelTelemetry) Shutdown(ctx context.Context) error {
	var first error
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		first = err
	}
	if err := t.meterProvider.Shutdown(ctx); err != nil && first == nil {
		first = err
	}
	return first
}

// otelSpan adapts an OpenTelemetry span to the core.Span interface.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}
