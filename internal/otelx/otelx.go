// Package otelx configures the global tracer provider and carries the span
// helpers used by the request pipeline.
package otelx

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for pipeline spans.
const TracerName = "invitegate/pipeline"

type Options struct {
	Enabled   bool
	Endpoint  string
	Insecure  bool
	Sample    float64
	Service   string
	Component string
	Version   string
}

func propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// Init installs the tracer provider and propagator. When tracing is
// disabled an unexported SDK provider is still installed so span contexts
// exist for log correlation. The returned func flushes and shuts down.
func Init(ctx context.Context, o Options) (func(context.Context) error, error) {
	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		otel.SetTextMapPropagator(propagator())
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.Endpoint)}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	// New blocks without a deadline while dialing the collector
	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	exp, err := otlptracegrpc.New(dialCtx, opts...)
	if err != nil {
		return nil, err
	}

	name := o.Service
	if o.Component != "" {
		name += "." + o.Component
	}
	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(o.Version),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.Sample))),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator())
	return tp.Shutdown, nil
}

// StartStage opens a child span for one pipeline stage. Nothing is started
// when the request is not being recorded.
func StartStage(ctx context.Context, pipeline, stage string) (context.Context, trace.Span) {
	if !trace.SpanFromContext(ctx).IsRecording() {
		return ctx, trace.SpanFromContext(ctx)
	}
	return otel.Tracer(TracerName).Start(ctx, "stage."+stage,
		trace.WithAttributes(
			attribute.String("invitegate.pipeline", pipeline),
			attribute.String("invitegate.stage", stage),
		),
	)
}

// EndStage closes a span opened by StartStage. A non-zero status means the
// stage stopped the request; 5xx statuses mark the span as failed.
func EndStage(span trace.Span, rejectedWith int, reason string) {
	if !span.IsRecording() {
		return
	}
	if rejectedWith != 0 {
		span.SetAttributes(
			attribute.Bool("invitegate.rejected", true),
			attribute.Int("http.response.status_code", rejectedWith),
		)
		if reason != "" {
			span.SetAttributes(attribute.String("invitegate.reason", reason))
		}
		if rejectedWith >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, reason)
		}
	}
	span.End()
}
