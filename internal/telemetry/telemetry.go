package telemetry

import (
	"context"
	"fmt"

	"github.com/relaydesk/relaydesk/internal/configs"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/relaydesk/relaydesk"

// Init sets up OpenTelemetry tracing with an OTLP gRPC exporter.
// When tracing is disabled a no-op provider is installed so callers can
// open spans unconditionally. Returns a shutdown function for graceful exit.
func Init(ctx context.Context, cfg *configs.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled || cfg.OTELEndpoint == "" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Info().Msg("OpenTelemetry disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTELEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.OTELServiceName),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("endpoint", cfg.OTELEndpoint).
		Str("service", cfg.OTELServiceName).
		Msg("OpenTelemetry tracing initialized")

	return tp.Shutdown, nil
}

// Tracer returns the tracer for pipeline spans.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
