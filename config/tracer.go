package tracer

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

type TracerConfig struct {
	ServiceName string
	EndpointURL string
	Insecure    string
}

// Insecure transport is opt-in: anything but an explicit true keeps TLS on.
func (tc TracerConfig) UseSecureMode() bool {
	insecure, err := strconv.ParseBool(tc.Insecure)
	return err != nil || !insecure
}

func GetTracerSpan(ctx context.Context, tracerName string, name string) trace.Span {
	tracer := otel.GetTracerProvider().Tracer(tracerName)
	_, span := tracer.Start(ctx, name)
	return span
}

// InitOTLPTracer registers the global OTLP tracer provider and returns the
// exporter shutdown hook.
func InitOTLPTracer(cfg TracerConfig) (func(context.Context) error, error) {
	secureOption := otlptracegrpc.WithInsecure()
	if cfg.UseSecureMode() {
		secureOption = otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, ""))
	}

	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			secureOption,
			otlptracegrpc.WithEndpoint(cfg.EndpointURL),
		),
	)
	if err != nil {
		return nil, err
	}

	resources, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(
		sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resources),
		),
	)

	return exporter.Shutdown, nil
}
