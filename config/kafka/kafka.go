package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/scram"
	"github.com/twmb/franz-go/plugin/kotel"
	"github.com/twmb/franz-go/plugin/kslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

const (
	Scram256 string = "SCRAM-SHA-256"
	Scram512 string = "SCRAM-SHA-512"

	clientID = "pharmasuite-lifecycle-engine"
)

type ServerConfig struct {
	ScramAlgorithm string
	TLS            bool
	Servers        []string
	UseTelemetry   bool
	UserName       string
	Password       string
}

func NewKafkaClient(serverConfig ServerConfig, config []kgo.Opt) (*kgo.Client, error) {
	logger := slog.Default().With("component", "kafka")

	opts := []kgo.Opt{
		kgo.SeedBrokers(serverConfig.Servers...),
		kgo.ClientID(clientID),
		kgo.WithLogger(kslog.New(logger)),
	}
	opts = append(opts, config...)

	if serverConfig.UseTelemetry {
		hooks, err := telemetryHooks(context.Background())
		if err != nil {
			return nil, err
		}
		opts = append(opts, hooks)
	}

	if serverConfig.ScramAlgorithm != "" {
		scramAuth := scram.Auth{
			User: serverConfig.UserName,
			Pass: serverConfig.Password,
		}

		switch serverConfig.ScramAlgorithm {
		case Scram256:
			opts = append(opts, kgo.SASL(scramAuth.AsSha256Mechanism()))
		case Scram512:
			opts = append(opts, kgo.SASL(scramAuth.AsSha512Mechanism()))
		}
	}

	if serverConfig.TLS {
		opts = append(opts, kgo.DialTLS())
	}

	return kgo.NewClient(opts...)
}

// telemetryHooks wires kotel tracing and metrics through the OTLP gRPC
// exporters configured from the standard OTEL_* environment.
func telemetryHooks(ctx context.Context) (kgo.Opt, error) {
	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}
	tracerProvider := trace.NewTracerProvider(trace.WithBatcher(traceExporter))

	metricExporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, err
	}
	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter,
			metric.WithInterval(60*time.Second))),
	)

	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(
			kotel.TracerProvider(tracerProvider),
			kotel.TracerPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{})),
		)),
		kotel.WithMeter(kotel.NewMeter(kotel.MeterProvider(meterProvider))),
	)

	return kgo.WithHooks(kotelService.Hooks()...), nil
}
