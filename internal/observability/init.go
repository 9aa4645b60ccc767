package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationScope names the tracer and meter after the module path, per
// OTel naming convention for instrumentation scopes.
const instrumentationScope = "github.com/Sumatoshi-tech/treelint"

// attrAppMode distinguishes CLI runs from LSP and MCP server sessions on the
// process resource.
const attrAppMode = attribute.Key("app.mode")

// Providers bundles the telemetry handles a treelint process works with.
// A one-shot CLI run and the long-lived LSP/MCP servers all receive the same
// shape; only the export backend differs.
type Providers struct {
	// Tracer creates spans for run, file, and rule phases.
	Tracer trace.Tracer

	// Meter backs the RED and lint instrument sets.
	Meter metric.Meter

	// Logger carries trace correlation and service metadata on every record.
	Logger *slog.Logger

	// Shutdown flushes pending telemetry. A CLI run calls it before exiting;
	// the servers call it when their transport closes.
	Shutdown func(ctx context.Context) error
}

type shutdownFunc func(ctx context.Context) error

func noShutdown(_ context.Context) error { return nil }

// Init wires tracing, metrics, and logging for one process. With no
// OTLPEndpoint configured everything is backed by no-op providers, so a plain
// `treelint check` pays nothing for telemetry it never asked for.
func Init(cfg Config) (Providers, error) {
	ctx := context.Background()

	res, err := newResource(cfg)
	if err != nil {
		return Providers{}, err
	}

	tp, stopTraces, err := newTraceProvider(ctx, cfg, res)
	if err != nil {
		return Providers{}, fmt.Errorf("trace provider: %w", err)
	}

	mp, stopMetrics, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		return Providers{}, errors.Join(fmt.Errorf("meter provider: %w", err), stopTraces(ctx))
	}

	// Hot-path spans (one per linted file) stay local unless TraceVerbose
	// opts in; whole-repo runs would otherwise flood the collector.
	if cfg.OTLPEndpoint != "" && !cfg.TraceVerbose {
		tp = NewFilteringTracerProvider(tp)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func(shutdownCtx context.Context) error {
		wait := time.Duration(cfg.ShutdownTimeoutSec) * time.Second
		if wait <= 0 {
			wait = defaultShutdownTimeoutSec * time.Second
		}

		flushCtx, cancel := context.WithTimeout(shutdownCtx, wait)
		defer cancel()

		return errors.Join(stopTraces(flushCtx), stopMetrics(flushCtx))
	}

	return Providers{
		Tracer:   tp.Tracer(instrumentationScope),
		Meter:    mp.Meter(instrumentationScope),
		Logger:   newLogger(cfg),
		Shutdown: shutdown,
	}, nil
}

// newResource describes the running process: service identity plus the
// app.mode attribute, so CLI runs and server sessions separate cleanly in a
// backend.
func newResource(cfg Config) (*resource.Resource, error) {
	opts := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}

	if cfg.ServiceVersion != "" {
		opts = append(opts, resource.WithAttributes(semconv.ServiceVersion(cfg.ServiceVersion)))
	}

	if cfg.Environment != "" {
		opts = append(opts, resource.WithAttributes(semconv.DeploymentEnvironment(cfg.Environment)))
	}

	if cfg.Mode != "" {
		opts = append(opts, resource.WithAttributes(attrAppMode.String(string(cfg.Mode))))
	}

	res, err := resource.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	return res, nil
}

func newTraceProvider(
	ctx context.Context, cfg Config, res *resource.Resource,
) (trace.TracerProvider, shutdownFunc, error) {
	if cfg.OTLPEndpoint == "" {
		return nooptrace.NewTracerProvider(), noShutdown, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(cfg.OTLPHeaders) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.OTLPHeaders))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("trace exporter: %w", err)
	}

	// The attribute filter enforces the span attribute allow-list before
	// export. Dropped-attribute warnings only surface in debug runs.
	var filterLog *slog.Logger
	if cfg.DebugTrace {
		filterLog = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewAttributeFilter(sdktrace.NewBatchSpanProcessor(exporter), filterLog)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg)),
	)

	return tp, tp.Shutdown, nil
}

// sampler resolves the trace sampler from config alone. DebugTrace wins,
// then an explicit ratio; otherwise every root span is kept, which suits the
// low span volume of a non-verbose run.
func sampler(cfg Config) sdktrace.Sampler {
	switch {
	case cfg.DebugTrace:
		return sdktrace.AlwaysSample()
	case cfg.SampleRatio > 0:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

func newMeterProvider(
	ctx context.Context, cfg Config, res *resource.Resource,
) (metric.MeterProvider, shutdownFunc, error) {
	if cfg.OTLPEndpoint == "" {
		return noopmetric.NewMeterProvider(), noShutdown, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(cfg.OTLPHeaders) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	return mp, mp.Shutdown, nil
}

// newLogger builds the process logger. Text output goes to a developer
// terminal (CLI mode); JSON goes to whatever collects stderr of an LSP or
// MCP server. Either way records pass through the span-context handler.
func newLogger(cfg Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var inner slog.Handler
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	return slog.New(newSpanContextHandler(inner, cfg))
}

// ParseOTLPHeaders splits "key=value,key=value" into a header map, the format
// OTEL_EXPORTER_OTLP_HEADERS uses. Pairs without "=" are skipped; an input
// yielding no pairs returns nil.
func ParseOTLPHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}

	headers := make(map[string]string)

	for pair := range strings.SplitSeq(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}

		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	if len(headers) == 0 {
		return nil
	}

	return headers
}
