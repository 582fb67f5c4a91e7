package instrumentation

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is the service name used when none is provided
	DefaultServiceName = "keyper"

	// DefaultServiceVersion is the default service version used when none is provided
	DefaultServiceVersion = "unknown"

	// scopePrefix is prepended to every meter and tracer name
	scopePrefix = "github.com/keyper-oauth/keyper/"
)

// Metrics exporter names
const (
	MetricsExporterNone       = "none"
	MetricsExporterPrometheus = "prometheus"
)

// Traces exporter names
const (
	TracesExporterNone = "none"
	TracesExporterOTLP = "otlp"
)

// Config holds instrumentation configuration
type Config struct {
	// ServiceName is the name of the service. Default: "keyper"
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Enabled controls whether instrumentation is active.
	// When false, uses no-op providers (zero overhead)
	Enabled bool

	// LogClientIPs controls whether client IP addresses are attached to spans.
	// Client IPs may be personal data under GDPR and similar regulations.
	LogClientIPs bool

	// MetricsExporter selects the metrics exporter: "prometheus" or "none" (default)
	MetricsExporter string

	// TracesExporter selects the trace exporter: "otlp" or "none" (default)
	TracesExporter string

	// OTLPEndpoint is the host:port of the OTLP/HTTP collector, e.g. "localhost:4318"
	OTLPEndpoint string

	// OTLPInsecure disables TLS towards the OTLP collector
	OTLPInsecure bool

	// TraceSamplingRate is the ratio of traces sampled (0.0 - 1.0). Default: 1.0
	TraceSamplingRate float64

	// Resource allows custom resource attributes.
	// If nil, a resource with service name and version is created
	Resource *resource.Resource

	// MeterProvider and TracerProvider override exporter based providers.
	// Used by tests that collect telemetry in memory.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Instrumentation provides OpenTelemetry instrumentation components
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	// promRegistry is set when the prometheus exporter is active
	promRegistry *prometheus.Registry

	metrics *Metrics

	// Shutdown functions (must be registered during New() only, not thread-safe after initialization)
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}
	if config.TraceSamplingRate <= 0 || config.TraceSamplingRate > 1 {
		config.TraceSamplingRate = 1.0
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		if err := inst.initializeProviders(context.Background()); err != nil {
			_ = inst.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to initialize providers: %w", err)
		}
	} else {
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	var err error
	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// initializeProviders builds the metric and trace providers selected by the configuration
func (i *Instrumentation) initializeProviders(ctx context.Context) error {
	switch {
	case i.config.MeterProvider != nil:
		i.meterProvider = i.config.MeterProvider
	case i.config.MetricsExporter == MetricsExporterPrometheus:
		registry := prometheus.NewRegistry()
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(i.resource),
		)
		i.meterProvider = mp
		i.promRegistry = registry
		i.shutdownFuncs = append(i.shutdownFuncs, mp.Shutdown)
	case i.config.MetricsExporter == "" || i.config.MetricsExporter == MetricsExporterNone:
		i.meterProvider = noop.NewMeterProvider()
	default:
		return fmt.Errorf("unsupported metrics exporter %q", i.config.MetricsExporter)
	}

	switch {
	case i.config.TracerProvider != nil:
		i.tracerProvider = i.config.TracerProvider
	case i.config.TracesExporter == TracesExporterOTLP:
		if i.config.OTLPEndpoint == "" {
			return fmt.Errorf("otlp traces exporter requires an endpoint")
		}
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(i.config.OTLPEndpoint)}
		if i.config.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(i.resource),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(i.config.TraceSamplingRate))),
		)
		i.tracerProvider = tp
		i.shutdownFuncs = append(i.shutdownFuncs, tp.Shutdown)
	case i.config.TracesExporter == "" || i.config.TracesExporter == TracesExporterNone:
		i.tracerProvider = tracenoop.NewTracerProvider()
	default:
		return fmt.Errorf("unsupported traces exporter %q", i.config.TracesExporter)
	}

	return nil
}

// Shutdown flushes and stops all exporters. Safe to call more than once.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})

	return shutdownErr
}

// Meter returns a named meter for the given scope.
// Scopes are layer names like "http", "server", "storage", "security".
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a named tracer for the given scope.
// Scopes are layer names like "http", "server", "storage", "security".
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the metrics holder for recording metric values
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// TracerProvider returns the underlying tracer provider
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// ShouldLogClientIPs returns whether client IP addresses should be recorded
func (i *Instrumentation) ShouldLogClientIPs() bool {
	return i.config.LogClientIPs
}

// MetricsHandler serves the Prometheus exposition format.
// Returns nil unless the prometheus exporter is active.
func (i *Instrumentation) MetricsHandler() http.Handler {
	if i.promRegistry == nil {
		return nil
	}
	return promhttp.HandlerFor(i.promRegistry, promhttp.HandlerOpts{})
}

// StorageSizeCallback is a function that returns the current size of a storage component
type StorageSizeCallback func() int64

// RegisterStorageSizeCallbacks registers callbacks for storage size gauges.
// Storage implementations call this from SetInstrumentation.
func (i *Instrumentation) RegisterStorageSizeCallbacks(grantsCount, clientsCount StorageSizeCallback) error {
	meter := i.Meter("storage")

	_, err := meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if grantsCount != nil {
				observer.ObserveInt64(i.metrics.StorageGrantsCount, grantsCount())
			}
			if clientsCount != nil {
				observer.ObserveInt64(i.metrics.StorageClientsCount, clientsCount())
			}
			return nil
		},
		i.metrics.StorageGrantsCount,
		i.metrics.StorageClientsCount,
	)

	return err
}
