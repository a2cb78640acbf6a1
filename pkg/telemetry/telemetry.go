package telemetry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlplog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/l0n3m4n/exposerver/pkg/config"
)

// ServiceName identifies this process in traces and logs.
const ServiceName = "exposerver"

// Version is overridden at build time with -ldflags.
var Version = "dev"

// Initialize sets up OpenTelemetry tracing and logging using autoexport
func Initialize(cfg config.TelemetryConfig, logger *logrus.Logger) (func(), error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(ServiceName),
			semconv.ServiceVersionKey.String(Version),
		),
	)
	if err != nil {
		return nil, err
	}

	if cfg.Endpoint != "" {
		logger.Infof("Exporting telemetry to %s", cfg.Endpoint)
	}

	// Initialize trace provider using autoexport
	spanExporter, err := autoexport.NewSpanExporter(context.Background())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	// Initialize log provider using autoexport
	logExporter, err := autoexport.NewLogExporter(context.Background())
	if err != nil {
		logger.Warnf("Failed to create log exporter: %v", err)
	}

	var logProvider *sdklog.LoggerProvider
	if logExporter != nil {
		logProvider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
			sdklog.WithResource(res),
		)
		global.SetLoggerProvider(logProvider)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tp.Shutdown(ctx); err != nil {
			logger.Errorf("Error shutting down tracer provider: %v", err)
		}

		if logProvider != nil {
			if err := logProvider.Shutdown(ctx); err != nil {
				logger.Errorf("Error shutting down log provider: %v", err)
			}
		}
	}, nil
}

// ReportEvent records a named event on a fresh span and emits it as an
// OpenTelemetry log record. Without Initialize both are no-ops.
func ReportEvent(ctx context.Context, name string, attrs map[string]string) {
	_, span := otel.Tracer(ServiceName).Start(ctx, name)
	defer span.End()

	kv := make([]attribute.KeyValue, 0, len(attrs))
	logAttrs := make([]otlplog.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, v))
		logAttrs = append(logAttrs, otlplog.String(k, v))
	}
	span.SetAttributes(kv...)

	var record otlplog.Record
	now := time.Now()
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetSeverity(otlplog.SeverityInfo)
	record.SetSeverityText("INFO")
	record.SetBody(otlplog.StringValue(name))
	record.AddAttributes(logAttrs...)
	global.GetLoggerProvider().Logger(ServiceName).Emit(ctx, record)
}
