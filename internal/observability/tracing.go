package observability

import (
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Trace exporters accepted by NewTracerProvider.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
)

// NewTracerProvider builds the SDK provider used for backend call spans.
// "stdout" writes finished spans as JSON to w; "none" keeps spans in
// process only. Callers own Shutdown.
func NewTracerProvider(exporter, serviceName string, w io.Writer) (*sdktrace.TracerProvider, error) {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	switch strings.ToLower(strings.TrimSpace(exporter)) {
	case "", TraceExporterNone:
	case TraceExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("observability: stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithSyncer(exp))
	default:
		return nil, fmt.Errorf("observability: unknown trace exporter %q", exporter)
	}
	return sdktrace.NewTracerProvider(opts...), nil
}
