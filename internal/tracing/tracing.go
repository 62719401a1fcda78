package tracing

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

// Span attribute keys shared by the gateway, the workflow and the agent clients.
const (
	KeySessionID     = attribute.Key("riskdesk.session_id")
	KeyRiskType      = attribute.Key("riskdesk.risk_type")
	KeyRunIdentifier = attribute.Key("riskdesk.identifier")
	KeyJobID         = attribute.Key("riskdesk.job_id")
	KeyCaller        = attribute.Key("riskdesk.caller")
	KeyRunStage      = attribute.Key("riskdesk.stage")
)

type Config struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`

	OTLPEndpoint string `yaml:"otlpEndpoint"`
	OTLPInsecure bool   `yaml:"otlpInsecure"`

	SampleRatio float64 `yaml:"sampleRatio"`
}

// exporterSettings is Config with the OTEL_* environment applied and defaults filled.
type exporterSettings struct {
	serviceName string
	endpoint    string
	insecure    bool
	sampleRatio float64
}

func (c Config) resolve() exporterSettings {
	s := exporterSettings{
		serviceName: firstSet(c.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), "riskdesk"),
		endpoint:    sanitizeEndpoint(firstSet(c.OTLPEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "localhost:4317")),
		insecure:    c.OTLPInsecure,
		sampleRatio: c.SampleRatio,
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		s.insecure = parseBool(v)
	}
	if s.sampleRatio <= 0 || s.sampleRatio > 1 {
		s.sampleRatio = 1
	}
	return s
}

func (s exporterSettings) grpcOptions() []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(s.endpoint)}
	if s.insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}

// Setup installs the global tracer provider and propagator. With tracing
// disabled, or when the exporter cannot be built, only the propagator is set
// and the returned shutdown is a no-op.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	s := cfg.resolve()
	exp, err := otlptracegrpc.New(ctx, s.grpcOptions()...)
	if err != nil {
		logger.Warn("otel exporter init failed; tracing disabled", "err", err)
		return noop, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(s.serviceName),
	))
	if err != nil {
		logger.Warn("otel resource init failed; using default", "err", err)
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.sampleRatio))),
	)
	otel.SetTracerProvider(tp)
	logger.Info("tracing enabled", "endpoint", s.endpoint, "service", s.serviceName, "sampleRatio", s.sampleRatio)
	return tp.Shutdown, nil
}

// StartRun opens the span covering one workflow run.
func StartRun(ctx context.Context, riskType, identifier string) (context.Context, trace.Span) {
	return Tracer("workflow").Start(ctx, "workflow.run", trace.WithAttributes(
		KeyRiskType.String(riskType),
		KeyRunIdentifier.String(identifier),
	))
}

// InjectHeaders writes traceparent for the span in ctx into h. Baggage is
// never forwarded to agent endpoints or webhook receivers.
func InjectHeaders(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(h))
}

// Tracer returns the named tracer from the global provider.
func Tracer(component string) trace.Tracer {
	return otel.Tracer("riskdesk/" + component)
}

func ParseSampleRatio(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

// sanitizeEndpoint reduces a URL to the host:port the gRPC exporter expects.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return strings.TrimSuffix(raw, "/")
}

func parseBool(v string) bool {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "true", "1", "yes", "y", "on":
		return true
	}
	return false
}

func firstSet(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
