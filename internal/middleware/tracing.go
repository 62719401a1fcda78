package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/osvaldoandrade/riskdesk/internal/tracing"
)

// TracingMiddleware continues the caller's W3C trace and opens a server span
// per request. Runs triggered inside the chain parent onto it. After the
// handlers run the span is renamed to the matched route and tagged with the
// session, risk type, run identifier, agent job id and caller the request
// addressed.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "riskdesk"
	}
	tracer := otel.Tracer(serviceName + "/http")

	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+c.Request.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.path", c.Request.URL.Path),
			),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if route := c.FullPath(); route != "" {
			span.SetName(c.Request.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
		}
		span.SetAttributes(riskdeskAttributes(c)...)
		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func riskdeskAttributes(c *gin.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	add := func(k attribute.Key, v string) {
		if v = strings.TrimSpace(v); v != "" {
			attrs = append(attrs, k.String(v))
		}
	}
	add(tracing.KeySessionID, c.Param("id"))
	add(tracing.KeyRiskType, strings.ToLower(c.Param("type")))
	add(tracing.KeyRunIdentifier, c.Param("identifier"))
	add(tracing.KeyJobID, c.Query("job_id"))
	add(tracing.KeyCaller, c.GetString("caller"))
	return attrs
}
