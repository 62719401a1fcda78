// Package agentapi talks to the remote agent: job submission, purchase and
// status polling.
package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osvaldoandrade/riskdesk/internal/metrics"
	"github.com/osvaldoandrade/riskdesk/internal/tracing"
)

const (
	defaultTimeout = 30 * time.Second
	// maxBodyBytes bounds how much of an upstream response is read.
	maxBodyBytes = 4 << 20
)

type Option func(*transport)

func WithHTTPClient(c *http.Client) Option {
	return func(t *transport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *transport) {
		if l != nil {
			t.logger = l
		}
	}
}

type transport struct {
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

func newTransport(opts []Option) transport {
	t := transport{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		tracer:     tracing.Tracer("agentapi"),
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// do sends one request and returns the status code and body. A non-nil error
// means no response was received.
func (t transport) do(ctx context.Context, op, method, url string, body any, header http.Header) (int, []byte, error) {
	ctx, span := t.tracer.Start(ctx, "agentapi."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.url", url))

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s body: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	tracing.InjectHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestSeconds.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.UpstreamRequestSeconds.WithLabelValues(op, statusClass(resp.StatusCode)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, strconv.Itoa(resp.StatusCode))
	}
	t.logger.Debug("agent request", "op", op, "status", resp.StatusCode, "duration", time.Since(start))
	return resp.StatusCode, data, nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }
