package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/osvaldoandrade/riskdesk/internal/backoff"
	"github.com/osvaldoandrade/riskdesk/internal/metrics"
	"github.com/osvaldoandrade/riskdesk/internal/ratelimit"
	"github.com/osvaldoandrade/riskdesk/internal/tracing"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

const (
	HeaderWebhookTimestamp = "X-Riskdesk-Timestamp"
	HeaderWebhookSignature = "X-Riskdesk-Signature"
)

// RunCallbackService posts finished runs to a configured webhook.
type RunCallbackService interface {
	// Send queues a delivery. ctx only contributes its trace span.
	Send(ctx context.Context, rec domain.RunRecord)
	// Wait blocks until every delivery in flight has finished.
	Wait()
	// Close abandons pending retries and waits for deliveries to stop.
	Close()
}

type RunCallbackOptions struct {
	URL         string
	Secret      string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Limiter     ratelimit.Limiter
	Bucket      ratelimit.Bucket
	Client      *http.Client
}

type runCallbackService struct {
	opts   RunCallbackOptions
	logger *slog.Logger
	now    func() time.Time

	base   context.Context
	cancel context.CancelFunc

	rngMu sync.Mutex
	rng   *rand.Rand
	wg    sync.WaitGroup
}

// NewRunCallbackService returns nil when opts.URL is empty.
func NewRunCallbackService(logger *slog.Logger, opts RunCallbackOptions) RunCallbackService {
	if strings.TrimSpace(opts.URL) == "" {
		return nil
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 60 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &runCallbackService{
		opts:   opts,
		logger: logger,
		now:    time.Now,
		base:   base,
		cancel: cancel,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *runCallbackService) Send(ctx context.Context, rec domain.RunRecord) {
	payload := map[string]any{
		"identifier": rec.Identifier,
		"riskType":   rec.RiskType,
		"title":      rec.Title,
		"outcome":    rec.Outcome,
		"jobId":      rec.JobID,
		"stage":      rec.Stage,
		"error":      rec.Error,
		"result":     rec.Result,
		"polls":      rec.Polls,
		"finishedAt": rec.FinishedAt,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("run callback payload not serialisable", "identifier", rec.Identifier, "err", err)
		return
	}
	sendCtx := trace.ContextWithSpanContext(s.base, trace.SpanContextFromContext(ctx))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sendWithRetry(sendCtx, rec.Outcome, b)
	}()
}

func (s *runCallbackService) Wait() { s.wg.Wait() }

func (s *runCallbackService) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *runCallbackService) sendWithRetry(ctx context.Context, outcome domain.RunOutcome, body []byte) {
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		err := ratelimit.Wait(ctx, s.opts.Limiter, "webhook", s.opts.URL, s.opts.Bucket, func(ratelimit.Decision) {
			metrics.RateLimitHitsTotal.WithLabelValues("webhook", "run_result").Inc()
		})
		if err != nil {
			return
		}
		err = s.post(ctx, body)
		if err == nil {
			metrics.WebhookDeliveriesTotal.WithLabelValues(string(outcome), "success").Inc()
			return
		}
		s.logger.Debug("run callback attempt failed", "attempt", attempt, "err", err)
		if attempt == s.opts.MaxAttempts {
			break
		}
		s.rngMu.Lock()
		delay := backoff.Compute(backoff.PolicyExponential, s.opts.BaseDelay, s.opts.MaxDelay, attempt-1, s.rng)
		s.rngMu.Unlock()
		if sleepOrDone(ctx, delay) != nil {
			return
		}
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(string(outcome), "failure").Inc()
	s.logger.Warn("run callback failed", "url", s.opts.URL)
}

func (s *runCallbackService) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectHeaders(ctx, req.Header)
	s.addSignature(req, body)
	resp, err := s.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (s *runCallbackService) addSignature(req *http.Request, body []byte) {
	if strings.TrimSpace(s.opts.Secret) == "" {
		return
	}
	ts := s.now().UTC().Unix()
	req.Header.Set(HeaderWebhookTimestamp, fmt.Sprintf("%d", ts))
	req.Header.Set(HeaderWebhookSignature, SignWebhook(s.opts.Secret, ts, body))
}

// SignWebhook renders the X-Riskdesk-Signature value: "sha256=" and the hex
// HMAC-SHA256 of "<unix ts>." followed by body.
func SignWebhook(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
