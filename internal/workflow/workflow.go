// Package workflow runs the submit, pay and poll sequence behind each feature
// card and keeps its state machine.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osvaldoandrade/riskdesk/internal/agentapi"
	"github.com/osvaldoandrade/riskdesk/internal/backoff"
	"github.com/osvaldoandrade/riskdesk/internal/idgen"
	"github.com/osvaldoandrade/riskdesk/internal/metrics"
	"github.com/osvaldoandrade/riskdesk/internal/tracing"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

var (
	ErrClosed           = errors.New("workflow closed")
	ErrDeadlineExceeded = errors.New("job passed its submit-result deadline")
)

type Submitter interface {
	Submit(ctx context.Context, req domain.JobRequest) (domain.JobDescriptor, error)
}

type Payer interface {
	Pay(ctx context.Context, req domain.PaymentRequest) (domain.PaymentReceipt, error)
}

type Poller interface {
	PollOnce(ctx context.Context, jobID string) (domain.JobStatus, error)
}

type IdentifierSource interface {
	Generate(byteLength int) string
}

// Clients bundles the remote collaborators of a workflow.
type Clients struct {
	Submitter Submitter
	Payer     Payer
	Poller    Poller
	Payment   domain.PaymentSettings
}

type Config struct {
	PollInterval time.Duration

	BackoffPolicy string
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	// MaxTransientPollFailures turns that many consecutive transient poll
	// failures into a fatal one. 0 means unlimited.
	MaxTransientPollFailures int

	FailOnReportedFailure bool
	EnforceDeadline       bool
	DeadlineGrace         time.Duration

	IdentifierBytes int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:          120 * time.Second,
		BackoffPolicy:         backoff.PolicyExpEqualJitter,
		BackoffBase:           5 * time.Second,
		BackoffMax:            120 * time.Second,
		FailOnReportedFailure: true,
		DeadlineGrace:         5 * time.Minute,
		IdentifierBytes:       idgen.DefaultPurchaserBytes,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BackoffPolicy == "" {
		c.BackoffPolicy = d.BackoffPolicy
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 || c.BackoffMax > c.PollInterval {
		c.BackoffMax = c.PollInterval
	}
	if c.IdentifierBytes <= 0 {
		c.IdentifierBytes = d.IdentifierBytes
	}
	return c
}

type Option func(*Workflow)

// WithObserver registers fn to receive every transition. Observers run on the
// workflow goroutine without the workflow lock held.
func WithObserver(fn func(Transition)) Option {
	return func(w *Workflow) {
		if fn != nil {
			w.observers = append(w.observers, fn)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

func WithIdentifierSource(ids IdentifierSource) Option {
	return func(w *Workflow) { w.ids = ids }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// Workflow owns the state of one feature card. Runs execute on their own
// goroutine; polls within a run are strictly sequential.
type Workflow struct {
	feature   domain.Feature
	cfg       Config
	clients   Clients
	ids       IdentifierSource
	logger    *slog.Logger
	now       func() time.Time
	observers []func(Transition)
	rng       *rand.Rand

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	run    uint64
	done   chan struct{}
	closed bool
}

func New(feature domain.Feature, cfg Config, clients Clients, opts ...Option) *Workflow {
	base, cancel := context.WithCancel(context.Background())
	w := &Workflow{
		feature: feature,
		cfg:     cfg.withDefaults(),
		clients: clients,
		base:    base,
		cancel:  cancel,
		state:   Idle{},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("risk_type", string(feature.RiskType))
	if w.ids == nil {
		w.ids = idgen.New(idgen.WithLogger(w.logger))
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

func (w *Workflow) Feature() domain.Feature { return w.feature }

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) View() View {
	return Render(w.feature, w.State(), w.cfg.PollInterval)
}

// Trigger starts a new run when the workflow is idle or finished. It returns
// false, doing nothing, while a run is in flight or after Close. ctx only
// contributes its trace span; the run outlives it.
func (w *Workflow) Trigger(ctx context.Context) bool {
	w.mu.Lock()
	if w.closed || Busy(w.state) {
		w.mu.Unlock()
		return false
	}
	w.run++
	runID := w.run
	w.done = make(chan struct{})
	req := domain.JobRequest{
		IdentifierFromPurchaser: w.ids.Generate(w.cfg.IdentifierBytes),
		RiskType:                w.feature.RiskType,
		InputData:               w.feature.InputData,
	}
	started := w.now()
	from := w.state
	to := Submitting{Identifier: req.IdentifierFromPurchaser, StartedAt: started}
	w.state = to
	done := w.done
	w.wg.Add(1)
	w.mu.Unlock()

	runCtx := trace.ContextWithSpanContext(w.base, trace.SpanContextFromContext(ctx))
	go w.execute(runCtx, runID, done, req, from, to)
	return true
}

// Wait blocks until the current run, if any, reaches a terminal state.
func (w *Workflow) Wait(ctx context.Context) (State, error) {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return w.State(), ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed && !Terminal(w.state) {
		return w.state, ErrClosed
	}
	return w.state, nil
}

// Close cancels any run in flight and waits for it to stop. No poll starts
// after Close returns.
func (w *Workflow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
}

func (w *Workflow) execute(ctx context.Context, runID uint64, done chan struct{}, req domain.JobRequest, from State, submitting Submitting) {
	defer w.wg.Done()
	defer close(done)

	ctx, span := tracing.StartRun(ctx, string(req.RiskType), req.IdentifierFromPurchaser)
	defer func() { endRunSpan(span, w.State()) }()

	w.notify(from, submitting)
	started := submitting.StartedAt

	log := w.logger.With("identifier", req.IdentifierFromPurchaser)
	log.Info("submitting job")

	desc, err := w.clients.Submitter.Submit(ctx, req)
	if err != nil {
		log.Error("job submission failed", "err", err)
		w.fail(runID, Failed{Identifier: req.IdentifierFromPurchaser, Stage: StageSubmission, Err: err, StartedAt: started})
		return
	}
	log = log.With("job_id", desc.JobID)
	span.SetAttributes(tracing.KeyJobID.String(desc.JobID))

	payReq := domain.NewPaymentRequest(req, desc, w.clients.Payment)
	if _, err := w.clients.Payer.Pay(ctx, payReq); err != nil {
		log.Error("purchase request failed", "err", err)
		w.fail(runID, Failed{Identifier: req.IdentifierFromPurchaser, Stage: StagePayment, Err: err, Descriptor: &desc, StartedAt: started})
		return
	}
	log.Info("purchase accepted; awaiting payment confirmation")

	w.set(runID, AwaitingPayment{Identifier: req.IdentifierFromPurchaser, Descriptor: desc, StartedAt: started})
	w.poll(ctx, runID, log, req.IdentifierFromPurchaser, desc, started)
}

func (w *Workflow) poll(ctx context.Context, runID uint64, log *slog.Logger, identifier string, desc domain.JobDescriptor, started time.Time) {
	rt := string(w.feature.RiskType)
	awaiting := AwaitingPayment{Identifier: identifier, Descriptor: desc, StartedAt: started}
	failed := func(stage Stage, err error) Failed {
		d := desc
		return Failed{Identifier: identifier, Stage: stage, Err: err, Descriptor: &d, Polls: awaiting.Polls, StartedAt: started}
	}

	var delay time.Duration
	for {
		if err := sleepOrDone(ctx, delay); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if w.cfg.EnforceDeadline && desc.SubmitResultTime > 0 && w.now().After(desc.SubmitResultDeadline().Add(w.cfg.DeadlineGrace)) {
			log.Warn("job deadline passed", "submitResultTime", desc.SubmitResultTime)
			w.fail(runID, failed(StageDeadline, ErrDeadlineExceeded))
			return
		}

		st, err := w.clients.Poller.PollOnce(ctx, desc.JobID)
		if ctx.Err() != nil {
			return
		}
		awaiting.Polls++

		if err != nil {
			if !agentapi.IsTransient(err) {
				metrics.PollsTotal.WithLabelValues(rt, "fatal").Inc()
				log.Error("status poll failed", "err", err)
				w.fail(runID, failed(StagePoll, err))
				return
			}
			metrics.PollsTotal.WithLabelValues(rt, "transient").Inc()
			awaiting.ConsecutiveFailures++
			awaiting.LastError = err.Error()
			log.Warn("status poll failed; will retry", "err", err, "consecutive", awaiting.ConsecutiveFailures)
			if limit := w.cfg.MaxTransientPollFailures; limit > 0 && awaiting.ConsecutiveFailures >= limit {
				w.fail(runID, failed(StagePoll, fmt.Errorf("%d consecutive poll failures: %w", awaiting.ConsecutiveFailures, err)))
				return
			}
			w.set(runID, awaiting)
			delay = retryDelay(w.cfg, awaiting.ConsecutiveFailures, w.rng)
			continue
		}

		awaiting.ConsecutiveFailures = 0
		awaiting.LastError = ""
		snapshot := st
		awaiting.Last = &snapshot

		if st.IsComplete() {
			metrics.PollsTotal.WithLabelValues(rt, "complete").Inc()
			log.Info("job completed", "polls", awaiting.Polls)
			w.set(runID, Completed{
				Identifier:  identifier,
				Descriptor:  desc,
				Result:      st.Result,
				Polls:       awaiting.Polls,
				StartedAt:   started,
				CompletedAt: w.now(),
			})
			return
		}
		metrics.PollsTotal.WithLabelValues(rt, "pending").Inc()
		if st.IsFailed() && w.cfg.FailOnReportedFailure {
			log.Error("agent reported job failure", "status", st.Status, "payment_status", st.PaymentStatus)
			w.fail(runID, failed(StageReported, &ReportedFailureError{Status: st}))
			return
		}
		log.Debug("job still processing", "status", st.Status, "payment_status", st.PaymentStatus)
		w.set(runID, awaiting)
		delay = w.cfg.PollInterval
	}
}

// ReportedFailureError is the failure of a run whose job the agent marked as
// failed.
type ReportedFailureError struct {
	Status domain.JobStatus
}

func (e *ReportedFailureError) Error() string {
	if e.Status.Error != "" {
		return e.Status.Error
	}
	return fmt.Sprintf("Job failed: status %s, payment %s", e.Status.Status, e.Status.PaymentStatus)
}

func endRunSpan(span trace.Span, s State) {
	if f, ok := s.(Failed); ok {
		span.SetAttributes(tracing.KeyRunStage.String(string(f.Stage)))
		span.SetStatus(codes.Error, f.Message)
	}
	span.End()
}

func (w *Workflow) fail(runID uint64, f Failed) {
	if f.Err != nil && f.Message == "" {
		f.Message = f.Err.Error()
	}
	f.FailedAt = w.now()
	w.set(runID, f)
}

// set installs s if runID is still current and the workflow is open.
func (w *Workflow) set(runID uint64, s State) {
	w.mu.Lock()
	if w.closed || runID != w.run {
		w.mu.Unlock()
		return
	}
	from := w.state
	w.state = s
	w.mu.Unlock()
	w.notify(from, s)
}

func (w *Workflow) notify(from, to State) {
	rt := string(w.feature.RiskType)
	if from.Phase() != to.Phase() {
		metrics.WorkflowTransitionsTotal.WithLabelValues(rt, string(to.Phase())).Inc()
	}
	switch st := to.(type) {
	case Completed:
		metrics.WorkflowRunsTotal.WithLabelValues(rt, string(domain.OutcomeCompleted), "").Inc()
		metrics.WorkflowRunDurationSeconds.WithLabelValues(rt, string(domain.OutcomeCompleted)).Observe(st.CompletedAt.Sub(st.StartedAt).Seconds())
	case Failed:
		metrics.WorkflowRunsTotal.WithLabelValues(rt, string(domain.OutcomeFailed), string(st.Stage)).Inc()
		metrics.WorkflowRunDurationSeconds.WithLabelValues(rt, string(domain.OutcomeFailed)).Observe(st.FailedAt.Sub(st.StartedAt).Seconds())
	}
	t := Transition{RiskType: w.feature.RiskType, Title: w.feature.Title, From: from, To: to, At: w.now()}
	for _, fn := range w.observers {
		fn(t)
	}
}

// retryDelay is the wait after the given number of consecutive transient poll
// failures. It never drops below half the backoff base nor exceeds the poll interval.
func retryDelay(cfg Config, failures int, rng *rand.Rand) time.Duration {
	d := backoff.Compute(cfg.BackoffPolicy, cfg.BackoffBase, cfg.BackoffMax, failures-1, rng)
	return min(max(d, cfg.BackoffBase/2), cfg.PollInterval)
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
