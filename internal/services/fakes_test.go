package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/osvaldoandrade/riskdesk/internal/workflow"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRedis(t *testing.T) (context.Context, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return context.Background(), mr, rdb
}

// gatedAgent blocks submissions until release is closed, then completes
// every job on its first poll.
type gatedAgent struct {
	release chan struct{}

	mu    sync.Mutex
	polls int
}

func newGatedAgent() *gatedAgent {
	return &gatedAgent{release: make(chan struct{})}
}

func (a *gatedAgent) Submit(ctx context.Context, req domain.JobRequest) (domain.JobDescriptor, error) {
	select {
	case <-a.release:
	case <-ctx.Done():
		return domain.JobDescriptor{}, ctx.Err()
	}
	return domain.JobDescriptor{JobID: "job-" + req.IdentifierFromPurchaser, BlockchainIdentifier: "chain"}, nil
}

func (a *gatedAgent) Pay(ctx context.Context, req domain.PaymentRequest) (domain.PaymentReceipt, error) {
	return domain.PaymentReceipt(`{"status":"success"}`), nil
}

func (a *gatedAgent) PollOnce(ctx context.Context, jobID string) (domain.JobStatus, error) {
	a.mu.Lock()
	a.polls++
	a.mu.Unlock()
	return domain.JobStatus{
		Status:        domain.JobCompleted,
		PaymentStatus: domain.PaymentCompleted,
		Result:        map[string]any{"risk_score_raw": 20},
	}, nil
}

func (a *gatedAgent) clients() workflow.Clients {
	return workflow.Clients{Submitter: a, Payer: a, Poller: a}
}

func boardFactory(agent *gatedAgent, opts ...workflow.Option) BoardFactory {
	cfg := workflow.Config{PollInterval: time.Millisecond}
	opts = append(opts, workflow.WithLogger(quietLogger()))
	return func() (*workflow.Board, error) {
		return workflow.NewBoard(domain.DefaultCatalog(), cfg, agent.clients(), opts...)
	}
}
