package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/osvaldoandrade/riskdesk/internal/repository"
	"github.com/osvaldoandrade/riskdesk/internal/workflow"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

type recordingCallback struct {
	mu   sync.Mutex
	recs []domain.RunRecord
}

func (r *recordingCallback) Send(ctx context.Context, rec domain.RunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
}

func (r *recordingCallback) Wait()  {}
func (r *recordingCallback) Close() {}

func TestRunArchiveService_ObserveArchivesTerminalTransitions(t *testing.T) {
	ctx, _, rdb := setupRedis(t)
	cb := &recordingCallback{}
	svc := NewRunArchiveService(repository.NewResultRepository(rdb, 10), cb, quietLogger())

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.Observe(workflow.Transition{
		RiskType: domain.RiskTrading,
		From:     workflow.Idle{},
		To:       workflow.Submitting{Identifier: "aa", StartedAt: started},
	})
	svc.Observe(workflow.Transition{
		RiskType: domain.RiskTrading,
		Title:    "Trading Risk Assessment",
		From:     workflow.AwaitingPayment{},
		To: workflow.Completed{
			Identifier:  "aa",
			Descriptor:  domain.JobDescriptor{JobID: "job-1"},
			Result:      map[string]any{"risk_score_raw": 20},
			Polls:       2,
			StartedAt:   started,
			CompletedAt: started.Add(time.Minute),
		},
	})
	svc.Observe(workflow.Transition{
		RiskType: domain.RiskHedgeFund,
		From:     workflow.Submitting{},
		To: workflow.Failed{
			Identifier: "bb",
			Stage:      workflow.StageSubmission,
			Message:    "Agent request failed: 500 Response: server error",
			StartedAt:  started,
			FailedAt:   started.Add(2 * time.Minute),
		},
	})

	rec, err := svc.Get(ctx, "aa")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Outcome != domain.OutcomeCompleted || rec.JobID != "job-1" || rec.Polls != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Result["risk_score_raw"] != float64(20) {
		t.Fatalf("result = %v", rec.Result)
	}

	failed, err := svc.Get(ctx, "bb")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if failed.Outcome != domain.OutcomeFailed || failed.Stage != "submission" || failed.JobID != "" {
		t.Fatalf("unexpected failed record %+v", failed)
	}

	recent, err := svc.Recent(ctx, 10)
	if err != nil || len(recent) != 2 || recent[0].Identifier != "bb" {
		t.Fatalf("Recent = %+v, %v", recent, err)
	}

	if _, err := svc.Get(ctx, "zz"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("Get(zz) = %v, want ErrRunNotFound", err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.recs) != 2 {
		t.Fatalf("callback got %d records, want 2", len(cb.recs))
	}
}

func TestRecordFromTransition_IgnoresInFlightStates(t *testing.T) {
	for _, to := range []workflow.State{workflow.Idle{}, workflow.Submitting{}, workflow.AwaitingPayment{}} {
		if _, ok := RecordFromTransition(workflow.Transition{To: to}); ok {
			t.Fatalf("%T produced a record", to)
		}
	}
	desc := domain.JobDescriptor{JobID: "job-9"}
	rec, ok := RecordFromTransition(workflow.Transition{To: workflow.Failed{Identifier: "x", Descriptor: &desc, Stage: workflow.StagePoll}})
	if !ok || rec.JobID != "job-9" || rec.Stage != "poll" {
		t.Fatalf("failed record = %+v", rec)
	}
}
