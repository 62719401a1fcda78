package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/riskdesk/internal/repository"
	"github.com/osvaldoandrade/riskdesk/internal/workflow"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
	"github.com/osvaldoandrade/riskdesk/pkg/persistence"
)

// ErrRunNotFound is returned for identifiers with no archived run.
var ErrRunNotFound = errors.New("run not found")

const archiveTimeout = 5 * time.Second

// RunArchiveService archives finished runs and serves them back.
type RunArchiveService interface {
	// Observe is a workflow observer; it archives terminal transitions.
	Observe(t workflow.Transition)
	Get(ctx context.Context, identifier string) (*domain.RunRecord, error)
	// Recent returns runs newest first; limit <= 0 returns the whole recent window.
	Recent(ctx context.Context, limit int) ([]domain.RunRecord, error)
	Prune(ctx context.Context, before time.Time) (int, error)
}

type runArchiveService struct {
	repo     persistence.RunStorage
	callback RunCallbackService
	logger   *slog.Logger
}

// NewRunArchiveService wires repo as the archive. callback may be nil.
func NewRunArchiveService(repo persistence.RunStorage, callback RunCallbackService, logger *slog.Logger) RunArchiveService {
	if logger == nil {
		logger = slog.Default()
	}
	return &runArchiveService{repo: repo, callback: callback, logger: logger}
}

func (s *runArchiveService) Observe(t workflow.Transition) {
	rec, ok := RecordFromTransition(t)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := s.repo.Save(ctx, rec); err != nil {
		s.logger.Warn("archive run failed", "identifier", rec.Identifier, "err", err)
	}
	if s.callback != nil {
		s.callback.Send(context.Background(), rec)
	}
}

func (s *runArchiveService) Get(ctx context.Context, identifier string) (*domain.RunRecord, error) {
	rec, err := s.repo.Get(ctx, identifier)
	if errors.Is(err, persistence.ErrNotFound) || errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	return rec, err
}

func (s *runArchiveService) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	return s.repo.Recent(ctx, limit)
}

func (s *runArchiveService) Prune(ctx context.Context, before time.Time) (int, error) {
	return s.repo.Prune(ctx, before)
}

// RecordFromTransition summarises a transition into a terminal state. It
// reports false for every other transition.
func RecordFromTransition(t workflow.Transition) (domain.RunRecord, bool) {
	switch st := t.To.(type) {
	case workflow.Completed:
		return domain.RunRecord{
			Identifier: st.Identifier,
			RiskType:   t.RiskType,
			Title:      t.Title,
			Outcome:    domain.OutcomeCompleted,
			JobID:      st.Descriptor.JobID,
			Result:     st.Result,
			Polls:      st.Polls,
			StartedAt:  st.StartedAt,
			FinishedAt: st.CompletedAt,
		}, true
	case workflow.Failed:
		rec := domain.RunRecord{
			Identifier: st.Identifier,
			RiskType:   t.RiskType,
			Title:      t.Title,
			Outcome:    domain.OutcomeFailed,
			Stage:      string(st.Stage),
			Error:      st.Message,
			Polls:      st.Polls,
			StartedAt:  st.StartedAt,
			FinishedAt: st.FailedAt,
		}
		if st.Descriptor != nil {
			rec.JobID = st.Descriptor.JobID
		}
		return rec, true
	}
	return domain.RunRecord{}, false
}
