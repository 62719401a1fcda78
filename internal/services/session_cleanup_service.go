package services

import (
	"context"
	"log/slog"
	"time"
)

type SessionCleanupService interface {
	Start(ctx context.Context)
	// Sweep runs one cleanup pass.
	Sweep(ctx context.Context)
}

type sessionCleanupService struct {
	sessions  SessionService
	runs      RunArchiveService
	logger    *slog.Logger
	interval  time.Duration
	idleTTL   time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewSessionCleanupService closes sessions idle for idleTTLSeconds and prunes
// archived runs older than retentionHours. runs may be nil.
func NewSessionCleanupService(sessions SessionService, runs RunArchiveService, logger *slog.Logger, intervalSeconds, idleTTLSeconds, retentionHours int) SessionCleanupService {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	if idleTTLSeconds <= 0 {
		idleTTLSeconds = 3600
	}
	if retentionHours <= 0 {
		retentionHours = 24 * 7
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionCleanupService{
		sessions:  sessions,
		runs:      runs,
		logger:    logger,
		interval:  time.Duration(intervalSeconds) * time.Second,
		idleTTL:   time.Duration(idleTTLSeconds) * time.Second,
		retention: time.Duration(retentionHours) * time.Hour,
		now:       time.Now,
	}
}

func (s *sessionCleanupService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *sessionCleanupService) Sweep(ctx context.Context) {
	now := s.now()
	if closed := s.sessions.CloseIdle(now.Add(-s.idleTTL)); closed > 0 {
		s.logger.Info("idle sessions closed", "count", closed)
	}
	if s.runs == nil {
		return
	}
	removed, err := s.runs.Prune(ctx, now.Add(-s.retention))
	if err != nil {
		s.logger.Warn("run archive prune failed", "err", err)
		return
	}
	if removed > 0 {
		s.logger.Info("archived runs pruned", "count", removed)
	}
}
