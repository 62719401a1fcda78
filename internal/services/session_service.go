package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/osvaldoandrade/riskdesk/internal/metrics"
	"github.com/osvaldoandrade/riskdesk/internal/workflow"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrFeatureNotFound = errors.New("feature not found")
	// ErrBusy is returned when a trigger lands on a card with a run in flight.
	ErrBusy = errors.New("run already in progress")
)

// BoardFactory mounts a fresh board for a new session.
type BoardFactory func() (*workflow.Board, error)

type SessionInfo struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
}

type SessionService interface {
	Open(ctx context.Context, owner string) (SessionInfo, error)
	Get(owner, id string) (SessionInfo, []workflow.View, error)
	List(owner string) []SessionInfo
	Feature(owner, id string, rt domain.RiskType) (workflow.View, error)
	// Trigger starts a run on one card and returns the card's view after the
	// trigger was accepted.
	Trigger(ctx context.Context, owner, id string, rt domain.RiskType) (workflow.View, error)
	Close(owner, id string) error
	// CloseIdle tears down idle sessions last seen before cutoff. Sessions with
	// a run in flight are kept.
	CloseIdle(cutoff time.Time) int
	Shutdown()
}

type session struct {
	info  SessionInfo
	board *workflow.Board
}

type sessionService struct {
	factory BoardFactory
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewSessionService(factory BoardFactory, logger *slog.Logger, now func() time.Time) SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &sessionService{
		factory:  factory,
		logger:   logger,
		now:      now,
		sessions: make(map[string]*session),
	}
}

func (s *sessionService) Open(ctx context.Context, owner string) (SessionInfo, error) {
	board, err := s.factory()
	if err != nil {
		return SessionInfo{}, fmt.Errorf("mount board: %w", err)
	}
	now := s.now()
	sess := &session{
		info:  SessionInfo{ID: uuid.NewString(), Owner: owner, CreatedAt: now, LastSeen: now},
		board: board,
	}
	s.mu.Lock()
	s.sessions[sess.info.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SessionsActive.Set(float64(n))
	s.logger.Info("session opened", "session", sess.info.ID, "owner", owner)
	return sess.info, nil
}

// lookup finds a session owned by owner and refreshes its last-seen time.
// Sessions of other owners are reported as missing.
func (s *sessionService) lookup(owner, id string) (*session, SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.info.Owner != owner {
		return nil, SessionInfo{}, ErrSessionNotFound
	}
	sess.info.LastSeen = s.now()
	return sess, sess.info, nil
}

func (s *sessionService) Get(owner, id string) (SessionInfo, []workflow.View, error) {
	sess, info, err := s.lookup(owner, id)
	if err != nil {
		return SessionInfo{}, nil, err
	}
	return info, sess.board.Views(), nil
}

func (s *sessionService) List(owner string) []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.info.Owner == owner {
			out = append(out, sess.info)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *sessionService) Feature(owner, id string, rt domain.RiskType) (workflow.View, error) {
	sess, _, err := s.lookup(owner, id)
	if err != nil {
		return workflow.View{}, err
	}
	w, ok := sess.board.Workflow(rt)
	if !ok {
		return workflow.View{}, ErrFeatureNotFound
	}
	return w.View(), nil
}

func (s *sessionService) Trigger(ctx context.Context, owner, id string, rt domain.RiskType) (workflow.View, error) {
	sess, _, err := s.lookup(owner, id)
	if err != nil {
		return workflow.View{}, err
	}
	w, ok := sess.board.Workflow(rt)
	if !ok {
		return workflow.View{}, ErrFeatureNotFound
	}
	if !w.Trigger(ctx) {
		return w.View(), ErrBusy
	}
	s.logger.Info("run triggered", "session", id, "risk_type", string(rt))
	return w.View(), nil
}

func (s *sessionService) Close(owner, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok || sess.info.Owner != owner {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	sess.board.Close()
	metrics.SessionsActive.Set(float64(n))
	s.logger.Info("session closed", "session", id)
	return nil
}

func (s *sessionService) CloseIdle(cutoff time.Time) int {
	var stale []*session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.info.LastSeen.Before(cutoff) && !sess.board.Busy() {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range stale {
		sess.board.Close()
	}
	if len(stale) > 0 {
		metrics.SessionsActive.Set(float64(n))
	}
	return len(stale)
}

// Shutdown closes every session and cancels their runs.
func (s *sessionService) Shutdown() {
	s.mu.Lock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range all {
		wg.Add(1)
		go func(b *workflow.Board) {
			defer wg.Done()
			b.Close()
		}(sess.board)
	}
	wg.Wait()
	metrics.SessionsActive.Set(0)
}
