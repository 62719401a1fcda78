package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
	"github.com/osvaldoandrade/riskdesk/pkg/persistence"
)

// Plugin implements PluginPersistence for in-memory storage.
// Runs do not survive a restart and are not shared between replicas.
type Plugin struct {
	mu          sync.RWMutex
	runs        map[string]domain.RunRecord
	recentLimit int
}

// NewPlugin creates a new in-memory persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	limit := config.RecentLimit
	if limit <= 0 {
		limit = 100
	}
	return &Plugin{
		runs:        make(map[string]domain.RunRecord),
		recentLimit: limit,
	}, nil
}

// RunStorage returns the run archive implementation
func (p *Plugin) RunStorage() persistence.RunStorage {
	return &runStorage{plugin: p}
}

// Health always returns nil for in-memory storage
func (p *Plugin) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage
func (p *Plugin) Close() error {
	return nil
}

func init() {
	persistence.RegisterProvider("memory", NewPlugin)
}

type runStorage struct {
	plugin *Plugin
}

func (s *runStorage) Save(ctx context.Context, rec domain.RunRecord) error {
	if rec.Identifier == "" {
		return fmt.Errorf("run record without identifier")
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()

	s.plugin.runs[rec.Identifier] = copyRecord(rec)
	// Drop the oldest runs beyond the bound.
	if over := len(s.plugin.runs) - s.plugin.recentLimit; over > 0 {
		for _, old := range s.plugin.oldestFirst()[:over] {
			delete(s.plugin.runs, old.Identifier)
		}
	}
	return nil
}

func (s *runStorage) Get(ctx context.Context, identifier string) (*domain.RunRecord, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()

	rec, ok := s.plugin.runs[identifier]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	out := copyRecord(rec)
	return &out, nil
}

func (s *runStorage) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 || limit > s.plugin.recentLimit {
		limit = s.plugin.recentLimit
	}
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()

	all := s.plugin.oldestFirst()
	out := make([]domain.RunRecord, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyRecord(all[i]))
	}
	return out, nil
}

func (s *runStorage) Prune(ctx context.Context, before time.Time) (int, error) {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()

	n := 0
	for id, rec := range s.plugin.runs {
		if rec.FinishedAt.Before(before) {
			delete(s.plugin.runs, id)
			n++
		}
	}
	return n, nil
}

// oldestFirst must be called with the lock held. Ties on FinishedAt order by
// identifier.
func (p *Plugin) oldestFirst() []domain.RunRecord {
	out := make([]domain.RunRecord, 0, len(p.runs))
	for _, rec := range p.runs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FinishedAt.Equal(out[j].FinishedAt) {
			return out[i].Identifier < out[j].Identifier
		}
		return out[i].FinishedAt.Before(out[j].FinishedAt)
	})
	return out
}

// copyRecord detaches the result map so callers cannot mutate stored runs.
func copyRecord(rec domain.RunRecord) domain.RunRecord {
	if rec.Result != nil {
		res := make(map[string]any, len(rec.Result))
		for k, v := range rec.Result {
			res[k] = v
		}
		rec.Result = res
	}
	return rec
}
