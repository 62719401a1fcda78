package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/osvaldoandrade/riskdesk/internal/repository"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
	"github.com/osvaldoandrade/riskdesk/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis-specific configuration. An empty Addr reuses the shared
// client from PluginConfig.
type Config struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
}

// Plugin implements PluginPersistence for Redis/KVRocks
type Plugin struct {
	client  *redis.Client
	owned   bool
	runRepo repository.ResultRepository
}

// NewPlugin creates a new Redis persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if len(config.Config) > 0 {
		if err := json.Unmarshal(config.Config, &cfg); err != nil {
			return nil, err
		}
	}

	client, owned := config.Redis, false
	if cfg.Addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
		})
		owned = true
	}
	if client == nil {
		return nil, errors.New("redis persistence: no addr configured and no shared client")
	}

	return &Plugin{
		client:  client,
		owned:   owned,
		runRepo: repository.NewResultRepository(client, config.RecentLimit),
	}, nil
}

// RunStorage returns the run archive implementation
func (p *Plugin) RunStorage() persistence.RunStorage {
	return &runStorageAdapter{repo: p.runRepo}
}

// Health checks if Redis is healthy
func (p *Plugin) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the Redis connection when the plugin opened it
func (p *Plugin) Close() error {
	if !p.owned {
		return nil
	}
	return p.client.Close()
}

// runStorageAdapter maps repository errors onto persistence errors
type runStorageAdapter struct {
	repo repository.ResultRepository
}

func (a *runStorageAdapter) Save(ctx context.Context, rec domain.RunRecord) error {
	return a.repo.Save(ctx, rec)
}

func (a *runStorageAdapter) Get(ctx context.Context, identifier string) (*domain.RunRecord, error) {
	rec, err := a.repo.Get(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, persistence.ErrNotFound
	}
	return rec, err
}

func (a *runStorageAdapter) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	return a.repo.Recent(ctx, limit)
}

func (a *runStorageAdapter) Prune(ctx context.Context, before time.Time) (int, error) {
	return a.repo.Prune(ctx, before)
}

func init() {
	persistence.RegisterProvider("redis", NewPlugin)
}
