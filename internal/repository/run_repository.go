package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"

	"github.com/go-redis/redis/v8"
)

var ErrNotFound = errors.New("not-found")

const (
	KeyRunsHash   = "riskdesk:runs"
	KeyRunsRecent = "riskdesk:runs:recent"
	KeyRunsCounts = "riskdesk:runs:counts"
)

// ResultRepository archives finished workflow runs keyed by purchaser
// identifier.
type ResultRepository interface {
	Save(ctx context.Context, rec domain.RunRecord) error
	Get(ctx context.Context, identifier string) (*domain.RunRecord, error)
	Recent(ctx context.Context, limit int) ([]domain.RunRecord, error)
	Prune(ctx context.Context, before time.Time) (int, error)
}

type resultRedisRepo struct {
	rdb         *redis.Client
	recentLimit int
}

func NewResultRepository(rdb *redis.Client, recentLimit int) ResultRepository {
	if recentLimit <= 0 {
		recentLimit = 100
	}
	return &resultRedisRepo{rdb: rdb, recentLimit: recentLimit}
}

func countField(rt domain.RiskType, outcome domain.RunOutcome) string {
	return string(rt) + ":" + string(outcome)
}

func (r *resultRedisRepo) Save(ctx context.Context, rec domain.RunRecord) error {
	if rec.Identifier == "" {
		return fmt.Errorf("run record without identifier")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, KeyRunsHash, rec.Identifier, string(b))
		pipe.ZAdd(ctx, KeyRunsRecent, &redis.Z{Score: float64(finished.UnixMilli()), Member: rec.Identifier})
		pipe.HIncrBy(ctx, KeyRunsCounts, countField(rec.RiskType, rec.Outcome), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save run: %w", err)
	}
	return r.trim(ctx)
}

// trim drops the oldest runs beyond the recent-list bound.
func (r *resultRedisRepo) trim(ctx context.Context) error {
	n, err := r.rdb.ZCard(ctx, KeyRunsRecent).Result()
	if err != nil {
		return fmt.Errorf("redis ZCARD runs: %w", err)
	}
	excess := n - int64(r.recentLimit)
	if excess <= 0 {
		return nil
	}
	old, err := r.rdb.ZRange(ctx, KeyRunsRecent, 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("redis ZRANGE runs: %w", err)
	}
	return r.remove(ctx, old)
}

func (r *resultRedisRepo) remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, KeyRunsRecent, members...)
		pipe.HDel(ctx, KeyRunsHash, ids...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis remove runs: %w", err)
	}
	return nil
}

func (r *resultRedisRepo) Get(ctx context.Context, identifier string) (*domain.RunRecord, error) {
	js, err := r.rdb.HGet(ctx, KeyRunsHash, identifier).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET run: %w", err)
	}
	var rec domain.RunRecord
	if err := json.Unmarshal([]byte(js), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &rec, nil
}

// Recent returns up to limit runs, newest first.
func (r *resultRedisRepo) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 || limit > r.recentLimit {
		limit = r.recentLimit
	}
	ids, err := r.rdb.ZRevRange(ctx, KeyRunsRecent, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ZREVRANGE runs: %w", err)
	}
	if len(ids) == 0 {
		return []domain.RunRecord{}, nil
	}
	vals, err := r.rdb.HMGet(ctx, KeyRunsHash, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HMGET runs: %w", err)
	}
	out := make([]domain.RunRecord, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		var rec domain.RunRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Prune deletes runs that finished before the cutoff.
func (r *resultRedisRepo) Prune(ctx context.Context, before time.Time) (int, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, KeyRunsRecent, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ZRANGEBYSCORE runs: %w", err)
	}
	if err := r.remove(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}
