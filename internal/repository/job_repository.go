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

// ErrConflict is returned when a job changed concurrently more times than an
// update is willing to retry.
var ErrConflict = errors.New("conflict")

const maxUpdateRetries = 5

// JobRepository stores the agent simulator's jobs.
type JobRepository interface {
	Create(ctx context.Context, job domain.SimulatedJob) error
	Get(ctx context.Context, jobID string) (*domain.SimulatedJob, error)
	// JobIDForBlockchain resolves the job a purchase refers to.
	JobIDForBlockchain(ctx context.Context, blockchainIdentifier string) (string, error)
	// Update applies fn atomically; fn may be re-run on contention.
	Update(ctx context.Context, jobID string, fn func(*domain.SimulatedJob) error) (*domain.SimulatedJob, error)
	CountByState(ctx context.Context) (map[domain.JobState]int64, error)
}

type jobRedisRepo struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewJobRepository(rdb *redis.Client, ttl time.Duration) JobRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &jobRedisRepo{rdb: rdb, ttl: ttl, now: time.Now}
}

func KeySimJob(id string) string { return "riskdesk:sim:job:" + id }

func KeySimChain(blockchainIdentifier string) string {
	return "riskdesk:sim:chain:" + blockchainIdentifier
}

// KeySimJobsByState indexes job ids by status, scored by creation time.
func KeySimJobsByState(s domain.JobState) string { return "riskdesk:sim:jobs:" + string(s) }

func allJobStates() []domain.JobState {
	return []domain.JobState{domain.JobSubmitted, domain.JobProcessing, domain.JobCompleted, domain.JobFailed}
}

func (r *jobRedisRepo) Create(ctx context.Context, job domain.SimulatedJob) error {
	if job.Descriptor.JobID == "" {
		return fmt.Errorf("job without id")
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, KeySimJob(job.Descriptor.JobID), string(b), r.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis SETNX job: %w", err)
	}
	if !ok {
		return fmt.Errorf("job %s already exists: %w", job.Descriptor.JobID, ErrConflict)
	}
	if bid := job.Descriptor.BlockchainIdentifier; bid != "" {
		if err := r.rdb.Set(ctx, KeySimChain(bid), job.Descriptor.JobID, r.ttl).Err(); err != nil {
			return fmt.Errorf("redis SET chain index: %w", err)
		}
	}
	score := float64(job.CreatedAt.Unix())
	if err := r.rdb.ZAdd(ctx, KeySimJobsByState(job.Status), &redis.Z{Score: score, Member: job.Descriptor.JobID}).Err(); err != nil {
		return fmt.Errorf("redis ZADD job index: %w", err)
	}
	r.pruneIndex(ctx)
	return nil
}

// pruneIndex drops index entries whose job keys have expired.
func (r *jobRedisRepo) pruneIndex(ctx context.Context) {
	cutoff := "(" + strconv.FormatInt(r.now().Add(-r.ttl).Unix(), 10)
	for _, s := range allJobStates() {
		_ = r.rdb.ZRemRangeByScore(ctx, KeySimJobsByState(s), "-inf", cutoff).Err()
	}
}

func (r *jobRedisRepo) Get(ctx context.Context, jobID string) (*domain.SimulatedJob, error) {
	js, err := r.rdb.Get(ctx, KeySimJob(jobID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET job: %w", err)
	}
	var job domain.SimulatedJob
	if err := json.Unmarshal([]byte(js), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (r *jobRedisRepo) JobIDForBlockchain(ctx context.Context, blockchainIdentifier string) (string, error) {
	id, err := r.rdb.Get(ctx, KeySimChain(blockchainIdentifier)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis GET chain index: %w", err)
	}
	return id, nil
}

func (r *jobRedisRepo) Update(ctx context.Context, jobID string, fn func(*domain.SimulatedJob) error) (*domain.SimulatedJob, error) {
	key := KeySimJob(jobID)
	var out *domain.SimulatedJob

	txf := func(tx *redis.Tx) error {
		js, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("redis GET job: %w", err)
		}
		var job domain.SimulatedJob
		if err := json.Unmarshal([]byte(js), &job); err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}
		before := job.Status
		if err := fn(&job); err != nil {
			return err
		}
		job.UpdatedAt = r.now()
		b, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, string(b), redis.KeepTTL)
			if job.Status != before {
				pipe.ZRem(ctx, KeySimJobsByState(before), jobID)
				pipe.ZAdd(ctx, KeySimJobsByState(job.Status), &redis.Z{Score: float64(job.CreatedAt.Unix()), Member: jobID})
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = &job
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}

func (r *jobRedisRepo) CountByState(ctx context.Context) (map[domain.JobState]int64, error) {
	pipe := r.rdb.Pipeline()
	cmds := make(map[domain.JobState]*redis.IntCmd)
	for _, s := range allJobStates() {
		cmds[s] = pipe.ZCard(ctx, KeySimJobsByState(s))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis count jobs: %w", err)
	}
	out := make(map[domain.JobState]int64, len(cmds))
	for s, c := range cmds {
		out[s] = c.Val()
	}
	return out, nil
}
