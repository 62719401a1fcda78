package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestTokenBucketLimiter_Allow_Disabled(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lim := NewTokenBucketLimiter(rdb)

	dec, err := lim.Allow(context.Background(), "run", "token-1", Bucket{})
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed when bucket disabled")
	}
}

func TestTokenBucketLimiter_Allow_BlocksAfterBurst(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lim := NewTokenBucketLimiter(rdb)
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 1} // 1 token/sec, burst=1

	dec1, err := lim.Allow(context.Background(), "run", "token-1", bucket)
	if err != nil {
		t.Fatalf("allow 1: %v", err)
	}
	if !dec1.Allowed {
		t.Fatalf("expected first request to be allowed")
	}

	dec2, err := lim.Allow(context.Background(), "run", "token-1", bucket)
	if err != nil {
		t.Fatalf("allow 2: %v", err)
	}
	if dec2.Allowed {
		t.Fatalf("expected second request to be rate limited")
	}
	if dec2.RetryAfter <= 0 {
		t.Fatalf("expected retryAfter to be set")
	}

	decOther, err := lim.Allow(context.Background(), "run", "token-2", bucket)
	if err != nil {
		t.Fatalf("allow other: %v", err)
	}
	if !decOther.Allowed {
		t.Fatalf("expected other subject to be allowed (independent bucket)")
	}
}

func TestTokenBucketLimiter_StateKeyHasTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lim := NewTokenBucketLimiter(rdb)
	if _, err := lim.Allow(context.Background(), "run", "token-1", Bucket{RequestsPerMinute: 6, BurstSize: 2}); err != nil {
		t.Fatalf("allow: %v", err)
	}
	keys := mr.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], KeyPrefix+"run:") {
		t.Fatalf("unexpected keys %v", keys)
	}
	if strings.Contains(keys[0], "token-1") {
		t.Fatal("bearer token must be hashed in the key")
	}
	if ttl := mr.TTL(keys[0]); ttl < 30*time.Second || ttl > time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestComputeTTLMS(t *testing.T) {
	if got := computeTTLMS(0, 0); got != (2 * time.Minute).Milliseconds() {
		t.Fatalf("invalid bucket ttl = %d", got)
	}
	if got := computeTTLMS(1000, 1); got != (30 * time.Second).Milliseconds() {
		t.Fatalf("fast bucket ttl = %d, want floor", got)
	}
	if got := computeTTLMS(0.0001, 1000); got != time.Hour.Milliseconds() {
		t.Fatalf("slow bucket ttl = %d, want ceiling", got)
	}
}

type scriptedLimiter struct {
	decisions []Decision
	calls     int
}

func (s *scriptedLimiter) Allow(ctx context.Context, scope, subject string, bucket Bucket) (Decision, error) {
	d := s.decisions[min(s.calls, len(s.decisions)-1)]
	s.calls++
	return d, nil
}

func TestWait(t *testing.T) {
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 1}
	lim := &scriptedLimiter{decisions: []Decision{{RetryAfter: time.Millisecond}, {Allowed: true}}}
	limited := 0
	if err := Wait(context.Background(), lim, "callback", "url", bucket, func(Decision) { limited++ }); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if lim.calls != 2 || limited != 1 {
		t.Fatalf("calls=%d limited=%d", lim.calls, limited)
	}

	blocked := &scriptedLimiter{decisions: []Decision{{RetryAfter: time.Hour}}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := Wait(ctx, blocked, "callback", "url", bucket, nil); err == nil {
		t.Fatal("expected context error")
	}

	if err := Wait(context.Background(), nil, "callback", "url", bucket, nil); err != nil {
		t.Fatalf("nil limiter should pass: %v", err)
	}
}
