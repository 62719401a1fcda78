package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Redis keys read by the collector. They mirror the repository layout.
const (
	keyRunsCounts    = "riskdesk:runs:counts"
	keyRunsRecent    = "riskdesk:runs:recent"
	keySimJobsPrefix = "riskdesk:sim:jobs:"
)

var simJobStates = []string{"submitted", "processing", "completed", "failed"}

type redisCollector struct {
	rdb    *redis.Client
	logger *slog.Logger

	archivedRunsDesc *prometheus.Desc
	recentRunsDesc   *prometheus.Desc
	simJobsDesc      *prometheus.Desc
}

func newRedisCollector(rdb *redis.Client, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCollector{
		rdb:    rdb,
		logger: logger,
		archivedRunsDesc: prometheus.NewDesc(
			namespace+"_archived_runs",
			"Runs archived in Redis by risk type and outcome.",
			[]string{"risk_type", "outcome"},
			nil,
		),
		recentRunsDesc: prometheus.NewDesc(
			namespace+"_recent_runs",
			"Runs currently held in the recent-results index.",
			nil,
			nil,
		),
		simJobsDesc: prometheus.NewDesc(
			namespace+"_simulated_jobs",
			"Jobs held by the agent simulator by job status.",
			[]string{"status"},
			nil,
		),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.archivedRunsDesc
	ch <- c.recentRunsDesc
	ch <- c.simJobsDesc
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := c.rdb.Pipeline()
	countsCmd := pipe.HGetAll(ctx, keyRunsCounts)
	recentCmd := pipe.ZCard(ctx, keyRunsRecent)
	simCmds := make(map[string]*redis.IntCmd, len(simJobStates))
	for _, s := range simJobStates {
		simCmds[s] = pipe.ZCard(ctx, keySimJobsPrefix+s)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}

	for field, raw := range countsCmd.Val() {
		rt, outcome, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		emitGauge(ch, c.archivedRunsDesc, n, rt, outcome)
	}
	emitGauge(ch, c.recentRunsDesc, float64(recentCmd.Val()))
	for _, s := range simJobStates {
		emitGauge(ch, c.simJobsDesc, float64(simCmds[s].Val()), s)
	}
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerRedisCollectorOnce sync.Once

func RegisterRedisCollector(rdb *redis.Client, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, logger))
	})
}
