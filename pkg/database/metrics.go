package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// PoolStatter is implemented by *pgxpool.Pool.
type PoolStatter interface {
	Stat() *pgxpool.Stat
}

// RedisStatter is implemented by *redis.Client.
type RedisStatter interface {
	PoolStats() *redis.PoolStats
}

type statMetric[S any] struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(S) float64
}

func gauge[S any](name, help string, value func(S) float64) statMetric[S] {
	return statMetric[S]{prometheus.NewDesc(name, help, []string{"service"}, nil), prometheus.GaugeValue, value}
}

func counter[S any](name, help string, value func(S) float64) statMetric[S] {
	return statMetric[S]{prometheus.NewDesc(name, help, []string{"service"}, nil), prometheus.CounterValue, value}
}

// statCollector snapshots a connection pool on every scrape.
type statCollector[S any] struct {
	service string
	stat    func() S
	metrics []statMetric[S]
}

func (c *statCollector[S]) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *statCollector[S]) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(s), c.service)
	}
}

// NewPoolStatsCollector exports pgxpool statistics as db_pool_* metrics.
func NewPoolStatsCollector(pool PoolStatter, service string) prometheus.Collector {
	type st = *pgxpool.Stat
	return &statCollector[st]{
		service: service,
		stat:    func() st { return pool.Stat() },
		metrics: []statMetric[st]{
			gauge("db_pool_acquired_connections", "Connections currently checked out.",
				func(s st) float64 { return float64(s.AcquiredConns()) }),
			gauge("db_pool_idle_connections", "Connections idle in the pool.",
				func(s st) float64 { return float64(s.IdleConns()) }),
			gauge("db_pool_total_connections", "Connections open in the pool.",
				func(s st) float64 { return float64(s.TotalConns()) }),
			gauge("db_pool_max_connections", "Configured pool ceiling.",
				func(s st) float64 { return float64(s.MaxConns()) }),
			counter("db_pool_acquire_count_total", "Successful acquires.",
				func(s st) float64 { return float64(s.AcquireCount()) }),
			counter("db_pool_acquire_duration_seconds_total", "Time spent acquiring connections.",
				func(s st) float64 { return s.AcquireDuration().Seconds() }),
			counter("db_pool_canceled_acquire_count_total", "Acquires abandoned by context.",
				func(s st) float64 { return float64(s.CanceledAcquireCount()) }),
			counter("db_pool_empty_acquire_count_total", "Acquires that waited for a free connection.",
				func(s st) float64 { return float64(s.EmptyAcquireCount()) }),
		},
	}
}

// NewRedisPoolStatsCollector exports go-redis pool statistics as
// redis_pool_* metrics.
func NewRedisPoolStatsCollector(client RedisStatter, service string) prometheus.Collector {
	type st = *redis.PoolStats
	return &statCollector[st]{
		service: service,
		stat:    func() st { return client.PoolStats() },
		metrics: []statMetric[st]{
			counter("redis_pool_hits_total", "Free connection found in the pool.",
				func(s st) float64 { return float64(s.Hits) }),
			counter("redis_pool_misses_total", "No free connection in the pool.",
				func(s st) float64 { return float64(s.Misses) }),
			counter("redis_pool_timeouts_total", "Waits for a connection that timed out.",
				func(s st) float64 { return float64(s.Timeouts) }),
			gauge("redis_pool_total_connections", "Connections open in the pool.",
				func(s st) float64 { return float64(s.TotalConns) }),
			gauge("redis_pool_idle_connections", "Connections idle in the pool.",
				func(s st) float64 { return float64(s.IdleConns) }),
		},
	}
}

func RegisterPoolMetrics(reg prometheus.Registerer, pool PoolStatter, service string) error {
	return reg.Register(NewPoolStatsCollector(pool, service))
}

func RegisterRedisPoolMetrics(reg prometheus.Registerer, client RedisStatter, service string) error {
	return reg.Register(NewRedisPoolStatsCollector(client, service))
}
