// Package metrics holds mallgate's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/koustreak/mallgate/internal/database"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mallgate_build_info",
			Help: "Build information of the mallgate server",
		},
		[]string{"version", "commit"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mallgate_tool_calls_total",
			Help: "Total number of tool calls",
		},
		[]string{"tool", "status"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mallgate_tool_call_duration_seconds",
			Help:    "Duration of tool calls",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"tool"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mallgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// Tool call outcomes used as the status label.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// PoolCollector exports connection pool gauges read from stats on every
// scrape.
type PoolCollector struct {
	stats func() database.PoolStats

	max      *prometheus.Desc
	acquired *prometheus.Desc
	idle     *prometheus.Desc
	total    *prometheus.Desc
}

// NewPoolCollector returns a collector over stats, typically
// Gateway.Stats.
func NewPoolCollector(stats func() database.PoolStats) *PoolCollector {
	return &PoolCollector{
		stats:    stats,
		max:      prometheus.NewDesc("mallgate_pool_max_conns", "Configured maximum simultaneous connections", nil, nil),
		acquired: prometheus.NewDesc("mallgate_pool_acquired_conns", "Connections currently checked out", nil, nil),
		idle:     prometheus.NewDesc("mallgate_pool_idle_conns", "Open connections waiting in the pool", nil, nil),
		total:    prometheus.NewDesc("mallgate_pool_total_conns", "Open connections, acquired or idle", nil, nil),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.max
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.Acquired))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.Total))
}
