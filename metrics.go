package resilientcache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the command pipeline and
// the connection lifecycle. It is safe for concurrent use.
type MetricsCollector struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	connectionState  prometheus.Gauge
	reconnectsTotal  *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	cacheAsideHits   prometheus.Counter
	cacheAsideMisses prometheus.Counter
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		commandsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilientcache_commands_total",
				Help: "Total number of cache commands by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		commandDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resilientcache_command_duration_seconds",
				Help:    "Duration of cache commands in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		connectionState: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "resilientcache_connection_state",
				Help: "Current connection state (0=disconnected, 1=connecting, 2=connected, 3=cooldown, 4=reconnecting, 5=failed)",
			},
		),
		reconnectsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilientcache_connect_attempts_total",
				Help: "Total number of connect attempts by outcome",
			},
			[]string{"outcome"},
		),
		rejectionsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilientcache_rejections_total",
				Help: "Total number of commands rejected without I/O by reason",
			},
			[]string{"operation", "reason"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilientcache_errors_total",
				Help: "Total number of connectivity faults by operation and type",
			},
			[]string{"operation", "type"},
		),
		cacheAsideHits: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "resilientcache_cache_aside_hits_total",
				Help: "Total number of GetOrSet calls served from cache",
			},
		),
		cacheAsideMisses: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "resilientcache_cache_aside_misses_total",
				Help: "Total number of GetOrSet calls that invoked the factory",
			},
		),
	}
}

// RecordCommand records one finished command.
func (mc *MetricsCollector) RecordCommand(op, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.commandsTotal.WithLabelValues(op, outcome).Inc()
	mc.commandDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordConnectionState records the current state gauge.
func (mc *MetricsCollector) RecordConnectionState(state ConnectionState) {
	if mc == nil {
		return
	}
	mc.connectionState.Set(float64(state))
}

// RecordConnectAttempt records one connect attempt outcome.
func (mc *MetricsCollector) RecordConnectAttempt(outcome string) {
	if mc == nil {
		return
	}
	mc.reconnectsTotal.WithLabelValues(outcome).Inc()
}

// RecordRejection records a command short-circuited without I/O.
func (mc *MetricsCollector) RecordRejection(op, reason string) {
	if mc == nil {
		return
	}
	mc.rejectionsTotal.WithLabelValues(op, reason).Inc()
}

// RecordError records one connectivity fault.
func (mc *MetricsCollector) RecordError(op, errType string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(op, errType).Inc()
}

// RecordCacheAside records a GetOrSet outcome.
func (mc *MetricsCollector) RecordCacheAside(hit bool) {
	if mc == nil {
		return
	}
	if hit {
		mc.cacheAsideHits.Inc()
	} else {
		mc.cacheAsideMisses.Inc()
	}
}
