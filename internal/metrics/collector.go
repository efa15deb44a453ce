// Package metrics provides Prometheus metrics for officebridge.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// --- Service identity and lifecycle ---
var (
	bridgeInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "officebridge_info",
			Help: "Information about the bridge (value always 1)",
		},
		[]string{"version", "api_version", "executable"},
	)

	bridgeState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "officebridge_state",
			Help: "Service lifecycle state (0=starting 1=ready 2=serving 3=stopping 4=stopped)",
		},
	)

	bridgeUptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "officebridge_uptime_seconds",
			Help: "Seconds since the service started",
		},
	)
)

// --- Worker ---
var (
	workerUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "officebridge_worker_up",
			Help: "Whether the office worker process is alive (1) or not (0)",
		},
	)

	workerStartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "officebridge_worker_starts_total",
			Help: "Total worker process launches",
		},
	)

	workerExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "officebridge_worker_exits_total",
			Help: "Worker process exits by exit code",
		},
		[]string{"exit_code"},
	)

	bridgeConnectRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "officebridge_connect_retries_total",
			Help: "Connection attempts to the worker that had to be retried",
		},
	)
)

// --- Requests ---
var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "officebridge_requests_total",
			Help: "RPC requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "officebridge_request_duration_seconds",
			Help:    "RPC request latency by method",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)

	requestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "officebridge_requests_in_flight",
			Help: "RPC requests currently being served",
		},
	)

	requestTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "officebridge_request_timeouts_total",
			Help: "Requests that exceeded the conversion timeout",
		},
	)
)

// Request outcomes for the requests_total outcome label.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// CollectorConfig identifies the running service in the info metric.
type CollectorConfig struct {
	Version    string
	APIVersion string
	Executable string
}

// Collector manages all Prometheus metrics for the bridge.
type Collector struct {
	startTime time.Time

	mu          sync.Mutex
	workerExits map[int]int64
}

// NewCollector creates a collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		startTime:   time.Now(),
		workerExits: make(map[int]int64),
	}

	registry.MustRegister(
		bridgeInfo,
		bridgeState,
		bridgeUptimeSeconds,

		workerUp,
		workerStartsTotal,
		workerExitsTotal,
		bridgeConnectRetriesTotal,

		requestsTotal,
		requestDuration,
		requestsInFlight,
		requestTimeoutsTotal,
	)

	bridgeInfo.WithLabelValues(cfg.Version, cfg.APIVersion, cfg.Executable).Set(1)
	return c
}

// SetState publishes the lifecycle state and refreshes uptime.
func (c *Collector) SetState(state int) {
	bridgeState.Set(float64(state))
	bridgeUptimeSeconds.Set(time.Since(c.startTime).Seconds())
}

// WorkerStarted records a worker launch.
func (c *Collector) WorkerStarted() {
	workerStartsTotal.Inc()
	workerUp.Set(1)
}

// WorkerExited records a worker exit with its code.
func (c *Collector) WorkerExited(exitCode int) {
	workerUp.Set(0)
	workerExitsTotal.WithLabelValues(strconv.Itoa(exitCode)).Inc()

	c.mu.Lock()
	c.workerExits[exitCode]++
	c.mu.Unlock()
}

// ConnectRetried records one failed connection attempt to the worker.
func (c *Collector) ConnectRetried() {
	bridgeConnectRetriesTotal.Inc()
}

// RequestStarted marks a request in flight.
func (c *Collector) RequestStarted() {
	requestsInFlight.Inc()
}

// RequestFinished records a completed request.
func (c *Collector) RequestFinished(method, outcome string, d time.Duration) {
	requestsInFlight.Dec()
	requestsTotal.WithLabelValues(method, outcome).Inc()
	requestDuration.WithLabelValues(method).Observe(d.Seconds())
	if outcome == OutcomeTimeout {
		requestTimeoutsTotal.Inc()
	}
}

// WorkerExitCounts returns exits seen so far, keyed by exit code.
func (c *Collector) WorkerExitCounts() map[int]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]int64, len(c.workerExits))
	for code, n := range c.workerExits {
		out[code] = n
	}
	return out
}
