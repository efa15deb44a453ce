// Package stats tracks request latency distributions per RPC method.
//
// Percentiles come from a T-Digest per method (bounded memory regardless of
// request count), plus exact count, sum, and max for the summary log that
// the service emits on shutdown.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// Summary is a point-in-time view of one method's latency distribution.
type Summary struct {
	Method string
	Count  int64
	Mean   time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Max    time.Duration
}

type methodStats struct {
	digest *tdigest.TDigest
	count  int64
	sum    time.Duration
	max    time.Duration
}

// Tracker records request latencies. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex // TDigest is not thread-safe
	methods map[string]*methodStats
}

// NewTracker returns an empty latency tracker.
func NewTracker() *Tracker {
	return &Tracker{methods: make(map[string]*methodStats)}
}

// Observe records one request's latency.
func (t *Tracker) Observe(method string, d time.Duration) {
	if d < 0 {
		d = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.methods[method]
	if !ok {
		m = &methodStats{
			digest: tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
		}
		t.methods[method] = m
	}

	m.digest.Add(d.Seconds(), 1)
	m.count++
	m.sum += d
	if d > m.max {
		m.max = d
	}
}

// Count returns the number of observations for a method.
func (t *Tracker) Count(method string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.methods[method]
	if !ok {
		return 0
	}
	return m.count
}

// Summaries returns a snapshot per method, sorted by method name.
func (t *Tracker) Summaries() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Summary, 0, len(t.methods))
	for method, m := range t.methods {
		out = append(out, Summary{
			Method: method,
			Count:  m.count,
			Mean:   m.sum / time.Duration(m.count),
			P50:    quantile(m.digest, 0.50),
			P95:    quantile(m.digest, 0.95),
			P99:    quantile(m.digest, 0.99),
			Max:    m.max,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

func quantile(d *tdigest.TDigest, q float64) time.Duration {
	return time.Duration(d.Quantile(q) * float64(time.Second))
}
