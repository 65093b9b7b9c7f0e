package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	totalDuration map[string]time.Duration
	warningCount  map[string]int64
}

// Counter is one labelled value in a snapshot.
type Counter struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// RouteLatency is the mean latency of one route key.
type RouteLatency struct {
	Key    string  `json:"key"`
	MeanMS float64 `json:"mean_ms"`
}

// Snapshot is a point-in-time copy of every counter, sorted by key.
type Snapshot struct {
	Requests []Counter      `json:"requests"`
	Errors   []Counter      `json:"errors"`
	Warnings []Counter      `json:"warnings"`
	Latency  []RouteLatency `json:"latency"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		totalDuration: make(map[string]time.Duration),
		warningCount:  make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.totalDuration[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordWarning counts a best-effort step that failed.
func (m *Metrics) RecordWarning(step string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warningCount[step]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Requests: []Counter{}, Errors: []Counter{}, Warnings: []Counter{}, Latency: []RouteLatency{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Requests: counters(m.requestCount),
		Errors:   counters(m.errorCount),
		Warnings: counters(m.warningCount),
		Latency:  make([]RouteLatency, 0, len(m.totalDuration)),
	}
	for key, total := range m.totalDuration {
		n := m.requestCount[key]
		if n == 0 {
			continue
		}
		mean := float64(total) / float64(n) / float64(time.Millisecond)
		snap.Latency = append(snap.Latency, RouteLatency{Key: key, MeanMS: mean})
	}
	sort.Slice(snap.Latency, func(i, j int) bool { return snap.Latency[i].Key < snap.Latency[j].Key })
	return snap
}

func counters(in map[string]int64) []Counter {
	out := make([]Counter, 0, len(in))
	for key, n := range in {
		out = append(out, Counter{Key: key, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].Key, out[j].Key) < 0 })
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
