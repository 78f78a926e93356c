package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	sweep        SweepStats
}

// SweepStats accumulates breach sweep outcomes since process start.
type SweepStats struct {
	Runs                 int64         `json:"runs"`
	Failures             int64         `json:"failures"`
	ResponseBreaches     int64         `json:"response_breaches"`
	ResolutionBreaches   int64         `json:"resolution_breaches"`
	Warnings             int64         `json:"warnings"`
	NotificationFailures int64         `json:"notification_failures"`
	LastRunAt            time.Time     `json:"last_run_at"`
	LastRunDuration      time.Duration `json:"last_run_duration_ns"`
}

// SweepSample is one sweep run as reported to Metrics.
type SweepSample struct {
	ResponseBreaches     int
	ResolutionBreaches   int
	Warnings             int
	NotificationFailures int
	Failed               bool
	StartedAt            time.Time
	Duration             time.Duration
}

// Snapshot is a copy of all counters.
type Snapshot struct {
	Requests map[string]int64 `json:"requests"`
	Errors   map[string]int64 `json:"errors"`
	Sweep    SweepStats       `json:"sla_sweep"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
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

// RecordSweep folds a sweep run into the totals.
func (m *Metrics) RecordSweep(sample SweepSample) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep.Runs++
	if sample.Failed {
		m.sweep.Failures++
	}
	m.sweep.ResponseBreaches += int64(sample.ResponseBreaches)
	m.sweep.ResolutionBreaches += int64(sample.ResolutionBreaches)
	m.sweep.Warnings += int64(sample.Warnings)
	m.sweep.NotificationFailures += int64(sample.NotificationFailures)
	m.sweep.LastRunAt = sample.StartedAt
	m.sweep.LastRunDuration = sample.Duration
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Requests: make(map[string]int64, len(m.requestCount)),
		Errors:   make(map[string]int64, len(m.errorCount)),
		Sweep:    m.sweep,
	}
	for k, v := range m.requestCount {
		snap.Requests[k] = v
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
