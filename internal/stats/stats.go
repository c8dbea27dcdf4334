// Package stats is the statistics collaborator for the telemetry
// recorders: an in-process aggregator of request counts, latency
// percentiles, per-endpoint entries, and error occurrences, refreshed
// continuously by the host and read by recorders and gauge callbacks.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// EntryKey identifies one endpoint entry.
type EntryKey struct {
	Name   string
	Method string
}

// ErrorKey identifies one (endpoint, error type) row in the error table.
type ErrorKey struct {
	Name   string
	Method string
	Error  string
}

// Aggregator records per-request metrics in a thread-safe manner and
// serves read-only snapshots to telemetry recorders.
type Aggregator struct {
	mu        sync.Mutex
	total     *entryState
	entries   map[EntryKey]*entryState
	errors    map[ErrorKey]int64
	userCount int
	start     time.Time
}

type entryState struct {
	hist      *hdrhistogram.Histogram
	requests  int64
	failures  int64
	sumMs     float64
	minMs     float64
	maxMs     float64
}

// Snapshot is a read-only view of one entry (or the aggregate total).
type Snapshot struct {
	Name        string
	Method      string
	NumRequests int64
	NumFailures int64
	AvgMs       float64
	MinMs       float64
	MaxMs       float64
	P50Ms       float64
	P95Ms       float64
	P99Ms       float64
	RPS         float64
	FPS         float64
}

// ErrorSnapshot is one row of the error table.
type ErrorSnapshot struct {
	Name        string
	Method      string
	Error       string
	Occurrences int64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		total:   newEntryState(),
		entries: make(map[EntryKey]*entryState),
		errors:  make(map[ErrorKey]int64),
		start:   time.Now(),
	}
}

func newEntryState() *entryState {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return &entryState{hist: hdrhistogram.New(1, 60_000_000, 3)}
}

// Reset clears all recorded state for a new run.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total = newEntryState()
	a.entries = make(map[EntryKey]*entryState)
	a.errors = make(map[ErrorKey]int64)
	a.userCount = 0
	a.start = time.Now()
}

// Record adds one completed request. A non-empty errText marks the
// request failed and feeds the error table.
func (a *Aggregator) Record(key EntryKey, durationMs float64, errText string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.entries[key]
	if !ok {
		entry = newEntryState()
		a.entries[key] = entry
	}
	entry.record(durationMs, errText != "")
	a.total.record(durationMs, errText != "")

	if errText != "" {
		a.errors[ErrorKey{Name: key.Name, Method: key.Method, Error: errText}]++
	}
}

// SetUserCount updates the number of currently active simulated users.
func (a *Aggregator) SetUserCount(n int) {
	a.mu.Lock()
	a.userCount = n
	a.mu.Unlock()
}

// UserCount returns the number of currently active simulated users.
func (a *Aggregator) UserCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userCount
}

// Total returns the aggregate snapshot across all endpoints.
func (a *Aggregator) Total() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total.snapshot("", "", time.Since(a.start))
}

// Entries returns one snapshot per endpoint, ordered by name then method.
func (a *Aggregator) Entries() []Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	elapsed := time.Since(a.start)
	out := make([]Snapshot, 0, len(a.entries))
	for key, entry := range a.entries {
		out = append(out, entry.snapshot(key.Name, key.Method, elapsed))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Errors returns the error table, ordered by endpoint then error text.
func (a *Aggregator) Errors() []ErrorSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]ErrorSnapshot, 0, len(a.errors))
	for key, count := range a.errors {
		out = append(out, ErrorSnapshot{Name: key.Name, Method: key.Method, Error: key.Error, Occurrences: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Error < out[j].Error
	})
	return out
}

func (e *entryState) record(durationMs float64, failed bool) {
	if durationMs > 0 {
		us := int64(durationMs * 1000)
		if us < e.hist.LowestTrackableValue() {
			us = e.hist.LowestTrackableValue()
		}
		if us > e.hist.HighestTrackableValue() {
			us = e.hist.HighestTrackableValue()
		}
		_ = e.hist.RecordValue(us)
	}
	e.sumMs += durationMs

	if e.minMs == 0 || durationMs < e.minMs {
		e.minMs = durationMs
	}
	if durationMs > e.maxMs {
		e.maxMs = durationMs
	}

	e.requests++
	if failed {
		e.failures++
	}
}

func (e *entryState) snapshot(name, method string, elapsed time.Duration) Snapshot {
	snap := Snapshot{
		Name:        name,
		Method:      method,
		NumRequests: e.requests,
		NumFailures: e.failures,
		MinMs:       e.minMs,
		MaxMs:       e.maxMs,
	}
	if e.requests > 0 {
		snap.AvgMs = e.sumMs / float64(e.requests)
	}
	if e.hist.TotalCount() > 0 {
		snap.P50Ms = float64(e.hist.ValueAtQuantile(50)) / 1000
		snap.P95Ms = float64(e.hist.ValueAtQuantile(95)) / 1000
		snap.P99Ms = float64(e.hist.ValueAtQuantile(99)) / 1000
	}
	if elapsed > 0 {
		snap.RPS = float64(e.requests) / elapsed.Seconds()
		snap.FPS = float64(e.failures) / elapsed.Seconds()
	}
	return snap
}
