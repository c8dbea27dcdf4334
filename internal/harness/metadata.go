package harness

import "sync"

// Well-known run metadata keys.
const (
	MetaRunID    = "run_id"
	MetaTestplan = "testplan"
)

// Metadata is the process-wide run metadata store. The primary replaces
// it wholesale at run-start and broadcasts the same values to agents;
// it is never mutated in place. Readers before the first replacement
// (an agent emitting telemetry ahead of propagation) see empty values.
type Metadata struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMetadata creates an empty metadata store.
func NewMetadata() *Metadata {
	return &Metadata{values: map[string]string{}}
}

// Replace swaps in a new metadata set. The input map is copied.
func (m *Metadata) Replace(values map[string]string) {
	next := make(map[string]string, len(values))
	for k, v := range values {
		next[k] = v
	}
	m.mu.Lock()
	m.values = next
	m.mu.Unlock()
}

// Get returns the value for key, or "" if absent.
func (m *Metadata) Get(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key]
}

// Snapshot returns a copy of the current metadata set.
func (m *Metadata) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
