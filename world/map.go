// Package world holds the process-wide shared state mutated by the Tick
// Scheduler: the World Map (C6), the Maintenance Registry (C9), and the
// Update Fanout (C10).
package world

import (
	"sync"

	"voxel.dev/node/protocol"
)

// Entry pairs a Position with the WorldEntry stored there, for Snapshot
// and ReplaceAll.
type Entry struct {
	Position protocol.Position
	WorldEntry protocol.WorldEntry
}

// Map is the in-memory coord->(type,signer) mapping. It is mutated by
// the Tick Scheduler (SetBatch) and by bootstrap (ReplaceAll), always
// under its exclusive lock; the map never deletes entries on its own.
type Map struct {
	mu      sync.RWMutex
	entries map[protocol.Position]protocol.WorldEntry
}

// NewMap constructs an empty World Map.
func NewMap() *Map {
	return &Map{entries: make(map[protocol.Position]protocol.WorldEntry)}
}

// Set overwrites or inserts the entry at position.
func (m *Map) Set(position protocol.Position, entry protocol.WorldEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[position] = entry
}

// SetBatch applies every (position, entry) pair atomically under a
// single lock acquisition, matching spec.md §4.8 step 5 and the §5
// "applied atomically under the World Map lock as a single batch"
// ordering guarantee.
func (m *Map) SetBatch(batch []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range batch {
		m.entries[e.Position] = e.WorldEntry
	}
}

// Get returns the entry at position, if any.
func (m *Map) Get(position protocol.Position) (protocol.WorldEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[position]
	return e, ok
}

// Snapshot returns a point-in-time copy of the full map, for external
// readers (spec.md §4.6).
func (m *Map) Snapshot() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for pos, e := range m.entries {
		out = append(out, Entry{Position: pos, WorldEntry: e})
	}
	return out
}

// ReplaceAll discards the current map contents and replaces them with
// entries, for bootstrap from a peer (spec.md §4.6, §4.11).
func (m *Map) ReplaceAll(entries []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := make(map[protocol.Position]protocol.WorldEntry, len(entries))
	for _, e := range entries {
		fresh[e.Position] = e.WorldEntry
	}
	m.entries = fresh
}

// Len reports the number of positions currently held.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
