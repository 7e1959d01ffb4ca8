package world

import (
	"sync"
	"time"

	"voxel.dev/node/protocol"
)

// MaintenanceSpec is the per-tick re-assertion policy for one position.
type MaintenanceSpec struct {
	Duration  time.Duration
	BlockType protocol.BlockType
}

// MaintenanceEntry pairs a Position with its MaintenanceSpec, for
// Snapshot.
type MaintenanceEntry struct {
	Position protocol.Position
	Spec     MaintenanceSpec
}

// MaintenanceRegistry is the table of positions the local node
// continuously re-asserts (C9). It is process-wide shared state,
// mutated by the external API and read by the Tick Scheduler
// (spec.md §3 "Ownership"), matching the teacher's chainstate.go table
// shape but kept in-memory only — spec.md explicitly rules out a
// persistent chain, and nothing requires this table to survive restart.
type MaintenanceRegistry struct {
	mu      sync.RWMutex
	entries map[protocol.Position]MaintenanceSpec
}

// NewMaintenanceRegistry constructs an empty registry.
func NewMaintenanceRegistry() *MaintenanceRegistry {
	return &MaintenanceRegistry{entries: make(map[protocol.Position]MaintenanceSpec)}
}

// Add inserts or overwrites the maintenance spec at position.
func (r *MaintenanceRegistry) Add(position protocol.Position, spec MaintenanceSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[position] = spec
}

// Remove deletes the maintenance spec at position, if any.
func (r *MaintenanceRegistry) Remove(position protocol.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, position)
}

// Snapshot returns a point-in-time copy of the table, read once per tick
// by the Tick Scheduler before spawning mining jobs.
func (r *MaintenanceRegistry) Snapshot() []MaintenanceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MaintenanceEntry, 0, len(r.entries))
	for pos, spec := range r.entries {
		out = append(out, MaintenanceEntry{Position: pos, Spec: spec})
	}
	return out
}

// Len reports the number of maintained positions.
func (r *MaintenanceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
