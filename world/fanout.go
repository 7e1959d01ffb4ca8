package world

import "voxel.dev/node/protocol"

// BlockUpdatePack is one position's mutation in a given tick, emitted to
// external observers (C10).
type BlockUpdatePack struct {
	Position protocol.Position
	Entry    protocol.WorldEntry
}

// fanoutCapacity bounds the channel so a single slow/absent observer
// cannot block the tick; the fanout is lossy by contract (spec.md
// §4.10) — once full, the oldest pending update is dropped to make room
// for the newest, matching the "newest-wins" requirement.
const fanoutCapacity = 1024

// Fanout is a lossy, newest-wins channel of BlockUpdatePack events for
// consumption by external observers. It never participates in core
// correctness (spec.md §4.10): observers that miss events must re-read
// the map snapshot.
type Fanout struct {
	ch chan BlockUpdatePack
}

// NewFanout constructs an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{ch: make(chan BlockUpdatePack, fanoutCapacity)}
}

// Emit publishes an update, dropping the oldest buffered update if the
// channel is full rather than blocking the Tick Scheduler.
func (f *Fanout) Emit(update BlockUpdatePack) {
	for {
		select {
		case f.ch <- update:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// Drain removes and returns every currently buffered update, for
// external API endpoints that greedily drain the fanout (spec.md §5).
func (f *Fanout) Drain() []BlockUpdatePack {
	var out []BlockUpdatePack
	for {
		select {
		case u := <-f.ch:
			out = append(out, u)
		default:
			return out
		}
	}
}
