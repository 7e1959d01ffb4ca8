package scheduler

import (
	"crypto/ed25519"
	"time"

	"github.com/sirupsen/logrus"

	"voxel.dev/node/ingress"
	"voxel.dev/node/mining"
	"voxel.dev/node/protocol"
	"voxel.dev/node/transport"
	"voxel.dev/node/world"
)

// Cadence is the fixed tick period (spec.md §4.7): 20 ticks/s.
const Cadence = 50 * time.Millisecond

// Now is the clock source; overridable in tests.
var Now = time.Now

// Scheduler is the single-threaded cooperative event loop (spec.md §5)
// that drains ingress, aggregates, applies the World Map mutation, runs
// the Maintenance pass, and sleeps until the next tick.
type Scheduler struct {
	Validator   *ingress.Validator
	Map         *world.Map
	Maintenance *world.MaintenanceRegistry
	Fanout      *world.Fanout
	Transport   *transport.UDP
	SK          ed25519.PrivateKey
	PubKey      protocol.VerifyingKey

	log       *logrus.Entry
	lastTick  time.Time
	curTick   time.Time
}

// New constructs a Scheduler. curTick/lastTick both start at Now() so the
// first tick's Aggregate call drops nothing spuriously.
func New(
	validator *ingress.Validator,
	m *world.Map,
	maintenance *world.MaintenanceRegistry,
	fanout *world.Fanout,
	tr *transport.UDP,
	sk ed25519.PrivateKey,
	pubKey protocol.VerifyingKey,
	log *logrus.Entry,
) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	now := Now()
	return &Scheduler{
		Validator:   validator,
		Map:         m,
		Maintenance: maintenance,
		Fanout:      fanout,
		Transport:   tr,
		SK:          sk,
		PubKey:      pubKey,
		log:         log.WithField("component", "scheduler"),
		lastTick:    now,
		curTick:     now,
	}
}

// Run executes ticks at Cadence until stop is closed. Cooperative
// suspension points occur at the map lock, broadcast sends, and mining
// budget jobs (spec.md §5); sleeping between ticks uses a simple
// drift-permitting sleep with no catch-up compensation (spec.md §4.7
// step 5).
func (s *Scheduler) Run(stop <-chan struct{}) {
	for {
		start := Now()
		select {
		case <-stop:
			return
		default:
		}
		s.Tick()
		elapsed := Now().Sub(start)
		sleep := Cadence - elapsed
		if sleep > 0 {
			select {
			case <-stop:
				return
			case <-time.After(sleep):
			}
		}
	}
}

// Tick runs exactly one cycle of the pipeline (spec.md §4.7).
func (s *Scheduler) Tick() {
	buffered := s.Validator.Drain()

	s.lastTick = s.curTick
	s.curTick = Now()

	batch := Aggregate(buffered, s.lastTick)
	if len(batch) > 0 {
		s.Map.SetBatch(batch)
		for _, e := range batch {
			s.Fanout.Emit(world.BlockUpdatePack{Position: e.Position, Entry: e.WorldEntry})
		}
	}

	s.runMaintenance()
}

// runMaintenance mines and broadcasts one chunk per maintained position,
// using budget mode with the entry's configured duration. spec.md §4.9
// specifies these jobs run inline inside the tick and the tick cannot
// advance until they complete; callers are responsible for keeping
// sum(duration_ms) well under the 50ms cadence (spec.md §9 open
// question).
func (s *Scheduler) runMaintenance() {
	entries := s.Maintenance.Snapshot()
	start := Now()
	for _, e := range entries {
		tmpl := mining.Template{
			Position:  e.Position,
			BlockType: e.Spec.BlockType,
			PubKey:    s.PubKey,
		}
		chunk, err := mining.MineForDuration(s.SK, tmpl, e.Spec.Duration)
		if err != nil {
			s.log.WithError(err).WithField("position", e.Position).Warn("maintenance mining failed")
			continue
		}
		raw, err := protocol.EncodeEnvelope(protocol.EnvelopeChunk, chunk)
		if err != nil {
			s.log.WithError(err).Warn("maintenance encode failed")
			continue
		}
		if err := s.Transport.Broadcast(raw); err != nil {
			s.log.WithError(err).Warn("maintenance broadcast failed")
		}
	}
	if overrun := Now().Sub(start); overrun > Cadence && len(entries) > 0 {
		s.log.WithField("overrun", overrun).Warn("maintenance pass exceeded tick cadence")
	}
}
