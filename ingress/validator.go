// Package ingress implements the Ingress Validator (C5): shape check,
// timestamp window, signature, and PoW-integrity on every inbound
// payload, enqueuing survivors into the tick-input channel.
package ingress

import (
	"time"

	"github.com/sirupsen/logrus"

	"voxel.dev/node/protocol"
	"voxel.dev/node/transport"
)

// Buffered is a validated Chunk tagged with its arrival timestamp, the
// unit the Tick Scheduler drains (spec.md §4.5 step 5).
type Buffered struct {
	Chunk     protocol.Chunk
	ArrivedAt time.Time
}

// Now is the clock source; overridable in tests.
var Now = time.Now

// Validator drains a transport's inbox, validates each payload, and
// forwards survivors on Queue. Failures are logged and the pipeline
// continues (spec.md §7): ingress never propagates a per-message error.
type Validator struct {
	log   *logrus.Entry
	Queue chan Buffered
}

// NewValidator constructs a Validator with an unbounded (large-buffered)
// output queue, matching spec.md §5's "Ingress channel — MPSC, unbounded,
// single consumer".
func NewValidator(log *logrus.Entry) *Validator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Validator{
		log:   log.WithField("component", "ingress"),
		Queue: make(chan Buffered, 65536),
	}
}

// Run consumes inbound from in until it is closed, validating and
// enqueueing each payload. It is meant to run in its own goroutine; it
// is abortable by closing in (spec.md §5 "abort is abrupt").
func (v *Validator) Run(in <-chan transport.Inbound) {
	for item := range in {
		v.handle(item)
	}
}

// Handle validates a single inbound item, matching the per-item logic
// Run applies to every channel receive. It is exported for callers that
// dispatch inbound envelopes by type themselves (cmd/voxelnode) rather
// than handing the transport's whole inbox to Run.
func (v *Validator) Handle(item transport.Inbound) {
	v.handle(item)
}

func (v *Validator) handle(item transport.Inbound) {
	if len(item.Payload) > transport.MaxPayloadBytes {
		v.log.WithField("peer", item.Peer).Warn("oversize payload rejected at ingress")
		return
	}
	typ, payload, err := protocol.DecodeEnvelope(item.Payload)
	if err != nil {
		v.log.WithError(err).WithField("peer", item.Peer).Warn("discarding malformed payload")
		return
	}
	if typ != protocol.EnvelopeChunk {
		// InitBroadcast/InitResponse are handled by the bootstrap
		// package, not the tick pipeline.
		return
	}
	chunk, ok := payload.(protocol.Chunk)
	if !ok {
		v.log.WithField("peer", item.Peer).Warn("envelope tagged chunk but payload was not a Chunk")
		return
	}
	if err := protocol.VerifyChunk(Now(), chunk); err != nil {
		v.log.WithError(err).WithField("peer", item.Peer).Warn("rejecting invalid chunk")
		return
	}
	select {
	case v.Queue <- Buffered{Chunk: chunk, ArrivedAt: Now()}:
	default:
		v.log.Warn("ingress queue full, dropping validated chunk")
	}
}

// Drain removes and returns every currently buffered item,
// non-blockingly, for the Tick Scheduler's drain-to-exhaustion step
// (spec.md §4.7 step 1).
func (v *Validator) Drain() []Buffered {
	var out []Buffered
	for {
		select {
		case b := <-v.Queue:
			out = append(out, b)
		default:
			return out
		}
	}
}
