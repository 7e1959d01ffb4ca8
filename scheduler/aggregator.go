// Package scheduler implements the Tick Scheduler (C7) and the
// Aggregator (C8): a fixed-cadence loop that drains buffered validated
// proposals, accumulates per-position evidence, and applies the winning
// claims to the World Map in one atomic batch per tick.
package scheduler

import (
	"time"

	"voxel.dev/node/ingress"
	"voxel.dev/node/protocol"
	"voxel.dev/node/world"
)

// Aggregate runs the C8 algorithm over buffered, against the tick
// boundary lastTick: items that arrived before it are dropped, evidence
// is summed per (position, signer, type) via HashAdd, and the greatest
// accumulated hash wins at each position. Ties are broken deterministically
// by (pub_key, block_type) lexicographic order.
func Aggregate(buffered []ingress.Buffered, lastTick time.Time) []world.Entry {
	type accKey struct {
		position protocol.Position
		evidence protocol.EvidenceKey
	}
	totals := make(map[accKey]protocol.Hash256)
	order := make(map[protocol.Position][]protocol.EvidenceKey)

	for _, b := range buffered {
		if b.ArrivedAt.Before(lastTick) {
			continue // late arrival (spec.md §4.8 step 1)
		}
		k := accKey{
			position: b.Chunk.Data.Position,
			evidence: protocol.EvidenceKey{
				PubKey:    b.Chunk.Data.PubKey,
				BlockType: b.Chunk.Data.BlockType,
			},
		}
		if existing, ok := totals[k]; ok {
			totals[k] = protocol.HashAdd(existing, b.Chunk.Pow)
		} else {
			totals[k] = b.Chunk.Pow
			order[k.position] = append(order[k.position], k.evidence)
		}
	}

	var out []world.Entry
	for pos, keys := range order {
		var winner protocol.EvidenceKey
		var winnerHash protocol.Hash256
		have := false
		for _, k := range keys {
			h := totals[accKey{position: pos, evidence: k}]
			if !have {
				winner, winnerHash, have = k, h, true
				continue
			}
			switch h.Compare(winnerHash) {
			case 1:
				winner, winnerHash = k, h
			case 0:
				if evidenceKeyLess(k, winner) {
					winner = k
				}
			}
		}
		out = append(out, world.Entry{
			Position: pos,
			WorldEntry: protocol.WorldEntry{
				BlockType: winner.BlockType,
				PubKey:    winner.PubKey,
			},
		})
	}
	return out
}

// evidenceKeyLess is the deterministic tie-break: lexicographic order on
// (pub_key, block_type), matching spec.md §4.8 step 4's suggested
// tie-break.
func evidenceKeyLess(a, b protocol.EvidenceKey) bool {
	for i := range a.PubKey {
		if a.PubKey[i] != b.PubKey[i] {
			return a.PubKey[i] < b.PubKey[i]
		}
	}
	return a.BlockType < b.BlockType
}
