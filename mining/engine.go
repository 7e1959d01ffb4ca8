// Package mining implements the PoW Engine (C3): mining a Chunk either to
// a difficulty target or within a wall-clock time budget.
package mining

import (
	"crypto/ed25519"
	"time"

	"voxel.dev/node/protocol"
)

// Template is the set of fields the caller supplies; Timestamp and Nonce
// are filled in by the engine on every attempt.
type Template struct {
	Position     protocol.Position
	BlockType    protocol.BlockType
	PubKey       protocol.VerifyingKey
	ExternalSalt string
}

// Now is the clock source; overridable in tests.
var Now = time.Now

// MineToTarget repeatedly increments nonce, starting at 0, within a fresh
// ChunkData built from tmpl until pow <= target under Hash256's
// lexicographic order, re-timestamping on every attempt. The loop
// terminates only when the inequality holds; re-timestamping is
// acceptable because PoW verification only requires pow == hash(data),
// never timestamp constancy across attempts (spec.md §4.3).
func MineToTarget(sk ed25519.PrivateKey, tmpl Template, target protocol.Hash256) (protocol.Chunk, error) {
	data := protocol.ChunkData{
		Version:      protocol.VersionTarget,
		PrevHash:     target,
		Position:     tmpl.Position,
		BlockType:    tmpl.BlockType,
		PubKey:       tmpl.PubKey,
		ExternalSalt: tmpl.ExternalSalt,
		Nonce:        0,
	}
	for {
		data.Timestamp = Now().UTC()
		pow, err := protocol.ComputePow(data)
		if err != nil {
			return protocol.Chunk{}, err
		}
		if pow.LessOrEqual(target) {
			return protocol.Sign(sk, data)
		}
		data.Nonce++
	}
}

// MineForDuration mines for at least delta, tracking the smallest pow
// seen, and returns the signed Chunk producing that minimum. Termination
// is guaranteed by the wall-clock check; nonce strictly increases.
// Budget-mode chunks carry protocol.BudgetModePlaceholder in PrevHash
// since there is no target to record.
func MineForDuration(sk ed25519.PrivateKey, tmpl Template, delta time.Duration) (protocol.Chunk, error) {
	data := protocol.ChunkData{
		Version:      protocol.VersionBudget,
		PrevHash:     protocol.BudgetModePlaceholder,
		Position:     tmpl.Position,
		BlockType:    tmpl.BlockType,
		PubKey:       tmpl.PubKey,
		ExternalSalt: tmpl.ExternalSalt,
		Nonce:        0,
	}

	start := Now()
	var bestData protocol.ChunkData
	var bestPow protocol.Hash256
	haveBest := false

	for {
		data.Timestamp = Now().UTC()
		pow, err := protocol.ComputePow(data)
		if err != nil {
			return protocol.Chunk{}, err
		}
		if !haveBest || pow.Compare(bestPow) < 0 {
			bestPow = pow
			bestData = data
			haveBest = true
		}
		if Now().Sub(start) >= delta {
			break
		}
		data.Nonce++
	}
	return protocol.Sign(sk, bestData)
}
