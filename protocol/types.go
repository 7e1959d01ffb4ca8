// Package protocol defines the wire types of the explanation protocol and
// the canonical encoding they are hashed and signed over.
package protocol

import (
	"crypto/ed25519"
	"fmt"
	"time"
	"unicode/utf8"
)

// Position is an integer 3D coordinate. Equality and hashing (as a map
// key) are component-wise.
type Position struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
	Z int64 `json:"z"`
}

// BlockType is an opaque, UTF-8, length-bounded label. It is normalized
// (via Normalize) before it is ever hashed or compared.
type BlockType string

// MaxBlockTypeBytes bounds the on-wire length of a BlockType label.
const MaxBlockTypeBytes = 256

// Normalize canonicalizes a BlockType for hashing/comparison purposes.
// Leading/trailing whitespace is trimmed; the value is otherwise taken
// verbatim so distinct-but-visually-similar labels remain distinct.
func (t BlockType) Normalize() BlockType {
	return BlockType(trimSpace(string(t)))
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// ValidateBlockType enforces the length/encoding bound on a BlockType.
func ValidateBlockType(t BlockType) error {
	n := t.Normalize()
	if len(n) == 0 {
		return fmt.Errorf("protocol: block_type is empty")
	}
	if len(n) > MaxBlockTypeBytes {
		return fmt.Errorf("protocol: block_type exceeds %d bytes", MaxBlockTypeBytes)
	}
	if !utf8.ValidString(string(n)) {
		return fmt.Errorf("protocol: block_type is not valid UTF-8")
	}
	return nil
}

// Hash256 is a 32-byte BLAKE3 digest, treated as a big-endian unsigned
// 256-bit integer for ordering and hash_add.
type Hash256 [32]byte

// Compare returns -1, 0, or 1 comparing a and b under big-endian
// lexicographic byte order, which is the same order as unsigned integer
// order on the represented 256-bit value.
func (a Hash256) Compare(b Hash256) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// LessOrEqual reports whether a <= b under big-endian lexicographic order.
func (a Hash256) LessOrEqual(b Hash256) bool {
	return a.Compare(b) <= 0
}

// VerifyingKey is an Ed25519 public key.
type VerifyingKey [ed25519.PublicKeySize]byte

// Signature is a detached Ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// ChunkData is the signed payload of a Chunk.
type ChunkData struct {
	Version      string    `json:"version"`
	PrevHash     Hash256   `json:"prev_hash"`
	Position     Position  `json:"position"`
	BlockType    BlockType `json:"block_type"`
	Timestamp    time.Time `json:"timestamp"`
	PubKey       VerifyingKey `json:"pub_key"`
	ExternalSalt string    `json:"external_salt"`
	Nonce        uint64    `json:"nonce"`
}

// Wire version tags. The tag disambiguates the two PrevHash
// interpretations described in SPEC_FULL.md: target-mode chunks carry the
// mining target they were produced against; budget-mode chunks carry a
// fixed placeholder because there is no target to record.
const (
	VersionTarget = "v1-target"
	VersionBudget = "v1-budget"
)

// BudgetModePlaceholder is the fixed PrevHash value budget-mode chunks
// carry; it has no semantic meaning beyond "this chunk used budget mode".
var BudgetModePlaceholder = Hash256{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// Chunk is the broadcast unit: a signed, PoW-stamped explanation.
type Chunk struct {
	Signature Signature `json:"signature"`
	Pow       Hash256   `json:"pow"`
	Data      ChunkData `json:"data"`
}

// EvidenceKey identifies a single signer asserting a single type at a
// single position.
type EvidenceKey struct {
	PubKey    VerifyingKey
	BlockType BlockType
}

// WorldEntry is the value stored in the World Map at a Position.
type WorldEntry struct {
	BlockType BlockType    `json:"block_type"`
	PubKey    VerifyingKey `json:"pub_key"`
}

// InitBroadcast is sent by a joining node to discover bootstrap peers.
type InitBroadcast struct {
	ListenOnly bool         `json:"listen_only"`
	APIPort    uint16       `json:"api_port"`
	PubKey     VerifyingKey `json:"pub_key"`
}

// InitResponse is sent by a respondent to an InitBroadcast.
type InitResponse struct {
	HostPort   string `json:"host_port"`
	ListenOnly bool   `json:"listen_only"`
}
