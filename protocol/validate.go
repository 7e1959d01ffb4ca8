package protocol

import (
	"time"
)

// FreshnessWindow is the only protocol timeout: a Chunk is rejected if
// its timestamp is further than this from "now" in either direction.
const FreshnessWindow = 2 * time.Minute

// MaxPayloadBytes is the ceiling enforced at ingress before any decode
// is attempted.
const MaxPayloadBytes = 1 << 20 // 1 MiB

// CheckTimestamp reports whether ts is within FreshnessWindow of now.
// The boundary is inclusive: exactly FreshnessWindow is accepted.
func CheckTimestamp(now, ts time.Time) error {
	delta := now.Sub(ts)
	if delta < 0 {
		delta = -delta
	}
	if delta > FreshnessWindow {
		return newError(ErrStaleTimestamp, "timestamp outside freshness window")
	}
	return nil
}

// VerifyChunk runs the full C5 ingress-integrity pipeline on an
// already-decoded Chunk: timestamp window, signature, PoW integrity. It
// does not check pow against a target — that is a sender-side
// responsibility for target-mode chunks (spec.md §4.5).
func VerifyChunk(now time.Time, c Chunk) error {
	if err := ValidateBlockType(c.Data.BlockType); err != nil {
		return newError(ErrBadBlockType, err.Error())
	}
	if err := CheckTimestamp(now, c.Data.Timestamp); err != nil {
		return err
	}
	if !VerifySignature(c) {
		return newError(ErrBadSignature, "signature does not verify against data.pub_key")
	}
	if !VerifyPow(c) {
		return newError(ErrBadPow, "pow does not match recomputed hash of data")
	}
	return nil
}
