// Package identity holds the node's long-term Ed25519 signing keypair
// (C1) and exposes sign/verify.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"voxel.dev/node/protocol"
)

// Identity wraps a loaded or freshly generated Ed25519 keypair.
type Identity struct {
	sk  ed25519.PrivateKey
	pub protocol.VerifyingKey
}

// VerifyingKey returns the node's public key.
func (id *Identity) VerifyingKey() protocol.VerifyingKey { return id.pub }

// Sign signs msg and returns a detached Ed25519 signature.
func (id *Identity) Sign(msg []byte) protocol.Signature {
	var out protocol.Signature
	copy(out[:], ed25519.Sign(id.sk, msg))
	return out
}

// PrivateKey exposes the raw signing key for components (mining,
// protocol.Sign) that need to produce a full Chunk.
func (id *Identity) PrivateKey() ed25519.PrivateKey { return id.sk }

func fromSeed(seed []byte) (*Identity, error) {
	if err := mustLen(seed, ed25519.SeedSize, "seed"); err != nil {
		return nil, err
	}
	sk := ed25519.NewKeyFromSeed(seed)
	var pub protocol.VerifyingKey
	copy(pub[:], sk.Public().(ed25519.PublicKey))
	return &Identity{sk: sk, pub: pub}, nil
}

func mustLen(b []byte, n int, name string) error {
	if len(b) != n {
		return fmt.Errorf("identity: %s must be %d bytes (got %d)", name, n, len(b))
	}
	return nil
}

// Ephemeral generates a fresh CSPRNG-seeded identity; it is never
// persisted. This backs the --random-key CLI flag (spec.md §6).
func Ephemeral() (*Identity, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("identity: generate ephemeral seed: %w", err)
	}
	return fromSeed(seed)
}

// LoadOrCreate loads the signing seed from path, creating it with a fresh
// CSPRNG seed (mode 0600) if absent.
func LoadOrCreate(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		var ints []int
		if err := json.Unmarshal(raw, &ints); err != nil {
			return nil, fmt.Errorf("identity: decode %s: %w", path, err)
		}
		seed := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("identity: decode %s: byte value %d out of range", path, v)
			}
			seed[i] = byte(v)
		}
		return fromSeed(seed)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}

	id, err := Ephemeral()
	if err != nil {
		return nil, err
	}
	seed := id.sk.Seed()
	if err := persist(path, seed); err != nil {
		return nil, err
	}
	return id, nil
}

func persist(path string, seed []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("identity: create %s: %w", filepath.Dir(path), err)
	}
	ints := make([]int, len(seed))
	for i, b := range seed {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return fmt.Errorf("identity: encode keystore: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", path, err)
	}
	return nil
}
