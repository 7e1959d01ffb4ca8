package identity

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateCreatesFileWithCorrectMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config", "keys.json")

	id, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("load or create: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected mode 0600, got %o", perm)
	}

	again, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if id.VerifyingKey() != again.VerifyingKey() {
		t.Fatalf("expected the persisted identity to be reloaded unchanged")
	}
}

func TestEphemeralIdentitiesDiffer(t *testing.T) {
	a, err := Ephemeral()
	if err != nil {
		t.Fatalf("ephemeral: %v", err)
	}
	b, err := Ephemeral()
	if err != nil {
		t.Fatalf("ephemeral: %v", err)
	}
	if a.VerifyingKey() == b.VerifyingKey() {
		t.Fatalf("expected two ephemeral identities to differ")
	}
}

func TestSignVerify(t *testing.T) {
	id, err := Ephemeral()
	if err != nil {
		t.Fatalf("ephemeral: %v", err)
	}
	msg := []byte("hello")
	sig := id.Sign(msg)
	pub := id.VerifyingKey()
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:]) {
		t.Fatalf("expected signature to verify")
	}
}
