package mining

import (
	"crypto/ed25519"
	"testing"
	"time"

	"voxel.dev/node/protocol"
)

func testTemplate(t *testing.T, pub ed25519.PublicKey) Template {
	t.Helper()
	var vk protocol.VerifyingKey
	copy(vk[:], pub)
	return Template{
		Position:     protocol.Position{X: 1, Y: 2, Z: 3},
		BlockType:    "stone",
		PubKey:       vk,
		ExternalSalt: "salt",
	}
}

func TestMineToTargetProducesValidChunk(t *testing.T) {
	pub, sk, _ := ed25519.GenerateKey(nil)
	tmpl := testTemplate(t, pub)

	// A loose target (top byte zero is ~1/256 chance per attempt) keeps
	// the test fast while still exercising the nonce loop.
	target := protocol.Hash256{}
	for i := 1; i < len(target); i++ {
		target[i] = 0xff
	}

	c, err := MineToTarget(sk, tmpl, target)
	if err != nil {
		t.Fatalf("mine to target: %v", err)
	}
	if !protocol.VerifyPow(c) {
		t.Fatalf("expected pow to verify")
	}
	if !protocol.VerifySignature(c) {
		t.Fatalf("expected signature to verify")
	}
	if !c.Pow.LessOrEqual(target) {
		t.Fatalf("pow %x exceeds target %x", c.Pow, target)
	}
	if c.Data.Version != protocol.VersionTarget {
		t.Fatalf("expected version=%q, got %q", protocol.VersionTarget, c.Data.Version)
	}
	if c.Data.PrevHash != target {
		t.Fatalf("expected prev_hash to carry the target")
	}
}

func TestMineForDurationTerminatesAndTracksMinimum(t *testing.T) {
	pub, sk, _ := ed25519.GenerateKey(nil)
	tmpl := testTemplate(t, pub)

	start := time.Unix(1_700_000_000, 0)
	calls := 0
	Now = func() time.Time {
		calls++
		// Advance time only every few calls so several nonces are tried
		// before the budget elapses.
		return start.Add(time.Duration(calls/4) * time.Millisecond)
	}
	defer func() { Now = time.Now }()

	c, err := MineForDuration(sk, tmpl, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("mine for duration: %v", err)
	}
	if !protocol.VerifyPow(c) {
		t.Fatalf("expected pow to verify")
	}
	if !protocol.VerifySignature(c) {
		t.Fatalf("expected signature to verify")
	}
	if c.Data.Version != protocol.VersionBudget {
		t.Fatalf("expected version=%q, got %q", protocol.VersionBudget, c.Data.Version)
	}
	if c.Data.PrevHash != protocol.BudgetModePlaceholder {
		t.Fatalf("expected budget-mode placeholder prev_hash")
	}

	// The fake clock reaches the 5ms budget at the check after nonce 9, so
	// nonces 0..9 are tried, all within the same second; the returned
	// chunk must carry the smallest pow among them.
	if c.Data.Nonce > 9 {
		t.Fatalf("expected best nonce within 0..9, got %d", c.Data.Nonce)
	}
	for n := uint64(0); n <= 9; n++ {
		d := c.Data
		d.Nonce = n
		pow, err := protocol.ComputePow(d)
		if err != nil {
			t.Fatalf("compute pow: %v", err)
		}
		if pow.Compare(c.Pow) < 0 {
			t.Fatalf("nonce %d has pow %x below returned pow %x", n, pow, c.Pow)
		}
	}
}

func TestMineForDurationZeroBudgetSingleAttempt(t *testing.T) {
	pub, sk, _ := ed25519.GenerateKey(nil)
	tmpl := testTemplate(t, pub)

	c, err := MineForDuration(sk, tmpl, 0)
	if err != nil {
		t.Fatalf("mine for duration: %v", err)
	}
	if c.Data.Nonce != 0 {
		t.Fatalf("expected a single attempt at nonce 0, got nonce=%d", c.Data.Nonce)
	}
}
