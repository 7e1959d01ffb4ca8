package protocol

import (
	"crypto/ed25519"
	"testing"
	"time"
)

func testChunkData(t *testing.T, pub ed25519.PublicKey) ChunkData {
	t.Helper()
	var vk VerifyingKey
	copy(vk[:], pub)
	return ChunkData{
		Version:      VersionTarget,
		PrevHash:     Hash256{0xff},
		Position:     Position{X: 1, Y: 2, Z: 3},
		BlockType:    "stone",
		Timestamp:    time.Now().UTC().Truncate(time.Second),
		PubKey:       vk,
		ExternalSalt: "salt",
		Nonce:        0,
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, sk, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	data := testChunkData(t, pub)

	c, err := Sign(sk, data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !VerifyPow(c) {
		t.Fatalf("expected pow to verify")
	}
	if !VerifySignature(c) {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifySignatureWrongKeyFails(t *testing.T) {
	pub, sk, _ := ed25519.GenerateKey(nil)
	other, _, _ := ed25519.GenerateKey(nil)
	data := testChunkData(t, pub)
	c, err := Sign(sk, data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	var wrong VerifyingKey
	copy(wrong[:], other)
	c.Data.PubKey = wrong
	if VerifySignature(c) {
		t.Fatalf("expected signature verification to fail against a different key")
	}
}

func TestEncodeDecodeChunkRoundTrip(t *testing.T) {
	pub, sk, _ := ed25519.GenerateKey(nil)
	data := testChunkData(t, pub)
	c, err := Sign(sk, data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	raw, err := EncodeChunk(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeChunk(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != c {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, c)
	}
}

func TestCanonicalBytesDistinguishFields(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	base := testChunkData(t, pub)

	variants := []func(d ChunkData) ChunkData{
		func(d ChunkData) ChunkData { d.Nonce++; return d },
		func(d ChunkData) ChunkData { d.Position.X++; return d },
		func(d ChunkData) ChunkData { d.BlockType = "dirt"; return d },
		func(d ChunkData) ChunkData { d.ExternalSalt = "other"; return d },
		func(d ChunkData) ChunkData { d.Timestamp = d.Timestamp.Add(time.Second); return d },
	}

	baseBytes, err := CanonicalBytes(base)
	if err != nil {
		t.Fatalf("canonical bytes: %v", err)
	}
	for i, mutate := range variants {
		mutated := mutate(base)
		b, err := CanonicalBytes(mutated)
		if err != nil {
			t.Fatalf("variant %d: %v", i, err)
		}
		if string(b) == string(baseBytes) {
			t.Fatalf("variant %d: expected canonical bytes to differ", i)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	pub, sk, _ := ed25519.GenerateKey(nil)
	data := testChunkData(t, pub)
	c, err := Sign(sk, data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	raw, err := EncodeEnvelope(EnvelopeChunk, c)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	typ, payload, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if typ != EnvelopeChunk {
		t.Fatalf("expected chunk envelope, got %q", typ)
	}
	got, ok := payload.(Chunk)
	if !ok {
		t.Fatalf("expected Chunk payload, got %T", payload)
	}
	if got != c {
		t.Fatalf("envelope round trip mismatch")
	}
}

func TestHashAddCommutativeAssociative(t *testing.T) {
	a := Hash256{0: 0x01}
	b := Hash256{31: 0xff}
	c := Hash256{15: 0x7f}

	if HashAdd(a, b) != HashAdd(b, a) {
		t.Fatalf("hash_add not commutative")
	}
	left := HashAdd(HashAdd(a, b), c)
	right := HashAdd(a, HashAdd(b, c))
	if left != right {
		t.Fatalf("hash_add not associative")
	}
}

func TestHashAddWrapsOnOverflow(t *testing.T) {
	max := Hash256{}
	for i := range max {
		max[i] = 0xff
	}
	one := Hash256{31: 0x01}
	got := HashAdd(max, one)
	if got != (Hash256{}) {
		t.Fatalf("expected wraparound to zero, got %x", got)
	}
}

func TestHash256LessOrEqual(t *testing.T) {
	small := Hash256{31: 0x01}
	big := Hash256{31: 0x02}
	if !small.LessOrEqual(big) {
		t.Fatalf("expected small <= big")
	}
	if !small.LessOrEqual(small) {
		t.Fatalf("expected small <= small")
	}
	if big.LessOrEqual(small) {
		t.Fatalf("expected big > small")
	}
}
