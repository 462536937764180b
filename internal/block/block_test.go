package block

import (
	"testing"

	"github.com/google/uuid"
)

func TestBlockRoundTrip(t *testing.T) {
	b := NewHead(uuid.New())
	b.Next = 3
	b.Index = 0
	b.SetPayload([]byte("hello, archive"))

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got Block
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got != b {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, b)
	}
	if !got.VerifyDigest() {
		t.Fatal("VerifyDigest failed after round trip")
	}
}

func TestBlockVerifyDigestDetectsTamper(t *testing.T) {
	b := NewHead(uuid.New())
	b.SetPayload([]byte("payload"))
	b.Payload[0] ^= 0xFF
	if b.VerifyDigest() {
		t.Fatal("VerifyDigest should fail once payload is tampered after digest computation")
	}
}

func TestBlockIsHeadIsTail(t *testing.T) {
	b := NewHead(uuid.New())
	if !b.IsHead() {
		t.Fatal("NewHead block should be a head")
	}
	if !b.IsTail() {
		t.Fatal("NewHead block with Next == -1 should be a tail")
	}
	b.Next = 5
	if b.IsTail() {
		t.Fatal("block with Next != -1 should not be a tail")
	}
}
