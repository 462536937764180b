package block

import (
	"testing"

	"github.com/kristoffer-paulsson/angelos7"
)

func testPlaintext() []byte {
	p := make([]byte, angelos7.PlaintextBlockSize)
	copy(p, "plaintext block contents")
	return p
}

func TestSealUnsealRoundTrip(t *testing.T) {
	key := testKey()
	plaintext := testPlaintext()

	sealed, err := seal(&key, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := unseal(&key, sealed[:])
	if err != nil {
		t.Fatalf("unseal: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatal("unseal(seal(p)) != p")
	}
}

func TestUnsealDetectsCiphertextTamper(t *testing.T) {
	key := testKey()
	sealed, err := seal(&key, testPlaintext())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed[nonceSize] ^= 0xFF
	if _, err := unseal(&key, sealed[:]); err == nil {
		t.Fatal("unseal(tampered ciphertext) = nil error, want failure")
	}
}

func TestUnsealDetectsPaddingTamper(t *testing.T) {
	key := testKey()
	sealed, err := seal(&key, testPlaintext())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if paddingSize == 0 {
		t.Skip("no padding bytes to tamper with at this BlockSize/PlaintextBlockSize")
	}
	sealed[nonceSize+ciphertextSize] ^= 0xFF
	if _, err := unseal(&key, sealed[:]); err == nil {
		t.Fatal("unseal(tampered padding) = nil error, want failure")
	}
}

func TestUnsealWrongKeyFails(t *testing.T) {
	key := testKey()
	sealed, err := seal(&key, testPlaintext())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	var other [32]byte
	for i := range other {
		other[i] = byte(255 - i)
	}
	if _, err := unseal(&other, sealed[:]); err == nil {
		t.Fatal("unseal(wrong key) = nil error, want failure")
	}
}
