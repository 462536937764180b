package block

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/xerrors"

	"github.com/kristoffer-paulsson/angelos7"
)

// sealedLayout: [nonce][ciphertext+tag][zero padding], filling BlockSize.
//
//	nonceSize      = chacha20poly1305.NonceSize (12)
//	ciphertextSize = PlaintextBlockSize + chacha20poly1305.Overhead (16)
//	padding        = BlockSize - nonceSize - ciphertextSize
const (
	nonceSize      = chacha20poly1305.NonceSize
	overheadSize   = chacha20poly1305.Overhead
	ciphertextSize = angelos7.PlaintextBlockSize + overheadSize
	paddingSize    = angelos7.BlockSize - nonceSize - ciphertextSize
)

func init() {
	if paddingSize < 0 {
		panic("block: BlockSize too small for sealed plaintext envelope")
	}
}

// seal authenticated-encrypts plaintext (exactly PlaintextBlockSize bytes)
// with key, using a fresh random nonce, and returns a BlockSize-byte sealed
// envelope ready to write to disk. The trailing padding bytes are fixed at
// zero and passed as AEAD associated data, so they are covered by the tag
// even though they carry no ciphertext of their own: flipping any of them
// is caught by unseal exactly like flipping a ciphertext byte.
func seal(key *[32]byte, plaintext []byte) ([angelos7.BlockSize]byte, error) {
	var out [angelos7.BlockSize]byte
	if len(plaintext) != angelos7.PlaintextBlockSize {
		return out, xerrors.Errorf("seal: want %d plaintext bytes, got %d", angelos7.PlaintextBlockSize, len(plaintext))
	}
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return out, xerrors.Errorf("constructing aead: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return out, xerrors.Errorf("drawing nonce: %w", err)
	}
	padding := out[nonceSize+ciphertextSize:]
	ciphertext := aead.Seal(nil, nonce, plaintext, padding)

	copy(out[:nonceSize], nonce)
	copy(out[nonceSize:nonceSize+len(ciphertext)], ciphertext)
	// trailing paddingSize bytes stay zero, already authenticated as AAD above
	return out, nil
}

// unseal authenticated-decrypts a BlockSize-byte sealed envelope, returning
// the PlaintextBlockSize-byte plaintext. Any tampering with the envelope,
// including its trailing padding, causes this to fail.
func unseal(key *[32]byte, sealed []byte) ([]byte, error) {
	if len(sealed) != angelos7.BlockSize {
		return nil, xerrors.Errorf("unseal: want %d sealed bytes, got %d", angelos7.BlockSize, len(sealed))
	}
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, xerrors.Errorf("constructing aead: %w", err)
	}
	nonce := sealed[:nonceSize]
	ciphertext := sealed[nonceSize : nonceSize+ciphertextSize]
	padding := sealed[nonceSize+ciphertextSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, padding)
	if err != nil {
		return nil, angelos7.Wrap(angelos7.KindIntegrityError, err, "seal verification failed")
	}
	return plaintext, nil
}
