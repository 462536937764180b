package main

import (
	"os"

	"golang.org/x/xerrors"
)

// loadKey reads exactly 32 bytes from path, the raw symmetric key archive7
// seals every block with (spec.md §4.1 names the key as caller-supplied;
// this module leaves key management, e.g. deriving it from a passphrase, to
// the caller).
func loadKey(path string) ([32]byte, error) {
	var key [32]byte
	b, err := os.ReadFile(path)
	if err != nil {
		return key, xerrors.Errorf("reading key file %s: %w", path, err)
	}
	if len(b) != 32 {
		return key, xerrors.Errorf("key file %s: want 32 bytes, got %d", path, len(b))
	}
	copy(key[:], b)
	return key, nil
}
