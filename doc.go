// Package angelos7 implements an encrypted, single-file virtual archive: a
// stream-structured block store that exposes a POSIX-like hierarchical
// filesystem inside one host file.
//
// The engine is layered bottom-up: a block device turns the host file into
// an array of authenticated-encrypted fixed-size blocks (internal/block); a
// stream chains blocks into growable, seekable byte sequences identified by
// a UUID (internal/stream); a B+Tree registry persists an ordered UUID-keyed
// map inside a pair of streams (internal/btree); a stream registry tracks
// every live stream plus a trash chain of recycled blocks
// (internal/registry); and an entry/path layer resolves POSIX paths to file
// entries and their payload streams (internal/fsys).
//
// This package holds the pieces shared across all of those layers: the
// fixed on-disk parameters, the error taxonomy, cancellable-context helpers,
// and the archive-wide Stats view.
package angelos7
