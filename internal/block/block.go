// Package block turns a host file into an array of fixed-size,
// independently authenticated-encrypted blocks, and offers random
// read/write access to them by index.
//
// The plaintext layout of one block, big-endian, mirrors the fixed-record
// structs the teacher repo reads with encoding/binary (see
// internal/squashfs's superblock):
//
//	previous int32
//	next     int32
//	index    uint32
//	stream   [16]byte
//	digest   [20]byte
//	payload  [angelos7.DataSize]byte
package block

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"io"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/kristoffer-paulsson/angelos7"
)

// Block is the plaintext (unsealed) form of one on-disk block.
type Block struct {
	Previous int32
	Next     int32
	Index    uint32
	Stream   uuid.UUID
	Digest   [20]byte
	Payload  [angelos7.DataSize]byte
}

// NewHead returns a freshly initialized head block (Previous == -1) for the
// given stream, with a zeroed payload and its digest computed over it.
func NewHead(stream uuid.UUID) Block {
	b := Block{Previous: -1, Next: -1, Index: 0, Stream: stream}
	b.Digest = sha1.Sum(b.Payload[:])
	return b
}

// SetPayload replaces the block's payload with the bytes of p and recomputes
// its digest; the remainder beyond len(p) is zero-filled.
func (b *Block) SetPayload(p []byte) {
	var buf [angelos7.DataSize]byte
	copy(buf[:], p)
	b.Payload = buf
	b.Digest = sha1.Sum(b.Payload[:])
}

// VerifyDigest reports whether the stored digest matches the payload.
func (b *Block) VerifyDigest() bool {
	return b.Digest == sha1.Sum(b.Payload[:])
}

// MarshalBinary encodes the block into its plaintext layout
// (angelos7.PlaintextBlockSize bytes).
func (b *Block) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(angelos7.PlaintextBlockSize)
	idBytes, err := b.Stream.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("marshaling stream uuid: %w", err)
	}
	for _, v := range []interface{}{
		b.Previous, b.Next, b.Index,
	} {
		if err := binary.Write(buf, binary.BigEndian, v); err != nil {
			return nil, xerrors.Errorf("marshaling block header: %w", err)
		}
	}
	buf.Write(idBytes)
	buf.Write(b.Digest[:])
	buf.Write(b.Payload[:])
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a plaintext block layout produced by MarshalBinary.
func (b *Block) UnmarshalBinary(data []byte) error {
	if len(data) != angelos7.PlaintextBlockSize {
		return xerrors.Errorf("block: want %d plaintext bytes, got %d", angelos7.PlaintextBlockSize, len(data))
	}
	r := bytes.NewReader(data)
	for _, v := range []interface{}{
		&b.Previous, &b.Next, &b.Index,
	} {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return xerrors.Errorf("unmarshaling block header: %w", err)
		}
	}
	var idBuf [16]byte
	if _, err := io.ReadFull(r, idBuf[:]); err != nil {
		return xerrors.Errorf("unmarshaling stream uuid: %w", err)
	}
	id, err := uuid.FromBytes(idBuf[:])
	if err != nil {
		return xerrors.Errorf("parsing stream uuid: %w", err)
	}
	b.Stream = id
	if _, err := io.ReadFull(r, b.Digest[:]); err != nil {
		return xerrors.Errorf("unmarshaling digest: %w", err)
	}
	if _, err := io.ReadFull(r, b.Payload[:]); err != nil {
		return xerrors.Errorf("unmarshaling payload: %w", err)
	}
	return nil
}

// Positioned pairs a Block with the device index it currently occupies.
// Block itself carries no device-position field (spec.md §6.1's plaintext
// layout only has the stream-relative Index ordinal), so callers that walk
// a chain by device position and later need to re-save or re-link those
// same blocks have to carry the position alongside them explicitly.
type Positioned struct {
	Pos   uint32
	Block Block
}

// IsHead reports whether this block is the head of its stream.
func (b *Block) IsHead() bool { return b.Previous == -1 }

// IsTail reports whether this block is the tail of its stream.
func (b *Block) IsTail() bool { return b.Next == -1 }
