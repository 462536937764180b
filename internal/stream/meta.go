// Package stream chains blocks into growable, seekable, truncatable byte
// sequences identified by a UUID, and exposes a byte-oriented virtual file
// object over them.
package stream

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/kristoffer-paulsson/angelos7"
)

// Meta is the persistent stream metadata record: identity, head/tail block
// indices, block count, used byte length, and compression codec.
//
// The record's fields sum to 38 bytes, but spec.md §6.1 fixes the record at
// 42 bytes; the 4-byte gap is carried here as an explicit reserved field
// rather than silently dropped, so the on-disk layout matches the declared
// total exactly.
type Meta struct {
	Identity    uuid.UUID
	Begin       int32
	End         int32
	Count       uint32
	Length      uint64
	Compression angelos7.Compression
	reserved    [4]byte
}

// MetaSize is the fixed on-disk size of a Meta record.
const MetaSize = 16 + 4 + 4 + 4 + 8 + 2 + 4

// Empty reports whether the stream has no blocks yet.
func (m Meta) Empty() bool { return m.Count == 0 }

// MarshalBinary encodes m into its fixed 42-byte big-endian layout.
func (m Meta) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(MetaSize)
	idBytes, err := m.Identity.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("marshaling stream identity: %w", err)
	}
	buf.Write(idBytes)
	for _, v := range []interface{}{m.Begin, m.End, m.Count, m.Length, uint16(m.Compression)} {
		if err := binary.Write(buf, binary.BigEndian, v); err != nil {
			return nil, xerrors.Errorf("marshaling stream meta: %w", err)
		}
	}
	buf.Write(m.reserved[:])
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a Meta record produced by MarshalBinary.
func (m *Meta) UnmarshalBinary(data []byte) error {
	if len(data) != MetaSize {
		return xerrors.Errorf("stream meta: want %d bytes, got %d", MetaSize, len(data))
	}
	id, err := uuid.FromBytes(data[:16])
	if err != nil {
		return xerrors.Errorf("parsing stream identity: %w", err)
	}
	m.Identity = id
	r := bytes.NewReader(data[16:])
	var compression uint16
	for _, v := range []interface{}{&m.Begin, &m.End, &m.Count, &m.Length, &compression} {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return xerrors.Errorf("unmarshaling stream meta: %w", err)
		}
	}
	m.Compression = angelos7.Compression(compression)
	if _, err := io.ReadFull(r, m.reserved[:]); err != nil {
		return xerrors.Errorf("unmarshaling stream meta reserved bytes: %w", err)
	}
	return nil
}
