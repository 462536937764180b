// Package fsys implements the entry/path layer and filesystem API of
// spec.md §4.6: two B+Trees (entry-UUID → entry record, path-key-UUID →
// entry-UUID) layered over the stream registry.
package fsys

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/kristoffer-paulsson/angelos7"
)

// Entry is the directory entry record of spec.md §6.1.
type Entry struct {
	Type        angelos7.EntryType
	ID          uuid.UUID
	Parent      uuid.UUID
	Owner       uuid.UUID
	Stream      uuid.UUID
	Created     time.Time
	Modified    time.Time
	Size        uint64
	Length      uint64
	Compression angelos7.Compression
	Deleted     bool
	Name        string
	User        string
	Group       string
	Perms       uint16
}

// EntrySize is Entry's fixed on-disk size per spec.md §6.1.
const EntrySize = 1 + 16 + 16 + 16 + 16 + 8 + 8 + 8 + 8 + 4 + 1 + 256 + 32 + 16 + 2

const (
	nameFieldSize  = 256
	userFieldSize  = 32
	groupFieldSize = 16
)

// MarshalBinary encodes e into its fixed 408-byte big-endian layout.
func (e Entry) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(EntrySize)
	buf.WriteByte(byte(e.Type))
	for _, id := range []uuid.UUID{e.ID, e.Parent, e.Owner, e.Stream} {
		b, err := id.MarshalBinary()
		if err != nil {
			return nil, xerrors.Errorf("marshaling entry uuid: %w", err)
		}
		buf.Write(b)
	}
	for _, v := range []interface{}{
		e.Created.Unix(), e.Modified.Unix(), e.Size, e.Length, uint32(e.Compression),
	} {
		if err := binary.Write(buf, binary.BigEndian, v); err != nil {
			return nil, xerrors.Errorf("marshaling entry fields: %w", err)
		}
	}
	if e.Deleted {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.Write(fixedString(e.Name, nameFieldSize))
	buf.Write(fixedString(e.User, userFieldSize))
	buf.Write(fixedString(e.Group, groupFieldSize))
	if err := binary.Write(buf, binary.BigEndian, e.Perms); err != nil {
		return nil, xerrors.Errorf("marshaling entry perms: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes an Entry produced by MarshalBinary.
func (e *Entry) UnmarshalBinary(data []byte) error {
	if len(data) != EntrySize {
		return xerrors.Errorf("entry record: want %d bytes, got %d", EntrySize, len(data))
	}
	r := bytes.NewReader(data)
	typeByte, err := r.ReadByte()
	if err != nil {
		return xerrors.Errorf("unmarshaling entry type: %w", err)
	}
	e.Type = angelos7.EntryType(typeByte)

	ids := []*uuid.UUID{&e.ID, &e.Parent, &e.Owner, &e.Stream}
	for _, dst := range ids {
		var idBuf [16]byte
		if _, err := io.ReadFull(r, idBuf[:]); err != nil {
			return xerrors.Errorf("unmarshaling entry uuid: %w", err)
		}
		id, err := uuid.FromBytes(idBuf[:])
		if err != nil {
			return xerrors.Errorf("parsing entry uuid: %w", err)
		}
		*dst = id
	}

	var created, modified int64
	var compression uint32
	for _, v := range []interface{}{&created, &modified, &e.Size, &e.Length, &compression} {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return xerrors.Errorf("unmarshaling entry fields: %w", err)
		}
	}
	e.Created = time.Unix(created, 0).UTC()
	e.Modified = time.Unix(modified, 0).UTC()
	e.Compression = angelos7.Compression(compression)

	deletedByte, err := r.ReadByte()
	if err != nil {
		return xerrors.Errorf("unmarshaling entry deleted flag: %w", err)
	}
	e.Deleted = deletedByte != 0

	name := make([]byte, nameFieldSize)
	if _, err := io.ReadFull(r, name); err != nil {
		return xerrors.Errorf("unmarshaling entry name: %w", err)
	}
	e.Name = string(bytes.TrimRight(name, "\x00"))

	user := make([]byte, userFieldSize)
	if _, err := io.ReadFull(r, user); err != nil {
		return xerrors.Errorf("unmarshaling entry user: %w", err)
	}
	e.User = string(bytes.TrimRight(user, "\x00"))

	group := make([]byte, groupFieldSize)
	if _, err := io.ReadFull(r, group); err != nil {
		return xerrors.Errorf("unmarshaling entry group: %w", err)
	}
	e.Group = string(bytes.TrimRight(group, "\x00"))

	if err := binary.Read(r, binary.BigEndian, &e.Perms); err != nil {
		return xerrors.Errorf("unmarshaling entry perms: %w", err)
	}
	return nil
}

// PathRecord maps a path key (UUIDv5 of parent id + name) to the entry it
// resolves to.
type PathRecord struct {
	ID  uuid.UUID
	Key uuid.UUID
}

// PathRecordSize is PathRecord's fixed on-disk size per spec.md §6.1.
const PathRecordSize = 16 + 16

func (p PathRecord) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(PathRecordSize)
	for _, id := range []uuid.UUID{p.ID, p.Key} {
		b, err := id.MarshalBinary()
		if err != nil {
			return nil, xerrors.Errorf("marshaling path uuid: %w", err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func (p *PathRecord) UnmarshalBinary(data []byte) error {
	if len(data) != PathRecordSize {
		return xerrors.Errorf("path record: want %d bytes, got %d", PathRecordSize, len(data))
	}
	id, err := uuid.FromBytes(data[:16])
	if err != nil {
		return xerrors.Errorf("parsing path record id: %w", err)
	}
	key, err := uuid.FromBytes(data[16:32])
	if err != nil {
		return xerrors.Errorf("parsing path record key: %w", err)
	}
	p.ID = id
	p.Key = key
	return nil
}

// fixedString truncates s to at most size bytes (per spec.md §4.6's
// 256-byte name rule, generalized to every fixed string field) and
// NUL-pads the remainder.
func fixedString(s string, size int) []byte {
	out := make([]byte, size)
	b := []byte(s)
	if len(b) > size {
		b = b[:size]
	}
	copy(out, b)
	return out
}
