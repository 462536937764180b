// Package header implements the bootstrap bookkeeping of spec.md §4.7:
// the reserved blocks 0-7, the three internal streams (index, trash,
// journal) whose metadata is concatenated into block 0's payload, and the
// "archive7" magic/version record at the front of it.
package header

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/orcaman/writerseeker"
	"golang.org/x/xerrors"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/block"
	"github.com/kristoffer-paulsson/angelos7/internal/stream"
)

// Record is the archive header written at the front of block 0's payload.
type Record struct {
	Major   uint16
	Minor   uint16
	ID      uuid.UUID
	Owner   uuid.UUID
	Domain  uuid.UUID
	Node    uuid.UUID
	Created time.Time
	Title   string
}

// recordSize is Record's fixed encoded size: magic(8) + major(2) + minor(2)
// + 4 UUIDs(64) + created(8) + title(256).
const recordSize = 8 + 2 + 2 + 16*4 + 8 + 256

// MarshalBinary encodes r into its fixed on-disk layout.
func (r Record) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(recordSize)
	buf.WriteString(angelos7.HeaderMagic)
	for _, v := range []interface{}{r.Major, r.Minor} {
		if err := binary.Write(buf, binary.BigEndian, v); err != nil {
			return nil, xerrors.Errorf("marshaling header version: %w", err)
		}
	}
	for _, id := range []uuid.UUID{r.ID, r.Owner, r.Domain, r.Node} {
		b, err := id.MarshalBinary()
		if err != nil {
			return nil, xerrors.Errorf("marshaling header uuid: %w", err)
		}
		buf.Write(b)
	}
	if err := binary.Write(buf, binary.BigEndian, r.Created.Unix()); err != nil {
		return nil, xerrors.Errorf("marshaling header timestamp: %w", err)
	}
	title := make([]byte, angelos7.MaxNameBytes)
	copy(title, r.Title)
	buf.Write(title)
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a Record produced by MarshalBinary. A magic
// mismatch fails with KindInvalidFormat.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != recordSize {
		return xerrors.Errorf("header record: want %d bytes, got %d", recordSize, len(data))
	}
	if string(data[:8]) != angelos7.HeaderMagic {
		return angelos7.Newf(angelos7.KindInvalidFormat, "bad magic %q", data[:8])
	}
	rd := bytes.NewReader(data[8:])
	for _, v := range []interface{}{&r.Major, &r.Minor} {
		if err := binary.Read(rd, binary.BigEndian, v); err != nil {
			return xerrors.Errorf("unmarshaling header version: %w", err)
		}
	}
	uuids := make([]*uuid.UUID, 4)
	uuids[0], uuids[1], uuids[2], uuids[3] = &r.ID, &r.Owner, &r.Domain, &r.Node
	for _, dst := range uuids {
		var idBuf [16]byte
		if _, err := io.ReadFull(rd, idBuf[:]); err != nil {
			return xerrors.Errorf("unmarshaling header uuid: %w", err)
		}
		id, err := uuid.FromBytes(idBuf[:])
		if err != nil {
			return xerrors.Errorf("parsing header uuid: %w", err)
		}
		*dst = id
	}
	var createdUnix int64
	if err := binary.Read(rd, binary.BigEndian, &createdUnix); err != nil {
		return xerrors.Errorf("unmarshaling header timestamp: %w", err)
	}
	r.Created = time.Unix(createdUnix, 0).UTC()
	title := make([]byte, angelos7.MaxNameBytes)
	if _, err := io.ReadFull(rd, title); err != nil {
		return xerrors.Errorf("unmarshaling header title: %w", err)
	}
	r.Title = string(bytes.TrimRight(title, "\x00"))
	return nil
}

// slotCount is the number of stream metadata records concatenated into
// block 0: the three reserved-slot internal streams (index, trash, journal)
// plus the four freshly-allocated streams the filesystem layer's two
// registries are built over (entries, entries-journal, paths,
// paths-journal), per spec.md §4.7 and SPEC_FULL.md §4.6's expansion of it.
// Storing all seven here, rather than only the three reserved ones, lets
// Open rediscover the filesystem streams directly instead of needing a
// registry lookup to find the registry's own backing store.
const slotCount = 7

// internalBlockSlots are the reserved head-block indices for the first
// three slots (index, trash, journal); the remaining four slots are
// allocated fresh and carry no fixed block index.
var internalBlockSlots = [3]uint32{angelos7.BlockStreamIndexHead, angelos7.BlockTrashHead, angelos7.BlockJournalHead}

// Streams holds every stream handle bootstrapped or reopened from block 0,
// in the order they are concatenated there.
type Streams struct {
	Index          *stream.Stream
	Trash          *stream.Stream
	Journal        *stream.Stream
	Entries        *stream.Stream
	EntriesJournal *stream.Stream
	Paths          *stream.Stream
	PathsJournal   *stream.Stream
}

func (s *Streams) slots() [slotCount]*stream.Stream {
	return [slotCount]*stream.Stream{s.Index, s.Trash, s.Journal, s.Entries, s.EntriesJournal, s.Paths, s.PathsJournal}
}

func (s *Streams) setSlots(v [slotCount]*stream.Stream) {
	s.Index, s.Trash, s.Journal = v[0], v[1], v[2]
	s.Entries, s.EntriesJournal, s.Paths, s.PathsJournal = v[3], v[4], v[5], v[6]
}

// Bootstrap formats a brand-new archive's reserved blocks: it claims the
// three internal streams' reserved head blocks (slots 5-7), allocates the
// four filesystem-layer streams fresh, writes the header record plus all
// seven streams' concatenated metadata into block 0, and returns the
// resulting handles.
func Bootstrap(dev *block.Device, fields angelos7.HeaderFields) (Record, Streams, error) {
	var slots [slotCount]*stream.Stream
	var metas [slotCount]stream.Meta

	for i := 0; i < 3; i++ {
		s, err := stream.CreateAt(dev, uuid.New(), internalBlockSlots[i])
		if err != nil {
			return Record{}, Streams{}, xerrors.Errorf("bootstrapping internal stream %d: %w", i, err)
		}
		slots[i] = s
		metas[i] = s.Meta()
	}
	for i := 3; i < slotCount; i++ {
		s, err := stream.Create(dev, uuid.New())
		if err != nil {
			return Record{}, Streams{}, xerrors.Errorf("bootstrapping filesystem stream %d: %w", i, err)
		}
		slots[i] = s
		metas[i] = s.Meta()
	}

	record := Record{
		Major:   angelos7.HeaderVersionMajor,
		Minor:   angelos7.HeaderVersionMinor,
		ID:      uuid.New(),
		Owner:   fields.Owner,
		Domain:  fields.Domain,
		Node:    fields.Node,
		Created: time.Now().UTC(),
		Title:   fields.Title,
	}

	if err := writeBlockZero(dev, record, metas); err != nil {
		return Record{}, Streams{}, err
	}
	var streams Streams
	streams.setSlots(slots)
	return record, streams, nil
}

// Load reads block 0, verifies the magic, and reconstructs all seven
// streams from their serialized metadata.
func Load(dev *block.Device) (Record, Streams, error) {
	var slots [slotCount]*stream.Stream

	b, err := dev.LoadBlock(angelos7.BlockHeader)
	if err != nil {
		return Record{}, Streams{}, err
	}
	payload := b.Payload[:]

	var record Record
	if err := record.UnmarshalBinary(payload[:recordSize]); err != nil {
		return Record{}, Streams{}, err
	}

	off := recordSize
	for i := 0; i < slotCount; i++ {
		var meta stream.Meta
		if err := meta.UnmarshalBinary(payload[off : off+stream.MetaSize]); err != nil {
			return Record{}, Streams{}, xerrors.Errorf("decoding stream slot %d metadata: %w", i, err)
		}
		off += stream.MetaSize
		s, err := stream.Open(dev, meta)
		if err != nil {
			return Record{}, Streams{}, xerrors.Errorf("opening stream slot %d: %w", i, err)
		}
		slots[i] = s
	}
	var streams Streams
	streams.setSlots(slots)
	return record, streams, nil
}

// Flush re-serializes record and every stream's current metadata into
// block 0. It must be called after every change to any stream's metadata
// (extend, truncate, registration) so a reopen sees current state.
func Flush(dev *block.Device, record Record, streams Streams) error {
	slots := streams.slots()
	var metas [slotCount]stream.Meta
	for i, s := range slots {
		metas[i] = s.Meta()
	}
	return writeBlockZero(dev, record, metas)
}

func writeBlockZero(dev *block.Device, record Record, metas [slotCount]stream.Meta) error {
	ws := &writerseeker.WriterSeeker{}
	recordBytes, err := record.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := ws.Write(recordBytes); err != nil {
		return xerrors.Errorf("assembling block 0: %w", err)
	}
	for _, m := range metas {
		metaBytes, err := m.MarshalBinary()
		if err != nil {
			return err
		}
		if _, err := ws.Write(metaBytes); err != nil {
			return xerrors.Errorf("assembling block 0: %w", err)
		}
	}

	payload, err := io.ReadAll(ws.Reader())
	if err != nil {
		return xerrors.Errorf("reading assembled block 0 payload: %w", err)
	}
	if len(payload) > angelos7.DataSize {
		return xerrors.Errorf("block 0 payload %d bytes exceeds DataSize %d", len(payload), angelos7.DataSize)
	}

	b, err := dev.LoadBlock(angelos7.BlockHeader)
	if err != nil {
		return err
	}
	b.SetPayload(payload)
	return dev.SaveBlock(angelos7.BlockHeader, b)
}
