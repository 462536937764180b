package btree

import (
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/stream"
	"github.com/kristoffer-paulsson/angelos7/internal/trace"
)

// noRoot marks an empty tree (no root page allocated yet).
const noRoot = -1

const headerSize = 8 + 4 + 2 // rootPage + nextPage + valueSize

// Tree is a persistent B+Tree keyed by 128-bit UUID, mapping to a
// fixed-size value record, per spec.md §4.4. Page 0 of the main file is
// reserved for the tree header; data pages start at 1.
type Tree struct {
	main    *stream.VFile
	journal *stream.VFile

	valueSize       int
	maxLeafKeys     int
	maxInternalKeys int

	rootPage int64
	nextPage uint32
}

// Create formats a brand-new, empty tree across main and journal.
func Create(main, journal *stream.VFile, valueSize int) (*Tree, error) {
	t := newTree(main, journal, valueSize)
	t.rootPage = noRoot
	t.nextPage = 1
	if err := t.writeHeader(); err != nil {
		return nil, err
	}
	return t, nil
}

// Open reconstructs a Tree from its header and replays any journal records
// left behind by a crash, per spec.md §4.4's recovery contract.
func Open(main, journal *stream.VFile, valueSize int) (*Tree, error) {
	t := newTree(main, journal, valueSize)
	if err := t.readHeader(); err != nil {
		return nil, err
	}
	if err := t.replayJournal(); err != nil {
		return nil, err
	}
	return t, nil
}

func newTree(main, journal *stream.VFile, valueSize int) *Tree {
	// leaf page: 1(leaf) + 2(count) + n*(16+valueSize) <= PageSize
	maxLeaf := (angelos7.PageSize - nodeHeaderSize) / (16 + valueSize)
	// internal page: 1 + 2 + n*16 + (n+1)*4 <= PageSize
	maxInternal := (angelos7.PageSize - nodeHeaderSize - 4) / (16 + 4)
	if maxLeaf < 2 {
		maxLeaf = 2
	}
	if maxInternal < 2 {
		maxInternal = 2
	}
	return &Tree{
		main:            main,
		journal:         journal,
		valueSize:       valueSize,
		maxLeafKeys:     maxLeaf,
		maxInternalKeys: maxInternal,
	}
}

func (t *Tree) writeHeader() error {
	buf := make([]byte, angelos7.PageSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(t.rootPage))
	binary.BigEndian.PutUint32(buf[8:12], t.nextPage)
	binary.BigEndian.PutUint16(buf[12:14], uint16(t.valueSize))
	if _, err := t.main.WriteAt(buf, 0); err != nil {
		return xerrors.Errorf("btree: writing header: %w", err)
	}
	return t.main.Flush()
}

func (t *Tree) readHeader() error {
	buf := make([]byte, angelos7.PageSize)
	if _, err := t.main.ReadAt(buf, 0); err != nil {
		return xerrors.Errorf("btree: reading header: %w", err)
	}
	t.rootPage = int64(binary.BigEndian.Uint64(buf[0:8]))
	t.nextPage = binary.BigEndian.Uint32(buf[8:12])
	storedValueSize := int(binary.BigEndian.Uint16(buf[12:14]))
	if storedValueSize != t.valueSize {
		return angelos7.Newf(angelos7.KindIntegrityError, "btree: value size mismatch: header says %d, caller wants %d", storedValueSize, t.valueSize)
	}
	return nil
}

func (t *Tree) readPage(idx uint32) (*node, error) {
	buf := make([]byte, angelos7.PageSize)
	if _, err := t.main.ReadAt(buf, int64(idx)*angelos7.PageSize); err != nil {
		return nil, xerrors.Errorf("btree: reading page %d: %w", idx, err)
	}
	return decodeNode(buf, idx, t.valueSize)
}

func (t *Tree) writePage(n *node) error {
	if n.page == 0 {
		n.page = t.allocatePage()
	}
	buf := n.encode(t.valueSize)
	if _, err := t.main.WriteAt(buf, int64(n.page)*angelos7.PageSize); err != nil {
		return xerrors.Errorf("btree: writing page %d: %w", n.page, err)
	}
	return nil
}

func (t *Tree) allocatePage() uint32 {
	p := t.nextPage
	t.nextPage++
	return p
}

// Close flushes pending writes to both files. It does not checkpoint the
// journal; an unclean shutdown will still replay correctly on next Open.
func (t *Tree) Close() error {
	if err := t.main.Flush(); err != nil {
		return err
	}
	return t.journal.Flush()
}

// Checkpoint truncates the journal now that the main tree reflects every
// operation recorded in it, per spec.md §4.4.
func (t *Tree) Checkpoint() error {
	ev := trace.Checkpoint(t.main.Name)
	defer ev.Done()
	if err := t.journal.Truncate(int64Ptr(0)); err != nil {
		return err
	}
	return t.journal.Flush()
}

func int64Ptr(v int64) *int64 { return &v }
