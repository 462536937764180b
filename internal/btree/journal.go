package btree

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"

	"github.com/kristoffer-paulsson/angelos7"
)

const (
	journalOpInsert byte = 1
	journalOpRemove byte = 2
)

// appendJournal writes one write-ahead record before the corresponding
// mutation is applied to the main tree, per spec.md §4.4.
func (t *Tree) appendJournal(op byte, replace bool, key Key, value []byte) error {
	if _, err := t.journal.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	rec := make([]byte, 0, 1+1+16+2+len(value))
	rec = append(rec, op)
	if replace {
		rec = append(rec, 1)
	} else {
		rec = append(rec, 0)
	}
	rec = append(rec, key[:]...)
	valueLen := make([]byte, 2)
	binary.BigEndian.PutUint16(valueLen, uint16(len(value)))
	rec = append(rec, valueLen...)
	rec = append(rec, value...)
	if _, err := t.journal.Write(rec); err != nil {
		return xerrors.Errorf("btree: appending journal record: %w", err)
	}
	return t.journal.Flush()
}

// Insert maps key to value. If key is already present, replace controls
// whether the call fails with KindDuplicateKey or overwrites it.
func (t *Tree) Insert(key Key, value []byte, replace bool) error {
	if err := t.appendJournal(journalOpInsert, replace, key, value); err != nil {
		return err
	}
	return t.insert(key, value, replace)
}

// Remove deletes key, returning its prior value and whether it was present.
func (t *Tree) Remove(key Key) ([]byte, bool, error) {
	if err := t.appendJournal(journalOpRemove, false, key, nil); err != nil {
		return nil, false, err
	}
	return t.remove(key)
}

// replayJournal re-applies every record logged since the last checkpoint,
// recovering a tree left mid-mutation by a crash. Insert and remove are both
// idempotent under re-application, so replaying a record whose mutation had
// already reached the main tree is harmless.
func (t *Tree) replayJournal() error {
	if t.journal.Length() == 0 {
		return nil
	}
	if _, err := t.journal.Seek(0, io.SeekStart); err != nil {
		return err
	}
	header := make([]byte, 1+1+16+2)
	for {
		if _, err := io.ReadFull(t.journal, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return xerrors.Errorf("btree: replaying journal: %w", err)
		}
		op := header[0]
		replace := header[1] == 1
		var key Key
		copy(key[:], header[2:18])
		valueLen := binary.BigEndian.Uint16(header[18:20])
		var value []byte
		if valueLen > 0 {
			value = make([]byte, valueLen)
			if _, err := io.ReadFull(t.journal, value); err != nil {
				return xerrors.Errorf("btree: replaying journal record value: %w", err)
			}
		}
		switch op {
		case journalOpInsert:
			if err := t.insert(key, value, replace); err != nil {
				if aerr, ok := err.(*angelos7.Error); ok && aerr.Kind == angelos7.KindDuplicateKey {
					continue
				}
				return err
			}
		case journalOpRemove:
			if _, _, err := t.remove(key); err != nil {
				return err
			}
		default:
			return xerrors.Errorf("btree: replaying journal: unknown opcode %d", op)
		}
	}
	return t.Checkpoint()
}
