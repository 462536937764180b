package header

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/block"
)

func newTestDevice(t *testing.T) *block.Device {
	t.Helper()
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "archive.a7")
	dev, err := block.Open(path, key)
	if err != nil {
		t.Fatalf("block.Open: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestHeaderBootstrapAndLoad(t *testing.T) {
	dev := newTestDevice(t)
	owner := uuid.New()

	record, streams, err := Bootstrap(dev, angelos7.HeaderFields{
		Owner: owner,
		Title: "bootstrap test",
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if record.Owner != owner {
		t.Fatalf("Bootstrap() record.Owner = %v, want %v", record.Owner, owner)
	}
	if record.Title != "bootstrap test" {
		t.Fatalf("Bootstrap() record.Title = %q, want %q", record.Title, "bootstrap test")
	}
	if streams.Index == nil || streams.Trash == nil || streams.Journal == nil {
		t.Fatal("Bootstrap() left a nil internal stream slot")
	}
	if streams.Entries == nil || streams.EntriesJournal == nil || streams.Paths == nil || streams.PathsJournal == nil {
		t.Fatal("Bootstrap() left a nil filesystem stream slot")
	}

	if streams.Index.Index() != 0 {
		t.Fatalf("Index stream head ordinal = %d, want 0", streams.Index.Index())
	}
	if streams.Trash.Index() != 0 {
		t.Fatalf("Trash stream head ordinal = %d, want 0", streams.Trash.Index())
	}
	if streams.Journal.Index() != 0 {
		t.Fatalf("Journal stream head ordinal = %d, want 0", streams.Journal.Index())
	}
	if streams.Index.Meta().Begin != int32(angelos7.BlockStreamIndexHead) {
		t.Fatalf("Index stream head device block = %d, want %d", streams.Index.Meta().Begin, angelos7.BlockStreamIndexHead)
	}
	if streams.Trash.Meta().Begin != int32(angelos7.BlockTrashHead) {
		t.Fatalf("Trash stream head device block = %d, want %d", streams.Trash.Meta().Begin, angelos7.BlockTrashHead)
	}
	if streams.Journal.Meta().Begin != int32(angelos7.BlockJournalHead) {
		t.Fatalf("Journal stream head device block = %d, want %d", streams.Journal.Meta().Begin, angelos7.BlockJournalHead)
	}

	loadedRecord, loadedStreams, err := Load(dev)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loadedRecord.ID != record.ID {
		t.Fatalf("Load() record.ID = %v, want %v", loadedRecord.ID, record.ID)
	}
	if loadedRecord.Owner != owner {
		t.Fatalf("Load() record.Owner = %v, want %v", loadedRecord.Owner, owner)
	}
	if loadedStreams.Entries.Identity() != streams.Entries.Identity() {
		t.Fatalf("Load() Entries identity = %v, want %v", loadedStreams.Entries.Identity(), streams.Entries.Identity())
	}
}

func TestHeaderFlushPersistsStreamGrowth(t *testing.T) {
	dev := newTestDevice(t)
	record, streams, err := Bootstrap(dev, angelos7.HeaderFields{Title: "flush test"})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if _, err := streams.Entries.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if err := Flush(dev, record, streams); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	_, reloaded, err := Load(dev)
	if err != nil {
		t.Fatalf("Load after Flush: %v", err)
	}
	if reloaded.Entries.Meta().Count != 2 {
		t.Fatalf("reloaded Entries.Meta().Count = %d, want 2", reloaded.Entries.Meta().Count)
	}
}

func TestHeaderRecordRoundTrip(t *testing.T) {
	r := Record{
		Major:   angelos7.HeaderVersionMajor,
		Minor:   angelos7.HeaderVersionMinor,
		ID:      uuid.New(),
		Owner:   uuid.New(),
		Domain:  uuid.New(),
		Node:    uuid.New(),
		Title:   "round trip",
	}
	data, err := r.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var got Record
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.ID != r.ID || got.Owner != r.Owner || got.Title != r.Title {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, r)
	}
}

func TestHeaderRecordBadMagic(t *testing.T) {
	r := Record{ID: uuid.New()}
	data, err := r.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	data[0] ^= 0xFF
	var got Record
	err = got.UnmarshalBinary(data)
	var aerr *angelos7.Error
	if !errors.As(err, &aerr) || aerr.Kind != angelos7.KindInvalidFormat {
		t.Fatalf("UnmarshalBinary(bad magic) = %v, want KindInvalidFormat", err)
	}
}
