package registry

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/block"
	"github.com/kristoffer-paulsson/angelos7/internal/btree"
	"github.com/kristoffer-paulsson/angelos7/internal/stream"
)

func newTestRegistry(t *testing.T) (*Registry, *block.Device) {
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

	indexStream, err := stream.CreateAt(dev, uuid.New(), angelos7.BlockStreamIndexHead)
	if err != nil {
		t.Fatalf("CreateAt index: %v", err)
	}
	trashStream, err := stream.CreateAt(dev, uuid.New(), angelos7.BlockTrashHead)
	if err != nil {
		t.Fatalf("CreateAt trash: %v", err)
	}
	journalStream, err := stream.CreateAt(dev, uuid.New(), angelos7.BlockJournalHead)
	if err != nil {
		t.Fatalf("CreateAt journal: %v", err)
	}

	mode, err := stream.ParseMode("r+")
	if err != nil {
		t.Fatalf("ParseMode: %v", err)
	}
	indexVFile, err := stream.NewVFile("<index>", indexStream, mode, nil)
	if err != nil {
		t.Fatalf("NewVFile index: %v", err)
	}
	journalVFile, err := stream.NewVFile("<journal>", journalStream, mode, nil)
	if err != nil {
		t.Fatalf("NewVFile journal: %v", err)
	}

	tree, err := btree.Create(indexVFile, journalVFile, stream.MetaSize)
	if err != nil {
		t.Fatalf("btree.Create: %v", err)
	}

	return New(tree, dev, trashStream), dev
}

func TestRegistryRegisterAndSearch(t *testing.T) {
	r, dev := newTestRegistry(t)

	id := uuid.New()
	s, err := stream.Create(dev, id)
	if err != nil {
		t.Fatalf("stream.Create: %v", err)
	}
	s.SetCurrentPayload([]byte("payload"))
	if err := s.Save(false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := r.Register(s); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, found, err := r.Search(id)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !found {
		t.Fatal("Search: not found, want found")
	}
	if got.Identity != id {
		t.Fatalf("Search().Identity = %v, want %v", got.Identity, id)
	}
	if got.Count != s.Meta().Count {
		t.Fatalf("Search().Count = %d, want %d", got.Count, s.Meta().Count)
	}
}

func TestRegistrySearchMissing(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, found, err := r.Search(uuid.New())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if found {
		t.Fatal("Search(unregistered) found = true, want false")
	}
}

func TestRegistryUpdate(t *testing.T) {
	r, dev := newTestRegistry(t)

	id := uuid.New()
	s, err := stream.Create(dev, id)
	if err != nil {
		t.Fatalf("stream.Create: %v", err)
	}
	if err := r.Register(s); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := s.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if err := r.Update(s); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, found, err := r.Search(id)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !found {
		t.Fatal("Search after Update: not found")
	}
	if got.Count != 2 {
		t.Fatalf("Search().Count after Update = %d, want 2", got.Count)
	}
}

func TestRegistryUnregisterMissing(t *testing.T) {
	r, _ := newTestRegistry(t)
	err := r.Unregister(uuid.New())
	var aerr *angelos7.Error
	if !errors.As(err, &aerr) || aerr.Kind != angelos7.KindNotFound {
		t.Fatalf("Unregister(unregistered) = %v, want KindNotFound", err)
	}
}

func TestRegistryUnregisterRecyclesChain(t *testing.T) {
	r, dev := newTestRegistry(t)

	id := uuid.New()
	s, err := stream.Create(dev, id)
	if err != nil {
		t.Fatalf("stream.Create: %v", err)
	}
	if _, err := s.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if _, err := s.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if err := r.Register(s); err != nil {
		t.Fatalf("Register: %v", err)
	}

	trashCountBefore := r.trash.Meta().Count

	if err := r.Unregister(id); err != nil {
		t.Fatalf("Unregister: %v", err)
	}

	_, found, err := r.Search(id)
	if err != nil {
		t.Fatalf("Search after Unregister: %v", err)
	}
	if found {
		t.Fatal("Search after Unregister: found = true, want false")
	}

	if got, want := r.trash.Meta().Count, trashCountBefore+3; got != want {
		t.Fatalf("trash Count after Unregister = %d, want %d", got, want)
	}
}

func TestRegistryRecycleBlocksEmpty(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.RecycleBlocks(nil); err != nil {
		t.Fatalf("RecycleBlocks(nil): %v", err)
	}
}
