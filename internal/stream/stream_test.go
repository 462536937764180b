package stream

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/block"
)

func testDevice(t *testing.T) *block.Device {
	t.Helper()
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "archive.a7")
	d, err := block.Open(path, key)
	if err != nil {
		t.Fatalf("block.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestStreamCreateAndOpen(t *testing.T) {
	dev := testDevice(t)
	id := uuid.New()

	s, err := Create(dev, id)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Identity() != id {
		t.Fatalf("Identity() = %v, want %v", s.Identity(), id)
	}
	if s.Meta().Count != 1 {
		t.Fatalf("Meta().Count = %d, want 1", s.Meta().Count)
	}

	reopened, err := Open(dev, s.Meta())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reopened.Index() != s.Index() {
		t.Fatalf("reopened Index() = %d, want %d", reopened.Index(), s.Index())
	}
}

func TestStreamCreateAt(t *testing.T) {
	dev := testDevice(t)
	id := uuid.New()

	s, err := CreateAt(dev, id, 5)
	if err != nil {
		t.Fatalf("CreateAt: %v", err)
	}
	if s.Index() != 0 {
		t.Fatalf("Index() = %d, want 0 (head ordinal)", s.Index())
	}
	if s.Meta().Begin != 5 || s.Meta().End != 5 {
		t.Fatalf("Meta() = %+v, want Begin=End=5", s.Meta())
	}
}

func TestStreamOpenEmpty(t *testing.T) {
	dev := testDevice(t)
	s, err := Open(dev, Meta{Identity: uuid.New()})
	if err != nil {
		t.Fatalf("Open(empty): %v", err)
	}
	if !s.Meta().Empty() {
		t.Fatal("Meta().Empty() = false, want true")
	}
}

func TestStreamExtendAndTraverse(t *testing.T) {
	dev := testDevice(t)
	s, err := Create(dev, uuid.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := s.Extend()
		if err != nil {
			t.Fatalf("Extend #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("Extend #%d returned false, want true", i)
		}
	}
	if s.Meta().Count != 4 {
		t.Fatalf("Meta().Count = %d, want 4", s.Meta().Count)
	}

	if err := s.Wind(0); err != nil {
		t.Fatalf("Wind(0): %v", err)
	}
	if ok, err := s.Extend(); err != nil || ok {
		t.Fatalf("Extend() on non-tail = (%v, %v), want (false, nil)", ok, err)
	}

	if err := s.Wind(3); err != nil {
		t.Fatalf("Wind(3): %v", err)
	}
	if s.Index() != 3 {
		t.Fatalf("Index() after Wind(3) = %d, want 3", s.Index())
	}
}

func TestStreamWindOutOfBoundsRestoresPosition(t *testing.T) {
	dev := testDevice(t)
	s, err := Create(dev, uuid.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if err := s.Wind(0); err != nil {
		t.Fatalf("Wind(0): %v", err)
	}

	err = s.Wind(99)
	if !errors.Is(err, angelos7.ErrOutOfBounds) {
		t.Fatalf("Wind(99) = %v, want KindOutOfBounds", err)
	}
	if s.Index() != 0 {
		t.Fatalf("Index() after failed Wind = %d, want 0 (unchanged)", s.Index())
	}
}

func TestStreamChangedAndSave(t *testing.T) {
	dev := testDevice(t)
	s, err := Create(dev, uuid.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s.SetCurrentPayload([]byte("hello"))
	idx := uint32(s.Meta().Begin)

	reloaded, err := dev.LoadBlock(idx)
	if err != nil {
		t.Fatalf("LoadBlock before Save: %v", err)
	}
	if string(reloaded.Payload[:5]) == "hello" {
		t.Fatal("payload visible on disk before Save")
	}

	if err := s.Save(false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded, err = dev.LoadBlock(idx)
	if err != nil {
		t.Fatalf("LoadBlock after Save: %v", err)
	}
	if string(reloaded.Payload[:5]) != "hello" {
		t.Fatalf("payload after Save = %q, want %q", reloaded.Payload[:5], "hello")
	}

	if err := s.Save(false); err != nil {
		t.Fatalf("second Save (clean, no-op): %v", err)
	}
}

func TestStreamCurrentPayloadRoundTrip(t *testing.T) {
	dev := testDevice(t)
	s, err := Create(dev, uuid.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	payload := make([]byte, angelos7.DataSize)
	copy(payload, "stream payload contents")
	s.SetCurrentPayload(payload)

	got := s.CurrentPayload()
	if string(got[:len("stream payload contents")]) != "stream payload contents" {
		t.Fatalf("CurrentPayload() = %q, want %q", got[:32], "stream payload contents")
	}
}

func TestStreamTruncateShrinksAndRecycles(t *testing.T) {
	dev := testDevice(t)
	s, err := Create(dev, uuid.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	full := make([]byte, angelos7.DataSize)
	for i := range full {
		full[i] = 0xAB
	}
	s.SetCurrentPayload(full)
	if _, err := s.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	s.SetCurrentPayload(full)
	if _, err := s.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	s.SetCurrentPayload(full)
	s.meta.Length = uint64(angelos7.DataSize) * 3

	var recycled []block.Positioned
	truncateLen := uint64(angelos7.DataSize) + 10
	if err := s.Truncate(truncateLen, func(bs []block.Positioned) error {
		recycled = append(recycled, bs...)
		return nil
	}); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	if len(recycled) != 1 {
		t.Fatalf("recycled %d blocks, want 1", len(recycled))
	}
	if s.Meta().Count != 2 {
		t.Fatalf("Meta().Count after Truncate = %d, want 2", s.Meta().Count)
	}
	if s.Meta().Length != truncateLen {
		t.Fatalf("Meta().Length = %d, want %d", s.Meta().Length, truncateLen)
	}
	if !s.current.IsTail() {
		t.Fatal("current block should be the new tail after Truncate")
	}

	payload := s.CurrentPayload()
	for i := 10; i < angelos7.DataSize; i++ {
		if payload[i] != 0 {
			t.Fatalf("payload[%d] = %#x, want 0 (zero-filled past truncate point)", i, payload[i])
		}
	}
	for i := 0; i < 10; i++ {
		if payload[i] != 0xAB {
			t.Fatalf("payload[%d] = %#x, want 0xAB (retained)", i, payload[i])
		}
	}
}

func TestStreamTruncateRejectsGrowth(t *testing.T) {
	dev := testDevice(t)
	s, err := Create(dev, uuid.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	err = s.Truncate(100, nil)
	if !errors.Is(err, angelos7.ErrValueError) {
		t.Fatalf("Truncate(grow) = %v, want KindValueError", err)
	}
}

func TestStreamAdoptTail(t *testing.T) {
	dev := testDevice(t)
	s, err := Create(dev, uuid.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newIdx, err := dev.NewBlock()
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	headPos := uint32(s.Meta().Begin)
	tail, err := dev.LoadBlock(headPos)
	if err != nil {
		t.Fatalf("LoadBlock: %v", err)
	}
	tail.Next = int32(newIdx)
	if err := dev.SaveBlock(headPos, tail); err != nil {
		t.Fatalf("SaveBlock: %v", err)
	}
	spliced := block.NewHead(s.Identity())
	spliced.Index = 1
	spliced.Previous = int32(headPos)
	if err := dev.SaveBlock(newIdx, spliced); err != nil {
		t.Fatalf("SaveBlock spliced: %v", err)
	}

	if err := s.AdoptTail(int32(newIdx), 1); err != nil {
		t.Fatalf("AdoptTail: %v", err)
	}
	if s.Meta().End != int32(newIdx) {
		t.Fatalf("Meta().End = %d, want %d", s.Meta().End, newIdx)
	}
	if s.Meta().Count != 2 {
		t.Fatalf("Meta().Count = %d, want 2", s.Meta().Count)
	}
}

func TestStreamForwardEachRestoresPosition(t *testing.T) {
	dev := testDevice(t)
	s, err := Create(dev, uuid.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.SetCurrentPayload([]byte("block0"))
	if _, err := s.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	s.SetCurrentPayload([]byte("block1"))
	if _, err := s.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	s.SetCurrentPayload([]byte("block2"))
	if err := s.Save(false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := s.Wind(1); err != nil {
		t.Fatalf("Wind(1): %v", err)
	}

	var seen []string
	if err := s.ForwardEach(func(index uint32, payload []byte) bool {
		seen = append(seen, string(payload[:6]))
		return true
	}); err != nil {
		t.Fatalf("ForwardEach: %v", err)
	}

	want := []string{"block0", "block1", "block2"}
	for i, w := range want {
		if seen[i] != w {
			t.Fatalf("seen[%d] = %q, want %q", i, seen[i], w)
		}
	}
	if s.Index() != 1 {
		t.Fatalf("Index() after ForwardEach = %d, want 1 (restored)", s.Index())
	}
}

func TestStreamForwardEachEarlyExit(t *testing.T) {
	dev := testDevice(t)
	s, err := Create(dev, uuid.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if _, err := s.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}

	count := 0
	if err := s.ForwardEach(func(index uint32, payload []byte) bool {
		count++
		return count < 2
	}); err != nil {
		t.Fatalf("ForwardEach: %v", err)
	}
	if count != 2 {
		t.Fatalf("ForwardEach visited %d blocks, want 2 (early exit)", count)
	}
}
