package stream

import (
	"github.com/google/uuid"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/block"
)

// Stream is a growable, doubly-linked chain of blocks identified by a UUID.
// It holds the metadata record, the single "current block" loaded from
// disk, the device index that block was loaded from or last saved to, and
// a dirty flag, mirroring the state spec.md §4.2 names.
//
// current.Index is the block's ordinal within the stream (0 at the head,
// spec.md §3/§6.1); it has nothing to do with where the block lives on the
// device. pos is that device position, tracked separately so Save/Next/
// Previous/Extend know where to read and write.
type Stream struct {
	dev     *block.Device
	meta    Meta
	current block.Block
	pos     uint32
	dirty   bool
}

// Create allocates a fresh head block for a new stream with the given
// identity and returns a Stream positioned on it.
func Create(dev *block.Device, identity uuid.UUID) (*Stream, error) {
	idx, err := dev.NewBlock()
	if err != nil {
		return nil, err
	}
	head := block.NewHead(identity)
	if err := dev.SaveBlock(idx, head); err != nil {
		return nil, err
	}
	return &Stream{
		dev: dev,
		meta: Meta{
			Identity: identity,
			Begin:    int32(idx),
			End:      int32(idx),
			Count:    1,
			Length:   0,
		},
		current: head,
		pos:     idx,
	}, nil
}

// CreateAt claims an already-existing reserved block (written blank by
// block.Device's initial setup) as the head of a new stream, rather than
// allocating a fresh block at end-of-file. Used for the three internal
// streams bootstrapped at fixed slots 5-7 (see spec.md §4.7).
func CreateAt(dev *block.Device, identity uuid.UUID, idx uint32) (*Stream, error) {
	b, err := dev.LoadBlock(idx)
	if err != nil {
		return nil, err
	}
	b.Stream = identity
	b.Index = 0
	if err := dev.SaveBlock(idx, b); err != nil {
		return nil, err
	}
	return &Stream{
		dev: dev,
		meta: Meta{
			Identity: identity,
			Begin:    int32(idx),
			End:      int32(idx),
			Count:    1,
			Length:   0,
		},
		current: b,
		pos:     idx,
	}, nil
}

// Open positions a Stream over an existing stream described by meta, loading
// its head block as the current block.
func Open(dev *block.Device, meta Meta) (*Stream, error) {
	s := &Stream{dev: dev, meta: meta}
	if meta.Empty() {
		return s, nil
	}
	b, err := dev.LoadBlock(uint32(meta.Begin))
	if err != nil {
		return nil, err
	}
	s.current = b
	s.pos = uint32(meta.Begin)
	return s, nil
}

// Meta returns a copy of the stream's current metadata record.
func (s *Stream) Meta() Meta { return s.meta }

// Identity returns the stream's UUID.
func (s *Stream) Identity() uuid.UUID { return s.meta.Identity }

// Index returns the current block's ordinal within the stream.
func (s *Stream) Index() uint32 { return s.current.Index }

// Next steps to the following block, saving the current block first if
// dirty. Returns false when already at the tail.
func (s *Stream) Next() (bool, error) {
	if s.current.IsTail() {
		return false, nil
	}
	if err := s.Save(false); err != nil {
		return false, err
	}
	nextPos := uint32(s.current.Next)
	b, err := s.dev.LoadBlock(nextPos)
	if err != nil {
		return false, err
	}
	s.current = b
	s.pos = nextPos
	return true, nil
}

// Previous steps to the preceding block, saving the current block first if
// dirty. Returns false when already at the head.
func (s *Stream) Previous() (bool, error) {
	if s.current.IsHead() {
		return false, nil
	}
	if err := s.Save(false); err != nil {
		return false, err
	}
	prevPos := uint32(s.current.Previous)
	b, err := s.dev.LoadBlock(prevPos)
	if err != nil {
		return false, err
	}
	s.current = b
	s.pos = prevPos
	return true, nil
}

// Wind moves forward or backward until the current block's Index equals
// target. On failure (target outside [0, Count)) the stream's position is
// left unchanged and an OutOfBounds error is returned.
func (s *Stream) Wind(target uint32) error {
	if target >= s.meta.Count {
		return angelos7.Newf(angelos7.KindOutOfBounds, "wind target %d >= count %d", target, s.meta.Count)
	}
	priorIndex := s.current.Index
	priorBlock := s.current
	priorPos := s.pos
	for s.current.Index != target {
		var (
			ok  bool
			err error
		)
		if target > s.current.Index {
			ok, err = s.Next()
		} else {
			ok, err = s.Previous()
		}
		if err != nil {
			s.current = priorBlock
			s.pos = priorPos
			return err
		}
		if !ok {
			s.current = priorBlock
			s.pos = priorPos
			return angelos7.Newf(angelos7.KindOutOfBounds, "wind target %d unreachable from %d", target, priorIndex)
		}
	}
	return nil
}

// Extend allocates a new tail block and links it after the current block.
// It is only permitted when the current block is the stream's tail;
// otherwise it returns (false, nil) without modifying anything.
func (s *Stream) Extend() (bool, error) {
	if !s.current.IsTail() {
		return false, nil
	}
	if err := s.Save(false); err != nil {
		return false, err
	}
	newIdx, err := s.dev.NewBlock()
	if err != nil {
		return false, err
	}
	nb := block.NewHead(s.meta.Identity)
	nb.Index = s.meta.Count
	nb.Previous = int32(s.pos)
	nb.Next = -1
	if err := s.dev.SaveBlock(newIdx, nb); err != nil {
		return false, err
	}

	s.current.Next = int32(newIdx)
	if err := s.dev.SaveBlock(s.pos, s.current); err != nil {
		return false, err
	}

	s.current = nb
	s.pos = newIdx
	s.meta.End = int32(newIdx)
	s.meta.Count++
	return true, nil
}

// Changed marks the current block dirty, so the next Save writes it.
func (s *Stream) Changed() {
	s.dirty = true
}

// Save writes the current block through the block device if it is dirty, or
// unconditionally when enforce is true.
func (s *Stream) Save(enforce bool) error {
	if !s.dirty && !enforce {
		return nil
	}
	if err := s.dev.SaveBlock(s.pos, s.current); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// CurrentPayload returns a copy of the current block's payload.
func (s *Stream) CurrentPayload() []byte {
	p := make([]byte, angelos7.DataSize)
	copy(p, s.current.Payload[:])
	return p
}

// SetCurrentPayload overwrites the current block's payload and marks it
// dirty.
func (s *Stream) SetCurrentPayload(p []byte) {
	s.current.SetPayload(p)
	s.dirty = true
}

// Truncate shortens the stream to length bytes: it winds to the block that
// will become the new tail, zero-fills the trailing bytes of that block,
// and unlinks (recycling via onRecycle) the remainder of the chain.
//
// onRecycle receives the list of now-detached blocks, each paired with the
// device index it occupies, in stream order, so the caller (the stream
// registry) can append them to the trash chain; see DESIGN.md Open
// Question 2 for the on-disk recycling scheme.
func (s *Stream) Truncate(length uint64, onRecycle func([]block.Positioned) error) error {
	if length > s.meta.Length {
		return angelos7.Newf(angelos7.KindValueError, "truncate length %d exceeds stream length %d", length, s.meta.Length)
	}

	newTailIdx := uint32(0)
	if length > 0 {
		newTailIdx = uint32((length - 1) / angelos7.DataSize)
	}
	if err := s.Wind(newTailIdx); err != nil {
		return err
	}

	offsetInBlock := int(length - uint64(newTailIdx)*angelos7.DataSize)
	payload := s.CurrentPayload()
	for i := offsetInBlock; i < angelos7.DataSize; i++ {
		payload[i] = 0
	}
	s.SetCurrentPayload(payload)

	var detached []block.Positioned
	if !s.current.IsTail() {
		next := s.current.Next
		for next != -1 {
			pos := uint32(next)
			b, err := s.dev.LoadBlock(pos)
			if err != nil {
				return err
			}
			detached = append(detached, block.Positioned{Pos: pos, Block: b})
			next = b.Next
		}
	}

	s.current.Next = -1
	if err := s.Save(true); err != nil {
		return err
	}

	if len(detached) > 0 && onRecycle != nil {
		if err := onRecycle(detached); err != nil {
			return err
		}
	}

	s.meta.End = int32(s.pos)
	s.meta.Count = newTailIdx + 1
	s.meta.Length = length
	return nil
}

// AdoptTail updates this stream's tail pointer and block count after an
// external caller has spliced additional blocks onto the chain directly via
// the block device (the stream registry's trash-recycling path does this,
// rather than routing through Extend, because the spliced chain already
// exists with its own links). The current block is reloaded in case it was
// the old tail and its Next field changed underneath this Stream's cache.
func (s *Stream) AdoptTail(newEnd int32, addedCount uint32) error {
	s.meta.End = newEnd
	s.meta.Count += addedCount
	b, err := s.dev.LoadBlock(s.pos)
	if err != nil {
		return err
	}
	s.current = b
	s.dirty = false
	return nil
}

// ForwardEach calls fn with each block's payload from begin to end, in
// order, stopping early if fn returns false. The stream's position is
// restored to where it started once iteration completes.
func (s *Stream) ForwardEach(fn func(index uint32, payload []byte) bool) error {
	if s.meta.Count == 0 {
		return nil
	}
	startIdx := s.current.Index
	if err := s.Wind(0); err != nil {
		return err
	}
	for {
		if !fn(s.current.Index, s.CurrentPayload()) {
			break
		}
		ok, err := s.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	if s.meta.Count > 0 {
		return s.Wind(startIdx)
	}
	return nil
}
