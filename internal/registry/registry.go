// Package registry implements the stream registry of spec.md §4.5: a
// B+Tree mapping stream-UUID to stream-metadata, plus the trash stream that
// recycled block chains are appended to instead of being physically erased.
package registry

import (
	"github.com/google/uuid"

	"github.com/kristoffer-paulsson/angelos7"
	"github.com/kristoffer-paulsson/angelos7/internal/block"
	"github.com/kristoffer-paulsson/angelos7/internal/btree"
	"github.com/kristoffer-paulsson/angelos7/internal/stream"
)

// Registry maps stream identities to their metadata record and recycles
// unregistered streams' block chains onto the trash stream.
type Registry struct {
	tree  *btree.Tree
	dev   *block.Device
	trash *stream.Stream
}

// New wraps an already-open metadata tree and trash stream.
func New(tree *btree.Tree, dev *block.Device, trash *stream.Stream) *Registry {
	return &Registry{tree: tree, dev: dev, trash: trash}
}

func keyOf(id uuid.UUID) btree.Key { return btree.Key(id) }

// Register inserts s's metadata and checkpoints, per spec.md §4.5.
func (r *Registry) Register(s *stream.Stream) error {
	meta := s.Meta()
	value, err := meta.MarshalBinary()
	if err != nil {
		return err
	}
	if err := r.tree.Insert(keyOf(meta.Identity), value, false); err != nil {
		return err
	}
	return r.tree.Checkpoint()
}

// Update upserts s's current metadata.
func (r *Registry) Update(s *stream.Stream) error {
	meta := s.Meta()
	value, err := meta.MarshalBinary()
	if err != nil {
		return err
	}
	if err := r.tree.Insert(keyOf(meta.Identity), value, true); err != nil {
		return err
	}
	return r.tree.Checkpoint()
}

// Search returns the metadata registered for id, if any.
func (r *Registry) Search(id uuid.UUID) (stream.Meta, bool, error) {
	var meta stream.Meta
	value, found, err := r.tree.Get(keyOf(id))
	if err != nil || !found {
		return meta, found, err
	}
	if err := meta.UnmarshalBinary(value); err != nil {
		return meta, false, err
	}
	return meta, true, nil
}

// Unregister removes id's metadata row and moves its block chain onto the
// trash stream so the blocks are recycled rather than erased.
func (r *Registry) Unregister(id uuid.UUID) error {
	value, found, err := r.tree.Remove(keyOf(id))
	if err != nil {
		return err
	}
	if !found {
		return angelos7.Newf(angelos7.KindNotFound, "stream %s is not registered", id)
	}
	if err := r.tree.Checkpoint(); err != nil {
		return err
	}
	var meta stream.Meta
	if err := meta.UnmarshalBinary(value); err != nil {
		return err
	}
	return r.recycle(meta)
}

// recycle loads the full chain described by meta and splices it onto the
// trash stream. See DESIGN.md Open Question 2 for why this reuses the
// ordinary stream-chain format instead of a bespoke free-list layout.
func (r *Registry) recycle(meta stream.Meta) error {
	if meta.Empty() {
		return nil
	}
	var chain []block.Positioned
	idx := uint32(meta.Begin)
	for {
		b, err := r.dev.LoadBlock(idx)
		if err != nil {
			return err
		}
		chain = append(chain, block.Positioned{Pos: idx, Block: b})
		if b.IsTail() {
			break
		}
		idx = uint32(b.Next)
	}
	return r.RecycleBlocks(chain)
}

// RecycleBlocks re-stamps an already-detached chain of blocks (in stream
// order) with the trash stream's identity and splices it onto the trash
// stream's tail. Stream.Truncate passes this as its onRecycle callback for
// partial-chain recycling; Unregister uses it for whole-stream recycling.
func (r *Registry) RecycleBlocks(chain []block.Positioned) error {
	if len(chain) == 0 {
		return nil
	}

	trashMeta := r.trash.Meta()
	if trashMeta.Empty() {
		// The trash stream always has a head block (CreateAt never leaves a
		// stream with zero blocks), so this path is unreachable in practice;
		// kept defensive in case a future caller constructs an empty trash.
		return angelos7.Newf(angelos7.KindValueError, "trash stream has no head block")
	}

	trashIdentity := r.trash.Identity()
	for i := range chain {
		chain[i].Block.Stream = trashIdentity
		chain[i].Block.Index = trashMeta.Count + uint32(i)
		if err := r.dev.SaveBlock(chain[i].Pos, chain[i].Block); err != nil {
			return err
		}
	}

	head := chain[0]
	tail := chain[len(chain)-1]

	tailIdx := uint32(trashMeta.End)
	trashTail, err := r.dev.LoadBlock(tailIdx)
	if err != nil {
		return err
	}
	trashTail.Next = int32(head.Pos)
	if err := r.dev.SaveBlock(tailIdx, trashTail); err != nil {
		return err
	}

	head.Block.Previous = int32(tailIdx)
	if err := r.dev.SaveBlock(head.Pos, head.Block); err != nil {
		return err
	}

	return r.trash.AdoptTail(int32(tail.Pos), uint32(len(chain)))
}

// Close checkpoints and closes the underlying tree.
func (r *Registry) Close() error {
	if err := r.tree.Checkpoint(); err != nil {
		return err
	}
	return r.tree.Close()
}
