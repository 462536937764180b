// Package btree implements the persistent ordered B+Tree registry of
// spec.md §4.4: a UUID-keyed, fixed-size-value map whose pages live inside
// two virtual files (main + write-ahead journal), with journal replay on
// open for crash recovery.
package btree

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"

	"github.com/kristoffer-paulsson/angelos7"
)

// Key is a 128-bit UUID key, compared as an unsigned big-endian integer —
// which is exactly what bytes.Compare does on the raw bytes.
type Key [16]byte

func (k Key) less(other Key) bool {
	return bytes.Compare(k[:], other[:]) < 0
}

func (k Key) equal(other Key) bool {
	return k == other
}

// node is the in-memory decoded form of one tree page.
type node struct {
	page     uint32
	leaf     bool
	keys     []Key
	values   [][]byte // leaf only, parallel to keys
	children []uint32 // internal only, len == len(keys)+1
}

const nodeHeaderSize = 1 + 2 // leaf flag + key count

// encode serializes n into a PageSize-byte page.
func (n *node) encode(valueSize int) []byte {
	buf := make([]byte, 0, angelos7.PageSize)
	w := bytes.NewBuffer(buf)
	if n.leaf {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
	binary.Write(w, binary.BigEndian, uint16(len(n.keys)))
	for _, k := range n.keys {
		w.Write(k[:])
	}
	if n.leaf {
		for _, v := range n.values {
			padded := make([]byte, valueSize)
			copy(padded, v)
			w.Write(padded)
		}
	} else {
		for _, c := range n.children {
			binary.Write(w, binary.BigEndian, c)
		}
	}
	out := w.Bytes()
	if len(out) > angelos7.PageSize {
		panic("btree: encoded node exceeds page size")
	}
	page := make([]byte, angelos7.PageSize)
	copy(page, out)
	return page
}

// decode parses a PageSize-byte page into a node.
func decodeNode(page []byte, pageIdx uint32, valueSize int) (*node, error) {
	if len(page) != angelos7.PageSize {
		return nil, xerrors.Errorf("btree: page %d: want %d bytes, got %d", pageIdx, angelos7.PageSize, len(page))
	}
	n := &node{page: pageIdx}
	n.leaf = page[0] == 1
	count := int(binary.BigEndian.Uint16(page[1:3]))
	off := nodeHeaderSize
	n.keys = make([]Key, count)
	for i := 0; i < count; i++ {
		var k Key
		copy(k[:], page[off:off+16])
		n.keys[i] = k
		off += 16
	}
	if n.leaf {
		n.values = make([][]byte, count)
		for i := 0; i < count; i++ {
			v := make([]byte, valueSize)
			copy(v, page[off:off+valueSize])
			n.values[i] = v
			off += valueSize
		}
	} else {
		n.children = make([]uint32, count+1)
		for i := 0; i <= count; i++ {
			n.children[i] = binary.BigEndian.Uint32(page[off : off+4])
			off += 4
		}
	}
	return n, nil
}

// search returns the index of the first key >= target, and whether it is an
// exact match.
func (n *node) search(target Key) (idx int, exact bool) {
	i, _ := slices.BinarySearchFunc(n.keys, target, func(a, b Key) int {
		return bytes.Compare(a[:], b[:])
	})
	if i < len(n.keys) && n.keys[i].equal(target) {
		return i, true
	}
	return i, false
}
