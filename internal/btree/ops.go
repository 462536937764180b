package btree

import (
	"github.com/kristoffer-paulsson/angelos7"
)

func (t *Tree) padValue(v []byte) []byte {
	out := make([]byte, t.valueSize)
	copy(out, v)
	return out
}

// childIndex returns which child of an internal node covers key, following
// the convention that children[i] covers [keys[i-1], keys[i]) — so an exact
// match on a separator routes to its right child, whose minimum it is.
func childIndex(n *node, key Key) int {
	pos, exact := n.search(key)
	if exact {
		return pos + 1
	}
	return pos
}

func (t *Tree) insertRec(pageIdx uint32, key Key, value []byte, replace bool) (sepKey Key, newPage uint32, split bool, err error) {
	n, err := t.readPage(pageIdx)
	if err != nil {
		return Key{}, 0, false, err
	}

	if n.leaf {
		pos, exact := n.search(key)
		if exact {
			if !replace {
				return Key{}, 0, false, angelos7.Newf(angelos7.KindDuplicateKey, "btree: key already present")
			}
			n.values[pos] = t.padValue(value)
			return Key{}, 0, false, t.writePage(n)
		}
		n.keys = insertKey(n.keys, pos, key)
		n.values = insertValue(n.values, pos, t.padValue(value))
		if len(n.keys) <= t.maxLeafKeys {
			return Key{}, 0, false, t.writePage(n)
		}
		mid := len(n.keys) / 2
		right := &node{leaf: true, keys: append([]Key{}, n.keys[mid:]...), values: append([][]byte{}, n.values[mid:]...)}
		n.keys = n.keys[:mid]
		n.values = n.values[:mid]
		if err := t.writePage(n); err != nil {
			return Key{}, 0, false, err
		}
		if err := t.writePage(right); err != nil {
			return Key{}, 0, false, err
		}
		return right.keys[0], right.page, true, nil
	}

	idx := childIndex(n, key)
	childSep, childNewPage, childSplit, err := t.insertRec(n.children[idx], key, value, replace)
	if err != nil {
		return Key{}, 0, false, err
	}
	if !childSplit {
		return Key{}, 0, false, nil
	}

	n.keys = insertKey(n.keys, idx, childSep)
	n.children = insertChild(n.children, idx+1, childNewPage)
	if len(n.keys) <= t.maxInternalKeys {
		return Key{}, 0, false, t.writePage(n)
	}

	mid := len(n.keys) / 2
	promoted := n.keys[mid]
	right := &node{
		leaf:     false,
		keys:     append([]Key{}, n.keys[mid+1:]...),
		children: append([]uint32{}, n.children[mid+1:]...),
	}
	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]
	if err := t.writePage(n); err != nil {
		return Key{}, 0, false, err
	}
	if err := t.writePage(right); err != nil {
		return Key{}, 0, false, err
	}
	return promoted, right.page, true, nil
}

// insert, without journaling, into the tree rooted at t.rootPage.
func (t *Tree) insert(key Key, value []byte, replace bool) error {
	if t.rootPage == noRoot {
		leaf := &node{leaf: true, keys: []Key{key}, values: [][]byte{t.padValue(value)}}
		if err := t.writePage(leaf); err != nil {
			return err
		}
		t.rootPage = int64(leaf.page)
		return t.writeHeader()
	}

	sep, newPage, split, err := t.insertRec(uint32(t.rootPage), key, value, replace)
	if err != nil {
		return err
	}
	if split {
		newRoot := &node{leaf: false, keys: []Key{sep}, children: []uint32{uint32(t.rootPage), newPage}}
		if err := t.writePage(newRoot); err != nil {
			return err
		}
		t.rootPage = int64(newRoot.page)
	}
	return t.writeHeader()
}

func (t *Tree) getRec(pageIdx uint32, key Key) ([]byte, bool, error) {
	n, err := t.readPage(pageIdx)
	if err != nil {
		return nil, false, err
	}
	if n.leaf {
		pos, exact := n.search(key)
		if !exact {
			return nil, false, nil
		}
		return n.values[pos], true, nil
	}
	return t.getRec(n.children[childIndex(n, key)], key)
}

// Get looks up key. found is false if it is absent.
func (t *Tree) Get(key Key) (value []byte, found bool, err error) {
	if t.rootPage == noRoot {
		return nil, false, nil
	}
	return t.getRec(uint32(t.rootPage), key)
}

// remove deletes key from its leaf, without journaling or ancestor
// rebalancing. Leaving underfull or empty leaves in place is safe: internal
// separators are boundary values, not promises that a key is present, so a
// stale separator still routes correctly (see DESIGN.md).
func (t *Tree) removeRec(pageIdx uint32, key Key) ([]byte, bool, error) {
	n, err := t.readPage(pageIdx)
	if err != nil {
		return nil, false, err
	}
	if n.leaf {
		pos, exact := n.search(key)
		if !exact {
			return nil, false, nil
		}
		value := n.values[pos]
		n.keys = append(n.keys[:pos], n.keys[pos+1:]...)
		n.values = append(n.values[:pos], n.values[pos+1:]...)
		return value, true, t.writePage(n)
	}
	return t.removeRec(n.children[childIndex(n, key)], key)
}

func (t *Tree) remove(key Key) ([]byte, bool, error) {
	if t.rootPage == noRoot {
		return nil, false, nil
	}
	value, found, err := t.removeRec(uint32(t.rootPage), key)
	if err != nil || !found {
		return value, found, err
	}
	root, err := t.readPage(uint32(t.rootPage))
	if err != nil {
		return value, found, err
	}
	if root.leaf && len(root.keys) == 0 {
		t.rootPage = noRoot
		if err := t.writeHeader(); err != nil {
			return value, found, err
		}
	}
	return value, found, nil
}

func (t *Tree) forEachRec(pageIdx uint32, fn func(key Key, value []byte) bool) (bool, error) {
	n, err := t.readPage(pageIdx)
	if err != nil {
		return false, err
	}
	if n.leaf {
		for i, k := range n.keys {
			if !fn(k, n.values[i]) {
				return false, nil
			}
		}
		return true, nil
	}
	for _, c := range n.children {
		cont, err := t.forEachRec(c, fn)
		if err != nil {
			return false, err
		}
		if !cont {
			return false, nil
		}
	}
	return true, nil
}

// ForEach walks every key/value pair in ascending key order, stopping early
// if fn returns false.
func (t *Tree) ForEach(fn func(key Key, value []byte) bool) error {
	if t.rootPage == noRoot {
		return nil
	}
	_, err := t.forEachRec(uint32(t.rootPage), fn)
	return err
}

func insertKey(keys []Key, pos int, k Key) []Key {
	keys = append(keys, Key{})
	copy(keys[pos+1:], keys[pos:])
	keys[pos] = k
	return keys
}

func insertValue(values [][]byte, pos int, v []byte) [][]byte {
	values = append(values, nil)
	copy(values[pos+1:], values[pos:])
	values[pos] = v
	return values
}

func insertChild(children []uint32, pos int, c uint32) []uint32 {
	children = append(children, 0)
	copy(children[pos+1:], children[pos:])
	children[pos] = c
	return children
}
