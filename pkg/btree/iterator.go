package btree

import "bytes"

// BIter iterates a tree in key order via an explicit root-to-leaf path
// stack — the sole source of truth for traversal, since next_leaf
// pointers are only a best-effort diagnostic hint (see linkSplitLeaves).
type BIter struct {
	tree *BTree
	path []BNode
	pos  []uint16
}

func (tree *BTree) NewIterator() *BIter {
	return &BIter{
		tree: tree,
		path: make([]BNode, 0, 8),
		pos:  make([]uint16, 0, 8),
	}
}

// SeekLE positions the iterator at the last key <= key. Returns false
// on an empty tree.
func (iter *BIter) SeekLE(key []byte) bool {
	iter.path = iter.path[:0]
	iter.pos = iter.pos[:0]

	if iter.tree.root == 0 {
		return false
	}

	node := BNode(iter.tree.get(iter.tree.root))
	for {
		iter.path = append(iter.path, node)
		idx := nodeLookupLE(node, key)
		iter.pos = append(iter.pos, idx)

		if node.btype() == BNodeLeaf {
			break
		}
		node = BNode(iter.tree.get(node.getPtr(idx)))
	}
	return true
}

func (iter *BIter) Valid() bool {
	if len(iter.path) == 0 {
		return false
	}
	leaf := iter.path[len(iter.path)-1]
	pos := iter.pos[len(iter.pos)-1]
	return pos < leaf.nkeys()
}

func (iter *BIter) Key() []byte {
	if !iter.Valid() {
		return nil
	}
	leaf := iter.path[len(iter.path)-1]
	return leaf.getKey(iter.pos[len(iter.pos)-1])
}

func (iter *BIter) Val() []byte {
	if !iter.Valid() {
		return nil
	}
	leaf := iter.path[len(iter.path)-1]
	return leaf.getVal(iter.pos[len(iter.pos)-1])
}

// Next advances to the next key, returning false once the tree is exhausted.
func (iter *BIter) Next() bool {
	if len(iter.path) == 0 {
		return false
	}

	leafIdx := len(iter.pos) - 1
	iter.pos[leafIdx]++
	if iter.pos[leafIdx] < iter.path[leafIdx].nkeys() {
		return true
	}

	iter.path = iter.path[:leafIdx]
	iter.pos = iter.pos[:leafIdx]

	for len(iter.pos) > 0 {
		parentIdx := len(iter.pos) - 1
		iter.pos[parentIdx]++
		if iter.pos[parentIdx] < iter.path[parentIdx].nkeys() {
			return iter.descendToLeftmost()
		}
		iter.path = iter.path[:parentIdx]
		iter.pos = iter.pos[:parentIdx]
	}
	return false
}

func (iter *BIter) descendToLeftmost() bool {
	for {
		parentIdx := len(iter.path) - 1
		parent := iter.path[parentIdx]
		pos := iter.pos[parentIdx]

		child := BNode(iter.tree.get(parent.getPtr(pos)))
		iter.path = append(iter.path, child)
		iter.pos = append(iter.pos, 0)

		if child.btype() == BNodeLeaf {
			return true
		}
	}
}

// Scan invokes callback for every key >= start in order, until callback
// returns false.
func (tree *BTree) Scan(start []byte, callback func(key, val []byte) bool) {
	iter := tree.NewIterator()
	if !iter.SeekLE(start) {
		return
	}
	// The leftmost leaf begins with the empty sentinel key Insert creates
	// for the first root; it is not a caller's key and is never reported.
	if len(iter.Key()) == 0 || bytes.Compare(iter.Key(), start) < 0 {
		if !iter.Next() {
			return
		}
	}
	for iter.Valid() {
		if !callback(iter.Key(), iter.Val()) {
			return
		}
		if !iter.Next() {
			return
		}
	}
}
