// Package btree: core structure and Get/Insert/Delete operations.
//
// Grounded on the teacher's pkg/btree/btree.go (copy-on-write insert/delete
// with 2-/3-way node splitting and sibling merging via page callbacks).
package btree

import "bytes"

// BTree is a byte-keyed B+Tree addressed entirely through PageID-shaped
// uint64 pointers; it never touches a page manager directly, only the
// get/new/del callbacks bound via SetCallbacks (so it can be driven by
// pkg/page.Manager or, in tests, a plain in-memory map).
type BTree struct {
	root     uint64
	pageSize int
	get      func(uint64) []byte
	new      func([]byte) uint64
	del      func(uint64)
}

// New creates an empty tree. A pageSize <= 0 defaults to DefaultPageSize.
func New(pageSize int) *BTree {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &BTree{pageSize: pageSize}
}

// SetCallbacks wires the tree to its backing page store.
func (tree *BTree) SetCallbacks(get func(uint64) []byte, new func([]byte) uint64, del func(uint64)) {
	tree.get = get
	tree.new = new
	tree.del = del
}

func (tree *BTree) GetRoot() uint64    { return tree.root }
func (tree *BTree) SetRoot(root uint64) { tree.root = root }

// Get looks up a key.
func (tree *BTree) Get(key []byte) ([]byte, bool) {
	if tree.root == 0 {
		return nil, false
	}
	node := BNode(tree.get(tree.root))
	return treeGet(tree, node, key)
}

func treeGet(tree *BTree, node BNode, key []byte) ([]byte, bool) {
	idx := nodeLookupLE(node, key)
	switch node.btype() {
	case BNodeLeaf:
		if idx < node.nkeys() && bytes.Equal(key, node.getKey(idx)) {
			return append([]byte(nil), node.getVal(idx)...), true
		}
		return nil, false
	case BNodeInternal:
		child := BNode(tree.get(node.getPtr(idx)))
		return treeGet(tree, child, key)
	default:
		panic("bad node type")
	}
}

func (tree *BTree) newLeaf(nkeys uint16) BNode {
	buf := make(BNode, 2*tree.pageSize)
	buf.setHeader(BNodeLeaf, nkeys)
	return buf
}

func (tree *BTree) newInternal(nkeys uint16) BNode {
	buf := make(BNode, 2*tree.pageSize)
	buf.setHeader(BNodeInternal, nkeys)
	return buf
}

// Insert inserts or updates a key-value pair.
func (tree *BTree) Insert(key, val []byte) {
	if len(key) > MaxKeySize {
		panic("key exceeds MaxKeySize")
	}
	if len(val) > MaxValSize {
		panic("value exceeds MaxValSize")
	}

	if tree.root == 0 {
		root := tree.newLeaf(2)
		nodeAppendKV(root, 0, 0, nil, nil) // sentinel covering the whole key space
		nodeAppendKV(root, 1, 0, key, val)
		tree.root = tree.new(root[:tree.pageSize])
		return
	}

	updated := treeInsert(tree, BNode(tree.get(tree.root)), key, val)
	nsplit, split := tree.nodeSplit3(updated)
	tree.del(tree.root)

	if nsplit > 1 {
		root := tree.newInternal(nsplit)
		ptrs := make([]uint64, nsplit)
		for i := uint16(0); i < nsplit; i++ {
			ptrs[i] = tree.new(split[i][:tree.pageSize])
		}
		for i := uint16(0); i < nsplit; i++ {
			nodeAppendKV(root, i, ptrs[i], split[i].getKey(0), nil)
		}
		tree.linkSplitLeaves(split[:nsplit], ptrs)
		tree.root = tree.new(root[:tree.pageSize])
	} else {
		tree.root = tree.new(split[0][:tree.pageSize])
	}
}

// linkSplitLeaves chains next_leaf pointers across fragments produced by
// one split, and preserves the chain into whatever followed the original
// node. This keeps next_leaf correct within a split group; it does not
// reach back to patch a now-stale predecessor leaf elsewhere in the tree,
// which is why next_leaf is documented as a best-effort forward hint
// rather than an authoritative structure (range scans always use the
// descent-path stack, never next_leaf, for correctness).
func (tree *BTree) linkSplitLeaves(frags []BNode, ptrs []uint64) {
	if len(frags) == 0 || frags[0].btype() != BNodeLeaf {
		return
	}
	for i := 0; i < len(frags)-1; i++ {
		frags[i].setNextLeaf(ptrs[i+1])
	}
}

func treeInsert(tree *BTree, node BNode, key, val []byte) BNode {
	idx := nodeLookupLE(node, key)
	switch node.btype() {
	case BNodeLeaf:
		newNode := tree.newLeaf(0)
		if idx < node.nkeys() && bytes.Equal(key, node.getKey(idx)) {
			leafUpdate(newNode, node, idx, key, val)
		} else {
			leafInsert(newNode, node, idx+1, key, val)
		}
		newNode.setNextLeaf(node.nextLeaf())
		return newNode
	case BNodeInternal:
		newNode := tree.newInternal(0)
		nodeInsertInternal(tree, newNode, node, idx, key, val)
		return newNode
	default:
		panic("bad node type")
	}
}

func leafInsert(newN, old BNode, idx uint16, key, val []byte) {
	newN.setHeader(BNodeLeaf, old.nkeys()+1)
	nodeAppendRange(newN, old, 0, 0, idx)
	nodeAppendKV(newN, idx, 0, key, val)
	nodeAppendRange(newN, old, idx+1, idx, old.nkeys()-idx)
}

func leafUpdate(newN, old BNode, idx uint16, key, val []byte) {
	newN.setHeader(BNodeLeaf, old.nkeys())
	nodeAppendRange(newN, old, 0, 0, idx)
	nodeAppendKV(newN, idx, 0, key, val)
	nodeAppendRange(newN, old, idx+1, idx+1, old.nkeys()-(idx+1))
}

func nodeInsertInternal(tree *BTree, newN, node BNode, idx uint16, key, val []byte) {
	kptr := node.getPtr(idx)
	knode := treeInsert(tree, BNode(tree.get(kptr)), key, val)
	nsplit, split := tree.nodeSplit3(knode)
	tree.del(kptr)
	nodeReplaceKidN(tree, newN, node, idx, split[:nsplit]...)
}

func nodeReplaceKidN(tree *BTree, newN, old BNode, idx uint16, kids ...BNode) {
	inc := uint16(len(kids))
	newN.setHeader(BNodeInternal, old.nkeys()+inc-1)
	nodeAppendRange(newN, old, 0, 0, idx)

	ptrs := make([]uint64, len(kids))
	for i, kid := range kids {
		ptrs[i] = tree.new(kid[:tree.pageSize])
	}
	tree.linkSplitLeaves(kids, ptrs)
	for i, kid := range kids {
		nodeAppendKV(newN, idx+uint16(i), ptrs[i], kid.getKey(0), nil)
	}

	nodeAppendRange(newN, old, idx+inc, idx+1, old.nkeys()-(idx+1))
}

// nodeSplit3 splits an oversized node into at most 3 page-sized pieces.
func (tree *BTree) nodeSplit3(old BNode) (uint16, [3]BNode) {
	if old.nbytes() <= uint16(tree.pageSize) {
		return 1, [3]BNode{old[:tree.pageSize]}
	}

	left := make(BNode, 2*tree.pageSize)
	right := tree.newSameType(old, 0)
	tree.nodeSplit2(left, right, old)

	if left.nbytes() <= uint16(tree.pageSize) {
		return 2, [3]BNode{left[:tree.pageSize], right}
	}

	leftleft := tree.newSameType(old, 0)
	middle := tree.newSameType(old, 0)
	tree.nodeSplit2(leftleft, middle, left)
	return 3, [3]BNode{leftleft, middle, right}
}

func (tree *BTree) newSameType(like BNode, nkeys uint16) BNode {
	if like.btype() == BNodeLeaf {
		return tree.newLeaf(nkeys)[:tree.pageSize]
	}
	return tree.newInternal(nkeys)[:tree.pageSize]
}

func (tree *BTree) nodeSplit2(left, right, old BNode) {
	nkeys := old.nkeys()
	nleft := uint16(0)
	for i := uint16(0); i < nkeys; i++ {
		nleft = i + 1
		if old.kvPos(nleft) >= uint16(tree.pageSize)*3/4 {
			break
		}
	}

	left.setHeader(old.btype(), nleft)
	nodeAppendRange(left, old, 0, 0, nleft)
	right.setHeader(old.btype(), nkeys-nleft)
	nodeAppendRange(right, old, 0, nleft, nkeys-nleft)

	if old.btype() == BNodeLeaf {
		right.setNextLeaf(old.nextLeaf())
	}
}

// Delete removes key, returning whether it was present.
func (tree *BTree) Delete(key []byte) bool {
	if tree.root == 0 {
		return false
	}
	updated := treeDelete(tree, BNode(tree.get(tree.root)), key)
	if updated == nil {
		return false
	}
	tree.del(tree.root)

	if updated.btype() == BNodeInternal && updated.nkeys() == 1 {
		tree.root = updated.getPtr(0)
	} else {
		tree.root = tree.new(updated[:tree.pageSize])
	}
	return true
}

func treeDelete(tree *BTree, node BNode, key []byte) BNode {
	idx := nodeLookupLE(node, key)
	switch node.btype() {
	case BNodeLeaf:
		if idx >= node.nkeys() || !bytes.Equal(key, node.getKey(idx)) {
			return nil
		}
		newN := tree.newLeaf(0)
		leafDelete(newN, node, idx)
		newN.setNextLeaf(node.nextLeaf())
		return newN
	case BNodeInternal:
		return nodeDelete(tree, node, idx, key)
	default:
		panic("bad node type")
	}
}

func leafDelete(newN, old BNode, idx uint16) {
	newN.setHeader(BNodeLeaf, old.nkeys()-1)
	nodeAppendRange(newN, old, 0, 0, idx)
	nodeAppendRange(newN, old, idx, idx+1, old.nkeys()-(idx+1))
}

func nodeDelete(tree *BTree, node BNode, idx uint16, key []byte) BNode {
	kptr := node.getPtr(idx)
	updated := treeDelete(tree, BNode(tree.get(kptr)), key)
	if updated == nil {
		return nil
	}
	tree.del(kptr)
	newN := tree.newInternal(0)

	// Before merging, try rotating one entry in from an adjacent sibling
	// (spec.md §4.4: "try rotation from left sibling, then right sibling
	// ... If neither sibling can spare, merge"), grounded on the original's
	// try_redistribute_from_{left,right}.
	if updated.nkeys() == 0 || updated.nbytes() <= uint16(tree.pageSize)/4 {
		if newLeft, newUpdated, ok := tree.rotateFromLeft(node, idx, updated); ok {
			leftPtr := node.getPtr(idx - 1)
			updatedPtr := tree.new(newUpdated[:tree.pageSize])
			if newLeft.btype() == BNodeLeaf {
				newLeft.setNextLeaf(updatedPtr)
			}
			newLeftPtr := tree.new(newLeft[:tree.pageSize])
			tree.del(leftPtr)
			nodeReplaceSiblingPair(newN, node, idx-1, newLeftPtr, newLeft.getKey(0), updatedPtr, newUpdated.getKey(0))
			return newN
		}
		if newUpdated, newRight, ok := tree.rotateFromRight(node, idx, updated); ok {
			rightPtr := node.getPtr(idx + 1)
			newRightPtr := tree.new(newRight[:tree.pageSize])
			if newUpdated.btype() == BNodeLeaf {
				newUpdated.setNextLeaf(newRightPtr)
			}
			updatedPtr := tree.new(newUpdated[:tree.pageSize])
			tree.del(rightPtr)
			nodeReplaceSiblingPair(newN, node, idx, updatedPtr, newUpdated.getKey(0), newRightPtr, newRight.getKey(0))
			return newN
		}
	}

	mergeDir, sibling := tree.shouldMerge(node, idx, updated)
	switch {
	case mergeDir < 0:
		merged := tree.newSameType(sibling, 0)
		nodeMerge(merged, sibling, updated)
		tree.del(node.getPtr(idx - 1))
		nodeReplace2Kid(newN, node, idx-1, tree.new(merged[:tree.pageSize]), merged.getKey(0))
	case mergeDir > 0:
		merged := tree.newSameType(updated, 0)
		nodeMerge(merged, updated, sibling)
		tree.del(node.getPtr(idx + 1))
		nodeReplace2Kid(newN, node, idx, tree.new(merged[:tree.pageSize]), merged.getKey(0))
	case updated.nkeys() == 0:
		newN.setHeader(BNodeInternal, 0)
	default:
		nodeReplaceKidN(tree, newN, node, idx, updated)
	}
	return newN
}

func (tree *BTree) shouldMerge(node BNode, idx uint16, updated BNode) (int, BNode) {
	if updated.nbytes() > uint16(tree.pageSize)/4 {
		return 0, nil
	}
	if idx > 0 {
		sibling := BNode(tree.get(node.getPtr(idx - 1)))
		if sibling.nbytes()+updated.nbytes()-sibling.header() <= uint16(tree.pageSize) {
			return -1, sibling
		}
	}
	if idx+1 < node.nkeys() {
		sibling := BNode(tree.get(node.getPtr(idx + 1)))
		if sibling.nbytes()+updated.nbytes()-sibling.header() <= uint16(tree.pageSize) {
			return +1, sibling
		}
	}
	return 0, nil
}

// rotateFromLeft moves the left sibling's last entry onto the front of
// updated, when the left sibling has more than one entry to give without
// underflowing itself. Returns the rebuilt (left, updated) pair.
func (tree *BTree) rotateFromLeft(node BNode, idx uint16, updated BNode) (BNode, BNode, bool) {
	if idx == 0 {
		return nil, nil, false
	}
	left := BNode(tree.get(node.getPtr(idx - 1)))
	if left.nkeys() <= 1 {
		return nil, nil, false
	}

	last := left.nkeys() - 1
	movedKey := append([]byte(nil), left.getKey(last)...)
	var movedVal []byte
	var movedPtr uint64
	if left.btype() == BNodeLeaf {
		movedVal = append([]byte(nil), left.getVal(last)...)
	} else {
		movedPtr = left.getPtr(last)
	}
	movedSize := uint16(4 + len(movedKey) + len(movedVal))
	if left.nbytes()-movedSize <= uint16(tree.pageSize)/4 {
		return nil, nil, false
	}

	newLeft := tree.newSameType(left, last)
	nodeAppendRange(newLeft, left, 0, 0, last)

	newUpdated := tree.newSameType(updated, updated.nkeys()+1)
	nodeAppendKV(newUpdated, 0, movedPtr, movedKey, movedVal)
	if updated.nkeys() > 0 {
		nodeAppendRange(newUpdated, updated, 1, 0, updated.nkeys())
	}

	return newLeft, newUpdated, true
}

// rotateFromRight moves the right sibling's first entry onto the end of
// updated, mirroring rotateFromLeft.
func (tree *BTree) rotateFromRight(node BNode, idx uint16, updated BNode) (BNode, BNode, bool) {
	if idx+1 >= node.nkeys() {
		return nil, nil, false
	}
	right := BNode(tree.get(node.getPtr(idx + 1)))
	if right.nkeys() <= 1 {
		return nil, nil, false
	}

	movedKey := append([]byte(nil), right.getKey(0)...)
	var movedVal []byte
	var movedPtr uint64
	if right.btype() == BNodeLeaf {
		movedVal = append([]byte(nil), right.getVal(0)...)
	} else {
		movedPtr = right.getPtr(0)
	}
	movedSize := uint16(4 + len(movedKey) + len(movedVal))
	if right.nbytes()-movedSize <= uint16(tree.pageSize)/4 {
		return nil, nil, false
	}

	newRight := tree.newSameType(right, right.nkeys()-1)
	nodeAppendRange(newRight, right, 0, 1, right.nkeys()-1)
	if right.btype() == BNodeLeaf {
		newRight.setNextLeaf(right.nextLeaf())
	}

	newUpdated := tree.newSameType(updated, updated.nkeys()+1)
	nodeAppendRange(newUpdated, updated, 0, 0, updated.nkeys())
	nodeAppendKV(newUpdated, updated.nkeys(), movedPtr, movedKey, movedVal)

	return newUpdated, newRight, true
}

// nodeReplaceSiblingPair rewrites node's two adjacent children starting at
// fromIdx with replacement pointers/keys, leaving every other child as-is;
// used after a rotation redistributes one entry between siblings without
// changing the parent's child count.
func nodeReplaceSiblingPair(newN, old BNode, fromIdx uint16, ptrA uint64, keyA []byte, ptrB uint64, keyB []byte) {
	newN.setHeader(BNodeInternal, old.nkeys())
	nodeAppendRange(newN, old, 0, 0, fromIdx)
	nodeAppendKV(newN, fromIdx, ptrA, keyA, nil)
	nodeAppendKV(newN, fromIdx+1, ptrB, keyB, nil)
	nodeAppendRange(newN, old, fromIdx+2, fromIdx+2, old.nkeys()-(fromIdx+2))
}

func nodeMerge(newN, left, right BNode) {
	newN.setHeader(left.btype(), left.nkeys()+right.nkeys())
	nodeAppendRange(newN, left, 0, 0, left.nkeys())
	nodeAppendRange(newN, right, left.nkeys(), 0, right.nkeys())
	if left.btype() == BNodeLeaf {
		newN.setNextLeaf(right.nextLeaf())
	}
}

func nodeReplace2Kid(newN, old BNode, idx uint16, ptr uint64, key []byte) {
	newN.setHeader(BNodeInternal, old.nkeys()-1)
	nodeAppendRange(newN, old, 0, 0, idx)
	nodeAppendKV(newN, idx, ptr, key, nil)
	nodeAppendRange(newN, old, idx+1, idx+2, old.nkeys()-(idx+2))
}
