package btree

import (
	"github.com/pkg/errors"

	"BriskDB/dberr"
	"BriskDB/logger"
)

// insertIntoParent records a completed child split in the parent: the entry
// for the old child is re-keyed to the new left max and the new sibling is
// inserted after it, inheriting the old signpost. Full parents split
// recursively with the same gather-and-halve algorithm as leaves.
func (t *Tree) insertIntoParent(parentNum, leftNum uint32, leftMax []byte, rightNum uint32) error {
	page, err := t.getNode(parentNum)
	if err != nil {
		return err
	}
	nk := internalKeyCount(page)
	idx := uint32(0)
	for ; idx <= nk; idx++ {
		if t.layout.internalChild(page, idx) == leftNum {
			break
		}
	}
	if idx > nk {
		return errors.Wrapf(dberr.ErrCorruptNode,
			"page %d: child %d not referenced by its parent", parentNum, leftNum)
	}

	if int(nk) >= t.layout.InternalCapacity() {
		return t.splitInternalAndInsert(parentNum, leftNum, leftMax, rightNum)
	}

	if idx == nk {
		// Old child was the rightmost: it gains an explicit signpost and the
		// new sibling becomes the rightmost child.
		setInternalKeyCount(page, nk+1)
		t.layout.setInternalChild(page, nk, leftNum)
		t.layout.setInternalKey(page, nk, leftMax)
		setInternalRightChild(page, rightNum)
	} else {
		// The old signpost (the old child's previous max) now belongs to the
		// new sibling; shift one cell width in a single contiguous move.
		oldSignpost := append([]byte(nil), t.layout.internalKey(page, idx)...)
		if idx+1 < nk {
			src := t.layout.internalCellOffset(idx + 1)
			end := t.layout.internalCellOffset(nk)
			cell := t.layout.internalCellSize()
			copy(page[src+cell:end+cell], page[src:end])
		}
		setInternalKeyCount(page, nk+1)
		t.layout.setInternalKey(page, idx, leftMax)
		t.layout.setInternalChild(page, idx+1, rightNum)
		t.layout.setInternalKey(page, idx+1, oldSignpost)
	}
	t.pager.MarkDirty(parentNum)

	rightPage, err := t.getNode(rightNum)
	if err != nil {
		return err
	}
	setParentPointer(rightPage, parentNum)
	t.pager.MarkDirty(rightNum)
	return nil
}

type internalEntry struct {
	child uint32
	key   []byte
}

// splitInternalAndInsert handles a split arriving at an already-full internal
// node: entries plus the pending insertion are gathered, halved around a
// promoted signpost, and the promotion propagates upward.
func (t *Tree) splitInternalAndInsert(oldNum, leftNum uint32, leftMax []byte, rightNum uint32) error {
	oldPage, err := t.getNode(oldNum)
	if err != nil {
		return err
	}
	nk := internalKeyCount(oldPage)
	entries := make([]internalEntry, 0, nk+1)
	for i := uint32(0); i < nk; i++ {
		entries = append(entries, internalEntry{
			child: t.layout.internalChild(oldPage, i),
			key:   append([]byte(nil), t.layout.internalKey(oldPage, i)...),
		})
	}
	rightmost := internalRightChild(oldPage)
	wasRoot := isNodeRoot(oldPage)
	parent := parentPointer(oldPage)

	// Apply the pending child split in memory.
	if leftNum == rightmost {
		entries = append(entries, internalEntry{child: leftNum, key: leftMax})
		rightmost = rightNum
	} else {
		idx := -1
		for i := range entries {
			if entries[i].child == leftNum {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errors.Wrapf(dberr.ErrCorruptNode,
				"page %d: child %d not referenced by its parent", oldNum, leftNum)
		}
		oldSignpost := entries[idx].key
		entries[idx].key = leftMax
		entries = append(entries, internalEntry{})
		copy(entries[idx+2:], entries[idx+1:])
		entries[idx+1] = internalEntry{child: rightNum, key: oldSignpost}
	}

	// Halve around the middle entry; its key is promoted, its child becomes
	// the left node's rightmost.
	mid := len(entries) / 2
	promote := entries[mid].key
	leftEntries := entries[:mid]
	leftRightmost := entries[mid].child
	rightEntries := entries[mid+1:]

	newNum := t.pager.NewPage()
	newPage, err := t.pager.GetPage(newNum)
	if err != nil {
		return err
	}
	initInternal(newPage)

	t.writeInternal(oldPage, leftEntries, leftRightmost)
	t.writeInternal(newPage, rightEntries, rightmost)

	// Children moved to the new page get their parent pointer rewritten in
	// the same operation.
	for _, e := range rightEntries {
		if err := t.reparent(e.child, newNum); err != nil {
			return err
		}
	}
	if err := t.reparent(rightmost, newNum); err != nil {
		return err
	}

	t.pager.MarkDirty(oldNum)
	t.pager.MarkDirty(newNum)
	logger.Debugf("btree: split internal page %d of %s into %d", oldNum, t.pager.Path(), newNum)

	if wasRoot {
		return t.createNewRoot(oldNum, promote, newNum)
	}
	setParentPointer(newPage, parent)
	return t.insertIntoParent(parent, oldNum, promote, newNum)
}

// writeInternal rewrites an internal page body from staged entries. Header
// flags (root, parent) are left untouched.
func (t *Tree) writeInternal(page []byte, entries []internalEntry, rightmost uint32) {
	setInternalKeyCount(page, uint32(len(entries)))
	for i, e := range entries {
		t.layout.setInternalChild(page, uint32(i), e.child)
		t.layout.setInternalKey(page, uint32(i), e.key)
	}
	setInternalRightChild(page, rightmost)
}

func (t *Tree) reparent(child, parent uint32) error {
	page, err := t.getNode(child)
	if err != nil {
		return err
	}
	setParentPointer(page, parent)
	t.pager.MarkDirty(child)
	return nil
}

// createNewRoot allocates a fresh internal root whose two children are the
// split halves, and re-points the metadata root. This is the only way the
// tree grows in height.
func (t *Tree) createNewRoot(leftNum uint32, splitKey []byte, rightNum uint32) error {
	rootNum := t.pager.NewPage()
	root, err := t.pager.GetPage(rootNum)
	if err != nil {
		return err
	}
	initInternal(root)
	setNodeRoot(root, true)
	setInternalKeyCount(root, 1)
	t.layout.setInternalChild(root, 0, leftNum)
	t.layout.setInternalKey(root, 0, splitKey)
	setInternalRightChild(root, rightNum)
	t.pager.MarkDirty(rootNum)

	if err := t.reparent(leftNum, rootNum); err != nil {
		return err
	}
	leftPage, err := t.getNode(leftNum)
	if err != nil {
		return err
	}
	setNodeRoot(leftPage, false)
	if err := t.reparent(rightNum, rootNum); err != nil {
		return err
	}

	t.rootPage = rootNum
	logger.Debugf("btree: re-rooted %s at page %d", t.pager.Path(), rootNum)
	return t.saveMeta()
}
