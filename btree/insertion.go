package btree

import "github.com/pkg/errors"

// Insert stores value under key. An existing key fails with ErrDuplicateKey
// and leaves the tree unchanged; a full leaf splits.
func (t *Tree) Insert(key, value []byte) error {
	if len(key) != t.layout.KeySize {
		return errors.Errorf("btree: key length %d, want %d", len(key), t.layout.KeySize)
	}
	if len(value) > t.layout.ValueSize {
		return errors.Errorf("btree: value length %d exceeds %d", len(value), t.layout.ValueSize)
	}
	leafNum, err := t.findLeaf(key)
	if err != nil {
		return err
	}
	page, err := t.getNode(leafNum)
	if err != nil {
		return err
	}
	slot, found := t.leafFind(page, key)
	if found {
		return duplicateKey(t, key)
	}

	n := leafCellCount(page)
	if int(n) >= t.layout.LeafCapacity() {
		if err := t.splitLeafAndInsert(leafNum, key, value); err != nil {
			return err
		}
	} else {
		t.leafInsertAt(page, slot, n, key, value)
		t.pager.MarkDirty(leafNum)
	}

	t.rowCount++
	return t.saveMeta()
}

// leafInsertAt shifts cells [slot, n) up by one cell width in a single
// contiguous move and writes the new cell into the freed slot.
func (t *Tree) leafInsertAt(page []byte, slot, n uint32, key, value []byte) {
	if slot < n {
		src := t.layout.leafCellOffset(slot)
		end := t.layout.leafCellOffset(n)
		dst := src + t.layout.CellSize()
		copy(page[dst:end+t.layout.CellSize()], page[src:end])
	}
	t.layout.writeLeafCell(page, slot, key, value)
	setLeafCellCount(page, n+1)
}
