package btree

// Delete removes key from its leaf by shifting the cells above it down one
// cell width. Underflowed leaves are not merged or redistributed; that is a
// documented extension point. Parent signposts are left as-is — they may go
// stale-high, which traversal tolerates.
func (t *Tree) Delete(key []byte) error {
	leafNum, err := t.findLeaf(key)
	if err != nil {
		return err
	}
	page, err := t.getNode(leafNum)
	if err != nil {
		return err
	}
	slot, found := t.leafFind(page, key)
	if !found {
		return keyNotFound(t, key)
	}

	n := leafCellCount(page)
	if slot < n-1 {
		src := t.layout.leafCellOffset(slot + 1)
		end := t.layout.leafCellOffset(n)
		dst := t.layout.leafCellOffset(slot)
		copy(page[dst:], page[src:end])
	}
	setLeafCellCount(page, n-1)
	t.pager.MarkDirty(leafNum)

	t.rowCount--
	return t.saveMeta()
}
