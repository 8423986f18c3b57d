package btree

// leafCell is the in-memory form of a cell while a split is staged.
type leafCell struct {
	key   []byte
	value []byte
}

// splitLeafAndInsert splits a full leaf: all cells plus the new one are
// gathered, the lower half (by count) stays on the old page, the upper half
// moves to a fresh page, and the left max propagates to the parent as a new
// signpost.
func (t *Tree) splitLeafAndInsert(oldNum uint32, key, value []byte) error {
	oldPage, err := t.getNode(oldNum)
	if err != nil {
		return err
	}
	n := leafCellCount(oldPage)
	cells := make([]leafCell, 0, n+1)
	for i := uint32(0); i < n; i++ {
		cells = append(cells, leafCell{
			key:   append([]byte(nil), t.layout.leafKey(oldPage, i)...),
			value: append([]byte(nil), t.layout.leafValue(oldPage, i)...),
		})
	}
	slot := len(cells)
	for i, c := range cells {
		if t.cmp(c.key, key) > 0 {
			slot = i
			break
		}
	}
	cells = append(cells, leafCell{})
	copy(cells[slot+1:], cells[slot:])
	cells[slot] = leafCell{key: key, value: value}

	wasRoot := isNodeRoot(oldPage)
	parent := parentPointer(oldPage)

	newNum := t.pager.NewPage()
	newPage, err := t.pager.GetPage(newNum)
	if err != nil {
		return err
	}
	initLeaf(newPage)

	leftCount := (len(cells) + 1) / 2
	for i := 0; i < leftCount; i++ {
		t.layout.writeLeafCell(oldPage, uint32(i), cells[i].key, cells[i].value)
	}
	setLeafCellCount(oldPage, uint32(leftCount))
	for i := leftCount; i < len(cells); i++ {
		t.layout.writeLeafCell(newPage, uint32(i-leftCount), cells[i].key, cells[i].value)
	}
	setLeafCellCount(newPage, uint32(len(cells)-leftCount))

	t.pager.MarkDirty(oldNum)
	t.pager.MarkDirty(newNum)

	leftMax := cells[leftCount-1].key
	if wasRoot {
		return t.createNewRoot(oldNum, leftMax, newNum)
	}
	setParentPointer(newPage, parent)
	return t.insertIntoParent(parent, oldNum, leftMax, newNum)
}
