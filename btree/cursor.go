package btree

// Cursor identifies a position {page, cell} in the tree. It owns no node
// data; structural mutation invalidates open cursors, so mutating operations
// hand back fresh positions instead of reusing them.
//
// A cursor sits either on a live row or at an insertion point (a Search
// miss). Only the former yields a row from KeyValue; Advance from an
// insertion point moves to the first key past the probe without skipping the
// cell occupying the slot. End-of-leaf is a valid insertion-point position.
//
// Leaves carry no sibling pointers. Crossing a leaf boundary re-descends from
// the root for the first key strictly greater than the last key seen, which
// stays correct even when deletes have left stale-high signposts behind:
// descent simply falls through to later children.
type Cursor struct {
	tree    *Tree
	page    uint32
	cell    uint32
	lastKey []byte
	onRow   bool
	end     bool
}

type position struct {
	page uint32
	cell uint32
}

// Start returns a cursor at the first cell of the leftmost non-empty leaf.
func (t *Tree) Start() (*Cursor, error) {
	pos, ok, err := t.seekFirst(t.rootPage)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Cursor{tree: t, end: true}, nil
	}
	c := &Cursor{tree: t, page: pos.page, cell: pos.cell, onRow: true}
	page, err := t.getNode(pos.page)
	if err != nil {
		return nil, err
	}
	c.rememberKey(page)
	return c, nil
}

func (t *Tree) seekFirst(pageNum uint32) (position, bool, error) {
	page, err := t.getNode(pageNum)
	if err != nil {
		return position{}, false, err
	}
	if nodeType(page) == NodeLeaf {
		if leafCellCount(page) == 0 {
			return position{}, false, nil
		}
		return position{page: pageNum, cell: 0}, true, nil
	}
	nk := internalKeyCount(page)
	for i := uint32(0); i <= nk; i++ {
		pos, ok, err := t.seekFirst(t.layout.internalChild(page, i))
		if err != nil || ok {
			return pos, ok, err
		}
	}
	return position{}, false, nil
}

// seekBeyond finds the first cell whose key is greater than key (strict) or
// greater-or-equal (non-strict). Children whose signpost rules them out are
// skipped; the remaining children are probed left to right, so the search
// stays correct even with stale-high signposts.
func (t *Tree) seekBeyond(pageNum uint32, key []byte, strict bool) (position, bool, error) {
	page, err := t.getNode(pageNum)
	if err != nil {
		return position{}, false, err
	}
	bound := 0
	if strict {
		bound = 1
	}
	if nodeType(page) == NodeLeaf {
		min, max := uint32(0), leafCellCount(page)
		for min < max {
			mid := (min + max) / 2
			if t.cmp(t.layout.leafKey(page, mid), key) >= bound {
				max = mid
			} else {
				min = mid + 1
			}
		}
		if min >= leafCellCount(page) {
			return position{}, false, nil
		}
		return position{page: pageNum, cell: min}, true, nil
	}
	nk := internalKeyCount(page)
	start := uint32(0)
	for start < nk && t.cmp(t.layout.internalKey(page, start), key) < bound {
		start++
	}
	for i := start; i <= nk; i++ {
		pos, ok, err := t.seekBeyond(t.layout.internalChild(page, i), key, strict)
		if err != nil || ok {
			return pos, ok, err
		}
	}
	return position{}, false, nil
}

// SeekGE returns a cursor at the first cell with key >= target, or an
// exhausted cursor when no such cell exists.
func (t *Tree) SeekGE(target []byte) (*Cursor, error) {
	pos, ok, err := t.seekBeyond(t.rootPage, target, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Cursor{tree: t, end: true}, nil
	}
	c := &Cursor{tree: t, page: pos.page, cell: pos.cell, onRow: true}
	page, err := t.getNode(pos.page)
	if err != nil {
		return nil, err
	}
	c.rememberKey(page)
	return c, nil
}

func (c *Cursor) rememberKey(page []byte) {
	c.lastKey = append(c.lastKey[:0], c.tree.layout.leafKey(page, c.cell)...)
}

// EndOfTable reports whether the cursor has run past the last cell.
func (c *Cursor) EndOfTable() bool {
	return c.end
}

// KeyValue reads the cell at the current position without touching tree
// structure. Both slices are copies. An insertion-point position holds no
// row and reports ErrKeyNotFound.
func (c *Cursor) KeyValue() ([]byte, []byte, error) {
	if c.end {
		return nil, nil, keyNotFound(c.tree, c.lastKey)
	}
	page, err := c.tree.getNode(c.page)
	if err != nil {
		return nil, nil, err
	}
	if !c.onRow || c.cell >= leafCellCount(page) {
		return nil, nil, keyNotFound(c.tree, c.lastKey)
	}
	key := append([]byte(nil), c.tree.layout.leafKey(page, c.cell)...)
	value := append([]byte(nil), c.tree.layout.leafValue(page, c.cell)...)
	return key, value, nil
}

// Advance moves to the next cell in key order, re-descending from the root
// when the current leaf is exhausted. From an insertion point the cell at the
// slot is the next row, so the position is not incremented past it. Reports
// false at end of table.
func (c *Cursor) Advance() (bool, error) {
	if c.end {
		return false, nil
	}
	page, err := c.tree.getNode(c.page)
	if err != nil {
		return false, err
	}
	if c.onRow {
		c.cell++
	}
	if c.cell < leafCellCount(page) {
		c.onRow = true
		c.rememberKey(page)
		return true, nil
	}
	// lastKey is the last row read, or the probe key of a Search miss;
	// either way the next row is the first key strictly greater than it.
	pos, ok, err := c.tree.seekBeyond(c.tree.rootPage, c.lastKey, true)
	if err != nil {
		return false, err
	}
	if !ok {
		c.end = true
		return false, nil
	}
	c.page = pos.page
	c.cell = pos.cell
	c.onRow = true
	next, err := c.tree.getNode(c.page)
	if err != nil {
		return false, err
	}
	c.rememberKey(next)
	return true, nil
}
