package btree

// findLeaf descends from the root to the leaf whose key range covers key.
func (t *Tree) findLeaf(key []byte) (uint32, error) {
	pageNum := t.rootPage
	for {
		page, err := t.getNode(pageNum)
		if err != nil {
			return 0, err
		}
		if nodeType(page) == NodeLeaf {
			return pageNum, nil
		}
		pageNum = t.layout.internalChild(page, t.internalFindChild(page, key))
	}
}

// internalFindChild binary-searches the signposts for the leftmost one >= key.
// A key greater than every signpost descends to the rightmost child.
func (t *Tree) internalFindChild(page []byte, key []byte) uint32 {
	min, max := uint32(0), internalKeyCount(page)
	for min < max {
		mid := (min + max) / 2
		if t.cmp(t.layout.internalKey(page, mid), key) >= 0 {
			max = mid
		} else {
			min = mid + 1
		}
	}
	return min
}

// leafFind binary-searches the cells of a leaf. It returns either the exact
// cell index (found) or the index where key would be inserted, so callers need
// no second traversal.
func (t *Tree) leafFind(page []byte, key []byte) (uint32, bool) {
	min, max := uint32(0), leafCellCount(page)
	for min < max {
		mid := (min + max) / 2
		switch c := t.cmp(key, t.layout.leafKey(page, mid)); {
		case c == 0:
			return mid, true
		case c < 0:
			max = mid
		default:
			min = mid + 1
		}
	}
	return min, false
}

// Search positions a cursor at key, or at its insertion point when absent.
// The boolean reports an exact match. End-of-leaf is a valid position; a
// miss cursor reads as no-row and advances to the first key past the probe.
func (t *Tree) Search(key []byte) (*Cursor, bool, error) {
	leafNum, err := t.findLeaf(key)
	if err != nil {
		return nil, false, err
	}
	page, err := t.getNode(leafNum)
	if err != nil {
		return nil, false, err
	}
	cell, found := t.leafFind(page, key)
	c := &Cursor{tree: t, page: leafNum, cell: cell, onRow: found}
	if found {
		c.rememberKey(page)
	} else {
		c.lastKey = append([]byte(nil), key...)
	}
	return c, found, nil
}

// Get is the point lookup: the value stored under key, or ErrKeyNotFound.
func (t *Tree) Get(key []byte) ([]byte, error) {
	cur, found, err := t.Search(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, keyNotFound(t, key)
	}
	_, value, err := cur.KeyValue()
	return value, err
}
