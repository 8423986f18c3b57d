// Node codec: packs and unpacks node headers and cells at fixed byte offsets
// inside a raw 4096-byte page. Everything is little-endian with no implicit
// padding; the layout below is the on-disk contract and must round-trip
// exactly across process restarts.
//
// Common header (both node kinds):
//   - nodeType(1), isRoot(1), parent(4)
// Leaf node:
//   - header: common + cellCount(4)
//   - cells:  key(KeySize) + value(ValueSize), contiguous, sorted by key
// Internal node:
//   - header: common + keyCount(4) + rightChild(4)
//   - cells:  child(4) + signpost key(KeySize), where each signpost is the
//     maximum key in the subtree rooted at the child to its left

package btree

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"BriskDB/dberr"
	"BriskDB/pager"
)

type NodeType byte

const (
	NodeInternal NodeType = 0
	NodeLeaf     NodeType = 1
)

const (
	nodeTypeOffset   = 0
	isRootOffset     = 1
	parentOffset     = 2
	commonHeaderSize = 6

	leafCellCountOffset = commonHeaderSize
	leafHeaderSize      = commonHeaderSize + 4

	internalKeyCountOffset   = commonHeaderSize
	internalRightChildOffset = commonHeaderSize + 4
	internalHeaderSize       = commonHeaderSize + 8

	internalChildSize = 4
)

// Layout fixes the cell geometry of one tree. The same codec serves the
// primary tree (4-byte integer keys, row payloads) and secondary indexes
// (64-byte text keys, primary-key payloads).
type Layout struct {
	KeySize   int
	ValueSize int
}

// CellSize is the fixed byte width of one leaf cell.
func (l Layout) CellSize() int {
	return l.KeySize + l.ValueSize
}

// LeafCapacity is the number of cells that fit in one leaf page.
func (l Layout) LeafCapacity() int {
	return (pager.PageSize - leafHeaderSize) / l.CellSize()
}

func (l Layout) internalCellSize() int {
	return internalChildSize + l.KeySize
}

// InternalCapacity is the number of {child, signpost} cells that fit in one
// internal page, not counting the rightmost child.
func (l Layout) InternalCapacity() int {
	return (pager.PageSize - internalHeaderSize) / l.internalCellSize()
}

// --- common header ---

func nodeType(page []byte) NodeType {
	return NodeType(page[nodeTypeOffset])
}

func setNodeType(page []byte, t NodeType) {
	page[nodeTypeOffset] = byte(t)
}

func isNodeRoot(page []byte) bool {
	return page[isRootOffset] != 0
}

func setNodeRoot(page []byte, root bool) {
	if root {
		page[isRootOffset] = 1
	} else {
		page[isRootOffset] = 0
	}
}

func parentPointer(page []byte) uint32 {
	return binary.LittleEndian.Uint32(page[parentOffset:])
}

func setParentPointer(page []byte, parent uint32) {
	binary.LittleEndian.PutUint32(page[parentOffset:], parent)
}

// --- leaf nodes ---

func initLeaf(page []byte) {
	setNodeType(page, NodeLeaf)
	setNodeRoot(page, false)
	setParentPointer(page, 0)
	setLeafCellCount(page, 0)
}

func leafCellCount(page []byte) uint32 {
	return binary.LittleEndian.Uint32(page[leafCellCountOffset:])
}

func setLeafCellCount(page []byte, n uint32) {
	binary.LittleEndian.PutUint32(page[leafCellCountOffset:], n)
}

func (l Layout) leafCellOffset(i uint32) int {
	return leafHeaderSize + int(i)*l.CellSize()
}

// leafKey returns a view into the page; callers copy before holding on to it.
func (l Layout) leafKey(page []byte, i uint32) []byte {
	off := l.leafCellOffset(i)
	return page[off : off+l.KeySize]
}

func (l Layout) leafValue(page []byte, i uint32) []byte {
	off := l.leafCellOffset(i) + l.KeySize
	return page[off : off+l.ValueSize]
}

func (l Layout) writeLeafCell(page []byte, i uint32, key, value []byte) {
	off := l.leafCellOffset(i)
	copy(page[off:off+l.KeySize], key)
	payload := page[off+l.KeySize : off+l.CellSize()]
	for j := range payload {
		payload[j] = 0
	}
	copy(payload, value)
}

// --- internal nodes ---

func initInternal(page []byte) {
	setNodeType(page, NodeInternal)
	setNodeRoot(page, false)
	setParentPointer(page, 0)
	setInternalKeyCount(page, 0)
	setInternalRightChild(page, 0)
}

func internalKeyCount(page []byte) uint32 {
	return binary.LittleEndian.Uint32(page[internalKeyCountOffset:])
}

func setInternalKeyCount(page []byte, n uint32) {
	binary.LittleEndian.PutUint32(page[internalKeyCountOffset:], n)
}

func internalRightChild(page []byte) uint32 {
	return binary.LittleEndian.Uint32(page[internalRightChildOffset:])
}

func setInternalRightChild(page []byte, child uint32) {
	binary.LittleEndian.PutUint32(page[internalRightChildOffset:], child)
}

func (l Layout) internalCellOffset(i uint32) int {
	return internalHeaderSize + int(i)*l.internalCellSize()
}

// internalChild returns child pointer i; index keyCount is the rightmost child.
func (l Layout) internalChild(page []byte, i uint32) uint32 {
	if i == internalKeyCount(page) {
		return internalRightChild(page)
	}
	return binary.LittleEndian.Uint32(page[l.internalCellOffset(i):])
}

func (l Layout) setInternalChild(page []byte, i uint32, child uint32) {
	if i == internalKeyCount(page) {
		setInternalRightChild(page, child)
		return
	}
	binary.LittleEndian.PutUint32(page[l.internalCellOffset(i):], child)
}

func (l Layout) internalKey(page []byte, i uint32) []byte {
	off := l.internalCellOffset(i) + internalChildSize
	return page[off : off+l.KeySize]
}

func (l Layout) setInternalKey(page []byte, i uint32, key []byte) {
	off := l.internalCellOffset(i) + internalChildSize
	dst := page[off : off+l.KeySize]
	for j := range dst {
		dst[j] = 0
	}
	copy(dst, key)
}

// validateNode is the defensive structural check applied when a page is read
// as a node. It never repairs; corruption aborts the operation.
func (l Layout) validateNode(page []byte, pageNum uint32) error {
	switch nodeType(page) {
	case NodeLeaf:
		if int(leafCellCount(page)) > l.LeafCapacity() {
			return errors.Wrapf(dberr.ErrCorruptNode,
				"page %d: leaf cell count %d exceeds capacity %d",
				pageNum, leafCellCount(page), l.LeafCapacity())
		}
	case NodeInternal:
		if int(internalKeyCount(page)) > l.InternalCapacity() {
			return errors.Wrapf(dberr.ErrCorruptNode,
				"page %d: internal key count %d exceeds capacity %d",
				pageNum, internalKeyCount(page), l.InternalCapacity())
		}
	default:
		return errors.Wrapf(dberr.ErrCorruptNode,
			"page %d: unknown node type tag %d", pageNum, page[nodeTypeOffset])
	}
	return nil
}
