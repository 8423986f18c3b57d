// Package btree implements the disk-backed B-Tree engine: a node codec over
// raw pages, ordered insertion with leaf and internal splits, re-rooting,
// point search and a cursor for in-order traversal. Pages move through the
// pager; this package never touches the file directly.
package btree

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"BriskDB/dberr"
	"BriskDB/logger"
	"BriskDB/pager"
)

// Metadata page (page 0) layout. The checksum covers the preceding header
// bytes so a torn or foreign file fails at open instead of mis-traversing.
const (
	metaMagic   uint32 = 0x31424442 // "BDB1"
	metaVersion uint32 = 1

	metaMagicOffset     = 0
	metaVersionOffset   = 4
	metaKeySizeOffset   = 8
	metaValueSizeOffset = 12
	metaRootPageOffset  = 16
	metaRowCountOffset  = 20
	metaChecksumOffset  = 28
)

// Options fix the geometry and ordering of one tree file.
type Options struct {
	KeySize   int
	ValueSize int

	// Compare defines the total order of keys. The primary tree uses a
	// little-endian uint32 comparator, indexes use bytes.Compare.
	Compare func(a, b []byte) int

	SyncOnFlush bool
}

// Tree is a disk-backed B-Tree of fixed-size cells. Page 0 holds metadata,
// nodes live on pages 1..N. Exactly one Tree may own a file at a time.
type Tree struct {
	pager    *pager.Pager
	layout   Layout
	cmp      func(a, b []byte) int
	rootPage uint32
	rowCount uint64
}

// Open opens or bootstraps the tree file at path. An existing file must match
// the configured key and value sizes.
func Open(path string, opts Options) (*Tree, error) {
	if opts.KeySize <= 0 || opts.ValueSize <= 0 || opts.Compare == nil {
		return nil, errors.New("btree: incomplete options")
	}
	layout := Layout{KeySize: opts.KeySize, ValueSize: opts.ValueSize}
	if layout.LeafCapacity() < 2 || layout.InternalCapacity() < 2 {
		return nil, errors.Errorf("btree: cell size %d leaves fewer than two cells per page", layout.CellSize())
	}
	p, err := pager.Open(path, opts.SyncOnFlush)
	if err != nil {
		return nil, err
	}
	t := &Tree{pager: p, layout: layout, cmp: opts.Compare}

	if p.PageCount() == 0 {
		if err := t.bootstrap(); err != nil {
			p.Close()
			return nil, err
		}
		logger.Debugf("btree: bootstrapped %s (leaf capacity %d)", path, layout.LeafCapacity())
		return t, nil
	}
	if err := t.readMeta(); err != nil {
		p.Close()
		return nil, err
	}
	logger.Debugf("btree: opened %s (root page %d, %d rows)", path, t.rootPage, t.rowCount)
	return t, nil
}

// bootstrap writes the metadata page and an empty root leaf at page 1.
func (t *Tree) bootstrap() error {
	if _, err := t.pager.GetPage(0); err != nil {
		return err
	}
	rootNum := t.pager.NewPage()
	root, err := t.pager.GetPage(rootNum)
	if err != nil {
		return err
	}
	initLeaf(root)
	setNodeRoot(root, true)
	t.pager.MarkDirty(rootNum)
	t.rootPage = rootNum
	t.rowCount = 0
	if err := t.saveMeta(); err != nil {
		return err
	}
	return t.pager.FlushAll()
}

func (t *Tree) saveMeta() error {
	meta, err := t.pager.GetPage(0)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(meta[metaMagicOffset:], metaMagic)
	binary.LittleEndian.PutUint32(meta[metaVersionOffset:], metaVersion)
	binary.LittleEndian.PutUint32(meta[metaKeySizeOffset:], uint32(t.layout.KeySize))
	binary.LittleEndian.PutUint32(meta[metaValueSizeOffset:], uint32(t.layout.ValueSize))
	binary.LittleEndian.PutUint32(meta[metaRootPageOffset:], t.rootPage)
	binary.LittleEndian.PutUint64(meta[metaRowCountOffset:], t.rowCount)
	sum := xxhash.Sum64(meta[:metaChecksumOffset])
	binary.LittleEndian.PutUint64(meta[metaChecksumOffset:], sum)
	t.pager.MarkDirty(0)
	return nil
}

func (t *Tree) readMeta() error {
	meta, err := t.pager.GetPage(0)
	if err != nil {
		return err
	}
	if got := binary.LittleEndian.Uint32(meta[metaMagicOffset:]); got != metaMagic {
		return errors.Wrapf(dberr.ErrCorruptNode, "%s: bad magic %#x", t.pager.Path(), got)
	}
	if got := binary.LittleEndian.Uint32(meta[metaVersionOffset:]); got != metaVersion {
		return errors.Wrapf(dberr.ErrCorruptNode, "%s: unsupported format version %d", t.pager.Path(), got)
	}
	sum := xxhash.Sum64(meta[:metaChecksumOffset])
	if got := binary.LittleEndian.Uint64(meta[metaChecksumOffset:]); got != sum {
		return errors.Wrapf(dberr.ErrCorruptNode, "%s: metadata checksum mismatch", t.pager.Path())
	}
	keySize := int(binary.LittleEndian.Uint32(meta[metaKeySizeOffset:]))
	valueSize := int(binary.LittleEndian.Uint32(meta[metaValueSizeOffset:]))
	if keySize != t.layout.KeySize || valueSize != t.layout.ValueSize {
		return errors.Wrapf(dberr.ErrCorruptNode,
			"%s: file geometry %d/%d does not match configured %d/%d",
			t.pager.Path(), keySize, valueSize, t.layout.KeySize, t.layout.ValueSize)
	}
	t.rootPage = binary.LittleEndian.Uint32(meta[metaRootPageOffset:])
	t.rowCount = binary.LittleEndian.Uint64(meta[metaRowCountOffset:])
	if t.rootPage == 0 || t.rootPage >= t.pager.PageCount() {
		return errors.Wrapf(dberr.ErrCorruptNode, "%s: root page %d out of range", t.pager.Path(), t.rootPage)
	}
	return nil
}

// getNode loads page n and validates it structurally as a node.
func (t *Tree) getNode(n uint32) ([]byte, error) {
	page, err := t.pager.GetPage(n)
	if err != nil {
		return nil, err
	}
	if err := t.layout.validateNode(page, n); err != nil {
		return nil, err
	}
	return page, nil
}

// RowCount reports the number of cells in the tree.
func (t *Tree) RowCount() uint64 {
	return t.rowCount
}

// Height walks from the root to the leftmost leaf and reports the level count.
func (t *Tree) Height() (int, error) {
	h := 1
	pageNum := t.rootPage
	for {
		page, err := t.getNode(pageNum)
		if err != nil {
			return 0, err
		}
		if nodeType(page) == NodeLeaf {
			return h, nil
		}
		pageNum = t.layout.internalChild(page, 0)
		h++
	}
}

// FlushAll persists every dirty page of the tree.
func (t *Tree) FlushAll() error {
	return t.pager.FlushAll()
}

// Reset abandons all unflushed in-memory state and reloads from disk.
func (t *Tree) Reset() error {
	if err := t.pager.Reset(); err != nil {
		return err
	}
	return t.readMeta()
}

// Close flushes and closes the backing file.
func (t *Tree) Close() error {
	return t.pager.Close()
}

// Path returns the backing file path.
func (t *Tree) Path() string {
	return t.pager.Path()
}
