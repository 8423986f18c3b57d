// Tree file inspection for debugging. InspectFile prints a human-readable
// dump of any tree file; the geometry is read from the metadata page, so no
// schema knowledge is needed.

package btree

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"BriskDB/dberr"
	"BriskDB/pager"
)

// InspectFile writes a dump of the tree file at path to w: the metadata page,
// then each node level by level with its keys.
func InspectFile(w io.Writer, path string) error {
	p, err := pager.Open(path, false)
	if err != nil {
		return err
	}
	defer p.Close()

	meta, err := p.GetPage(0)
	if err != nil {
		return err
	}
	if got := binary.LittleEndian.Uint32(meta[metaMagicOffset:]); got != metaMagic {
		return errors.Wrapf(dberr.ErrCorruptNode, "%s: bad magic %#x", path, got)
	}
	if sum := xxhash.Sum64(meta[:metaChecksumOffset]); sum != binary.LittleEndian.Uint64(meta[metaChecksumOffset:]) {
		return errors.Wrapf(dberr.ErrCorruptNode, "%s: metadata checksum mismatch", path)
	}
	layout := Layout{
		KeySize:   int(binary.LittleEndian.Uint32(meta[metaKeySizeOffset:])),
		ValueSize: int(binary.LittleEndian.Uint32(meta[metaValueSizeOffset:])),
	}
	root := binary.LittleEndian.Uint32(meta[metaRootPageOffset:])
	rows := binary.LittleEndian.Uint64(meta[metaRowCountOffset:])

	fmt.Fprintf(w, "file: %s\n", path)
	fmt.Fprintf(w, "  page 0 (meta): key size %d, value size %d, root page %d, %d rows\n",
		layout.KeySize, layout.ValueSize, root, rows)
	fmt.Fprintf(w, "  leaf capacity %d, internal capacity %d\n",
		layout.LeafCapacity(), layout.InternalCapacity())

	queue := []uint32{root}
	level := 0
	for len(queue) > 0 {
		fmt.Fprintf(w, "  level %d:\n", level)
		var next []uint32
		for _, pageNum := range queue {
			page, err := p.GetPage(pageNum)
			if err != nil {
				return err
			}
			if err := layout.validateNode(page, pageNum); err != nil {
				return err
			}
			switch nodeType(page) {
			case NodeLeaf:
				n := leafCellCount(page)
				fmt.Fprintf(w, "    [page %d] leaf, %d cells, parent %d:",
					pageNum, n, parentPointer(page))
				for i := uint32(0); i < n; i++ {
					fmt.Fprintf(w, " %s", formatKeyBytes(layout, layout.leafKey(page, i)))
				}
				fmt.Fprintln(w)
			case NodeInternal:
				nk := internalKeyCount(page)
				fmt.Fprintf(w, "    [page %d] internal, %d keys, parent %d:",
					pageNum, nk, parentPointer(page))
				for i := uint32(0); i < nk; i++ {
					child := layout.internalChild(page, i)
					fmt.Fprintf(w, " (%d)<=%s", child, formatKeyBytes(layout, layout.internalKey(page, i)))
					next = append(next, child)
				}
				right := internalRightChild(page)
				fmt.Fprintf(w, " (%d)\n", right)
				next = append(next, right)
			}
		}
		queue = next
		level++
	}
	return nil
}

func formatKeyBytes(l Layout, key []byte) string {
	if l.KeySize == 4 {
		return fmt.Sprintf("%d", binary.LittleEndian.Uint32(key))
	}
	trimmed := key
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == 0 {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return fmt.Sprintf("%q", trimmed)
}
