package btree

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"BriskDB/dberr"
)

// Uint32Key encodes a primary key in the 4-byte little-endian form the
// primary tree stores.
func Uint32Key(k uint32) []byte {
	key := make([]byte, 4)
	binary.LittleEndian.PutUint32(key, k)
	return key
}

// CompareUint32 orders 4-byte little-endian keys numerically.
func CompareUint32(a, b []byte) int {
	x := binary.LittleEndian.Uint32(a)
	y := binary.LittleEndian.Uint32(b)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// formatKey renders a key for error messages: integer keys numerically,
// anything else as trimmed hex. An unset key renders as a placeholder.
func (t *Tree) formatKey(key []byte) string {
	if len(key) < t.layout.KeySize {
		return "<none>"
	}
	if t.layout.KeySize == 4 {
		return fmt.Sprintf("%d", binary.LittleEndian.Uint32(key))
	}
	return fmt.Sprintf("%x", bytes.TrimRight(key, "\x00"))
}

func keyNotFound(t *Tree, key []byte) error {
	return errors.Wrapf(dberr.ErrKeyNotFound, "key %s", t.formatKey(key))
}

func duplicateKey(t *Tree, key []byte) error {
	return errors.Wrapf(dberr.ErrDuplicateKey, "key %s", t.formatKey(key))
}
