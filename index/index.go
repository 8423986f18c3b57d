// Package index implements secondary indexes: a second pager+B-Tree pair per
// index, keyed by an indexed column's value and carrying the primary key of
// the row. Because one value may map to many rows, the tree key is the value
// bytes followed by the big-endian primary key, which gives duplicates a
// defined total order and distinct tree keys.
package index

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"BriskDB/btree"
	"BriskDB/dberr"
	"BriskDB/logger"
)

const (
	// ValueBytes is the fixed width of an encoded column value. Longer text
	// values are truncated, shorter ones zero-padded.
	ValueBytes = 60

	// KeySize is ValueBytes plus the big-endian primary key suffix.
	KeySize = ValueBytes + 4

	payloadSize = 4
)

// Index is one secondary index over a single column of a table.
type Index struct {
	Name      string
	TableName string
	Column    string
	Unique    bool

	tree *btree.Tree
	path string
}

// Open opens or bootstraps the index file at path.
func Open(path, name, tableName, column string, unique, syncOnFlush bool) (*Index, error) {
	tree, err := btree.Open(path, btree.Options{
		KeySize:     KeySize,
		ValueSize:   payloadSize,
		Compare:     bytes.Compare,
		SyncOnFlush: syncOnFlush,
	})
	if err != nil {
		return nil, err
	}
	return &Index{
		Name:      name,
		TableName: tableName,
		Column:    column,
		Unique:    unique,
		tree:      tree,
		path:      path,
	}, nil
}

// IntegerValue encodes an integer column value. Big-endian with the sign bit
// flipped, so bytes.Compare matches numeric order for negative values too.
func IntegerValue(v int32) []byte {
	out := make([]byte, ValueBytes)
	binary.BigEndian.PutUint32(out, uint32(v)^(1<<31))
	return out
}

// TextValue encodes a text column value, truncated to ValueBytes.
func TextValue(s string) []byte {
	out := make([]byte, ValueBytes)
	copy(out, s)
	return out
}

func composeKey(value []byte, pk uint32) []byte {
	key := make([]byte, KeySize)
	copy(key, value)
	binary.BigEndian.PutUint32(key[ValueBytes:], pk)
	return key
}

// Insert adds an entry mapping value to pk. A UNIQUE index rejects a second
// entry for the same value with ErrUniqueConstraintViolation, checked by a
// lookup before the insert.
func (ix *Index) Insert(value []byte, pk uint32) error {
	if ix.Unique {
		existing, err := ix.Lookup(value)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return errors.Wrapf(dberr.ErrUniqueConstraintViolation,
				"index %s on %s.%s", ix.Name, ix.TableName, ix.Column)
		}
	}
	payload := make([]byte, payloadSize)
	binary.LittleEndian.PutUint32(payload, pk)
	return ix.tree.Insert(composeKey(value, pk), payload)
}

// Delete removes the entry for (value, pk). A missing entry is not an error;
// the index converges to the table state either way.
func (ix *Index) Delete(value []byte, pk uint32) error {
	err := ix.tree.Delete(composeKey(value, pk))
	if errors.Is(err, dberr.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Lookup returns the primary keys of every row whose indexed value equals
// value, in primary-key order.
func (ix *Index) Lookup(value []byte) ([]uint32, error) {
	cur, err := ix.tree.SeekGE(composeKey(value, 0))
	if err != nil {
		return nil, err
	}
	var pks []uint32
	for !cur.EndOfTable() {
		key, payload, err := cur.KeyValue()
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(key[:ValueBytes], value) {
			break
		}
		pks = append(pks, binary.LittleEndian.Uint32(payload))
		if _, err := cur.Advance(); err != nil {
			return nil, err
		}
	}
	return pks, nil
}

// Entry is one row's contribution to the index during a build.
type Entry struct {
	Value []byte
	PK    uint32
}

// Build populates a fresh index from existing table rows. On a uniqueness
// violation the caller is expected to Remove the half-built index.
func (ix *Index) Build(entries []Entry) error {
	for _, e := range entries {
		if err := ix.Insert(e.Value, e.PK); err != nil {
			return err
		}
	}
	logger.Debugf("index: built %s with %d entries", ix.path, len(entries))
	return ix.tree.FlushAll()
}

// FlushAll persists every dirty page of the index.
func (ix *Index) FlushAll() error {
	return ix.tree.FlushAll()
}

// Reset abandons unflushed in-memory state and reloads from disk.
func (ix *Index) Reset() error {
	return ix.tree.Reset()
}

// Close flushes and closes the index file.
func (ix *Index) Close() error {
	return ix.tree.Close()
}

// Remove closes the index and deletes its file.
func (ix *Index) Remove() error {
	if err := ix.tree.Close(); err != nil {
		os.Remove(ix.path)
		return err
	}
	if err := os.Remove(ix.path); err != nil {
		return errors.Wrapf(dberr.ErrPageIO, "remove %s: %v", ix.path, err)
	}
	return nil
}

// Path returns the backing file path.
func (ix *Index) Path() string {
	return ix.path
}
