package table

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"

	"BriskDB/btree"
	"BriskDB/dberr"
	"BriskDB/index"
	"BriskDB/logger"
)

// Row is one decoded row with its primary key.
type Row struct {
	Key    uint32
	Values []interface{}
}

// Options tune one table handle.
type Options struct {
	// RowCacheEntries bounds the read-through row cache. Zero disables it.
	RowCacheEntries int64
	SyncOnFlush     bool
}

// Table owns the primary tree of one table, its secondary indexes and a
// read-through row cache. Exactly one Table may own a data file at a time.
type Table struct {
	Name   string
	Schema *Schema

	dir  string
	opts Options

	tree    *btree.Tree
	indexes map[string]*index.Index

	// rowCache caches encoded rows by primary key. The cache holds only
	// derived, re-loadable bytes; the pager stays the authoritative owner of
	// page state. Invalidation waits for ristretto's buffers to drain so a
	// stale row can never be served after a mutation.
	rowCache *ristretto.Cache[uint64, []byte]
}

// Open opens or creates the table's data file under dir as <name>.db.
func Open(dir, name string, schema *Schema, opts Options) (*Table, error) {
	path := filepath.Join(dir, name+".db")
	tree, err := btree.Open(path, btree.Options{
		KeySize:     4,
		ValueSize:   schema.RowSize,
		Compare:     btree.CompareUint32,
		SyncOnFlush: opts.SyncOnFlush,
	})
	if err != nil {
		return nil, err
	}
	t := &Table{
		Name:    name,
		Schema:  schema,
		dir:     dir,
		opts:    opts,
		tree:    tree,
		indexes: make(map[string]*index.Index),
	}
	if opts.RowCacheEntries > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
			NumCounters: opts.RowCacheEntries * 10,
			MaxCost:     opts.RowCacheEntries,
			BufferItems: 64,
		})
		if err != nil {
			tree.Close()
			return nil, errors.Wrap(err, "row cache")
		}
		t.rowCache = cache
	}
	return t, nil
}

// Exists reports whether key is present, without reading the row.
func (t *Table) Exists(key uint32) (bool, error) {
	_, found, err := t.tree.Search(btree.Uint32Key(key))
	return found, err
}

// Insert encodes values and stores them under key, maintaining every index.
func (t *Table) Insert(key uint32, values []interface{}) error {
	row, err := t.Schema.EncodeRow(values)
	if err != nil {
		return err
	}
	return t.InsertEncoded(key, row)
}

// InsertEncoded stores an already-encoded row. Uniqueness of every UNIQUE
// index is checked before the primary tree is touched, so a rejected insert
// leaves both the tree and the indexes unchanged.
func (t *Table) InsertEncoded(key uint32, row []byte) error {
	for _, ix := range t.Indexes() {
		if !ix.Unique {
			continue
		}
		value, err := t.indexValueFromRow(row, ix.Column)
		if err != nil {
			return err
		}
		existing, err := ix.Lookup(value)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return errors.Wrapf(dberr.ErrUniqueConstraintViolation,
				"index %s on %s.%s", ix.Name, t.Name, ix.Column)
		}
	}
	if err := t.tree.Insert(btree.Uint32Key(key), row); err != nil {
		return err
	}
	for _, ix := range t.Indexes() {
		value, err := t.indexValueFromRow(row, ix.Column)
		if err != nil {
			return err
		}
		if err := ix.Insert(value, key); err != nil {
			return err
		}
	}
	t.invalidate(key)
	return nil
}

// FindEncoded returns the encoded row stored under key.
func (t *Table) FindEncoded(key uint32) ([]byte, error) {
	if t.rowCache != nil {
		if row, ok := t.rowCache.Get(uint64(key)); ok {
			return row, nil
		}
	}
	row, err := t.tree.Get(btree.Uint32Key(key))
	if err != nil {
		return nil, err
	}
	if t.rowCache != nil {
		t.rowCache.Set(uint64(key), row, 1)
	}
	return row, nil
}

// Find returns the decoded row stored under key.
func (t *Table) Find(key uint32) ([]interface{}, error) {
	row, err := t.FindEncoded(key)
	if err != nil {
		return nil, err
	}
	return t.Schema.DecodeRow(row)
}

// Scan returns every row in strictly increasing key order.
func (t *Table) Scan() ([]Row, error) {
	cur, err := t.tree.Start()
	if err != nil {
		return nil, err
	}
	var rows []Row
	for !cur.EndOfTable() {
		keyBytes, rowBytes, err := cur.KeyValue()
		if err != nil {
			return nil, err
		}
		values, err := t.Schema.DecodeRow(rowBytes)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{Key: decodeKey(keyBytes), Values: values})
		if _, err := cur.Advance(); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Delete removes the row under key and its entries from every index.
func (t *Table) Delete(key uint32) error {
	row, err := t.tree.Get(btree.Uint32Key(key))
	if err != nil {
		return err
	}
	if err := t.tree.Delete(btree.Uint32Key(key)); err != nil {
		return err
	}
	for _, ix := range t.Indexes() {
		value, err := t.indexValueFromRow(row, ix.Column)
		if err != nil {
			return err
		}
		if err := ix.Delete(value, key); err != nil {
			return err
		}
	}
	t.invalidate(key)
	return nil
}

// CreateIndex builds a secondary index over column from the current rows.
// A duplicate value during a UNIQUE build fails the creation and removes the
// half-built index file.
func (t *Table) CreateIndex(name, column string, unique bool) error {
	if _, exists := t.indexes[name]; exists {
		return errors.Errorf("index %s already exists on table %s", name, t.Name)
	}
	col, ok := t.Schema.Column(column)
	if !ok {
		return errors.Errorf("table %s has no column %s", t.Name, column)
	}
	path := filepath.Join(t.dir, fmt.Sprintf("%s_%s.idx", t.Name, name))
	ix, err := index.Open(path, name, t.Name, col.Name, unique, t.opts.SyncOnFlush)
	if err != nil {
		return err
	}

	entries, err := t.indexEntries(col)
	if err != nil {
		ix.Remove()
		return err
	}
	if err := ix.Build(entries); err != nil {
		ix.Remove()
		return err
	}
	t.indexes[name] = ix
	logger.Infof("table %s: created index %s on %s (unique=%v)", t.Name, name, column, unique)
	return nil
}

func (t *Table) indexEntries(col Column) ([]index.Entry, error) {
	cur, err := t.tree.Start()
	if err != nil {
		return nil, err
	}
	var entries []index.Entry
	for !cur.EndOfTable() {
		keyBytes, rowBytes, err := cur.KeyValue()
		if err != nil {
			return nil, err
		}
		value, err := t.indexValueFromRow(rowBytes, col.Name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, index.Entry{Value: value, PK: decodeKey(keyBytes)})
		if _, err := cur.Advance(); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// DropIndex removes the index and its file.
func (t *Table) DropIndex(name string) error {
	ix, ok := t.indexes[name]
	if !ok {
		return errors.Errorf("table %s has no index %s", t.Name, name)
	}
	delete(t.indexes, name)
	return ix.Remove()
}

// Index looks an index up by name.
func (t *Table) Index(name string) (*index.Index, bool) {
	ix, ok := t.indexes[name]
	return ix, ok
}

// Indexes returns the table's indexes in name order.
func (t *Table) Indexes() []*index.Index {
	names := make([]string, 0, len(t.indexes))
	for name := range t.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*index.Index, len(names))
	for i, name := range names {
		out[i] = t.indexes[name]
	}
	return out
}

// IndexLookup returns the primary keys matching value in the named index.
func (t *Table) IndexLookup(name string, value interface{}) ([]uint32, error) {
	ix, ok := t.indexes[name]
	if !ok {
		return nil, errors.Errorf("table %s has no index %s", t.Name, name)
	}
	col, _ := t.Schema.Column(ix.Column)
	encoded, err := encodeIndexValue(col, value)
	if err != nil {
		return nil, err
	}
	return ix.Lookup(encoded)
}

// EncodeIndexValue encodes a column value the way the column's indexes key
// it. Used by callers that validate staged writes against pending state.
func (t *Table) EncodeIndexValue(column string, value interface{}) ([]byte, error) {
	col, ok := t.Schema.Column(column)
	if !ok {
		return nil, errors.Errorf("table %s has no column %s", t.Name, column)
	}
	return encodeIndexValue(col, value)
}

func (t *Table) indexValueFromRow(row []byte, column string) ([]byte, error) {
	col, ok := t.Schema.Column(column)
	if !ok {
		return nil, errors.Errorf("table %s has no column %s", t.Name, column)
	}
	return encodeIndexValue(col, t.Schema.columnValue(row, col))
}

func encodeIndexValue(col Column, value interface{}) ([]byte, error) {
	switch col.Type {
	case TypeInteger:
		n, err := toInt32(value)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", col.Name)
		}
		return index.IntegerValue(n), nil
	default:
		str, ok := value.(string)
		if !ok {
			return nil, errors.Errorf("column %s: expected string, got %T", col.Name, value)
		}
		return index.TextValue(str), nil
	}
}

func (t *Table) invalidate(key uint32) {
	if t.rowCache == nil {
		return
	}
	t.rowCache.Del(uint64(key))
	t.rowCache.Wait()
}

// RowCount reports the number of rows.
func (t *Table) RowCount() uint64 {
	return t.tree.RowCount()
}

// FlushAll persists the primary tree and every index.
func (t *Table) FlushAll() error {
	if err := t.tree.FlushAll(); err != nil {
		return err
	}
	for _, ix := range t.Indexes() {
		if err := ix.FlushAll(); err != nil {
			return err
		}
	}
	return nil
}

// Reset abandons all unflushed in-memory state of the table and its indexes
// and reloads from disk.
func (t *Table) Reset() error {
	if err := t.tree.Reset(); err != nil {
		return err
	}
	for _, ix := range t.Indexes() {
		if err := ix.Reset(); err != nil {
			return err
		}
	}
	if t.rowCache != nil {
		t.rowCache.Clear()
		t.rowCache.Wait()
	}
	return nil
}

// Close flushes and closes the table and its indexes.
func (t *Table) Close() error {
	var firstErr error
	if err := t.tree.Close(); err != nil {
		firstErr = err
	}
	for _, ix := range t.Indexes() {
		if err := ix.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if t.rowCache != nil {
		t.rowCache.Close()
	}
	return firstErr
}

// Remove closes the table and deletes its data file and every index file.
func (t *Table) Remove() error {
	path := t.tree.Path()
	var firstErr error
	if err := t.tree.Close(); err != nil {
		firstErr = err
	}
	if err := os.Remove(path); err != nil && firstErr == nil {
		firstErr = errors.Wrapf(dberr.ErrPageIO, "remove %s: %v", path, err)
	}
	for _, ix := range t.Indexes() {
		if err := ix.Remove(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.indexes = make(map[string]*index.Index)
	if t.rowCache != nil {
		t.rowCache.Close()
	}
	logger.Infof("table %s: dropped", t.Name)
	return firstErr
}

// Path returns the primary data file path.
func (t *Table) Path() string {
	return t.tree.Path()
}

func decodeKey(keyBytes []byte) uint32 {
	return binary.LittleEndian.Uint32(keyBytes)
}
