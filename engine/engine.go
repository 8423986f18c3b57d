// Package engine is the executor-facing boundary of the database: it owns the
// open tables of one data directory and funnels every row mutation through a
// transaction layer. Mutations are staged in memory and only reach the trees
// at commit; with no explicit transaction each statement commits itself.
package engine

import (
	"os"
	"sort"

	"github.com/pkg/errors"

	"BriskDB/config"
	"BriskDB/dberr"
	"BriskDB/index"
	"BriskDB/logger"
	"BriskDB/table"
)

// DB is one open database: a data directory plus its table handles.
// DB is not safe for concurrent use; callers serialize access.
type DB struct {
	cfg    config.Config
	tables map[string]*table.Table

	txnActive bool
	pending   []stagedOp
}

// Open creates the data directory if needed and returns an empty handle.
// Tables are registered with CreateTable.
func Open(cfg config.Config) (*DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.Wrapf(dberr.ErrPageIO, "create data dir %s: %v", cfg.DataDir, err)
	}
	logger.Infof("engine: opened database at %s", cfg.DataDir)
	return &DB{
		cfg:    cfg,
		tables: make(map[string]*table.Table),
	}, nil
}

// CreateTable opens or creates the table's data file and registers the handle.
// Not allowed inside a transaction.
func (d *DB) CreateTable(name string, cols ...table.Column) (*table.Table, error) {
	if d.txnActive {
		return nil, errors.Wrap(dberr.ErrTransactionState, "CREATE TABLE inside a transaction")
	}
	if _, exists := d.tables[name]; exists {
		return nil, errors.Errorf("table %s already exists", name)
	}
	schema, err := table.NewSchema(cols...)
	if err != nil {
		return nil, err
	}
	t, err := table.Open(d.cfg.DataDir, name, schema, table.Options{
		RowCacheEntries: d.cfg.RowCacheEntries,
		SyncOnFlush:     d.cfg.SyncOnFlush,
	})
	if err != nil {
		return nil, err
	}
	d.tables[name] = t
	return t, nil
}

// DropTable closes the table and deletes its data and index files.
// Not allowed inside a transaction.
func (d *DB) DropTable(name string) error {
	if d.txnActive {
		return errors.Wrap(dberr.ErrTransactionState, "DROP TABLE inside a transaction")
	}
	t, err := d.Table(name)
	if err != nil {
		return err
	}
	delete(d.tables, name)
	return t.Remove()
}

// Table looks an open table up by name.
func (d *DB) Table(name string) (*table.Table, error) {
	t, ok := d.tables[name]
	if !ok {
		return nil, errors.Errorf("no such table %s", name)
	}
	return t, nil
}

// Insert stages a new row. The primary key and every UNIQUE index are
// validated at statement time against committed rows and earlier staged ops,
// so a conflicting statement fails immediately instead of at commit.
func (d *DB) Insert(tableName string, key uint32, values []interface{}) error {
	t, err := d.Table(tableName)
	if err != nil {
		return err
	}
	row, err := t.Schema.EncodeRow(values)
	if err != nil {
		return err
	}
	exists, err := d.effectiveExists(tableName, t, key)
	if err != nil {
		return err
	}
	if exists {
		return errors.Wrapf(dberr.ErrDuplicateKey, "table %s key %d", tableName, key)
	}
	if err := d.checkUnique(tableName, t, row, key); err != nil {
		return err
	}
	return d.stage(stagedOp{kind: opInsert, table: tableName, key: key, row: row})
}

// Update stages a full-row replacement as a delete followed by an insert, so
// commit-time application reuses the two primitive mutations.
func (d *DB) Update(tableName string, key uint32, values []interface{}) error {
	t, err := d.Table(tableName)
	if err != nil {
		return err
	}
	row, err := t.Schema.EncodeRow(values)
	if err != nil {
		return err
	}
	exists, err := d.effectiveExists(tableName, t, key)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(dberr.ErrKeyNotFound, "table %s key %d", tableName, key)
	}
	if err := d.checkUnique(tableName, t, row, key); err != nil {
		return err
	}
	return d.stage(
		stagedOp{kind: opDelete, table: tableName, key: key},
		stagedOp{kind: opInsert, table: tableName, key: key, row: row},
	)
}

// Delete stages removal of the row under key.
func (d *DB) Delete(tableName string, key uint32) error {
	t, err := d.Table(tableName)
	if err != nil {
		return err
	}
	exists, err := d.effectiveExists(tableName, t, key)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(dberr.ErrKeyNotFound, "table %s key %d", tableName, key)
	}
	return d.stage(stagedOp{kind: opDelete, table: tableName, key: key})
}

// Find returns the row under key. Inside a transaction staged writes are
// visible: a staged insert is returned, a staged delete reads as missing.
func (d *DB) Find(tableName string, key uint32) ([]interface{}, error) {
	t, err := d.Table(tableName)
	if err != nil {
		return nil, err
	}
	if d.txnActive {
		inserted, deleted := d.pendingState(tableName)
		if row, ok := inserted[key]; ok {
			return t.Schema.DecodeRow(row)
		}
		if deleted[key] {
			return nil, errors.Wrapf(dberr.ErrKeyNotFound, "table %s key %d", tableName, key)
		}
	}
	return t.Find(key)
}

// Scan returns every row in key order, with staged writes overlaid on the
// committed rows when a transaction is active.
func (d *DB) Scan(tableName string) ([]table.Row, error) {
	t, err := d.Table(tableName)
	if err != nil {
		return nil, err
	}
	rows, err := t.Scan()
	if err != nil {
		return nil, err
	}
	if !d.txnActive {
		return rows, nil
	}
	inserted, deleted := d.pendingState(tableName)
	if len(inserted) == 0 && len(deleted) == 0 {
		return rows, nil
	}
	merged := make(map[uint32][]interface{}, len(rows)+len(inserted))
	for _, r := range rows {
		merged[r.Key] = r.Values
	}
	for key := range deleted {
		delete(merged, key)
	}
	for key, row := range inserted {
		values, err := t.Schema.DecodeRow(row)
		if err != nil {
			return nil, err
		}
		merged[key] = values
	}
	keys := make([]uint32, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]table.Row, len(keys))
	for i, key := range keys {
		out[i] = table.Row{Key: key, Values: merged[key]}
	}
	return out, nil
}

// CreateIndex builds a secondary index on an open table.
// Not allowed inside a transaction.
func (d *DB) CreateIndex(tableName, indexName, column string, unique bool) error {
	if d.txnActive {
		return errors.Wrap(dberr.ErrTransactionState, "CREATE INDEX inside a transaction")
	}
	t, err := d.Table(tableName)
	if err != nil {
		return err
	}
	return t.CreateIndex(indexName, column, unique)
}

// DropIndex removes an index and its file. Not allowed inside a transaction.
func (d *DB) DropIndex(tableName, indexName string) error {
	if d.txnActive {
		return errors.Wrap(dberr.ErrTransactionState, "DROP INDEX inside a transaction")
	}
	t, err := d.Table(tableName)
	if err != nil {
		return err
	}
	return t.DropIndex(indexName)
}

// IndexLookup returns the primary keys matching value, with staged writes
// overlaid when a transaction is active.
func (d *DB) IndexLookup(tableName, indexName string, value interface{}) ([]uint32, error) {
	t, err := d.Table(tableName)
	if err != nil {
		return nil, err
	}
	if !d.txnActive {
		return t.IndexLookup(indexName, value)
	}
	ix, ok := t.Index(indexName)
	if !ok {
		return nil, errors.Errorf("table %s has no index %s", tableName, indexName)
	}
	encoded, err := t.EncodeIndexValue(ix.Column, value)
	if err != nil {
		return nil, err
	}
	return d.overlaidLookup(tableName, t, ix, encoded)
}

func (d *DB) overlaidLookup(tableName string, t *table.Table, ix *index.Index, value []byte) ([]uint32, error) {
	committed, err := ix.Lookup(value)
	if err != nil {
		return nil, err
	}
	inserted, deleted := d.pendingState(tableName)
	pks := make([]uint32, 0, len(committed))
	for _, pk := range committed {
		// A staged delete hides the row; a staged re-insert supersedes the
		// committed value and is matched below instead.
		if deleted[pk] {
			continue
		}
		if _, ok := inserted[pk]; ok {
			continue
		}
		pks = append(pks, pk)
	}
	for pk, row := range inserted {
		rowValue, err := d.stagedIndexValue(t, ix, row)
		if err != nil {
			return nil, err
		}
		if string(rowValue) == string(value) {
			pks = append(pks, pk)
		}
	}
	sort.Slice(pks, func(i, j int) bool { return pks[i] < pks[j] })
	return pks, nil
}

// Close flushes and closes every table. An active transaction is discarded.
func (d *DB) Close() error {
	if d.txnActive {
		logger.Warnf("engine: closing with an active transaction, discarding %d staged ops", len(d.pending))
		d.pending = nil
		d.txnActive = false
	}
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	var firstErr error
	for _, name := range names {
		if err := d.tables[name].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.tables = make(map[string]*table.Table)
	return firstErr
}
