package engine

import (
	"github.com/pkg/errors"

	"BriskDB/dberr"
	"BriskDB/index"
	"BriskDB/logger"
	"BriskDB/table"
)

type opKind int

const (
	opInsert opKind = iota
	opDelete
)

// stagedOp is one deferred mutation. Ops are applied in statement order at
// commit, so an update staged as delete+insert replays correctly.
type stagedOp struct {
	kind  opKind
	table string
	key   uint32
	row   []byte
}

// Begin starts a transaction. Every later mutation is staged until Commit.
func (d *DB) Begin() error {
	if d.txnActive {
		return errors.Wrap(dberr.ErrTransactionState, "transaction already active")
	}
	d.txnActive = true
	d.pending = d.pending[:0]
	return nil
}

// Commit applies every staged op in order and flushes the touched tables.
// If applying fails partway, all tables are reset from disk so the trees
// reflect none of the transaction, and the error is returned.
func (d *DB) Commit() error {
	if !d.txnActive {
		return errors.Wrap(dberr.ErrTransactionState, "no active transaction")
	}
	ops := d.pending
	d.pending = nil
	d.txnActive = false
	if err := d.applyOps(ops); err != nil {
		return err
	}
	logger.Debugf("engine: committed %d ops", len(ops))
	return nil
}

// Rollback discards every staged op. The trees were never touched.
func (d *DB) Rollback() error {
	if !d.txnActive {
		return errors.Wrap(dberr.ErrTransactionState, "no active transaction")
	}
	logger.Debugf("engine: rolled back %d staged ops", len(d.pending))
	d.pending = nil
	d.txnActive = false
	return nil
}

// stage buffers ops inside a transaction, or applies and flushes them
// immediately in autocommit.
func (d *DB) stage(ops ...stagedOp) error {
	if d.txnActive {
		d.pending = append(d.pending, ops...)
		return nil
	}
	return d.applyOps(ops)
}

func (d *DB) applyOps(ops []stagedOp) error {
	touched := make(map[string]*table.Table)
	for _, op := range ops {
		t, err := d.Table(op.table)
		if err != nil {
			return err
		}
		touched[op.table] = t
		switch op.kind {
		case opInsert:
			err = t.InsertEncoded(op.key, op.row)
		case opDelete:
			err = t.Delete(op.key)
		}
		if err != nil {
			// Statement-time validation should have caught this; whatever
			// happened, drop the partially applied state and reload.
			logger.Errorf("engine: apply failed on table %s key %d: %v", op.table, op.key, err)
			if resetErr := d.resetAll(); resetErr != nil {
				return resetErr
			}
			return err
		}
	}
	for _, t := range touched {
		if err := t.FlushAll(); err != nil {
			return err
		}
	}
	return nil
}

// resetAll abandons every table's unflushed in-memory state.
func (d *DB) resetAll() error {
	for _, t := range d.tables {
		if err := t.Reset(); err != nil {
			return err
		}
	}
	return nil
}

// pendingState replays the staged ops of one table into its effective
// overlay: rows inserted (or re-inserted) and keys deleted, in final state.
func (d *DB) pendingState(tableName string) (inserted map[uint32][]byte, deleted map[uint32]bool) {
	inserted = make(map[uint32][]byte)
	deleted = make(map[uint32]bool)
	for _, op := range d.pending {
		if op.table != tableName {
			continue
		}
		switch op.kind {
		case opInsert:
			inserted[op.key] = op.row
			delete(deleted, op.key)
		case opDelete:
			delete(inserted, op.key)
			deleted[op.key] = true
		}
	}
	return inserted, deleted
}

// effectiveExists reports whether key is visible given committed rows plus
// the staged overlay.
func (d *DB) effectiveExists(tableName string, t *table.Table, key uint32) (bool, error) {
	if d.txnActive {
		inserted, deleted := d.pendingState(tableName)
		if _, ok := inserted[key]; ok {
			return true, nil
		}
		if deleted[key] {
			return false, nil
		}
	}
	return t.Exists(key)
}

// checkUnique validates row against every UNIQUE index of the table, seeing
// committed entries through the staged overlay. selfKey is the row's own
// primary key, excluded so an update may keep its current value.
func (d *DB) checkUnique(tableName string, t *table.Table, row []byte, selfKey uint32) error {
	for _, ix := range t.Indexes() {
		if !ix.Unique {
			continue
		}
		value, err := d.stagedIndexValue(t, ix, row)
		if err != nil {
			return err
		}
		pks, err := d.overlaidLookup(tableName, t, ix, value)
		if err != nil {
			return err
		}
		for _, pk := range pks {
			if pk != selfKey {
				return errors.Wrapf(dberr.ErrUniqueConstraintViolation,
					"index %s on %s.%s", ix.Name, tableName, ix.Column)
			}
		}
	}
	return nil
}

// stagedIndexValue extracts the indexed column's encoded index key from an
// encoded row.
func (d *DB) stagedIndexValue(t *table.Table, ix *index.Index, row []byte) ([]byte, error) {
	values, err := t.Schema.DecodeRow(row)
	if err != nil {
		return nil, err
	}
	for i, col := range t.Schema.Columns {
		if col.Name == ix.Column {
			return t.EncodeIndexValue(ix.Column, values[i])
		}
	}
	return nil, errors.Errorf("table %s has no column %s", t.Name, ix.Column)
}
