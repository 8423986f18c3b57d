// Package dberr defines the error kinds shared by every storage layer.
// Callers classify failures with errors.Is against these sentinels; the
// layers attach context by wrapping them with github.com/pkg/errors.
package dberr

import "errors"

var (
	// ErrDuplicateKey is returned when inserting a primary key that already
	// exists. The tree is left unchanged.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrKeyNotFound is returned by point lookups and deletes for absent keys.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUniqueConstraintViolation is returned when an insert would place a
	// second entry for the same value into a UNIQUE index.
	ErrUniqueConstraintViolation = errors.New("unique constraint violation")

	// ErrPageIO covers read, write and flush failures against a data file.
	// A failed flush breaks the durability guarantee, so it is never swallowed.
	ErrPageIO = errors.New("page i/o failure")

	// ErrTransactionState is returned for BEGIN while a transaction is active
	// and for COMMIT/ROLLBACK while none is.
	ErrTransactionState = errors.New("invalid transaction state")

	// ErrCorruptNode is returned when header or cell data fails structural
	// validation on read. Corruption aborts the operation, never auto-repairs.
	ErrCorruptNode = errors.New("corrupt node")
)
