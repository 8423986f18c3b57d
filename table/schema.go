// Package table is the schema-aware layer above the B-Tree engine: it packs
// fixed-width rows, owns one primary tree per table plus the table's
// secondary indexes, and keeps a read-through row cache. The B-Tree below it
// only ever sees opaque fixed-size payloads keyed by integer.
package table

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

type DataType int

const (
	TypeInteger DataType = iota
	TypeText
)

// Column is one fixed-width field of a row. Offset is assigned by NewSchema.
type Column struct {
	Name   string
	Type   DataType
	Size   int
	Offset int
}

// Integer declares a 4-byte integer column.
func Integer(name string) Column {
	return Column{Name: name, Type: TypeInteger, Size: 4}
}

// Text declares a fixed-width text column of size bytes. Values are
// zero-padded and truncated to fit.
func Text(name string, size int) Column {
	return Column{Name: name, Type: TypeText, Size: size}
}

// Schema is an ordered set of columns packed back to back with no padding,
// so the row size — and with it the cell capacity of a page — is constant.
type Schema struct {
	Columns []Column
	RowSize int
}

func NewSchema(cols ...Column) (*Schema, error) {
	if len(cols) == 0 {
		return nil, errors.New("schema needs at least one column")
	}
	s := &Schema{Columns: make([]Column, len(cols))}
	seen := make(map[string]bool, len(cols))
	offset := 0
	for i, col := range cols {
		if col.Name == "" {
			return nil, errors.Errorf("column %d has no name", i)
		}
		if seen[col.Name] {
			return nil, errors.Errorf("duplicate column %s", col.Name)
		}
		seen[col.Name] = true
		if col.Size <= 0 {
			return nil, errors.Errorf("column %s has size %d", col.Name, col.Size)
		}
		col.Offset = offset
		offset += col.Size
		s.Columns[i] = col
	}
	s.RowSize = offset
	return s, nil
}

// Column looks a column up by name.
func (s *Schema) Column(name string) (Column, bool) {
	for _, col := range s.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// EncodeRow packs values into the row layout: integers little-endian,
// text zero-padded into its fixed slot.
func (s *Schema) EncodeRow(values []interface{}) ([]byte, error) {
	if len(values) != len(s.Columns) {
		return nil, errors.Errorf("row has %d values, schema has %d columns", len(values), len(s.Columns))
	}
	row := make([]byte, s.RowSize)
	for i, col := range s.Columns {
		switch col.Type {
		case TypeInteger:
			n, err := toInt32(values[i])
			if err != nil {
				return nil, errors.Wrapf(err, "column %s", col.Name)
			}
			binary.LittleEndian.PutUint32(row[col.Offset:], uint32(n))
		case TypeText:
			str, ok := values[i].(string)
			if !ok {
				return nil, errors.Errorf("column %s: expected string, got %T", col.Name, values[i])
			}
			copy(row[col.Offset:col.Offset+col.Size], str)
		}
	}
	return row, nil
}

// DecodeRow unpacks a row into one value per column: int for integers,
// string with trailing zero padding stripped for text.
func (s *Schema) DecodeRow(row []byte) ([]interface{}, error) {
	if len(row) < s.RowSize {
		return nil, errors.Errorf("row has %d bytes, schema needs %d", len(row), s.RowSize)
	}
	values := make([]interface{}, len(s.Columns))
	for i, col := range s.Columns {
		values[i] = s.columnValue(row, col)
	}
	return values, nil
}

func (s *Schema) columnValue(row []byte, col Column) interface{} {
	switch col.Type {
	case TypeInteger:
		return int(int32(binary.LittleEndian.Uint32(row[col.Offset:])))
	default:
		raw := row[col.Offset : col.Offset+col.Size]
		return strings.TrimRight(string(raw), "\x00")
	}
}

func toInt32(v interface{}) (int32, error) {
	switch n := v.(type) {
	case int:
		return int32(n), nil
	case int32:
		return n, nil
	case int64:
		return int32(n), nil
	case uint32:
		return int32(n), nil
	default:
		return 0, errors.Errorf("expected integer, got %T", v)
	}
}
