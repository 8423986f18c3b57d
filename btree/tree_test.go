package btree

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"BriskDB/dberr"
)

// smallLeafOptions forces a leaf capacity of 4 so splits happen after a
// handful of inserts: cell = 4 + 1017 = 1021, (4096-10)/1021 = 4.
func smallLeafOptions() Options {
	return Options{KeySize: 4, ValueSize: 1017, Compare: CompareUint32}
}

// smallInternalOptions forces both capacities to 4: leaf cell = 1000 + 20 =
// 1020 gives (4096-10)/1020 = 4 cells, internal cell = 4 + 1000 = 1004 gives
// (4096-14)/1004 = 4 keys. A few dozen inserts reach height 3.
func smallInternalOptions() Options {
	return Options{KeySize: 1000, ValueSize: 20, Compare: bytes.Compare}
}

func padKey(s string, size int) []byte {
	key := make([]byte, size)
	copy(key, s)
	return key
}

// TestTreeInsertAndGet tests point inserts, lookups and duplicate rejection
func TestTreeInsertAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "basic.db")
	tree, err := Open(path, Options{KeySize: 4, ValueSize: 64, Compare: CompareUint32})
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	defer tree.Close()

	// Test 1: Insert a few rows out of order
	for _, k := range []uint32{42, 7, 19} {
		value := []byte(fmt.Sprintf("row-%d", k))
		if err := tree.Insert(Uint32Key(k), value); err != nil {
			t.Fatalf("Failed to insert key %d: %v", k, err)
		}
	}
	if got := tree.RowCount(); got != 3 {
		t.Errorf("Expected row count 3, got %d", got)
	}

	// Test 2: Every key reads back
	for _, k := range []uint32{7, 19, 42} {
		value, err := tree.Get(Uint32Key(k))
		if err != nil {
			t.Fatalf("Failed to get key %d: %v", k, err)
		}
		want := []byte(fmt.Sprintf("row-%d", k))
		if !bytes.HasPrefix(value, want) {
			t.Errorf("Key %d: expected value %q, got %q", k, want, value[:len(want)])
		}
	}

	// Test 3: A duplicate key is rejected and leaves the tree unchanged
	err = tree.Insert(Uint32Key(7), []byte("other"))
	if !errors.Is(err, dberr.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if got := tree.RowCount(); got != 3 {
		t.Errorf("Expected row count 3 after rejected insert, got %d", got)
	}
	value, err := tree.Get(Uint32Key(7))
	if err != nil {
		t.Fatalf("Failed to reread key 7: %v", err)
	}
	if !bytes.HasPrefix(value, []byte("row-7")) {
		t.Error("Rejected insert overwrote the existing value")
	}

	// Test 4: A missing key reports ErrKeyNotFound
	if _, err := tree.Get(Uint32Key(1000)); !errors.Is(err, dberr.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

// TestTreeLeafSplit tests that inserts past leaf capacity split correctly
func TestTreeLeafSplit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leafsplit.db")
	tree, err := Open(path, smallLeafOptions())
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	defer tree.Close()

	keys := []uint32{5, 3, 8, 1, 9, 2, 7, 4, 6, 10}
	for _, k := range keys {
		if err := tree.Insert(Uint32Key(k), []byte{byte(k)}); err != nil {
			t.Fatalf("Failed to insert key %d: %v", k, err)
		}
	}

	// Test 1: The root split at least once
	h, err := tree.Height()
	if err != nil {
		t.Fatalf("Failed to read height: %v", err)
	}
	if h < 2 {
		t.Errorf("Expected height >= 2 after %d inserts into 4-cell leaves, got %d", len(keys), h)
	}

	// Test 2: In-order traversal yields 1..10
	cur, err := tree.Start()
	if err != nil {
		t.Fatalf("Failed to start cursor: %v", err)
	}
	var got []uint32
	for !cur.EndOfTable() {
		key, value, err := cur.KeyValue()
		if err != nil {
			t.Fatalf("Failed to read cursor: %v", err)
		}
		k := uint32(key[0]) | uint32(key[1])<<8 | uint32(key[2])<<16 | uint32(key[3])<<24
		if value[0] != byte(k) {
			t.Errorf("Key %d carries value %d", k, value[0])
		}
		got = append(got, k)
		if _, err := cur.Advance(); err != nil {
			t.Fatalf("Failed to advance: %v", err)
		}
	}
	if len(got) != len(keys) {
		t.Fatalf("Expected %d rows, got %d", len(keys), len(got))
	}
	for i, k := range got {
		if k != uint32(i+1) {
			t.Errorf("Position %d: expected key %d, got %d", i, i+1, k)
		}
	}
}

// TestTreeInternalSplit tests recursive splits up to height 3
func TestTreeInternalSplit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "internalsplit.db")
	tree, err := Open(path, smallInternalOptions())
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	defer tree.Close()

	const n = 40
	for i := 1; i <= n; i++ {
		key := padKey(fmt.Sprintf("key-%04d", i), 1000)
		if err := tree.Insert(key, []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("Failed to insert key %d: %v", i, err)
		}
	}

	// Test 1: Two levels of internal nodes exist
	h, err := tree.Height()
	if err != nil {
		t.Fatalf("Failed to read height: %v", err)
	}
	if h < 3 {
		t.Errorf("Expected height >= 3 after %d inserts, got %d", n, h)
	}
	if got := tree.RowCount(); got != n {
		t.Errorf("Expected row count %d, got %d", n, got)
	}

	// Test 2: Traversal is sorted and complete
	cur, err := tree.Start()
	if err != nil {
		t.Fatalf("Failed to start cursor: %v", err)
	}
	count := 0
	var prev []byte
	for !cur.EndOfTable() {
		key, _, err := cur.KeyValue()
		if err != nil {
			t.Fatalf("Failed to read cursor: %v", err)
		}
		if prev != nil && bytes.Compare(prev, key) >= 0 {
			t.Errorf("Traversal out of order at row %d", count)
		}
		prev = key
		count++
		if _, err := cur.Advance(); err != nil {
			t.Fatalf("Failed to advance: %v", err)
		}
	}
	if count != n {
		t.Errorf("Expected %d rows in traversal, got %d", n, count)
	}

	// Test 3: Point lookups still find every row
	for _, i := range []int{1, 13, 27, 40} {
		value, err := tree.Get(padKey(fmt.Sprintf("key-%04d", i), 1000))
		if err != nil {
			t.Fatalf("Failed to get key %d: %v", i, err)
		}
		if !bytes.HasPrefix(value, []byte(fmt.Sprintf("v%d", i))) {
			t.Errorf("Key %d: unexpected value %q", i, value)
		}
	}
}

// TestTreeDurability tests that rows survive a flush, close and reopen
func TestTreeDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "durable.db")
	opts := smallLeafOptions()

	tree, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	for k := uint32(1); k <= 12; k++ {
		if err := tree.Insert(Uint32Key(k), []byte{byte(k)}); err != nil {
			t.Fatalf("Failed to insert key %d: %v", k, err)
		}
	}
	if err := tree.Close(); err != nil {
		t.Fatalf("Failed to close tree: %v", err)
	}

	tree, err = Open(path, opts)
	if err != nil {
		t.Fatalf("Failed to reopen tree: %v", err)
	}
	defer tree.Close()
	if got := tree.RowCount(); got != 12 {
		t.Errorf("Expected row count 12 after reopen, got %d", got)
	}
	for k := uint32(1); k <= 12; k++ {
		value, err := tree.Get(Uint32Key(k))
		if err != nil {
			t.Fatalf("Failed to get key %d after reopen: %v", k, err)
		}
		if value[0] != byte(k) {
			t.Errorf("Key %d: expected value %d, got %d", k, k, value[0])
		}
	}
}

// TestTreeDelete tests removal, reinsertion and traversal over stale signposts
func TestTreeDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delete.db")
	tree, err := Open(path, smallLeafOptions())
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	defer tree.Close()

	for k := uint32(1); k <= 10; k++ {
		if err := tree.Insert(Uint32Key(k), []byte{byte(k)}); err != nil {
			t.Fatalf("Failed to insert key %d: %v", k, err)
		}
	}

	// Test 1: Deleting a separator key leaves a stale-high signpost that
	// traversal must tolerate
	for _, k := range []uint32{2, 4, 7} {
		if err := tree.Delete(Uint32Key(k)); err != nil {
			t.Fatalf("Failed to delete key %d: %v", k, err)
		}
	}
	if got := tree.RowCount(); got != 7 {
		t.Errorf("Expected row count 7, got %d", got)
	}
	for _, k := range []uint32{2, 4, 7} {
		if _, err := tree.Get(Uint32Key(k)); !errors.Is(err, dberr.ErrKeyNotFound) {
			t.Errorf("Key %d: expected ErrKeyNotFound after delete, got %v", k, err)
		}
	}

	// Test 2: Deleting a missing key is an error
	if err := tree.Delete(Uint32Key(2)); !errors.Is(err, dberr.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound deleting twice, got %v", err)
	}

	// Test 3: Traversal skips the deleted keys and stays sorted
	cur, err := tree.Start()
	if err != nil {
		t.Fatalf("Failed to start cursor: %v", err)
	}
	want := []uint32{1, 3, 5, 6, 8, 9, 10}
	var got []uint32
	for !cur.EndOfTable() {
		key, _, err := cur.KeyValue()
		if err != nil {
			t.Fatalf("Failed to read cursor: %v", err)
		}
		got = append(got, uint32(key[0]))
		if _, err := cur.Advance(); err != nil {
			t.Fatalf("Failed to advance: %v", err)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d rows, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected key %d, got %d", i, want[i], got[i])
		}
	}

	// Test 4: A deleted key can be inserted again
	if err := tree.Insert(Uint32Key(4), []byte{44}); err != nil {
		t.Fatalf("Failed to reinsert key 4: %v", err)
	}
	value, err := tree.Get(Uint32Key(4))
	if err != nil {
		t.Fatalf("Failed to get reinserted key 4: %v", err)
	}
	if value[0] != 44 {
		t.Errorf("Expected reinserted value 44, got %d", value[0])
	}
}

// TestTreeGeometryMismatch tests that a file refuses to open with the wrong
// cell geometry
func TestTreeGeometryMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geometry.db")
	tree, err := Open(path, Options{KeySize: 4, ValueSize: 64, Compare: CompareUint32})
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	if err := tree.Insert(Uint32Key(1), []byte("x")); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if err := tree.Close(); err != nil {
		t.Fatalf("Failed to close tree: %v", err)
	}

	_, err = Open(path, Options{KeySize: 4, ValueSize: 128, Compare: CompareUint32})
	if !errors.Is(err, dberr.ErrCorruptNode) {
		t.Errorf("Expected ErrCorruptNode for mismatched geometry, got %v", err)
	}
}
