package btree

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"BriskDB/dberr"
)

// TestCursorEmptyTree tests that a fresh tree yields an exhausted cursor
func TestCursorEmptyTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	tree, err := Open(path, smallLeafOptions())
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	defer tree.Close()

	cur, err := tree.Start()
	if err != nil {
		t.Fatalf("Failed to start cursor: %v", err)
	}
	if !cur.EndOfTable() {
		t.Error("Expected an exhausted cursor on an empty tree")
	}
	if ok, err := cur.Advance(); ok || err != nil {
		t.Errorf("Expected Advance to report (false, nil), got (%v, %v)", ok, err)
	}
}

// TestCursorCrossLeafAdvance tests stepping across leaf boundaries
func TestCursorCrossLeafAdvance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cross.db")
	tree, err := Open(path, smallLeafOptions())
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	defer tree.Close()

	const n = 15
	for k := uint32(1); k <= n; k++ {
		if err := tree.Insert(Uint32Key(k), []byte{byte(k)}); err != nil {
			t.Fatalf("Failed to insert key %d: %v", k, err)
		}
	}
	h, err := tree.Height()
	if err != nil {
		t.Fatalf("Failed to read height: %v", err)
	}
	if h < 2 {
		t.Fatalf("Expected multiple leaves, got height %d", h)
	}

	cur, err := tree.Start()
	if err != nil {
		t.Fatalf("Failed to start cursor: %v", err)
	}
	for k := uint32(1); k <= n; k++ {
		if cur.EndOfTable() {
			t.Fatalf("Cursor ended early at key %d", k)
		}
		key, _, err := cur.KeyValue()
		if err != nil {
			t.Fatalf("Failed to read cursor at key %d: %v", k, err)
		}
		if got := uint32(key[0]); got != k {
			t.Errorf("Expected key %d, got %d", k, got)
		}
		if _, err := cur.Advance(); err != nil {
			t.Fatalf("Failed to advance past key %d: %v", k, err)
		}
	}
	if !cur.EndOfTable() {
		t.Error("Expected end of table after the last key")
	}
}

// TestCursorSkipsEmptyLeaves tests Start and Advance over fully deleted leaves
func TestCursorSkipsEmptyLeaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skip.db")
	tree, err := Open(path, smallLeafOptions())
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	defer tree.Close()

	for k := uint32(1); k <= 8; k++ {
		if err := tree.Insert(Uint32Key(k), []byte{byte(k)}); err != nil {
			t.Fatalf("Failed to insert key %d: %v", k, err)
		}
	}

	// Test 1: Empty the leftmost leaf; Start must land on the first survivor
	for _, k := range []uint32{1, 2, 3} {
		if err := tree.Delete(Uint32Key(k)); err != nil {
			t.Fatalf("Failed to delete key %d: %v", k, err)
		}
	}
	cur, err := tree.Start()
	if err != nil {
		t.Fatalf("Failed to start cursor: %v", err)
	}
	if cur.EndOfTable() {
		t.Fatal("Expected rows after deleting the first leaf")
	}
	key, _, err := cur.KeyValue()
	if err != nil {
		t.Fatalf("Failed to read cursor: %v", err)
	}
	if got := uint32(key[0]); got != 4 {
		t.Errorf("Expected first key 4, got %d", got)
	}

	// Test 2: Empty a middle leaf; Advance must step over it
	for _, k := range []uint32{4, 5} {
		if err := tree.Delete(Uint32Key(k)); err != nil {
			t.Fatalf("Failed to delete key %d: %v", k, err)
		}
	}
	cur, err = tree.Start()
	if err != nil {
		t.Fatalf("Failed to restart cursor: %v", err)
	}
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
	want := []uint32{6, 7, 8}
	if len(got) != len(want) {
		t.Fatalf("Expected keys %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected key %d, got %d", i, want[i], got[i])
		}
	}
}

// TestCursorSearchMiss tests that the cursor of an absent-key Search is a
// usable insertion-point position
func TestCursorSearchMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miss.db")
	tree, err := Open(path, smallLeafOptions())
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	defer tree.Close()

	// Test 1: On an empty tree the miss cursor reads as no-row and exhausts
	cur, found, err := tree.Search(Uint32Key(5))
	if err != nil {
		t.Fatalf("Search on empty tree failed: %v", err)
	}
	if found {
		t.Error("Expected a miss on an empty tree")
	}
	if _, _, err := cur.KeyValue(); !errors.Is(err, dberr.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound from a miss cursor, got %v", err)
	}
	if ok, err := cur.Advance(); ok || err != nil {
		t.Errorf("Expected Advance to report (false, nil), got (%v, %v)", ok, err)
	}

	for k := uint32(10); k <= 80; k += 10 {
		if err := tree.Insert(Uint32Key(k), []byte{byte(k)}); err != nil {
			t.Fatalf("Failed to insert key %d: %v", k, err)
		}
	}
	h, err := tree.Height()
	if err != nil {
		t.Fatalf("Failed to read height: %v", err)
	}
	if h < 2 {
		t.Fatalf("Expected multiple leaves, got height %d", h)
	}

	// Test 2: A mid-leaf miss reads as no-row and advances to the slot's own
	// cell, not past it
	for _, tc := range []struct {
		probe uint32
		next  uint32
	}{
		{probe: 5, next: 10},
		{probe: 35, next: 40},
		{probe: 45, next: 50},
		{probe: 65, next: 70},
	} {
		cur, found, err := tree.Search(Uint32Key(tc.probe))
		if err != nil {
			t.Fatalf("Search(%d) failed: %v", tc.probe, err)
		}
		if found {
			t.Fatalf("Search(%d): expected a miss", tc.probe)
		}
		if _, _, err := cur.KeyValue(); !errors.Is(err, dberr.ErrKeyNotFound) {
			t.Errorf("Search(%d): expected ErrKeyNotFound, got %v", tc.probe, err)
		}
		ok, err := cur.Advance()
		if err != nil {
			t.Fatalf("Search(%d): advance failed: %v", tc.probe, err)
		}
		if !ok {
			t.Fatalf("Search(%d): expected a row after the miss", tc.probe)
		}
		key, _, err := cur.KeyValue()
		if err != nil {
			t.Fatalf("Search(%d): failed to read cursor: %v", tc.probe, err)
		}
		if got := uint32(key[0]); got != tc.next {
			t.Errorf("Search(%d): expected next key %d, got %d", tc.probe, tc.next, got)
		}
	}

	// Test 3: Advancing from a miss walks the rest of the table in order
	cur, found, err = tree.Search(Uint32Key(35))
	if err != nil {
		t.Fatalf("Search(35) failed: %v", err)
	}
	if found {
		t.Fatal("Expected a miss for key 35")
	}
	var got []uint32
	for {
		ok, err := cur.Advance()
		if err != nil {
			t.Fatalf("Failed to advance: %v", err)
		}
		if !ok {
			break
		}
		key, _, err := cur.KeyValue()
		if err != nil {
			t.Fatalf("Failed to read cursor: %v", err)
		}
		got = append(got, uint32(key[0]))
	}
	want := []uint32{40, 50, 60, 70, 80}
	if len(got) != len(want) {
		t.Fatalf("Expected keys %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected key %d, got %d", i, want[i], got[i])
		}
	}

	// Test 4: A miss past the table max exhausts on the first advance
	cur, found, err = tree.Search(Uint32Key(99))
	if err != nil {
		t.Fatalf("Search(99) failed: %v", err)
	}
	if found {
		t.Fatal("Expected a miss for key 99")
	}
	if _, _, err := cur.KeyValue(); !errors.Is(err, dberr.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound past the max, got %v", err)
	}
	if ok, err := cur.Advance(); ok || err != nil {
		t.Errorf("Expected Advance to report (false, nil), got (%v, %v)", ok, err)
	}
	if !cur.EndOfTable() {
		t.Error("Expected end of table after advancing past the max")
	}
}

// TestCursorSeekGE tests positioning at the first key >= a target
func TestCursorSeekGE(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seekge.db")
	tree, err := Open(path, smallLeafOptions())
	if err != nil {
		t.Fatalf("Failed to open tree: %v", err)
	}
	defer tree.Close()

	for _, k := range []uint32{10, 20, 30, 40, 50, 60} {
		if err := tree.Insert(Uint32Key(k), []byte(fmt.Sprintf("v%d", k))); err != nil {
			t.Fatalf("Failed to insert key %d: %v", k, err)
		}
	}

	cases := []struct {
		target uint32
		want   uint32
	}{
		{target: 5, want: 10},   // before the first key
		{target: 20, want: 20},  // exact match
		{target: 25, want: 30},  // between keys
		{target: 60, want: 60},  // last key
	}
	for _, tc := range cases {
		cur, err := tree.SeekGE(Uint32Key(tc.target))
		if err != nil {
			t.Fatalf("SeekGE(%d) failed: %v", tc.target, err)
		}
		if cur.EndOfTable() {
			t.Errorf("SeekGE(%d): unexpected end of table", tc.target)
			continue
		}
		key, _, err := cur.KeyValue()
		if err != nil {
			t.Fatalf("SeekGE(%d): failed to read cursor: %v", tc.target, err)
		}
		if got := uint32(key[0]); got != tc.want {
			t.Errorf("SeekGE(%d): expected key %d, got %d", tc.target, tc.want, got)
		}
	}

	// Past the last key the cursor is exhausted.
	cur, err := tree.SeekGE(Uint32Key(61))
	if err != nil {
		t.Fatalf("SeekGE(61) failed: %v", err)
	}
	if !cur.EndOfTable() {
		t.Error("Expected end of table seeking past the last key")
	}
}
