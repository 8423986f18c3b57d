// Inspect a tree file (.db table or .idx index): prints the metadata page and
// every node level by level.
// Usage: go run ./cmd/inspect -file data/users.db
package main

import (
	"flag"
	"fmt"
	"os"

	"BriskDB/btree"
)

func main() {
	file := flag.String("file", "", "tree file to dump (.db or .idx)")
	flag.Parse()
	if *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -file <tree file>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s -file data/users.db\n", os.Args[0])
		os.Exit(1)
	}
	if err := btree.InspectFile(os.Stdout, *file); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
