// Seed program: creates a users table with sample rows, a unique index on
// email and a non-unique index on username, half autocommitted and half in
// one transaction.
// Run: go run ./cmd/seed -data data
// Then inspect: go run ./cmd/inspect -file data/users.db
package main

import (
	"flag"
	"fmt"
	"os"

	"BriskDB/config"
	"BriskDB/engine"
	"BriskDB/logger"
	"BriskDB/table"
)

func main() {
	dataDir := flag.String("data", "", "data directory (default from config)")
	confPath := flag.String("config", "", "optional TOML config file")
	rows := flag.Int("rows", 20, "number of sample rows")
	flag.Parse()

	cfg := config.Default()
	if *confPath != "" {
		loaded, err := config.Load(*confPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	logger.Init(cfg.LogLevel)

	db, err := engine.Open(cfg)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	if _, err := db.CreateTable("users",
		table.Integer("id"),
		table.Text("username", 32),
		table.Text("email", 255),
	); err != nil {
		fatal(err)
	}

	insert := func(i int) {
		err := db.Insert("users", uint32(i), []interface{}{
			i, fmt.Sprintf("user%03d", i), fmt.Sprintf("user%03d@example.com", i),
		})
		if err != nil {
			fatal(err)
		}
	}

	half := *rows / 2
	for i := 1; i <= half; i++ {
		insert(i)
	}
	if err := db.Begin(); err != nil {
		fatal(err)
	}
	for i := half + 1; i <= *rows; i++ {
		insert(i)
	}
	if err := db.Commit(); err != nil {
		fatal(err)
	}

	if err := db.CreateIndex("users", "by_email", "email", true); err != nil {
		fatal(err)
	}
	if err := db.CreateIndex("users", "by_username", "username", false); err != nil {
		fatal(err)
	}

	all, err := db.Scan("users")
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Seeded %d rows into %s\n", len(all), cfg.DataDir)
	fmt.Println("Inspect:")
	fmt.Printf("  - Table file:  %s/users.db\n", cfg.DataDir)
	fmt.Printf("  - Index files: %s/users_*.idx\n", cfg.DataDir)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
