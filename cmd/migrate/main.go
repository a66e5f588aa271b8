// Command migrate manages the ledger's Postgres schema: the op_log schema
// holding the system of record and the projections schema derived from it.
// It reads the same TOML config as the service, so both agree on the DSN and
// migrations directory (VAULT_POSTGRES_DSN and VAULT_MIGRATIONS_DIR override
// either).
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"VaultLedger/internal/config"
	"VaultLedger/internal/persistence"

	_ "github.com/lib/pq"
)

func main() {
	configPath := flag.String("config", "vaultledger.toml", "path to TOML config file")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd != "up" && cmd != "down" {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-config file] <up|down>")
		fmt.Fprintln(os.Stderr, "  up   - apply all pending schema migrations")
		fmt.Fprintln(os.Stderr, "  down - roll back the last applied migration")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("FATAL: open postgres: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, cfg.Persistence.MigrationsDir)

	switch cmd {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			log.Fatalf("FATAL: migrate up: %v", err)
		}
		log.Println("INFO: ledger schema is up to date")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			log.Fatalf("FATAL: migrate down: %v", err)
		}
		log.Println("INFO: rolled back one schema version")
	}
}
