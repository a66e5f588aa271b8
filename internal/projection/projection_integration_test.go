package projection_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"VaultLedger/internal/persistence"
	"VaultLedger/internal/projection"
	"VaultLedger/internal/testutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// These tests need the docker-compose.test.yml Postgres and are gated behind
// INTEGRATION_TEST=1.

func setupProjectionDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	migrator := persistence.NewMigrator(db, "../../migrations")
	if err := migrator.Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("migrate up: %v", err)
	}
	return db, cleanup
}

func assertBalance(t *testing.T, db *sql.DB, path, dimension, want string) {
	t.Helper()
	var got string
	err := db.QueryRowContext(context.Background(), `
		SELECT balance::TEXT FROM projections.balances
		WHERE account_path = $1 AND dimension = $2
	`, path, dimension).Scan(&got)
	if err != nil {
		t.Fatalf("balance %s/%s: %v", path, dimension, err)
	}
	if got != want {
		t.Errorf("balance %s/%s = %s, want %s", path, dimension, got, want)
	}
}

func TestWorkerAppliesEntries(t *testing.T) {
	db, cleanup := setupProjectionDB(t)
	defer cleanup()
	ctx := context.Background()

	in := make(chan projection.Output, 4)
	worker := projection.NewWorker(db, in)

	pool := "ETH"
	in <- projection.Output{
		Sequence: 0,
		OpType:   "AddCollateral",
		PoolID:   &pool,
		Entries: []projection.Entry{{
			DebitAccount:  "collateral:ETH:0xa11c",
			CreditAccount: "external:adapter:ETH",
			Dimension:     "collateral:ETH",
			Amount:        "10000000000000000000",
			Kind:          0,
		}},
		Timestamp: 1_000_000,
	}
	in <- projection.Output{
		Sequence: 1,
		OpType:   "MoveCollateral",
		PoolID:   &pool,
		Entries: []projection.Entry{{
			DebitAccount:  "collateral:ETH:0xb0bb",
			CreditAccount: "collateral:ETH:0xa11c",
			Dimension:     "collateral:ETH",
			Amount:        "4000000000000000000",
			Kind:          2,
		}},
		Timestamp: 1_001_000,
	}
	in <- projection.Output{
		Sequence: 2,
		OpType:   "Liquidate",
		OpRef:    "liq-1",
		PoolID:   &pool,
		Entries: []projection.Entry{{
			DebitAccount:  "collateral:ETH:0xcafe",
			CreditAccount: "locked:ETH:0xb0bb",
			Dimension:     "collateral:ETH",
			Amount:        "1000000000000000000",
			Kind:          6,
		}},
		Timestamp: 1_002_000,
		Liquidation: &projection.LiquidationRecord{
			Pool:                 "ETH",
			PositionAddr:         common.HexToAddress("0xb0bb000000000000000000000000000000000000"),
			Liquidator:           common.HexToAddress("0xcafe000000000000000000000000000000000000"),
			DebtShareRepaid:      "2000000000000000000000",
			RepaidValue:          "2100000000000000000000000000000000000000000000000",
			CollateralLiquidated: "1000000000000000000",
			TreasuryShare:        "10000000000000000",
		},
	}
	close(in)

	// Run drains the channel and returns nil when it closes.
	if err := worker.Run(ctx); err != nil {
		t.Fatalf("worker run: %v", err)
	}

	assertBalance(t, db, "collateral:ETH:0xa11c", "collateral:ETH", "6000000000000000000")
	assertBalance(t, db, "collateral:ETH:0xb0bb", "collateral:ETH", "4000000000000000000")
	assertBalance(t, db, "external:adapter:ETH", "collateral:ETH", "-10000000000000000000")

	var liquidator, repaid string
	err := db.QueryRowContext(ctx, `
		SELECT liquidator, debt_share_repaid::TEXT
		FROM projections.liquidation_history
		WHERE position_addr = $1
	`, "0xb0bb000000000000000000000000000000000000").Scan(&liquidator, &repaid)
	if err != nil {
		t.Fatalf("liquidation history: %v", err)
	}
	if liquidator != "0xcafe000000000000000000000000000000000000" {
		t.Errorf("liquidator = %s", liquidator)
	}
	if repaid != "2000000000000000000000" {
		t.Errorf("debt_share_repaid = %s", repaid)
	}

	var watermark int64
	err = db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&watermark)
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if watermark != 2 {
		t.Errorf("watermark = %d, want 2", watermark)
	}
}

func TestRebuildFromOpLog(t *testing.T) {
	db, cleanup := setupProjectionDB(t)
	defer cleanup()
	ctx := context.Background()

	writer := persistence.NewOpLogWriter(db, 50, 10*time.Millisecond)
	entries := []persistence.EntryRow{
		{
			EntryID: uuid.NewString(), BatchID: uuid.NewString(), OpRef: "op-1",
			Sequence:     0,
			DebitAccount: "collateral:ETH:0xa11c", CreditAccount: "external:adapter:ETH",
			Dimension: "collateral:ETH", Amount: "10000000000000000000",
			Kind: 0, Timestamp: 1_000_000,
		},
		{
			EntryID: uuid.NewString(), BatchID: uuid.NewString(), OpRef: "op-2",
			Sequence:     1,
			DebitAccount: "collateral:ETH:0xb0bb", CreditAccount: "collateral:ETH:0xa11c",
			Dimension: "collateral:ETH", Amount: "4000000000000000000",
			Kind: 2, Timestamp: 1_001_000,
		},
	}
	if err := writer.WriteEntryBatch(ctx, entries, nil); err != nil {
		t.Fatalf("write entries: %v", err)
	}

	// Poison the projection so the rebuild has something to throw away.
	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, dimension, balance, last_sequence)
		VALUES ('collateral:ETH:0xa11c', 'collateral:ETH', 999, 0)
	`); err != nil {
		t.Fatal(err)
	}

	if err := projection.Rebuild(ctx, db); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	assertBalance(t, db, "collateral:ETH:0xa11c", "collateral:ETH", "6000000000000000000")
	assertBalance(t, db, "collateral:ETH:0xb0bb", "collateral:ETH", "4000000000000000000")
	assertBalance(t, db, "external:adapter:ETH", "collateral:ETH", "-10000000000000000000")
}
