package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// Output mirrors the data projection workers need from a processed
// operation. The orchestrator bridges between core.CoreOutput and this.
type Output struct {
	Sequence  int64
	OpType    string
	OpRef     string
	PoolID    *string
	Entries   []Entry
	Timestamp int64

	// Set only for executed liquidations.
	Liquidation *LiquidationRecord
}

// Entry is a simplified journal entry for projection consumption. Amount is
// a decimal string; every ledger scale overflows bigint.
type Entry struct {
	DebitAccount  string
	CreditAccount string
	Dimension     string
	Amount        string
	Kind          int32
}

// Worker updates projection tables from processed operations. The projection
// channel is non-blocking with drop: if projections fall behind, they can be
// rebuilt from the op log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan Output) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue — projections are eventually consistent
				// and can be rebuilt from the op log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *Worker) processOutput(ctx context.Context, output Output) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Update balance projections from journal entries
	for _, e := range output.Entries {
		if err := pw.updateBalanceProjection(ctx, tx, e, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if output.Liquidation != nil {
		if err := pw.insertLiquidation(ctx, tx, output.Liquidation, output.OpRef, output.Timestamp); err != nil {
			return fmt.Errorf("liquidation history: %w", err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// Debit account balance increases, credit decreases; amounts are positive
// and direction is carried by the account pair.
func (pw *Worker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, e Entry, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, dimension, balance, last_sequence)
		VALUES ($1, $2, $3::NUMERIC, $4)
		ON CONFLICT (account_path, dimension)
		DO UPDATE SET balance = projections.balances.balance + $3::NUMERIC, last_sequence = $4
	`, e.DebitAccount, e.Dimension, e.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, dimension, balance, last_sequence)
		VALUES ($1, $2, -$3::NUMERIC, $4)
		ON CONFLICT (account_path, dimension)
		DO UPDATE SET balance = projections.balances.balance - $3::NUMERIC, last_sequence = $4
	`, e.CreditAccount, e.Dimension, e.Amount, seq); err != nil {
		return err
	}

	return nil
}

// Rebuild rebuilds balance projections from the op log. Liquidation history
// is insert-only and keyed by op_ref, so it is left in place: the executed
// amounts are not recoverable from journal entries alone.
func Rebuild(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild from journal entries: debits add, credits subtract
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, dimension, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			dimension,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM op_log.entries
		GROUP BY debit_account, dimension
		ON CONFLICT (account_path, dimension) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, dimension, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			dimension,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM op_log.entries
		GROUP BY credit_account, dimension
		ON CONFLICT (account_path, dimension) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
