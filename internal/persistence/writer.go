package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OpLogWriter writes operations and journal entries to Postgres using batch
// inserts. Multi-row INSERT is used as a portable alternative to the COPY
// protocol; switch to pgx CopyFrom for production-grade throughput.
type OpLogWriter struct {
	db           *sql.DB
	batchSize    int
	flushTimeout time.Duration
}

// OpRow represents a row in op_log.ops
type OpRow struct {
	Sequence       int64
	OpType         string
	IdempotencyKey string
	PoolID         *string
	Payload        []byte // JSON-encoded op payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
	SourceSequence int64
}

// EntryRow represents a row in op_log.entries. Amounts are stored as decimal
// strings because every ledger scale overflows bigint.
type EntryRow struct {
	EntryID       string
	BatchID       string
	OpRef         string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Dimension     string
	Amount        string
	Kind          int32
	Timestamp     int64
}

func NewOpLogWriter(db *sql.DB, batchSize int, flushTimeout time.Duration) *OpLogWriter {
	return &OpLogWriter{
		db:           db,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

// execer abstracts *sql.DB and *sql.Tx so batches can run inside the
// persistence worker's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// WriteOpBatch writes a batch of operations to op_log.ops using multi-row INSERT.
func (w *OpLogWriter) WriteOpBatch(ctx context.Context, ops []OpRow, ex execer) error {
	if len(ops) == 0 {
		return nil
	}

	query := `INSERT INTO op_log.ops
		(sequence, op_type, idempotency_key, pool_id, payload, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(ops))
	args := make([]interface{}, 0, len(ops)*9)

	for i, o := range ops {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			o.Sequence, o.OpType, o.IdempotencyKey, o.PoolID,
			o.Payload, o.StateHash, o.PrevHash, o.Timestamp, o.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	if ex == nil {
		ex = w.db
	}
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteEntryBatch writes a batch of journal entries to op_log.entries.
func (w *OpLogWriter) WriteEntryBatch(ctx context.Context, entries []EntryRow, ex execer) error {
	if len(entries) == 0 {
		return nil
	}

	query := `INSERT INTO op_log.entries
		(entry_id, batch_id, op_ref, sequence, debit_account, credit_account, dimension, amount, kind, timestamp)
		VALUES `

	values := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*10)

	for i, e := range entries {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			e.EntryID, e.BatchID, e.OpRef, e.Sequence,
			e.DebitAccount, e.CreditAccount, e.Dimension, e.Amount,
			e.Kind, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (entry_id) DO NOTHING"

	if ex == nil {
		ex = w.db
	}
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// MarshalOpPayload serializes an op payload to JSON for storage.
func MarshalOpPayload(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}
