package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"VaultLedger/internal/journal"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// QueryService provides read-only access to projection tables. Queries are
// served over HTTP/JSON, reading from PostgreSQL. All responses include
// as_of_sequence for freshness semantics.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns an address's balances within one pool: free and locked
// collateral, issued stablecoin, and recorded bad debt.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	poolID string,
	addr common.Address,
) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	free, err := qs.getProjectedBalance(ctx,
		journal.CollateralAccount(poolID, addr), journal.DimCollateral(poolID))
	if err != nil {
		return nil, err
	}
	locked, err := qs.getProjectedBalance(ctx,
		journal.LockedAccount(poolID, addr), journal.DimCollateral(poolID))
	if err != nil {
		return nil, err
	}
	stablecoin, err := qs.getProjectedBalance(ctx,
		journal.StablecoinAccount(addr), journal.DimStablecoin)
	if err != nil {
		return nil, err
	}
	unbacked, err := qs.getProjectedBalance(ctx,
		journal.UnbackedAccount(addr), journal.DimUnbacked)
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		Address:          strings.ToLower(addr.Hex()),
		PoolID:           poolID,
		FreeCollateral:   free,
		LockedCollateral: locked,
		Stablecoin:       stablecoin,
		Unbacked:         unbacked,
		AsOfSequence:     asOfSeq,
	}, nil
}

// GetPoolPositions returns positions in a pool with non-zero debt share,
// with cursor-based pagination keyed on the account path.
func (qs *QueryService) GetPoolPositions(
	ctx context.Context,
	poolID string,
	limit int,
	afterAddr *string,
) ([]PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT d.account_path, d.balance, COALESCE(l.balance, 0)
		FROM projections.balances d
		LEFT JOIN projections.balances l
		  ON l.account_path = 'locked:' || substring(d.account_path from 6)
		 AND l.dimension = $2
		WHERE d.dimension = $1 AND d.balance != 0
	`
	args := []interface{}{journal.DimDebtShare(poolID), journal.DimCollateral(poolID)}
	argIdx := 3

	if afterAddr != nil {
		query += fmt.Sprintf(" AND d.account_path > $%d", argIdx)
		args = append(args, journal.DebtShareAccount(poolID, common.HexToAddress(*afterAddr)))
		argIdx++
	}

	query += " ORDER BY d.account_path"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		var path string
		var debtShare, locked decimal.Decimal
		if err := rows.Scan(&path, &debtShare, &locked); err != nil {
			return nil, err
		}
		positions = append(positions, PositionResponse{
			PoolID:           poolID,
			Address:          path[strings.LastIndexByte(path, ':')+1:],
			LockedCollateral: locked,
			DebtShare:        debtShare,
			AsOfSequence:     asOfSeq,
		})
	}

	return positions, rows.Err()
}

// GetPoolSummary aggregates projected balances for one pool.
func (qs *QueryService) GetPoolSummary(ctx context.Context, poolID string) (*PoolSummary, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	summary := &PoolSummary{PoolID: poolID, AsOfSequence: asOfSeq}

	err = qs.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(balance) FILTER (WHERE account_path LIKE 'collateral:%'), 0),
			COALESCE(SUM(balance) FILTER (WHERE account_path LIKE 'locked:%'), 0)
		FROM projections.balances
		WHERE dimension = $1 AND account_path NOT LIKE 'external:%'
	`, journal.DimCollateral(poolID)).Scan(&summary.FreeCollateral, &summary.TotalLocked)
	if err != nil {
		return nil, err
	}

	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(balance), 0), COUNT(*) FILTER (WHERE balance != 0)
		FROM projections.balances
		WHERE dimension = $1 AND account_path LIKE 'debt:%'
	`, journal.DimDebtShare(poolID)).Scan(&summary.TotalDebtShare, &summary.PositionCount)
	if err != nil {
		return nil, err
	}

	return summary, nil
}

// GetLiquidationHistory returns completed liquidations against a position,
// newest first.
func (qs *QueryService) GetLiquidationHistory(
	ctx context.Context,
	positionAddr common.Address,
	limit int,
) ([]LiquidationHistoryResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT op_ref, pool_id, position_addr, liquidator, debt_share_repaid,
		       repaid_value, collateral_liquidated, treasury_share, timestamp
		FROM projections.liquidation_history
		WHERE position_addr = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, strings.ToLower(positionAddr.Hex()), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LiquidationHistoryResponse
	for rows.Next() {
		var r LiquidationHistoryResponse
		if err := rows.Scan(
			&r.OpRef, &r.PoolID, &r.PositionAddr, &r.Liquidator, &r.DebtShareRepaid,
			&r.RepaidValue, &r.CollateralLiquidated, &r.TreasuryShare, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// GetJournalHistory returns journal entries touching an address, with
// cursor-based pagination on sequence.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	addr common.Address,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	// Account paths end with the lowercase hex address.
	pattern := "%:" + strings.ToLower(addr.Hex())

	query := `
		SELECT entry_id, batch_id, op_ref, sequence,
		       debit_account, credit_account, dimension, amount, kind, timestamp
		FROM op_log.entries
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
	`
	args := []interface{}{pattern}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		var kind int32
		if err := rows.Scan(
			&e.EntryID, &e.BatchID, &e.OpRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Dimension, &e.Amount,
			&kind, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.Kind = journal.EntryKind(kind).String()
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetSystemSolvency reports total issued stablecoin against total recorded
// bad debt. Boundary accounts are excluded: their balances mirror issuance
// and would cancel the totals.
func (qs *QueryService) GetSystemSolvency(ctx context.Context) (*SolvencyReport, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	report := &SolvencyReport{AsOfSequence: asOfSeq}

	err = qs.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(balance) FILTER (WHERE dimension = $1), 0),
			COALESCE(SUM(balance) FILTER (WHERE dimension = $2), 0)
		FROM projections.balances
		WHERE account_path NOT LIKE 'external:%'
	`, journal.DimStablecoin, journal.DimUnbacked).Scan(&report.TotalStablecoin, &report.TotalUnbacked)
	if err != nil {
		return nil, err
	}

	report.Surplus = report.TotalStablecoin.Sub(report.TotalUnbacked)
	return report, nil
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity in the op log and the zero-sum
// invariant per balance dimension in the projections.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT o1.sequence
		FROM op_log.ops o1
		LEFT JOIN op_log.ops o2 ON o2.sequence = o1.sequence - 1
		WHERE o1.sequence > 0 AND o1.prev_hash != COALESCE(o2.state_hash, o1.prev_hash)
		ORDER BY o1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Every entry is a transfer, so each dimension must sum to zero across
	// all accounts, boundary accounts included.
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT dimension, SUM(balance) AS total
		FROM projections.balances
		GROUP BY dimension
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var u UnbalancedDimension
		if err := balanceRows.Scan(&u.Dimension, &u.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedDimensions = append(report.UnbalancedDimensions, u)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedDimensions) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(
	ctx context.Context,
	accountPath, dimension string,
) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := qs.db.QueryRowContext(ctx, `
		SELECT balance FROM projections.balances
		WHERE account_path = $1 AND dimension = $2
	`, accountPath, dimension).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	return balance, err
}
