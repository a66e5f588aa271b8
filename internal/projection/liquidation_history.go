package projection

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// LiquidationRecord is one executed liquidation headed for the history table.
// Amounts are decimal strings: DebtShareRepaid, CollateralLiquidated and
// TreasuryShare at unit scale, RepaidValue at accum scale.
type LiquidationRecord struct {
	Pool                 string
	PositionAddr         common.Address
	Liquidator           common.Address
	DebtShareRepaid      string
	RepaidValue          string
	CollateralLiquidated string
	TreasuryShare        string
}

// Addresses are stored lowercased so queries can match without hex
// checksum casing.
func (pw *Worker) insertLiquidation(ctx context.Context, tx *sql.Tx, rec *LiquidationRecord, opRef string, timestamp int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.liquidation_history
			(op_ref, pool_id, position_addr, liquidator, debt_share_repaid,
			 repaid_value, collateral_liquidated, treasury_share, timestamp)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)
		ON CONFLICT (op_ref) DO NOTHING
	`, opRef, rec.Pool,
		strings.ToLower(rec.PositionAddr.Hex()),
		strings.ToLower(rec.Liquidator.Hex()),
		rec.DebtShareRepaid, rec.RepaidValue,
		rec.CollateralLiquidated, rec.TreasuryShare,
		timestamp)
	return err
}
