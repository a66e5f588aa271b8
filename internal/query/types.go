package query

import "github.com/shopspring/decimal"

// BalanceResponse is the full balance view of one address within one pool.
// Collateral amounts are unit scale (1e18); stablecoin and unbacked debt are
// accum scale (1e45). Amounts are serialized as decimal strings.
type BalanceResponse struct {
	Address          string          `json:"address"`
	PoolID           string          `json:"pool_id"`
	FreeCollateral   decimal.Decimal `json:"free_collateral"`
	LockedCollateral decimal.Decimal `json:"locked_collateral"`
	Stablecoin       decimal.Decimal `json:"stablecoin"`
	Unbacked         decimal.Decimal `json:"unbacked"`
	AsOfSequence     int64           `json:"as_of_sequence"`
}

// PositionResponse represents one position's projected state in a pool.
type PositionResponse struct {
	PoolID           string          `json:"pool_id"`
	Address          string          `json:"address"`
	LockedCollateral decimal.Decimal `json:"locked_collateral"`
	DebtShare        decimal.Decimal `json:"debt_share"`
	AsOfSequence     int64           `json:"as_of_sequence"`
}

// PoolSummary aggregates projected balances across one pool.
type PoolSummary struct {
	PoolID         string          `json:"pool_id"`
	FreeCollateral decimal.Decimal `json:"free_collateral"`
	TotalLocked    decimal.Decimal `json:"total_locked"`
	TotalDebtShare decimal.Decimal `json:"total_debt_share"`
	PositionCount  int64           `json:"position_count"`
	AsOfSequence   int64           `json:"as_of_sequence"`
}

// LiquidationHistoryResponse is one completed liquidation record.
type LiquidationHistoryResponse struct {
	OpRef                string          `json:"op_ref"`
	PoolID               string          `json:"pool_id"`
	PositionAddr         string          `json:"position_addr"`
	Liquidator           string          `json:"liquidator"`
	DebtShareRepaid      decimal.Decimal `json:"debt_share_repaid"`
	RepaidValue          decimal.Decimal `json:"repaid_value"`
	CollateralLiquidated decimal.Decimal `json:"collateral_liquidated"`
	TreasuryShare        decimal.Decimal `json:"treasury_share"`
	Timestamp            int64           `json:"timestamp"`
}

// JournalHistoryEntry is one double-entry record touching a queried address.
type JournalHistoryEntry struct {
	EntryID       string          `json:"entry_id"`
	BatchID       string          `json:"batch_id"`
	OpRef         string          `json:"op_ref"`
	Sequence      int64           `json:"sequence"`
	DebitAccount  string          `json:"debit_account"`
	CreditAccount string          `json:"credit_account"`
	Dimension     string          `json:"dimension"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          string          `json:"kind"`
	Timestamp     int64           `json:"timestamp"`
}

// SolvencyReport is the system-wide stablecoin backing view: total issued
// stablecoin held outside boundary accounts against total recorded bad debt.
type SolvencyReport struct {
	TotalStablecoin decimal.Decimal `json:"total_stablecoin"`
	TotalUnbacked   decimal.Decimal `json:"total_unbacked"`
	Surplus         decimal.Decimal `json:"surplus"`
	AsOfSequence    int64           `json:"as_of_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy            bool                  `json:"is_healthy"`
	HashChainBreaks      []int64               `json:"hash_chain_breaks,omitempty"`
	UnbalancedDimensions []UnbalancedDimension `json:"unbalanced_dimensions,omitempty"`
}

// UnbalancedDimension is a balance dimension whose projected balances do not
// sum to zero. Every journal entry is a transfer, so any non-zero sum means
// the projection diverged from the op log.
type UnbalancedDimension struct {
	Dimension string          `json:"dimension"`
	Imbalance decimal.Decimal `json:"imbalance"`
}
