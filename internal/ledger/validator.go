package ledger

import (
	"fmt"

	"VaultLedger/internal/fixed"
	"VaultLedger/internal/journal"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	ledger *Ledger
}

func NewInvariantValidator(l *Ledger) *InvariantValidator {
	return &InvariantValidator{
		ledger: l,
	}
}

// ValidateBatchBalance verifies the journal batch is well formed
func (v *InvariantValidator) ValidateBatchBalance(batch *journal.Batch) error {
	return batch.Validate()
}

// ValidateStablecoinConservation verifies every issued stable unit is held
// by exactly one account:
//
//	sum(stablecoin) == totalStablecoinIssued
//	sum(unbacked)   == totalUnbacked
func (v *InvariantValidator) ValidateStablecoinConservation() error {
	sumStable := fixed.Zero()
	for _, bal := range v.ledger.stablecoin {
		sumStable = fixed.Add(sumStable, bal)
	}
	if sumStable.Cmp(v.ledger.totalStablecoinIssued) != 0 {
		return fmt.Errorf("stablecoin balances sum to %s, total issued is %s",
			sumStable, v.ledger.totalStablecoinIssued)
	}

	sumUnbacked := fixed.Zero()
	for _, bal := range v.ledger.unbacked {
		sumUnbacked = fixed.Add(sumUnbacked, bal)
	}
	if sumUnbacked.Cmp(v.ledger.totalUnbacked) != 0 {
		return fmt.Errorf("unbacked balances sum to %s, total unbacked is %s",
			sumUnbacked, v.ledger.totalUnbacked)
	}
	return nil
}

// ValidateDebtBacking verifies the fundamental debt equation:
//
//	totalStablecoinIssued - totalUnbacked == sum over pools of debtShare * rate
func (v *InvariantValidator) ValidateDebtBacking() error {
	backed := fixed.Sub(v.ledger.totalStablecoinIssued, v.ledger.totalUnbacked)

	owed := fixed.Zero()
	for _, id := range v.ledger.pools.PoolIDs() {
		p, err := v.ledger.pools.Get(id)
		if err != nil {
			return err
		}
		owed = fixed.Add(owed, fixed.Mul(p.TotalDebtShare, p.DebtAccumulatedRate))
	}

	if backed.Cmp(owed) != 0 {
		return fmt.Errorf("backed stablecoin %s does not match pool debt %s", backed, owed)
	}
	return nil
}

// ValidatePoolShares verifies each pool's TotalDebtShare equals the sum of
// its positions' debt shares
func (v *InvariantValidator) ValidatePoolShares() error {
	for _, id := range v.ledger.pools.PoolIDs() {
		p, err := v.ledger.pools.Get(id)
		if err != nil {
			return err
		}
		sum := fixed.Zero()
		for _, pos := range v.ledger.positions[id] {
			sum = fixed.Add(sum, pos.DebtShare)
		}
		if sum.Cmp(p.TotalDebtShare) != 0 {
			return fmt.Errorf("pool %s position shares sum to %s, pool total is %s",
				id, sum, p.TotalDebtShare)
		}
	}
	return nil
}

// ValidateNonNegativeBalances scans all balances for negative values.
// Negative balances can only be produced by a bookkeeping bug; every
// operation front-checks its debits.
func (v *InvariantValidator) ValidateNonNegativeBalances() error {
	for poolID, byAddr := range v.ledger.collateral {
		for addr, bal := range byAddr {
			if bal.Sign() < 0 {
				return fmt.Errorf("negative free collateral %s for %s in pool %s", bal, addr.Hex(), poolID)
			}
		}
	}
	for poolID, byAddr := range v.ledger.positions {
		for addr, pos := range byAddr {
			if pos.LockedCollateral.Sign() < 0 {
				return fmt.Errorf("negative locked collateral %s for %s in pool %s", pos.LockedCollateral, addr.Hex(), poolID)
			}
			if pos.DebtShare.Sign() < 0 {
				return fmt.Errorf("negative debt share %s for %s in pool %s", pos.DebtShare, addr.Hex(), poolID)
			}
		}
	}
	for addr, bal := range v.ledger.stablecoin {
		if bal.Sign() < 0 {
			return fmt.Errorf("negative stablecoin balance %s for %s", bal, addr.Hex())
		}
	}
	for addr, bal := range v.ledger.unbacked {
		if bal.Sign() < 0 {
			return fmt.Errorf("negative unbacked balance %s for %s", bal, addr.Hex())
		}
	}
	return nil
}

// ValidateAll runs every global invariant check
func (v *InvariantValidator) ValidateAll() error {
	if err := v.ValidateStablecoinConservation(); err != nil {
		return err
	}
	if err := v.ValidateDebtBacking(); err != nil {
		return err
	}
	if err := v.ValidatePoolShares(); err != nil {
		return err
	}
	return v.ValidateNonNegativeBalances()
}
