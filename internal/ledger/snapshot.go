package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// State is the serializable form of the ledger, used by snapshots.
// Amounts are decimal strings so they survive JSON without precision loss.
// Slices are sorted so the encoding is deterministic.
type State struct {
	Live   bool `json:"live"`
	Paused bool `json:"paused"`

	TotalStablecoinIssued string `json:"total_stablecoin_issued"`
	TotalUnbacked         string `json:"total_unbacked"`
	TotalDebtCeiling      string `json:"total_debt_ceiling"`

	Collateral []CollateralState `json:"collateral"`
	Positions  []PositionState   `json:"positions"`
	Stablecoin []BalanceState    `json:"stablecoin"`
	Unbacked   []BalanceState    `json:"unbacked"`
}

type CollateralState struct {
	PoolID  string `json:"pool_id"`
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type PositionState struct {
	PoolID           string `json:"pool_id"`
	Address          string `json:"address"`
	LockedCollateral string `json:"locked_collateral"`
	DebtShare        string `json:"debt_share"`
}

type BalanceState struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// Export captures the full ledger state.
func (l *Ledger) Export() *State {
	st := &State{
		Live:                  l.live,
		Paused:                l.paused,
		TotalStablecoinIssued: l.totalStablecoinIssued.String(),
		TotalUnbacked:         l.totalUnbacked.String(),
		TotalDebtCeiling:      l.totalDebtCeiling.String(),
	}

	for poolID, byAddr := range l.collateral {
		for addr, bal := range byAddr {
			if bal.Sign() == 0 {
				continue
			}
			st.Collateral = append(st.Collateral, CollateralState{
				PoolID:  poolID,
				Address: addr.Hex(),
				Amount:  bal.String(),
			})
		}
	}
	sort.Slice(st.Collateral, func(i, j int) bool {
		a, b := st.Collateral[i], st.Collateral[j]
		if a.PoolID != b.PoolID {
			return a.PoolID < b.PoolID
		}
		return a.Address < b.Address
	})

	for poolID, byAddr := range l.positions {
		for addr, pos := range byAddr {
			if pos.LockedCollateral.Sign() == 0 && pos.DebtShare.Sign() == 0 {
				continue
			}
			st.Positions = append(st.Positions, PositionState{
				PoolID:           poolID,
				Address:          addr.Hex(),
				LockedCollateral: pos.LockedCollateral.String(),
				DebtShare:        pos.DebtShare.String(),
			})
		}
	}
	sort.Slice(st.Positions, func(i, j int) bool {
		a, b := st.Positions[i], st.Positions[j]
		if a.PoolID != b.PoolID {
			return a.PoolID < b.PoolID
		}
		return a.Address < b.Address
	})

	st.Stablecoin = exportBalances(l.stablecoin)
	st.Unbacked = exportBalances(l.unbacked)
	return st
}

func exportBalances(m map[common.Address]*big.Int) []BalanceState {
	out := make([]BalanceState, 0, len(m))
	for addr, bal := range m {
		if bal.Sign() == 0 {
			continue
		}
		out = append(out, BalanceState{Address: addr.Hex(), Amount: bal.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Restore replaces the ledger's state with the snapshot's. Pool registry
// state is restored separately; callers must keep the two consistent.
func (l *Ledger) Restore(st *State) error {
	totalIssued, err := parseAmount(st.TotalStablecoinIssued)
	if err != nil {
		return fmt.Errorf("total stablecoin issued: %w", err)
	}
	totalUnbacked, err := parseAmount(st.TotalUnbacked)
	if err != nil {
		return fmt.Errorf("total unbacked: %w", err)
	}
	totalCeiling, err := parseAmount(st.TotalDebtCeiling)
	if err != nil {
		return fmt.Errorf("total debt ceiling: %w", err)
	}

	collateral := make(map[string]map[common.Address]*big.Int)
	for _, c := range st.Collateral {
		amt, err := parseAmount(c.Amount)
		if err != nil {
			return fmt.Errorf("collateral %s/%s: %w", c.PoolID, c.Address, err)
		}
		if collateral[c.PoolID] == nil {
			collateral[c.PoolID] = make(map[common.Address]*big.Int)
		}
		collateral[c.PoolID][common.HexToAddress(c.Address)] = amt
	}

	positions := make(map[string]map[common.Address]*Position)
	for _, p := range st.Positions {
		locked, err := parseAmount(p.LockedCollateral)
		if err != nil {
			return fmt.Errorf("position %s/%s locked: %w", p.PoolID, p.Address, err)
		}
		share, err := parseAmount(p.DebtShare)
		if err != nil {
			return fmt.Errorf("position %s/%s share: %w", p.PoolID, p.Address, err)
		}
		if positions[p.PoolID] == nil {
			positions[p.PoolID] = make(map[common.Address]*Position)
		}
		positions[p.PoolID][common.HexToAddress(p.Address)] = &Position{
			LockedCollateral: locked,
			DebtShare:        share,
		}
	}

	stablecoin, err := restoreBalances(st.Stablecoin)
	if err != nil {
		return fmt.Errorf("stablecoin: %w", err)
	}
	unbacked, err := restoreBalances(st.Unbacked)
	if err != nil {
		return fmt.Errorf("unbacked: %w", err)
	}

	l.live = st.Live
	l.paused = st.Paused
	l.totalStablecoinIssued = totalIssued
	l.totalUnbacked = totalUnbacked
	l.totalDebtCeiling = totalCeiling
	l.collateral = collateral
	l.positions = positions
	l.stablecoin = stablecoin
	l.unbacked = unbacked
	return nil
}

func restoreBalances(states []BalanceState) (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(states))
	for _, b := range states {
		amt, err := parseAmount(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Address, err)
		}
		out[common.HexToAddress(b.Address)] = amt
	}
	return out, nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return v, nil
}
