package pools

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// State is the serializable form of the registry, used by snapshots.
type State struct {
	Live           bool        `json:"live"`
	StableRefPrice string      `json:"stable_ref_price"`
	Pools          []PoolState `json:"pools"`
}

type PoolState struct {
	ID                    string `json:"id"`
	DebtAccumulatedRate   string `json:"debt_accumulated_rate"`
	TotalDebtShare        string `json:"total_debt_share"`
	DebtCeiling           string `json:"debt_ceiling"`
	DebtFloor             string `json:"debt_floor"`
	PriceWithSafetyMargin string `json:"price_with_safety_margin"`
	LiquidationRatio      string `json:"liquidation_ratio"`
	StabilityFeeRate      string `json:"stability_fee_rate"`
	LastAccumulationTime  int64  `json:"last_accumulation_time"`

	Adapter  string `json:"adapter"`
	Strategy string `json:"strategy"`

	CloseFactorBps         uint64 `json:"close_factor_bps"`
	LiquidatorIncentiveBps uint64 `json:"liquidator_incentive_bps"`
	TreasuryFeesBps        uint64 `json:"treasury_fees_bps"`
}

// Export captures every pool's parameters and accumulators.
func (r *Registry) Export() *State {
	st := &State{
		Live:           r.live,
		StableRefPrice: r.stableRefPrice.String(),
	}
	for _, id := range sortedIDs(r.pools) {
		p := r.pools[id]
		st.Pools = append(st.Pools, PoolState{
			ID:                     p.ID,
			DebtAccumulatedRate:    p.DebtAccumulatedRate.String(),
			TotalDebtShare:         p.TotalDebtShare.String(),
			DebtCeiling:            p.DebtCeiling.String(),
			DebtFloor:              p.DebtFloor.String(),
			PriceWithSafetyMargin:  p.PriceWithSafetyMargin.String(),
			LiquidationRatio:       p.LiquidationRatio.String(),
			StabilityFeeRate:       p.StabilityFeeRate.String(),
			LastAccumulationTime:   p.LastAccumulationTime,
			Adapter:                p.Adapter.Hex(),
			Strategy:               p.Strategy.Hex(),
			CloseFactorBps:         p.CloseFactorBps,
			LiquidatorIncentiveBps: p.LiquidatorIncentiveBps,
			TreasuryFeesBps:        p.TreasuryFeesBps,
		})
	}
	return st
}

// Restore replaces the registry's state with the snapshot's.
func (r *Registry) Restore(st *State) error {
	refPrice, err := parseScaled(st.StableRefPrice)
	if err != nil {
		return fmt.Errorf("stable ref price: %w", err)
	}

	restored := make(map[string]*Pool, len(st.Pools))
	for _, ps := range st.Pools {
		p := &Pool{
			ID:                     ps.ID,
			LastAccumulationTime:   ps.LastAccumulationTime,
			Adapter:                common.HexToAddress(ps.Adapter),
			Strategy:               common.HexToAddress(ps.Strategy),
			CloseFactorBps:         ps.CloseFactorBps,
			LiquidatorIncentiveBps: ps.LiquidatorIncentiveBps,
			TreasuryFeesBps:        ps.TreasuryFeesBps,
		}
		fields := []struct {
			name string
			src  string
			dst  **big.Int
		}{
			{"debt accumulated rate", ps.DebtAccumulatedRate, &p.DebtAccumulatedRate},
			{"total debt share", ps.TotalDebtShare, &p.TotalDebtShare},
			{"debt ceiling", ps.DebtCeiling, &p.DebtCeiling},
			{"debt floor", ps.DebtFloor, &p.DebtFloor},
			{"price with safety margin", ps.PriceWithSafetyMargin, &p.PriceWithSafetyMargin},
			{"liquidation ratio", ps.LiquidationRatio, &p.LiquidationRatio},
			{"stability fee rate", ps.StabilityFeeRate, &p.StabilityFeeRate},
		}
		for _, f := range fields {
			v, err := parseScaled(f.src)
			if err != nil {
				return fmt.Errorf("pool %s %s: %w", ps.ID, f.name, err)
			}
			*f.dst = v
		}
		restored[ps.ID] = p
	}

	r.live = st.Live
	r.stableRefPrice = refPrice
	r.pools = restored
	return nil
}

// PoolIDsSorted returns pool ids in lexical order, for deterministic
// iteration when hashing or projecting state.
func (r *Registry) PoolIDsSorted() []string {
	ids := r.PoolIDs()
	sort.Strings(ids)
	return ids
}

func parseScaled(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return v, nil
}
