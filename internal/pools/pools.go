package pools

import (
	"errors"
	"fmt"
	"math/big"

	"VaultLedger/internal/auth"
	"VaultLedger/internal/fixed"
	"VaultLedger/internal/oracle"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrPoolNotFound  = errors.New("collateral pool not initialized")
	ErrPoolExists    = errors.New("collateral pool already initialized")
	ErrRegistryCaged = errors.New("pool registry caged")
	ErrBadParam      = errors.New("invalid pool parameter")
)

// Pool holds one collateral type's risk parameters and accumulators.
// Scale conventions: TotalDebtShare is unit scale, DebtAccumulatedRate /
// PriceWithSafetyMargin / LiquidationRatio / StabilityFeeRate are rate
// scale, DebtCeiling / DebtFloor are accum scale.
type Pool struct {
	ID string

	DebtAccumulatedRate   *big.Int // monotonically non-decreasing, starts at 1.0
	TotalDebtShare        *big.Int
	DebtCeiling           *big.Int
	DebtFloor             *big.Int
	PriceWithSafetyMargin *big.Int
	LiquidationRatio      *big.Int
	StabilityFeeRate      *big.Int // per-second multiplier
	LastAccumulationTime  int64    // epoch seconds of last fee accrual

	Adapter  common.Address
	Strategy common.Address

	CloseFactorBps         uint64
	LiquidatorIncentiveBps uint64
	TreasuryFeesBps        uint64
}

// Registry owns every pool's configuration. It is the leaf dependency of
// the ledger and the liquidation strategy: read accessors are O(1) map
// lookups with no side effects.
//
// Not thread-safe — only accessed from the single-threaded deterministic core.
type Registry struct {
	table  *auth.Table
	oracle oracle.Oracle
	pools  map[string]*Pool

	// StableRefPrice is the reference price of the stable unit (rate
	// scale, 1e27 == one reference currency unit).
	stableRefPrice *big.Int

	live bool
}

func NewRegistry(table *auth.Table, feed oracle.Oracle) *Registry {
	return &Registry{
		table:          table,
		oracle:         feed,
		pools:          make(map[string]*Pool),
		stableRefPrice: fixed.Clone(fixed.RateScale),
		live:           true,
	}
}

// Init creates a pool with DebtAccumulatedRate fixed at 1.0. One-time per
// pool id.
func (r *Registry) Init(caller common.Address, poolID string) (*Pool, error) {
	if !r.table.Has(auth.RoleOwner, caller) {
		return nil, fmt.Errorf("%w: init pool requires owner role", auth.ErrNotAuthorized)
	}
	if !r.live {
		return nil, ErrRegistryCaged
	}
	if poolID == "" {
		return nil, fmt.Errorf("%w: empty pool id", ErrBadParam)
	}
	if _, ok := r.pools[poolID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolExists, poolID)
	}

	p := &Pool{
		ID:                    poolID,
		DebtAccumulatedRate:   fixed.Clone(fixed.RateScale),
		TotalDebtShare:        fixed.Zero(),
		DebtCeiling:           fixed.Zero(),
		DebtFloor:             fixed.Zero(),
		PriceWithSafetyMargin: fixed.Zero(),
		LiquidationRatio:      fixed.Clone(fixed.RateScale),
		StabilityFeeRate:      fixed.Clone(fixed.RateScale),
	}
	r.pools[poolID] = p
	return p, nil
}

// Get returns the pool, or ErrPoolNotFound.
func (r *Registry) Get(poolID string) (*Pool, error) {
	p, ok := r.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	return p, nil
}

// Has reports whether the pool exists.
func (r *Registry) Has(poolID string) bool {
	_, ok := r.pools[poolID]
	return ok
}

// PoolIDs returns all pool ids. Order is not deterministic; callers that
// hash or iterate state must sort.
func (r *Registry) PoolIDs() []string {
	ids := make([]string, 0, len(r.pools))
	for id := range r.pools {
		ids = append(ids, id)
	}
	return ids
}

// Live reports whether the registry accepts parameter changes and pokes.
func (r *Registry) Live() bool { return r.live }

// Cage permanently freezes the registry. Only the emergency settlement path
// (show-stopper role) or the owner may do this.
func (r *Registry) Cage(caller common.Address) error {
	if !r.table.HasAny(caller, auth.RoleOwner, auth.RoleShowStopper) {
		return fmt.Errorf("%w: cage requires owner or show_stopper role", auth.ErrNotAuthorized)
	}
	r.live = false
	return nil
}

// StableRefPrice returns the reference price of the stable unit (rate scale).
func (r *Registry) StableRefPrice() *big.Int {
	return fixed.Clone(r.stableRefPrice)
}

func (r *Registry) ownerGate(caller common.Address) error {
	if !r.table.Has(auth.RoleOwner, caller) {
		return fmt.Errorf("%w: pool parameter setters require owner role", auth.ErrNotAuthorized)
	}
	if !r.live {
		return ErrRegistryCaged
	}
	return nil
}

// --- Owner-gated parameter setters ---

func (r *Registry) SetDebtCeiling(caller common.Address, poolID string, ceiling *big.Int) error {
	if err := r.ownerGate(caller); err != nil {
		return err
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}
	if ceiling.Sign() < 0 {
		return fmt.Errorf("%w: negative debt ceiling", ErrBadParam)
	}
	p.DebtCeiling = fixed.Clone(ceiling)
	return nil
}

func (r *Registry) SetDebtFloor(caller common.Address, poolID string, floor *big.Int) error {
	if err := r.ownerGate(caller); err != nil {
		return err
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}
	if floor.Sign() < 0 {
		return fmt.Errorf("%w: negative debt floor", ErrBadParam)
	}
	p.DebtFloor = fixed.Clone(floor)
	return nil
}

func (r *Registry) SetLiquidationRatio(caller common.Address, poolID string, ratio *big.Int) error {
	if err := r.ownerGate(caller); err != nil {
		return err
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}
	// A ratio below 1.0 would let positions exceed their collateral value.
	if ratio.Cmp(fixed.RateScale) < 0 {
		return fmt.Errorf("%w: liquidation ratio below 1.0", ErrBadParam)
	}
	p.LiquidationRatio = fixed.Clone(ratio)
	return nil
}

func (r *Registry) SetStabilityFeeRate(caller common.Address, poolID string, rate *big.Int) error {
	if err := r.ownerGate(caller); err != nil {
		return err
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}
	// The per-second multiplier compounds; below 1.0 it would shrink debt.
	if rate.Cmp(fixed.RateScale) < 0 {
		return fmt.Errorf("%w: stability fee rate below 1.0", ErrBadParam)
	}
	p.StabilityFeeRate = fixed.Clone(rate)
	return nil
}

func (r *Registry) SetAdapter(caller common.Address, poolID string, adapter common.Address) error {
	if err := r.ownerGate(caller); err != nil {
		return err
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}
	p.Adapter = adapter
	return nil
}

func (r *Registry) SetStrategy(caller common.Address, poolID string, strategy common.Address) error {
	if err := r.ownerGate(caller); err != nil {
		return err
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}
	p.Strategy = strategy
	return nil
}

func (r *Registry) SetCloseFactorBps(caller common.Address, poolID string, bps uint64) error {
	if err := r.ownerGate(caller); err != nil {
		return err
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}
	if bps > 10_000 {
		return fmt.Errorf("%w: close factor above 10000 bps", ErrBadParam)
	}
	p.CloseFactorBps = bps
	return nil
}

func (r *Registry) SetLiquidatorIncentiveBps(caller common.Address, poolID string, bps uint64) error {
	if err := r.ownerGate(caller); err != nil {
		return err
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}
	// Incentive is applied on top of repaid debt value; 10000 bps == no bonus.
	if bps < 10_000 {
		return fmt.Errorf("%w: liquidator incentive below 10000 bps", ErrBadParam)
	}
	p.LiquidatorIncentiveBps = bps
	return nil
}

func (r *Registry) SetTreasuryFeesBps(caller common.Address, poolID string, bps uint64) error {
	if err := r.ownerGate(caller); err != nil {
		return err
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}
	if bps > 10_000 {
		return fmt.Errorf("%w: treasury fee above 10000 bps", ErrBadParam)
	}
	p.TreasuryFeesBps = bps
	return nil
}

func (r *Registry) SetStableRefPrice(caller common.Address, price *big.Int) error {
	if !r.table.Has(auth.RoleOwner, caller) {
		return fmt.Errorf("%w: setting reference price requires owner role", auth.ErrNotAuthorized)
	}
	if !r.live {
		return ErrRegistryCaged
	}
	if price.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive reference price", ErrBadParam)
	}
	r.stableRefPrice = fixed.Clone(price)
	return nil
}

// Poke refreshes PriceWithSafetyMargin from the oracle:
//
//	priceWithSafetyMargin = (price / stableRefPrice) / liquidationRatio
//
// in rate scale. A stale or non-positive feed zeroes the margin price,
// which blocks new debt draws without touching existing positions.
func (r *Registry) Poke(poolID string) error {
	if !r.live {
		return ErrRegistryCaged
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}

	price, ok := r.oracle.GetPrice(poolID)
	if !ok || price.Sign() <= 0 {
		p.PriceWithSafetyMargin = fixed.Zero()
		return nil
	}

	priceRate := fixed.UnitToRate(price)
	ref := fixed.DivRate(priceRate, r.stableRefPrice)
	p.PriceWithSafetyMargin = fixed.DivRate(ref, p.LiquidationRatio)
	return nil
}
