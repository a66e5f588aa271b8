package settlement

import (
	"errors"
	"fmt"
	"math/big"

	"VaultLedger/internal/auth"
	"VaultLedger/internal/fixed"
	"VaultLedger/internal/journal"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/oracle"
	"VaultLedger/internal/pools"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotCaged        = errors.New("settlement not started")
	ErrAlreadyCaged    = errors.New("already caged")
	ErrPoolNotCaged    = errors.New("pool price not fixed")
	ErrDebtNotFinal    = errors.New("system debt not finalized")
	ErrDebtFinal       = errors.New("system debt already finalized")
	ErrCashNotFinal    = errors.New("cash price not finalized")
	ErrCashFinal       = errors.New("cash price already finalized")
	ErrPositionHasDebt = errors.New("position still carries debt")
	ErrNothingToRedeem = errors.New("nothing to redeem")
	ErrOverBag         = errors.New("redemption exceeds deposited stablecoin")
)

// Settlement winds the system down after a cage: it fixes a final price
// per pool, strips every position to its residual collateral, nets the
// system debt, and lets stablecoin holders claim pro-rata collateral.
//
// The settlement identity address doubles as the collateral pot; it must
// hold the show_stopper and liquidation_engine roles.
type Settlement struct {
	table  *auth.Table
	pools  *pools.Registry
	ledger *ledger.Ledger
	feed   oracle.Oracle

	identity   common.Address
	debtEngine common.Address

	live    bool
	cagedAt int64

	// cagePrice and cashPrice are rate scale (collateral per stable unit),
	// debtSnapshot and shortfall unit scale, finalDebt accum scale.
	cagePrice    map[string]*big.Int
	debtSnapshot map[string]*big.Int
	shortfall    map[string]*big.Int
	cashPrice    map[string]*big.Int
	finalDebt    *big.Int

	// bag and redeemed track per-address deposits and claims, unit scale.
	bag      map[common.Address]*big.Int
	redeemed map[string]map[common.Address]*big.Int
}

func New(table *auth.Table, poolReg *pools.Registry, l *ledger.Ledger, feed oracle.Oracle, identity, debtEngine common.Address) *Settlement {
	return &Settlement{
		table:        table,
		pools:        poolReg,
		ledger:       l,
		feed:         feed,
		identity:     identity,
		debtEngine:   debtEngine,
		live:         true,
		cagePrice:    make(map[string]*big.Int),
		debtSnapshot: make(map[string]*big.Int),
		shortfall:    make(map[string]*big.Int),
		cashPrice:    make(map[string]*big.Int),
		finalDebt:    fixed.Zero(),
		bag:          make(map[common.Address]*big.Int),
		redeemed:     make(map[string]map[common.Address]*big.Int),
	}
}

// Identity returns the settlement pot address.
func (s *Settlement) Identity() common.Address { return s.identity }

// Live reports whether the system is still running normally.
func (s *Settlement) Live() bool { return s.live }

// CagePrice returns the fixed cage price for a pool, nil if not caged.
func (s *Settlement) CagePrice(poolID string) *big.Int {
	if v, ok := s.cagePrice[poolID]; ok {
		return fixed.Clone(v)
	}
	return nil
}

// CashPrice returns the final redemption price for a pool, nil if not
// finalized.
func (s *Settlement) CashPrice(poolID string) *big.Int {
	if v, ok := s.cashPrice[poolID]; ok {
		return fixed.Clone(v)
	}
	return nil
}

// FinalDebt returns the netted system debt, zero until finalized.
func (s *Settlement) FinalDebt() *big.Int { return fixed.Clone(s.finalDebt) }

// Bag returns how much stablecoin addr has deposited for redemption.
func (s *Settlement) Bag(addr common.Address) *big.Int {
	if v, ok := s.bag[addr]; ok {
		return fixed.Clone(v)
	}
	return fixed.Zero()
}

// Cage freezes the whole system: the ledger stops issuing, the pool
// registry stops accepting parameter changes, and settlement begins.
// Owner only, one-way.
func (s *Settlement) Cage(caller common.Address, now int64) error {
	if !s.table.Has(auth.RoleOwner, caller) {
		return fmt.Errorf("%w: cage requires owner role", auth.ErrNotAuthorized)
	}
	if !s.live {
		return ErrAlreadyCaged
	}
	if err := s.ledger.Cage(s.identity); err != nil {
		return err
	}
	if err := s.pools.Cage(s.identity); err != nil {
		return err
	}
	s.live = false
	s.cagedAt = now
	return nil
}

// CagePool fixes a pool's settlement price from the current oracle feed:
//
//	cagePrice = stableRefPrice / price
//
// in rate scale, i.e. collateral units owed per stable unit. A stale feed
// is a hard failure; settlement never substitutes a default price.
func (s *Settlement) CagePool(poolID string) error {
	if s.live {
		return ErrNotCaged
	}
	if _, ok := s.cagePrice[poolID]; ok {
		return fmt.Errorf("%w: pool %s", ErrAlreadyCaged, poolID)
	}
	pool, err := s.pools.Get(poolID)
	if err != nil {
		return err
	}
	price, ok := s.feed.GetPrice(poolID)
	if !ok || price.Sign() <= 0 {
		return fmt.Errorf("stale or non-positive feed for %s at cage", poolID)
	}

	s.cagePrice[poolID] = fixed.DivRate(s.pools.StableRefPrice(), fixed.UnitToRate(price))
	s.debtSnapshot[poolID] = fixed.Clone(pool.TotalDebtShare)
	s.shortfall[poolID] = fixed.Zero()
	return nil
}

// AccumulateBadDebt strips one position: its full debt share is
// confiscated and collateral worth the owed value (at the cage price)
// moves into the settlement pot. Undercollateralized positions surrender
// everything and the uncovered remainder is recorded as shortfall.
func (s *Settlement) AccumulateBadDebt(b *journal.Batch, poolID string, positionAddr common.Address) error {
	cagePrice, ok := s.cagePrice[poolID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotCaged, poolID)
	}
	pool, err := s.pools.Get(poolID)
	if err != nil {
		return err
	}
	pos := s.ledger.GetPosition(poolID, positionAddr)
	if pos.DebtShare.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrNothingToRedeem, positionAddr.Hex())
	}

	debtValue := fixed.Mul(pos.DebtShare, pool.DebtAccumulatedRate)
	owe := fixed.Quo(fixed.MulRate(debtValue, cagePrice), fixed.RateScale) // unit scale
	take := fixed.Min(pos.LockedCollateral, owe)
	if owe.Cmp(pos.LockedCollateral) > 0 {
		s.shortfall[poolID] = fixed.Add(s.shortfall[poolID], fixed.Sub(owe, pos.LockedCollateral))
	}

	return s.ledger.ConfiscatePosition(b, s.identity, poolID,
		positionAddr, s.identity, s.debtEngine,
		fixed.Neg(take), fixed.Neg(pos.DebtShare))
}

// RedeemLockedCollateral releases a stripped position's residual collateral
// to dst. Only positions with zero debt share qualify.
func (s *Settlement) RedeemLockedCollateral(b *journal.Batch, poolID string, positionAddr, dst common.Address) error {
	if s.live {
		return ErrNotCaged
	}
	pos := s.ledger.GetPosition(poolID, positionAddr)
	if pos.DebtShare.Sign() != 0 {
		return ErrPositionHasDebt
	}
	if pos.LockedCollateral.Sign() <= 0 {
		return ErrNothingToRedeem
	}

	if err := s.ledger.ConfiscatePosition(b, s.identity, poolID,
		positionAddr, s.identity, s.debtEngine,
		fixed.Neg(pos.LockedCollateral), fixed.Zero()); err != nil {
		return err
	}
	return s.ledger.RedeemCollateral(b, s.identity, poolID, s.identity, dst, pos.LockedCollateral)
}

// FinalizeDebt nets the system debt to the total outstanding stablecoin.
// Runs once, after every pool has been caged and stripped.
func (s *Settlement) FinalizeDebt() error {
	if s.live {
		return ErrNotCaged
	}
	if s.finalDebt.Sign() != 0 {
		return ErrDebtFinal
	}
	debt := s.ledger.TotalStablecoinIssued()
	if debt.Sign() <= 0 {
		return ErrNothingToRedeem
	}
	s.finalDebt = debt
	return nil
}

// FinalizeCashPrice fixes how much collateral one stable unit redeems for
// in this pool:
//
//	cashPrice = (snapshotDebt * rate at cage price - shortfall) / finalDebt
func (s *Settlement) FinalizeCashPrice(poolID string) error {
	if s.finalDebt.Sign() == 0 {
		return ErrDebtNotFinal
	}
	cagePrice, ok := s.cagePrice[poolID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotCaged, poolID)
	}
	if _, ok := s.cashPrice[poolID]; ok {
		return fmt.Errorf("%w: %s", ErrCashFinal, poolID)
	}
	pool, err := s.pools.Get(poolID)
	if err != nil {
		return err
	}

	debtValue := fixed.Mul(s.debtSnapshot[poolID], pool.DebtAccumulatedRate)
	have := fixed.Quo(fixed.MulRate(debtValue, cagePrice), fixed.RateScale) // unit scale
	have = fixed.Sub(have, s.shortfall[poolID])
	if have.Sign() < 0 {
		have = fixed.Zero()
	}

	// finalDebt stays in accum scale: rounding it down to units first would
	// truncate dust-sized debt to zero and divide by it.
	s.cashPrice[poolID] = fixed.Quo(
		fixed.Mul(have, fixed.Mul(fixed.RateScale, fixed.RateScale)),
		s.finalDebt,
	)
	return nil
}

// AccumulateStablecoin deposits the caller's stablecoin for redemption.
// The deposit routes to the system debt engine, offsetting the bad debt
// booked during stripping. Amount is in unit scale.
func (s *Settlement) AccumulateStablecoin(b *journal.Batch, caller common.Address, amount *big.Int) error {
	if s.finalDebt.Sign() == 0 {
		return ErrDebtNotFinal
	}
	if amount.Sign() <= 0 {
		return ledger.ErrNonPositiveAmount
	}
	value := fixed.Mul(amount, fixed.RateScale) // accum scale
	if err := s.ledger.SurrenderStablecoin(b, caller, caller, s.debtEngine, value); err != nil {
		return err
	}
	if s.bag[caller] == nil {
		s.bag[caller] = fixed.Zero()
	}
	s.bag[caller] = fixed.Add(s.bag[caller], amount)
	return nil
}

// RedeemStablecoin converts amount units of deposited stablecoin into this
// pool's collateral at the final cash price.
func (s *Settlement) RedeemStablecoin(b *journal.Batch, caller common.Address, poolID string, amount *big.Int) error {
	cashPrice, ok := s.cashPrice[poolID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCashNotFinal, poolID)
	}
	if amount.Sign() <= 0 {
		return ledger.ErrNonPositiveAmount
	}

	if s.redeemed[poolID] == nil {
		s.redeemed[poolID] = make(map[common.Address]*big.Int)
	}
	already := s.redeemed[poolID][caller]
	if already == nil {
		already = fixed.Zero()
	}
	next := fixed.Add(already, amount)
	if next.Cmp(s.Bag(caller)) > 0 {
		return ErrOverBag
	}

	collateral := fixed.MulRate(amount, cashPrice) // unit scale
	if collateral.Sign() <= 0 {
		return ErrNothingToRedeem
	}
	if err := s.ledger.RedeemCollateral(b, s.identity, poolID, s.identity, caller, collateral); err != nil {
		return err
	}
	s.redeemed[poolID][caller] = next
	return nil
}
