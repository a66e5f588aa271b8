package liquidation

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
	ErrNotLive          = errors.New("liquidation halted: ledger caged")
	ErrPositionSafe     = errors.New("position is safe")
	ErrBadInput         = errors.New("invalid liquidation input")
	ErrCloseFactor      = errors.New("close factor exceeded")
	ErrLiquidateTooMuch = errors.New("liquidation would seize more collateral than locked")
	ErrStalePrice       = errors.New("stale or non-positive oracle price")
	ErrNoStrategy       = errors.New("no strategy registered for pool")
	ErrCalleeFailed     = errors.New("flash lending callee failed")
)

// Phase tracks how far a liquidation call progressed. The whole machine
// runs inside one call; the phase only matters for reporting.
type Phase uint8

const (
	PhaseTriggered Phase = iota
	PhaseValidated
	PhaseExecuted
)

func (p Phase) String() string {
	switch p {
	case PhaseTriggered:
		return "triggered"
	case PhaseValidated:
		return "validated"
	case PhaseExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// Request carries one liquidation attempt through the dispatcher into the
// strategy. Position fields hold the state observed at trigger time.
type Request struct {
	PoolID                   string
	PositionAddr             common.Address
	PositionDebtShare        *big.Int // unit scale
	PositionLockedCollateral *big.Int // unit scale

	DebtShareToRepay    *big.Int // unit scale
	Liquidator          common.Address
	CollateralRecipient common.Address
	Data                []byte
}

// Result reports what a completed liquidation moved.
type Result struct {
	Phase Phase

	DebtShareRepaid      *big.Int // unit scale
	RepaidValue          *big.Int // accum scale
	CollateralLiquidated *big.Int // unit scale
	LiquidatorShare      *big.Int // unit scale
	TreasuryShare        *big.Int // unit scale
}

// Strategy turns a validated liquidation request into ledger mutations.
type Strategy interface {
	Execute(b *journal.Batch, req *Request) (*Result, error)
}

// FlashLendingCallee is invoked after the liquidator's collateral share has
// been delivered and before repayment is pulled, so the callee can turn
// collateral into stablecoin inside the same operation. State it leaves
// behind must keep every ledger invariant intact.
type FlashLendingCallee interface {
	OnCollateralReceived(b *journal.Batch, req *Request, collateralShare, repayValue *big.Int) error
}

// Engine is the liquidation dispatcher. It proves a position unsafe, then
// hands the request to the strategy configured on the pool.
type Engine struct {
	pools      *pools.Registry
	ledger     *ledger.Ledger
	strategies map[common.Address]Strategy
}

func NewEngine(poolReg *pools.Registry, l *ledger.Ledger) *Engine {
	return &Engine{
		pools:      poolReg,
		ledger:     l,
		strategies: make(map[common.Address]Strategy),
	}
}

// RegisterStrategy binds a strategy implementation to the address pools
// reference via SetStrategy.
func (e *Engine) RegisterStrategy(addr common.Address, s Strategy) {
	e.strategies[addr] = s
}

// Liquidate runs the single-call state machine: trigger, validate the
// position as unsafe, execute through the pool's strategy. Any error aborts
// with no state change.
func (e *Engine) Liquidate(
	b *journal.Batch,
	liquidator common.Address,
	poolID string,
	positionAddr common.Address,
	debtShareToRepay *big.Int,
	collateralRecipient common.Address,
	data []byte,
) (*Result, error) {
	if !e.ledger.Live() {
		return nil, ErrNotLive
	}
	if positionAddr == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero position address", ErrBadInput)
	}
	if debtShareToRepay == nil || debtShareToRepay.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive repay share", ErrBadInput)
	}
	pool, err := e.pools.Get(poolID)
	if err != nil {
		return nil, err
	}

	pos := e.ledger.GetPosition(poolID, positionAddr)
	if pos.DebtShare.Sign() <= 0 {
		return nil, fmt.Errorf("%w: position has no debt", ErrBadInput)
	}
	if pos.LockedCollateral.Sign() <= 0 {
		return nil, fmt.Errorf("%w: position has no collateral", ErrBadInput)
	}

	// Validated: debt value must exceed what the margin price covers.
	debtValue := fixed.Mul(pos.DebtShare, pool.DebtAccumulatedRate)
	covered := fixed.Mul(pos.LockedCollateral, pool.PriceWithSafetyMargin)
	if debtValue.Cmp(covered) <= 0 {
		return nil, ErrPositionSafe
	}

	strategy, ok := e.strategies[pool.Strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoStrategy, poolID)
	}
	return strategy.Execute(b, &Request{
		PoolID:                   poolID,
		PositionAddr:             positionAddr,
		PositionDebtShare:        pos.DebtShare,
		PositionLockedCollateral: pos.LockedCollateral,
		DebtShareToRepay:         fixed.Clone(debtShareToRepay),
		Liquidator:               liquidator,
		CollateralRecipient:      collateralRecipient,
		Data:                     data,
	})
}

// FixedSpreadStrategy liquidates at the current oracle price plus a fixed
// incentive spread, with no auction. It acts under its own identity
// address, which must hold the liquidation_engine role.
type FixedSpreadStrategy struct {
	table    *auth.Table
	pools    *pools.Registry
	ledger   *ledger.Ledger
	feed     oracle.Oracle
	identity common.Address

	// systemDebtEngine absorbs the unbacked debt and the treasury fee.
	systemDebtEngine common.Address

	callees map[common.Address]FlashLendingCallee
}

func NewFixedSpreadStrategy(table *auth.Table, poolReg *pools.Registry, l *ledger.Ledger, feed oracle.Oracle, identity, systemDebtEngine common.Address) *FixedSpreadStrategy {
	return &FixedSpreadStrategy{
		table:            table,
		pools:            poolReg,
		ledger:           l,
		feed:             feed,
		identity:         identity,
		systemDebtEngine: systemDebtEngine,
		callees:          make(map[common.Address]FlashLendingCallee),
	}
}

// Identity returns the address the strategy acts under.
func (s *FixedSpreadStrategy) Identity() common.Address { return s.identity }

// RegisterCallee enables flash lending for a recipient address.
func (s *FixedSpreadStrategy) RegisterCallee(addr common.Address, c FlashLendingCallee) {
	s.callees[addr] = c
}

// Execute performs the fixed-spread sequence:
//
//	maxRepay    = positionDebtShare * closeFactorBps / 10000
//	feedPrice   = oraclePrice / stableRefPrice
//	seized      = repayShare * rate * incentiveBps / 10000 / feedPrice
//	treasury    = seized * treasuryFeesBps / 10000
//	liquidator  = seized - treasury
//
// then confiscates, splits the collateral, runs the flash callee if one is
// registered for the recipient, and pulls repayment from the liquidator.
// All divisions truncate, matching the ledger's rounding.
func (s *FixedSpreadStrategy) Execute(b *journal.Batch, req *Request) (*Result, error) {
	pool, err := s.pools.Get(req.PoolID)
	if err != nil {
		return nil, err
	}
	if pool.CloseFactorBps == 0 {
		return nil, fmt.Errorf("%w: close factor not configured", ErrCloseFactor)
	}
	maxRepay := fixed.MulBps(req.PositionDebtShare, pool.CloseFactorBps)
	if req.DebtShareToRepay.Cmp(maxRepay) > 0 {
		return nil, fmt.Errorf("%w: repay %s exceeds maximum %s", ErrCloseFactor, req.DebtShareToRepay, maxRepay)
	}

	price, ok := s.feed.GetPrice(req.PoolID)
	if !ok || price.Sign() <= 0 {
		return nil, ErrStalePrice
	}
	feedPrice := fixed.DivRate(fixed.UnitToRate(price), s.pools.StableRefPrice())

	repaidValue := fixed.Mul(req.DebtShareToRepay, pool.DebtAccumulatedRate) // accum
	seized := fixed.Quo(fixed.MulBps(repaidValue, pool.LiquidatorIncentiveBps), feedPrice)
	if seized.Cmp(req.PositionLockedCollateral) > 0 {
		return nil, fmt.Errorf("%w: need %s, locked %s", ErrLiquidateTooMuch, seized, req.PositionLockedCollateral)
	}

	treasuryShare := fixed.MulBps(seized, pool.TreasuryFeesBps)
	liquidatorShare := fixed.Sub(seized, treasuryShare)

	// Without a flash callee the repayment funds must exist up front, so a
	// doomed liquidation fails before any state moves. With a callee the
	// funds may only appear inside the callback; the caller is responsible
	// for rolling back if the callback path fails midway.
	flash := false
	if callee, ok := s.callees[req.CollateralRecipient]; ok && callee != nil && len(req.Data) > 0 {
		flash = true
	}
	if !flash {
		if !s.table.CanMove(req.Liquidator, s.identity) {
			return nil, fmt.Errorf("%w: liquidator has not whitelisted the strategy", auth.ErrNotAuthorized)
		}
		if s.ledger.GetStablecoin(req.Liquidator).Cmp(repaidValue) < 0 {
			return nil, ledger.ErrInsufficientStablecoin
		}
	}

	if err := s.ledger.ConfiscatePosition(b, s.identity, req.PoolID,
		req.PositionAddr, s.identity, s.systemDebtEngine,
		fixed.Neg(seized), fixed.Neg(req.DebtShareToRepay)); err != nil {
		return nil, err
	}
	if err := s.ledger.SplitConfiscatedCollateral(b, s.identity, req.PoolID,
		s.systemDebtEngine, req.CollateralRecipient, treasuryShare, liquidatorShare); err != nil {
		return nil, err
	}

	if callee, ok := s.callees[req.CollateralRecipient]; ok && len(req.Data) > 0 {
		if err := callee.OnCollateralReceived(b, req, liquidatorShare, repaidValue); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCalleeFailed, err)
		}
	}

	// Repayment: the liquidator must have whitelisted the strategy.
	if err := s.ledger.MoveStablecoin(b, s.identity, req.Liquidator, s.systemDebtEngine, repaidValue); err != nil {
		return nil, err
	}

	return &Result{
		Phase:                PhaseExecuted,
		DebtShareRepaid:      fixed.Clone(req.DebtShareToRepay),
		RepaidValue:          repaidValue,
		CollateralLiquidated: seized,
		LiquidatorShare:      liquidatorShare,
		TreasuryShare:        treasuryShare,
	}, nil
}
