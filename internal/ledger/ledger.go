package ledger

import (
	"fmt"
	"math/big"

	"VaultLedger/internal/auth"
	"VaultLedger/internal/fixed"
	"VaultLedger/internal/journal"
	"VaultLedger/internal/pools"

	"github.com/ethereum/go-ethereum/common"
)

// Position is a (pool, owner) pair's locked collateral and normalized debt
// share. Actual owed value = DebtShare * pool.DebtAccumulatedRate. Positions
// are created implicitly on first touch and decay to zero balances; they
// are never explicitly deleted.
type Position struct {
	LockedCollateral *big.Int // unit scale
	DebtShare        *big.Int // unit scale
}

// Adapter is the per-pool collateral custody collaborator. The ledger calls
// it synchronously inside the same atomic operation whenever locked or free
// collateral changes hands, so external custody stays in step. A callback
// error aborts the operation before any state is committed.
type Adapter interface {
	OnAdjustPosition(poolID string, positionAddr common.Address, deltaCollateral *big.Int) error
	OnMoveCollateral(poolID string, src, dst common.Address, amount *big.Int) error
}

// Ledger is the central double-entry store of collateral balances, debt
// shares, and stable balances. Every public operation checks its capability
// gate first, validates the full post-state, and only then commits — there
// is no partial application of a multi-field update.
//
// Not thread-safe — only accessed from the single-threaded deterministic core.
type Ledger struct {
	table *auth.Table
	pools *pools.Registry

	positions  map[string]map[common.Address]*Position
	collateral map[string]map[common.Address]*big.Int // free collateral, unit scale
	stablecoin map[common.Address]*big.Int            // accum scale
	unbacked   map[common.Address]*big.Int            // accum scale

	totalStablecoinIssued *big.Int // accum scale
	totalUnbacked         *big.Int // accum scale
	totalDebtCeiling      *big.Int // accum scale

	adapters map[string]Adapter

	live   bool
	paused bool
}

func New(table *auth.Table, poolReg *pools.Registry) *Ledger {
	return &Ledger{
		table:                 table,
		pools:                 poolReg,
		positions:             make(map[string]map[common.Address]*Position),
		collateral:            make(map[string]map[common.Address]*big.Int),
		stablecoin:            make(map[common.Address]*big.Int),
		unbacked:              make(map[common.Address]*big.Int),
		totalStablecoinIssued: fixed.Zero(),
		totalUnbacked:         fixed.Zero(),
		totalDebtCeiling:      fixed.Zero(),
		adapters:              make(map[string]Adapter),
		live:                  true,
	}
}

// RegisterAdapter wires the custody callback for a pool.
func (l *Ledger) RegisterAdapter(poolID string, a Adapter) {
	l.adapters[poolID] = a
}

// --- read accessors (always copies; zero when absent) ---

func (l *Ledger) GetPosition(poolID string, addr common.Address) Position {
	if m, ok := l.positions[poolID]; ok {
		if p, ok := m[addr]; ok {
			return Position{
				LockedCollateral: fixed.Clone(p.LockedCollateral),
				DebtShare:        fixed.Clone(p.DebtShare),
			}
		}
	}
	return Position{LockedCollateral: fixed.Zero(), DebtShare: fixed.Zero()}
}

func (l *Ledger) GetCollateral(poolID string, addr common.Address) *big.Int {
	if m, ok := l.collateral[poolID]; ok {
		if v, ok := m[addr]; ok {
			return fixed.Clone(v)
		}
	}
	return fixed.Zero()
}

func (l *Ledger) GetStablecoin(addr common.Address) *big.Int {
	if v, ok := l.stablecoin[addr]; ok {
		return fixed.Clone(v)
	}
	return fixed.Zero()
}

func (l *Ledger) GetUnbacked(addr common.Address) *big.Int {
	if v, ok := l.unbacked[addr]; ok {
		return fixed.Clone(v)
	}
	return fixed.Zero()
}

// HasPool reports whether the pool registry knows poolID.
func (l *Ledger) HasPool(poolID string) bool { return l.pools.Has(poolID) }

func (l *Ledger) TotalStablecoinIssued() *big.Int { return fixed.Clone(l.totalStablecoinIssued) }
func (l *Ledger) TotalUnbacked() *big.Int         { return fixed.Clone(l.totalUnbacked) }
func (l *Ledger) TotalDebtCeiling() *big.Int      { return fixed.Clone(l.totalDebtCeiling) }
func (l *Ledger) Live() bool                      { return l.live }
func (l *Ledger) Paused() bool                    { return l.paused }

// --- write helpers (create cells on demand) ---

func (l *Ledger) position(poolID string, addr common.Address) *Position {
	m, ok := l.positions[poolID]
	if !ok {
		m = make(map[common.Address]*Position)
		l.positions[poolID] = m
	}
	p, ok := m[addr]
	if !ok {
		p = &Position{LockedCollateral: fixed.Zero(), DebtShare: fixed.Zero()}
		m[addr] = p
	}
	return p
}

func (l *Ledger) setCollateral(poolID string, addr common.Address, v *big.Int) {
	m, ok := l.collateral[poolID]
	if !ok {
		m = make(map[common.Address]*big.Int)
		l.collateral[poolID] = m
	}
	m[addr] = v
}

// AddCollateral adds (or, with a negative amount, removes) free collateral
// for addr. Adapter-role-gated: only the custody adapter that actually
// received tokens may credit balances here. No safety check — free
// collateral is not pledged to any position.
func (l *Ledger) AddCollateral(b *journal.Batch, caller common.Address, poolID string, addr common.Address, amount *big.Int) error {
	if !l.table.Has(auth.RoleAdapter, caller) {
		return fmt.Errorf("%w: add collateral requires adapter role", auth.ErrNotAuthorized)
	}
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	if !l.pools.Has(poolID) {
		return fmt.Errorf("%w: %s", pools.ErrPoolNotFound, poolID)
	}
	if amount.Sign() == 0 {
		return ErrNonPositiveAmount
	}

	next := fixed.Add(l.GetCollateral(poolID, addr), amount)
	if next.Sign() < 0 {
		return fmt.Errorf("%w: free collateral", ErrNegativeBalance)
	}

	l.setCollateral(poolID, addr, next)

	abs := fixed.Clone(amount)
	kind := journal.KindAddCollateral
	debit := journal.CollateralAccount(poolID, addr)
	credit := journal.ExternalAccount("adapter:" + poolID)
	if amount.Sign() < 0 {
		abs.Neg(abs)
		kind = journal.KindRemoveCollateral
		debit, credit = credit, debit
	}
	b.Append(kind, journal.DimCollateral(poolID), debit, credit, abs)
	return nil
}

// MoveCollateral transfers free collateral between addresses. The caller
// must be src or whitelisted by src.
func (l *Ledger) MoveCollateral(b *journal.Batch, caller common.Address, poolID string, src, dst common.Address, amount *big.Int) error {
	if !l.table.CanMove(src, caller) {
		return fmt.Errorf("%w: caller may not move collateral of %s", auth.ErrNotAuthorized, src.Hex())
	}
	if dst == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}

	srcNext := fixed.Sub(l.GetCollateral(poolID, src), amount)
	if srcNext.Sign() < 0 {
		return ErrInsufficientCollateral
	}

	if a, ok := l.adapters[poolID]; ok {
		if err := a.OnMoveCollateral(poolID, src, dst, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrAdapterCallback, err)
		}
	}

	l.setCollateral(poolID, src, srcNext)
	l.setCollateral(poolID, dst, fixed.Add(l.GetCollateral(poolID, dst), amount))

	b.Append(journal.KindMoveCollateral, journal.DimCollateral(poolID),
		journal.CollateralAccount(poolID, dst), journal.CollateralAccount(poolID, src), amount)
	return nil
}

// MoveStablecoin transfers stable balance between addresses under the same
// permission model as MoveCollateral.
func (l *Ledger) MoveStablecoin(b *journal.Batch, caller common.Address, src, dst common.Address, amount *big.Int) error {
	if !l.table.CanMove(src, caller) {
		return fmt.Errorf("%w: caller may not move stablecoin of %s", auth.ErrNotAuthorized, src.Hex())
	}
	if dst == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}

	srcNext := fixed.Sub(l.GetStablecoin(src), amount)
	if srcNext.Sign() < 0 {
		return ErrInsufficientStablecoin
	}

	l.stablecoin[src] = srcNext
	l.stablecoin[dst] = fixed.Add(l.GetStablecoin(dst), amount)

	b.Append(journal.KindMoveStablecoin, journal.DimStablecoin,
		journal.StablecoinAccount(dst), journal.StablecoinAccount(src), amount)
	return nil
}

// AdjustPosition is the core state transition: lock/free collateral and
// draw/wipe debt in one atomic step.
//
// Consent matrix: the position owner must consent unless the change
// strictly reduces risk; the collateral owner must consent when free
// collateral is debited (deltaCollateral > 0); the stablecoin owner must
// consent when stable balance is debited (deltaDebtShare < 0).
//
// Post-conditions, all checked before any commit: ceilings on debt
// increase, safety unless risk strictly decreased, debt floor on any
// resulting non-zero debt.
func (l *Ledger) AdjustPosition(
	b *journal.Batch,
	caller common.Address,
	poolID string,
	positionAddr, collateralOwner, stablecoinOwner common.Address,
	deltaCollateral, deltaDebtShare *big.Int,
) error {
	if !l.live {
		return ErrCaged
	}
	if l.paused {
		return ErrPaused
	}
	if positionAddr == (common.Address{}) {
		return ErrZeroAddress
	}
	pool, err := l.pools.Get(poolID)
	if err != nil {
		return err
	}

	pos := l.GetPosition(poolID, positionAddr)
	newLocked := fixed.Add(pos.LockedCollateral, deltaCollateral)
	newShare := fixed.Add(pos.DebtShare, deltaDebtShare)
	newTotalShare := fixed.Add(pool.TotalDebtShare, deltaDebtShare)
	if newLocked.Sign() < 0 || newShare.Sign() < 0 || newTotalShare.Sign() < 0 {
		return fmt.Errorf("%w: position fields", ErrNegativeBalance)
	}

	rate := pool.DebtAccumulatedRate
	debtValue := fixed.Mul(newShare, rate)          // accum scale
	adjustedDebt := fixed.Mul(deltaDebtShare, rate) // accum scale, signed
	newTotalIssued := fixed.Add(l.totalStablecoinIssued, adjustedDebt)

	// Ceilings bind only when debt increases.
	if deltaDebtShare.Sign() > 0 {
		poolDebt := fixed.Mul(newTotalShare, rate)
		if poolDebt.Cmp(pool.DebtCeiling) > 0 {
			return fmt.Errorf("%w: pool %s", ErrPoolCeilingExceeded, poolID)
		}
		if newTotalIssued.Cmp(l.totalDebtCeiling) > 0 {
			return ErrTotalCeilingExceeded
		}
	}

	riskReduced := deltaDebtShare.Sign() <= 0 && deltaCollateral.Sign() >= 0
	safe := debtValue.Cmp(fixed.Mul(newLocked, pool.PriceWithSafetyMargin)) <= 0
	if !riskReduced && !safe {
		return ErrPositionUnsafe
	}

	// Consent checks.
	if !riskReduced && !l.table.CanMove(positionAddr, caller) {
		return fmt.Errorf("%w: position owner has not consented", auth.ErrNotAuthorized)
	}
	if deltaCollateral.Sign() > 0 && !l.table.CanMove(collateralOwner, caller) {
		return fmt.Errorf("%w: collateral owner has not consented", auth.ErrNotAuthorized)
	}
	if deltaDebtShare.Sign() < 0 && !l.table.CanMove(stablecoinOwner, caller) {
		return fmt.Errorf("%w: stablecoin owner has not consented", auth.ErrNotAuthorized)
	}

	if newShare.Sign() != 0 && debtValue.Cmp(pool.DebtFloor) < 0 {
		return fmt.Errorf("%w: debt value below pool floor", ErrDebtFloor)
	}

	// Balance feasibility.
	newFree := fixed.Sub(l.GetCollateral(poolID, collateralOwner), deltaCollateral)
	if newFree.Sign() < 0 {
		return ErrInsufficientCollateral
	}
	newStable := fixed.Add(l.GetStablecoin(stablecoinOwner), adjustedDebt)
	if newStable.Sign() < 0 {
		return ErrInsufficientStablecoin
	}

	if a, ok := l.adapters[poolID]; ok && deltaCollateral.Sign() != 0 {
		if err := a.OnAdjustPosition(poolID, positionAddr, deltaCollateral); err != nil {
			return fmt.Errorf("%w: %v", ErrAdapterCallback, err)
		}
	}

	// Commit.
	p := l.position(poolID, positionAddr)
	p.LockedCollateral = newLocked
	p.DebtShare = newShare
	pool.TotalDebtShare = newTotalShare
	l.setCollateral(poolID, collateralOwner, newFree)
	l.stablecoin[stablecoinOwner] = newStable
	l.totalStablecoinIssued = newTotalIssued

	switch deltaCollateral.Sign() {
	case 1:
		b.Append(journal.KindLockCollateral, journal.DimCollateral(poolID),
			journal.LockedAccount(poolID, positionAddr),
			journal.CollateralAccount(poolID, collateralOwner), deltaCollateral)
	case -1:
		b.Append(journal.KindFreeCollateral, journal.DimCollateral(poolID),
			journal.CollateralAccount(poolID, collateralOwner),
			journal.LockedAccount(poolID, positionAddr), fixed.Neg(deltaCollateral))
	}
	switch deltaDebtShare.Sign() {
	case 1:
		b.Append(journal.KindDrawDebt, journal.DimDebtShare(poolID),
			journal.DebtShareAccount(poolID, positionAddr),
			journal.ExternalAccount("issuance:"+poolID), deltaDebtShare)
		b.Append(journal.KindDrawDebt, journal.DimStablecoin,
			journal.StablecoinAccount(stablecoinOwner),
			journal.ExternalAccount("issuance"), adjustedDebt)
	case -1:
		b.Append(journal.KindWipeDebt, journal.DimDebtShare(poolID),
			journal.ExternalAccount("issuance:"+poolID),
			journal.DebtShareAccount(poolID, positionAddr), fixed.Neg(deltaDebtShare))
		b.Append(journal.KindWipeDebt, journal.DimStablecoin,
			journal.ExternalAccount("issuance"),
			journal.StablecoinAccount(stablecoinOwner), fixed.Neg(adjustedDebt))
	}
	return nil
}

// MovePosition transfers collateral and debt share between two position
// addresses in the same pool. Both sides must consent and both resulting
// positions must independently satisfy safety and the debt floor.
func (l *Ledger) MovePosition(
	b *journal.Batch,
	caller common.Address,
	poolID string,
	src, dst common.Address,
	collateralAmount, debtShareAmount *big.Int,
) error {
	if !l.live {
		return ErrCaged
	}
	if src == dst {
		return ErrSameAddress
	}
	if collateralAmount.Sign() < 0 || debtShareAmount.Sign() < 0 {
		return ErrNonPositiveAmount
	}
	if !l.table.CanMove(src, caller) || !l.table.CanMove(dst, caller) {
		return fmt.Errorf("%w: move position requires consent of both sides", auth.ErrNotAuthorized)
	}
	pool, err := l.pools.Get(poolID)
	if err != nil {
		return err
	}

	srcPos := l.GetPosition(poolID, src)
	dstPos := l.GetPosition(poolID, dst)

	srcLocked := fixed.Sub(srcPos.LockedCollateral, collateralAmount)
	srcShare := fixed.Sub(srcPos.DebtShare, debtShareAmount)
	dstLocked := fixed.Add(dstPos.LockedCollateral, collateralAmount)
	dstShare := fixed.Add(dstPos.DebtShare, debtShareAmount)
	if srcLocked.Sign() < 0 || srcShare.Sign() < 0 {
		return fmt.Errorf("%w: source position", ErrNegativeBalance)
	}

	rate := pool.DebtAccumulatedRate
	for _, side := range []struct {
		locked, share *big.Int
	}{{srcLocked, srcShare}, {dstLocked, dstShare}} {
		debtValue := fixed.Mul(side.share, rate)
		if debtValue.Cmp(fixed.Mul(side.locked, pool.PriceWithSafetyMargin)) > 0 {
			return ErrPositionUnsafe
		}
		if side.share.Sign() != 0 && debtValue.Cmp(pool.DebtFloor) < 0 {
			return fmt.Errorf("%w: resulting debt value below pool floor", ErrDebtFloor)
		}
	}

	sp := l.position(poolID, src)
	dp := l.position(poolID, dst)
	sp.LockedCollateral = srcLocked
	sp.DebtShare = srcShare
	dp.LockedCollateral = dstLocked
	dp.DebtShare = dstShare

	if collateralAmount.Sign() > 0 {
		b.Append(journal.KindMovePosition, journal.DimCollateral(poolID),
			journal.LockedAccount(poolID, dst), journal.LockedAccount(poolID, src), collateralAmount)
	}
	if debtShareAmount.Sign() > 0 {
		b.Append(journal.KindMovePosition, journal.DimDebtShare(poolID),
			journal.DebtShareAccount(poolID, dst), journal.DebtShareAccount(poolID, src), debtShareAmount)
	}
	return nil
}

// ConfiscatePosition is the liquidation-only entry point. It applies signed
// deltas to a position and its pool with no safety check — the caller has
// already proven the position unsafe. The collateral delta routes to
// collateralCreditor's free balance and the confiscated debt value is
// recorded as unbacked debt against stablecoinDebtor.
func (l *Ledger) ConfiscatePosition(
	b *journal.Batch,
	caller common.Address,
	poolID string,
	positionAddr, collateralCreditor, stablecoinDebtor common.Address,
	deltaCollateral, deltaDebtShare *big.Int,
) error {
	if !l.table.Has(auth.RoleLiquidationEngine, caller) {
		return fmt.Errorf("%w: confiscation requires liquidation_engine role", auth.ErrNotAuthorized)
	}
	pool, err := l.pools.Get(poolID)
	if err != nil {
		return err
	}

	pos := l.GetPosition(poolID, positionAddr)
	newLocked := fixed.Add(pos.LockedCollateral, deltaCollateral)
	newShare := fixed.Add(pos.DebtShare, deltaDebtShare)
	newTotalShare := fixed.Add(pool.TotalDebtShare, deltaDebtShare)
	if newLocked.Sign() < 0 || newShare.Sign() < 0 || newTotalShare.Sign() < 0 {
		return fmt.Errorf("%w: confiscation exceeds position", ErrNegativeBalance)
	}

	confiscatedValue := fixed.Mul(deltaDebtShare, pool.DebtAccumulatedRate) // signed accum
	newCreditorFree := fixed.Sub(l.GetCollateral(poolID, collateralCreditor), deltaCollateral)
	if newCreditorFree.Sign() < 0 {
		return ErrInsufficientCollateral
	}

	// Commit.
	p := l.position(poolID, positionAddr)
	p.LockedCollateral = newLocked
	p.DebtShare = newShare
	pool.TotalDebtShare = newTotalShare
	l.setCollateral(poolID, collateralCreditor, newCreditorFree)
	l.unbacked[stablecoinDebtor] = fixed.Sub(l.GetUnbacked(stablecoinDebtor), confiscatedValue)
	l.totalUnbacked = fixed.Sub(l.totalUnbacked, confiscatedValue)

	if deltaCollateral.Sign() < 0 {
		b.Append(journal.KindConfiscateCollateral, journal.DimCollateral(poolID),
			journal.CollateralAccount(poolID, collateralCreditor),
			journal.LockedAccount(poolID, positionAddr), fixed.Neg(deltaCollateral))
	}
	if deltaDebtShare.Sign() < 0 {
		b.Append(journal.KindConfiscateDebt, journal.DimDebtShare(poolID),
			journal.ExternalAccount("confiscated:"+poolID),
			journal.DebtShareAccount(poolID, positionAddr), fixed.Neg(deltaDebtShare))
		b.Append(journal.KindConfiscateDebt, journal.DimUnbacked,
			journal.UnbackedAccount(stablecoinDebtor),
			journal.ExternalAccount("confiscated"), fixed.Neg(confiscatedValue))
	}
	return nil
}

// SplitConfiscatedCollateral distributes collateral the caller just
// confiscated: the treasury share to the system debt engine, the remainder
// to the liquidator's recipient. Liquidation-engine role only, so the split
// entries always pair with a confiscation in the same batch.
func (l *Ledger) SplitConfiscatedCollateral(
	b *journal.Batch,
	caller common.Address,
	poolID string,
	debtEngine, recipient common.Address,
	treasuryShare, liquidatorShare *big.Int,
) error {
	if !l.table.Has(auth.RoleLiquidationEngine, caller) {
		return fmt.Errorf("%w: payout split requires liquidation_engine role", auth.ErrNotAuthorized)
	}
	if treasuryShare.Sign() < 0 || liquidatorShare.Sign() < 0 {
		return ErrNonPositiveAmount
	}
	total := fixed.Add(treasuryShare, liquidatorShare)
	callerNext := fixed.Sub(l.GetCollateral(poolID, caller), total)
	if callerNext.Sign() < 0 {
		return ErrInsufficientCollateral
	}

	l.setCollateral(poolID, caller, callerNext)
	if treasuryShare.Sign() > 0 {
		l.setCollateral(poolID, debtEngine, fixed.Add(l.GetCollateral(poolID, debtEngine), treasuryShare))
		b.Append(journal.KindTreasuryFee, journal.DimCollateral(poolID),
			journal.CollateralAccount(poolID, debtEngine),
			journal.CollateralAccount(poolID, caller), treasuryShare)
	}
	if liquidatorShare.Sign() > 0 {
		l.setCollateral(poolID, recipient, fixed.Add(l.GetCollateral(poolID, recipient), liquidatorShare))
		b.Append(journal.KindLiquidatorPayout, journal.DimCollateral(poolID),
			journal.CollateralAccount(poolID, recipient),
			journal.CollateralAccount(poolID, caller), liquidatorShare)
	}
	return nil
}

// MintUnbackedStablecoin creates stable balance backed by recorded system
// bad debt instead of collateral.
func (l *Ledger) MintUnbackedStablecoin(b *journal.Batch, caller common.Address, from, to common.Address, amount *big.Int) error {
	if !l.table.Has(auth.RoleMintable, caller) {
		return fmt.Errorf("%w: unbacked mint requires mintable role", auth.ErrNotAuthorized)
	}
	if amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}

	l.unbacked[from] = fixed.Add(l.GetUnbacked(from), amount)
	l.stablecoin[to] = fixed.Add(l.GetStablecoin(to), amount)
	l.totalUnbacked = fixed.Add(l.totalUnbacked, amount)
	l.totalStablecoinIssued = fixed.Add(l.totalStablecoinIssued, amount)

	b.Append(journal.KindMintUnbacked, journal.DimStablecoin,
		journal.StablecoinAccount(to), journal.ExternalAccount("unbacked-issuance"), amount)
	b.Append(journal.KindMintUnbacked, journal.DimUnbacked,
		journal.UnbackedAccount(from), journal.ExternalAccount("unbacked-issuance"), amount)
	return nil
}

// SettleSystemBadDebt burns the caller's stablecoin against its own
// recorded unbacked debt, shrinking both sides of the solvency counters.
func (l *Ledger) SettleSystemBadDebt(b *journal.Batch, caller common.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	newUnbacked := fixed.Sub(l.GetUnbacked(caller), amount)
	if newUnbacked.Sign() < 0 {
		return ErrInsufficientUnbacked
	}
	newStable := fixed.Sub(l.GetStablecoin(caller), amount)
	if newStable.Sign() < 0 {
		return ErrInsufficientStablecoin
	}

	l.unbacked[caller] = newUnbacked
	l.stablecoin[caller] = newStable
	l.totalUnbacked = fixed.Sub(l.totalUnbacked, amount)
	l.totalStablecoinIssued = fixed.Sub(l.totalStablecoinIssued, amount)

	b.Append(journal.KindSettleBadDebt, journal.DimStablecoin,
		journal.ExternalAccount("unbacked-issuance"), journal.StablecoinAccount(caller), amount)
	b.Append(journal.KindSettleBadDebt, journal.DimUnbacked,
		journal.ExternalAccount("unbacked-issuance"), journal.UnbackedAccount(caller), amount)
	return nil
}

// AccrueStabilityFee folds a rate delta into the pool's accumulator:
//
//	newRate = oldRate * (1 + rateDelta)
//
// crediting recipient with totalDebtShare * (newRate - oldRate). The
// accumulator is monotone, so negative deltas are rejected. Fails when the
// ledger is caged.
func (l *Ledger) AccrueStabilityFee(b *journal.Batch, caller common.Address, poolID string, recipient common.Address, rateDelta *big.Int) error {
	if !l.table.Has(auth.RoleStabilityFeeCollector, caller) {
		return fmt.Errorf("%w: fee accrual requires stability_fee_collector role", auth.ErrNotAuthorized)
	}
	if !l.live {
		return ErrCaged
	}
	if rateDelta.Sign() < 0 {
		return fmt.Errorf("%w: negative rate delta", ErrNonPositiveAmount)
	}
	pool, err := l.pools.Get(poolID)
	if err != nil {
		return err
	}

	oldRate := pool.DebtAccumulatedRate
	newRate := fixed.MulRate(oldRate, fixed.Add(fixed.RateScale, rateDelta))
	accrued := fixed.Mul(pool.TotalDebtShare, fixed.Sub(newRate, oldRate)) // accum scale

	pool.DebtAccumulatedRate = newRate
	if accrued.Sign() > 0 {
		l.stablecoin[recipient] = fixed.Add(l.GetStablecoin(recipient), accrued)
		l.totalStablecoinIssued = fixed.Add(l.totalStablecoinIssued, accrued)

		b.Append(journal.KindFeeAccrual, journal.DimStablecoin,
			journal.StablecoinAccount(recipient), journal.ExternalAccount("issuance"), accrued)
	}
	return nil
}

// RedeemCollateral pays free collateral out of the settlement pot during
// emergency settlement. Show-stopper role only.
func (l *Ledger) RedeemCollateral(b *journal.Batch, caller common.Address, poolID string, src, dst common.Address, amount *big.Int) error {
	if !l.table.Has(auth.RoleShowStopper, caller) {
		return fmt.Errorf("%w: collateral redemption requires show_stopper role", auth.ErrNotAuthorized)
	}
	if amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	srcNext := fixed.Sub(l.GetCollateral(poolID, src), amount)
	if srcNext.Sign() < 0 {
		return ErrInsufficientCollateral
	}

	l.setCollateral(poolID, src, srcNext)
	l.setCollateral(poolID, dst, fixed.Add(l.GetCollateral(poolID, dst), amount))

	b.Append(journal.KindRedeemCollateral, journal.DimCollateral(poolID),
		journal.CollateralAccount(poolID, dst), journal.CollateralAccount(poolID, src), amount)
	return nil
}

// SurrenderStablecoin turns stablecoin in for redemption after settlement,
// moving it from its holder to the system debt engine. Same consent model
// as MoveStablecoin; the distinct journal kind marks it as a redemption.
func (l *Ledger) SurrenderStablecoin(b *journal.Batch, caller common.Address, src, dst common.Address, amount *big.Int) error {
	if !l.table.CanMove(src, caller) {
		return fmt.Errorf("%w: caller may not surrender stablecoin of %s", auth.ErrNotAuthorized, src.Hex())
	}
	if amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	srcNext := fixed.Sub(l.GetStablecoin(src), amount)
	if srcNext.Sign() < 0 {
		return ErrInsufficientStablecoin
	}

	l.stablecoin[src] = srcNext
	l.stablecoin[dst] = fixed.Add(l.GetStablecoin(dst), amount)

	b.Append(journal.KindRedeemStablecoin, journal.DimStablecoin,
		journal.StablecoinAccount(dst), journal.StablecoinAccount(src), amount)
	return nil
}

// --- administrative operations ---

func (l *Ledger) SetTotalDebtCeiling(caller common.Address, ceiling *big.Int) error {
	if !l.table.Has(auth.RoleOwner, caller) {
		return fmt.Errorf("%w: total debt ceiling requires owner role", auth.ErrNotAuthorized)
	}
	if !l.live {
		return ErrCaged
	}
	if ceiling.Sign() < 0 {
		return ErrNonPositiveAmount
	}
	l.totalDebtCeiling = fixed.Clone(ceiling)
	return nil
}

func (l *Ledger) Pause(caller common.Address) error {
	if !l.table.HasAny(caller, auth.RoleOwner, auth.RoleGov) {
		return fmt.Errorf("%w: pause requires owner or gov role", auth.ErrNotAuthorized)
	}
	l.paused = true
	return nil
}

func (l *Ledger) Unpause(caller common.Address) error {
	if !l.table.HasAny(caller, auth.RoleOwner, auth.RoleGov) {
		return fmt.Errorf("%w: unpause requires owner or gov role", auth.ErrNotAuthorized)
	}
	l.paused = false
	return nil
}

// Cage disables debt issuance and fee accrual, handing control to emergency
// settlement. Idempotent. Uncage reverses a direct cage; a system-wide
// settlement cage stays one-way.
func (l *Ledger) Cage(caller common.Address) error {
	if !l.table.HasAny(caller, auth.RoleOwner, auth.RoleShowStopper) {
		return fmt.Errorf("%w: cage requires owner or show_stopper role", auth.ErrNotAuthorized)
	}
	l.live = false
	return nil
}

func (l *Ledger) Uncage(caller common.Address) error {
	if !l.table.HasAny(caller, auth.RoleOwner, auth.RoleShowStopper) {
		return fmt.Errorf("%w: uncage requires owner or show_stopper role", auth.ErrNotAuthorized)
	}
	l.live = true
	return nil
}
