package settlement_test

import (
	"errors"
	"math/big"
	"testing"

	"VaultLedger/internal/auth"
	"VaultLedger/internal/fixed"
	"VaultLedger/internal/journal"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/oracle"
	"VaultLedger/internal/pools"
	"VaultLedger/internal/settlement"

	"github.com/ethereum/go-ethereum/common"
)

var (
	owner      = common.HexToAddress("0x0000000000000000000000000000000000000001")
	adapter    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	stopperID  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	debtEngine = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	alice      = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob        = common.HexToAddress("0x000000000000000000000000000000000000b0bb")
)

func unit(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fixed.UnitScale)
}

func rad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fixed.AccumScale)
}

type fixture struct {
	table  *auth.Table
	feed   *oracle.PriceBook
	pools  *pools.Registry
	ledger *ledger.Ledger
	stop   *settlement.Settlement
	valid  *ledger.InvariantValidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	table := auth.NewTable()
	table.Grant(auth.RoleOwner, owner)
	table.Grant(auth.RoleAdapter, adapter)
	table.Grant(auth.RoleShowStopper, stopperID)
	table.Grant(auth.RoleLiquidationEngine, stopperID)

	feed := oracle.NewPriceBook()
	reg := pools.NewRegistry(table, feed)
	if _, err := reg.Init(owner, "BNB"); err != nil {
		t.Fatalf("init pool: %v", err)
	}
	if err := reg.SetDebtCeiling(owner, "BNB", rad(1_000_000)); err != nil {
		t.Fatalf("ceiling: %v", err)
	}
	feed.Set("BNB", unit(1000), true, 1)
	if err := reg.Poke("BNB"); err != nil {
		t.Fatalf("poke: %v", err)
	}

	l := ledger.New(table, reg)
	if err := l.SetTotalDebtCeiling(owner, rad(1_000_000)); err != nil {
		t.Fatalf("total ceiling: %v", err)
	}
	return &fixture{
		table:  table,
		feed:   feed,
		pools:  reg,
		ledger: l,
		stop:   settlement.New(table, reg, l, feed, stopperID, debtEngine),
		valid:  ledger.NewInvariantValidator(l),
	}
}

func batch() *journal.Batch {
	return journal.NewBatch("test", 1, 0)
}

func (f *fixture) fundAndDraw(t *testing.T, addr common.Address, lock, draw *big.Int) {
	t.Helper()
	if err := f.ledger.AddCollateral(batch(), adapter, "BNB", addr, lock); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := f.ledger.AdjustPosition(batch(), addr, "BNB", addr, addr, addr, lock, draw); err != nil {
		t.Fatalf("draw: %v", err)
	}
}

func (f *fixture) cageAt(t *testing.T, price *big.Int) {
	t.Helper()
	f.feed.Set("BNB", price, true, 2)
	if err := f.stop.Cage(owner, 1_700_000_000); err != nil {
		t.Fatalf("cage: %v", err)
	}
	if err := f.stop.CagePool("BNB"); err != nil {
		t.Fatalf("cage pool: %v", err)
	}
}

// ============================================================================
// Test: cage sequencing
// ============================================================================

func TestCage(t *testing.T) {
	f := newFixture(t)

	if err := f.stop.CagePool("BNB"); !errors.Is(err, settlement.ErrNotCaged) {
		t.Errorf("cage pool before cage: got %v", err)
	}
	if err := f.stop.Cage(alice, 0); !errors.Is(err, auth.ErrNotAuthorized) {
		t.Errorf("cage by stranger: got %v", err)
	}

	if err := f.stop.Cage(owner, 0); err != nil {
		t.Fatalf("cage: %v", err)
	}
	if f.ledger.Live() || f.pools.Live() || f.stop.Live() {
		t.Error("cage must freeze ledger, pools, and settlement")
	}
	if err := f.stop.Cage(owner, 0); !errors.Is(err, settlement.ErrAlreadyCaged) {
		t.Errorf("double cage: got %v", err)
	}

	if err := f.stop.CagePool("BNB"); err != nil {
		t.Fatalf("cage pool: %v", err)
	}
	// Price 1000, reference 1.0: one stable unit redeems 1/1000 collateral.
	want := fixed.MustParse("1000000000000000000000000") // 0.001 in rate scale
	if got := f.stop.CagePrice("BNB"); got.Cmp(want) != 0 {
		t.Errorf("cage price: got %s, want %s", got, want)
	}
	if err := f.stop.CagePool("BNB"); !errors.Is(err, settlement.ErrAlreadyCaged) {
		t.Errorf("double pool cage: got %v", err)
	}
}

func TestCagePoolStaleFeed(t *testing.T) {
	f := newFixture(t)
	if err := f.stop.Cage(owner, 0); err != nil {
		t.Fatalf("cage: %v", err)
	}
	f.feed.Set("BNB", unit(1000), false, 2)
	if err := f.stop.CagePool("BNB"); err == nil {
		t.Error("stale feed must block pool cage")
	}
}

// ============================================================================
// Test: stripping positions
// ============================================================================

func TestAccumulateBadDebtCovered(t *testing.T) {
	f := newFixture(t)
	f.fundAndDraw(t, alice, unit(10), unit(5000))
	// At cage price 1000 the 5000 debt is worth 5 collateral.
	f.cageAt(t, unit(1000))

	if err := f.stop.AccumulateBadDebt(batch(), "BNB", alice); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	pos := f.ledger.GetPosition("BNB", alice)
	if pos.DebtShare.Sign() != 0 {
		t.Errorf("debt share after strip: %s", pos.DebtShare)
	}
	if pos.LockedCollateral.Cmp(unit(5)) != 0 {
		t.Errorf("residual collateral: got %s, want %s", pos.LockedCollateral, unit(5))
	}
	if got := f.ledger.GetCollateral("BNB", stopperID); got.Cmp(unit(5)) != 0 {
		t.Errorf("pot: got %s, want %s", got, unit(5))
	}
	if got := f.ledger.GetUnbacked(debtEngine); got.Cmp(rad(5000)) != 0 {
		t.Errorf("bad debt: got %s, want %s", got, rad(5000))
	}
	f.mustValidate(t)

	// Stripping twice finds no debt.
	if err := f.stop.AccumulateBadDebt(batch(), "BNB", alice); !errors.Is(err, settlement.ErrNothingToRedeem) {
		t.Errorf("double strip: got %v", err)
	}

	// The residual belongs to the position owner.
	if err := f.stop.RedeemLockedCollateral(batch(), "BNB", alice, alice); err != nil {
		t.Fatalf("redeem residual: %v", err)
	}
	if got := f.ledger.GetCollateral("BNB", alice); got.Cmp(unit(5)) != 0 {
		t.Errorf("residual payout: got %s", got)
	}
	f.mustValidate(t)
}

func TestAccumulateBadDebtShortfall(t *testing.T) {
	f := newFixture(t)
	f.fundAndDraw(t, bob, unit(1), unit(900))
	// Crash to 500: bob owes 1.8 collateral but only locked 1.
	f.cageAt(t, unit(500))

	if err := f.stop.AccumulateBadDebt(batch(), "BNB", bob); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	pos := f.ledger.GetPosition("BNB", bob)
	if pos.LockedCollateral.Sign() != 0 || pos.DebtShare.Sign() != 0 {
		t.Errorf("position should be fully stripped: %+v", pos)
	}
	if got := f.ledger.GetCollateral("BNB", stopperID); got.Cmp(unit(1)) != 0 {
		t.Errorf("pot: got %s", got)
	}
	f.mustValidate(t)
}

func TestRedeemLockedCollateralRequiresZeroDebt(t *testing.T) {
	f := newFixture(t)
	f.fundAndDraw(t, alice, unit(10), unit(5000))
	f.cageAt(t, unit(1000))

	if err := f.stop.RedeemLockedCollateral(batch(), "BNB", alice, alice); !errors.Is(err, settlement.ErrPositionHasDebt) {
		t.Errorf("redeem with debt: got %v", err)
	}
}

// ============================================================================
// Test: final prices and redemption
// ============================================================================

func TestRedemptionFlow(t *testing.T) {
	f := newFixture(t)
	// One position: 10 locked, 5000 drawn. Cage at 500 so the debt is worth
	// exactly the locked 10 collateral.
	f.fundAndDraw(t, alice, unit(10), unit(5000))
	f.cageAt(t, unit(500))

	if err := f.stop.FinalizeCashPrice("BNB"); !errors.Is(err, settlement.ErrDebtNotFinal) {
		t.Errorf("cash price before debt: got %v", err)
	}

	if err := f.stop.AccumulateBadDebt(batch(), "BNB", alice); err != nil {
		t.Fatalf("strip: %v", err)
	}
	if err := f.stop.FinalizeDebt(); err != nil {
		t.Fatalf("finalize debt: %v", err)
	}
	if got := f.stop.FinalDebt(); got.Cmp(rad(5000)) != 0 {
		t.Errorf("final debt: got %s, want %s", got, rad(5000))
	}
	if err := f.stop.FinalizeDebt(); !errors.Is(err, settlement.ErrDebtFinal) {
		t.Errorf("double finalize: got %v", err)
	}

	if err := f.stop.FinalizeCashPrice("BNB"); err != nil {
		t.Fatalf("cash price: %v", err)
	}
	// 10 collateral backs 5000 stable: 0.002 collateral per unit.
	want := fixed.MustParse("2000000000000000000000000")
	if got := f.stop.CashPrice("BNB"); got.Cmp(want) != 0 {
		t.Errorf("cash price: got %s, want %s", got, want)
	}

	// Alice turns in all 5000 stablecoin and claims the whole pot.
	if err := f.stop.AccumulateStablecoin(batch(), alice, unit(5000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := f.ledger.GetStablecoin(debtEngine); got.Cmp(rad(5000)) != 0 {
		t.Errorf("debt engine deposit: got %s", got)
	}
	if err := f.stop.RedeemStablecoin(batch(), alice, "BNB", unit(5000)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := f.ledger.GetCollateral("BNB", alice); got.Cmp(unit(10)) != 0 {
		t.Errorf("redeemed collateral: got %s, want %s", got, unit(10))
	}
	// Claims are capped by the deposit.
	if err := f.stop.RedeemStablecoin(batch(), alice, "BNB", unit(1)); !errors.Is(err, settlement.ErrOverBag) {
		t.Errorf("over-redeem: got %v", err)
	}
	f.mustValidate(t)

	// The debt engine can now cancel its bad debt with the deposits.
	if err := f.ledger.SettleSystemBadDebt(batch(), debtEngine, rad(5000)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if f.ledger.TotalUnbacked().Sign() != 0 || f.ledger.TotalStablecoinIssued().Sign() != 0 {
		t.Errorf("totals after settle: unbacked %s issued %s",
			f.ledger.TotalUnbacked(), f.ledger.TotalStablecoinIssued())
	}
	f.mustValidate(t)
}

func TestFinalizeCashPriceDustDebt(t *testing.T) {
	f := newFixture(t)
	f.table.Grant(auth.RoleMintable, debtEngine)

	// Outstanding debt below one accum-scale unit per stable unit: small
	// enough that rounding it down to units would hit zero.
	if err := f.ledger.MintUnbackedStablecoin(batch(), debtEngine, debtEngine, alice, big.NewInt(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.cageAt(t, unit(1000))

	if err := f.stop.FinalizeDebt(); err != nil {
		t.Fatalf("finalize debt: %v", err)
	}
	if err := f.stop.FinalizeCashPrice("BNB"); err != nil {
		t.Fatalf("cash price with dust debt: %v", err)
	}
	// No stripped collateral backs the dust, so it redeems for nothing.
	if got := f.stop.CashPrice("BNB"); got.Sign() != 0 {
		t.Errorf("cash price: got %s, want 0", got)
	}
}

func TestFinalizeCashPriceFractionalDebt(t *testing.T) {
	f := newFixture(t)
	f.table.Grant(auth.RoleMintable, debtEngine)
	f.fundAndDraw(t, alice, unit(10), unit(5000))

	// Push finalDebt off an exact unit boundary; the price must come from a
	// single full-precision division, not a pre-rounded unit count.
	if err := f.ledger.MintUnbackedStablecoin(batch(), debtEngine, debtEngine, alice, big.NewInt(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.cageAt(t, unit(500))

	if err := f.stop.AccumulateBadDebt(batch(), "BNB", alice); err != nil {
		t.Fatalf("strip: %v", err)
	}
	if err := f.stop.FinalizeDebt(); err != nil {
		t.Fatalf("finalize debt: %v", err)
	}
	if err := f.stop.FinalizeCashPrice("BNB"); err != nil {
		t.Fatalf("cash price: %v", err)
	}

	// 10 collateral against 5000 stable plus one dust rad: a hair under
	// 0.002 collateral per unit.
	finalDebt := fixed.Add(rad(5000), big.NewInt(1))
	want := fixed.Quo(
		fixed.Mul(unit(10), fixed.Mul(fixed.RateScale, fixed.RateScale)),
		finalDebt,
	)
	if got := f.stop.CashPrice("BNB"); got.Cmp(want) != 0 {
		t.Errorf("cash price: got %s, want %s", got, want)
	}
	exact := fixed.MustParse("2000000000000000000000000")
	if got := f.stop.CashPrice("BNB"); got.Cmp(exact) >= 0 {
		t.Errorf("cash price %s must round below the exact %s", got, exact)
	}
}

func (f *fixture) mustValidate(t *testing.T) {
	t.Helper()
	if err := f.valid.ValidateAll(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}
