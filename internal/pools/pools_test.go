package pools

import (
	"errors"
	"math/big"
	"testing"

	"VaultLedger/internal/auth"
	"VaultLedger/internal/fixed"
	"VaultLedger/internal/journal"
	"VaultLedger/internal/oracle"

	"github.com/ethereum/go-ethereum/common"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newTestRegistry(t *testing.T) (*Registry, *oracle.PriceBook) {
	t.Helper()
	table := auth.NewTable()
	table.Grant(auth.RoleOwner, owner)
	feed := oracle.NewPriceBook()
	return NewRegistry(table, feed), feed
}

// ============================================================================
// Test: pool lifecycle
// ============================================================================

func TestInit(t *testing.T) {
	r, _ := newTestRegistry(t)

	p, err := r.Init(owner, "WETH")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if p.DebtAccumulatedRate.Cmp(fixed.RateScale) != 0 {
		t.Errorf("fresh pool rate should be 1.0, got %s", p.DebtAccumulatedRate)
	}
	if p.TotalDebtShare.Sign() != 0 {
		t.Errorf("fresh pool should have zero debt share")
	}

	if _, err := r.Init(owner, "WETH"); !errors.Is(err, ErrPoolExists) {
		t.Errorf("duplicate init: got %v, want ErrPoolExists", err)
	}
	if _, err := r.Init(stranger, "WBTC"); !errors.Is(err, auth.ErrNotAuthorized) {
		t.Errorf("init by stranger: got %v, want ErrNotAuthorized", err)
	}
	if _, err := r.Init(owner, ""); !errors.Is(err, ErrBadParam) {
		t.Errorf("empty pool id: got %v, want ErrBadParam", err)
	}
}

func TestGetMissing(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Get("NOPE"); !errors.Is(err, ErrPoolNotFound) {
		t.Errorf("got %v, want ErrPoolNotFound", err)
	}
}

// ============================================================================
// Test: parameter setters and their guards
// ============================================================================

func TestSetterValidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Init(owner, "WETH"); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := r.SetLiquidationRatio(owner, "WETH", fixed.MustParse("900000000000000000000000000")); !errors.Is(err, ErrBadParam) {
		t.Errorf("liquidation ratio 0.9 should be rejected, got %v", err)
	}
	if err := r.SetStabilityFeeRate(owner, "WETH", fixed.MustParse("999999999999999999999999999")); !errors.Is(err, ErrBadParam) {
		t.Errorf("fee rate below 1.0 should be rejected, got %v", err)
	}
	if err := r.SetLiquidatorIncentiveBps(owner, "WETH", 9_999); !errors.Is(err, ErrBadParam) {
		t.Errorf("incentive below 10000 bps should be rejected, got %v", err)
	}
	if err := r.SetCloseFactorBps(owner, "WETH", 10_001); !errors.Is(err, ErrBadParam) {
		t.Errorf("close factor above 10000 bps should be rejected, got %v", err)
	}
	if err := r.SetTreasuryFeesBps(owner, "WETH", 10_001); !errors.Is(err, ErrBadParam) {
		t.Errorf("treasury fee above 10000 bps should be rejected, got %v", err)
	}
	if err := r.SetDebtCeiling(owner, "WETH", big.NewInt(-1)); !errors.Is(err, ErrBadParam) {
		t.Errorf("negative ceiling should be rejected, got %v", err)
	}

	if err := r.SetDebtCeiling(stranger, "WETH", big.NewInt(1)); !errors.Is(err, auth.ErrNotAuthorized) {
		t.Errorf("setter by stranger: got %v, want ErrNotAuthorized", err)
	}
	if err := r.SetDebtCeiling(owner, "NOPE", big.NewInt(1)); !errors.Is(err, ErrPoolNotFound) {
		t.Errorf("setter on missing pool: got %v, want ErrPoolNotFound", err)
	}
}

func TestCageFreezesRegistry(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Init(owner, "WETH"); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := r.Cage(stranger); !errors.Is(err, auth.ErrNotAuthorized) {
		t.Errorf("cage by stranger: got %v, want ErrNotAuthorized", err)
	}
	if err := r.Cage(owner); err != nil {
		t.Fatalf("cage: %v", err)
	}
	if r.Live() {
		t.Fatal("registry should not be live after cage")
	}
	if err := r.SetDebtCeiling(owner, "WETH", big.NewInt(1)); !errors.Is(err, ErrRegistryCaged) {
		t.Errorf("setter after cage: got %v, want ErrRegistryCaged", err)
	}
	if _, err := r.Init(owner, "WBTC"); !errors.Is(err, ErrRegistryCaged) {
		t.Errorf("init after cage: got %v, want ErrRegistryCaged", err)
	}
	if err := r.Poke("WETH"); !errors.Is(err, ErrRegistryCaged) {
		t.Errorf("poke after cage: got %v, want ErrRegistryCaged", err)
	}
}

// ============================================================================
// Test: Poke price derivation
// ============================================================================

func TestPoke(t *testing.T) {
	r, feed := newTestRegistry(t)
	if _, err := r.Init(owner, "WETH"); err != nil {
		t.Fatalf("init: %v", err)
	}
	// liquidationRatio = 2.0, feed = 3000 units, stableRef = 1.0
	if err := r.SetLiquidationRatio(owner, "WETH", fixed.MustParse("2000000000000000000000000000")); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	feed.Set("WETH", fixed.MustParse("3000000000000000000000"), true, 1)

	if err := r.Poke("WETH"); err != nil {
		t.Fatalf("poke: %v", err)
	}
	p, _ := r.Get("WETH")
	// 3000 / 1 / 2 = 1500 in rate scale
	want := fixed.MustParse("1500000000000000000000000000000")
	if p.PriceWithSafetyMargin.Cmp(want) != 0 {
		t.Errorf("margin price: got %s, want %s", p.PriceWithSafetyMargin, want)
	}
}

func TestPokeStableRef(t *testing.T) {
	r, feed := newTestRegistry(t)
	if _, err := r.Init(owner, "WETH"); err != nil {
		t.Fatalf("init: %v", err)
	}
	// stable trading below reference makes each stable unit cheaper, so the
	// same collateral supports more of them.
	if err := r.SetStableRefPrice(owner, fixed.MustParse("500000000000000000000000000")); err != nil {
		t.Fatalf("set ref price: %v", err)
	}
	feed.Set("WETH", fixed.MustParse("1000000000000000000000"), true, 1)

	if err := r.Poke("WETH"); err != nil {
		t.Fatalf("poke: %v", err)
	}
	p, _ := r.Get("WETH")
	// 1000 / 0.5 / 1.0 = 2000 in rate scale
	want := fixed.MustParse("2000000000000000000000000000000")
	if p.PriceWithSafetyMargin.Cmp(want) != 0 {
		t.Errorf("margin price: got %s, want %s", p.PriceWithSafetyMargin, want)
	}
}

func TestPokeStaleFeedZeroesMargin(t *testing.T) {
	r, feed := newTestRegistry(t)
	if _, err := r.Init(owner, "WETH"); err != nil {
		t.Fatalf("init: %v", err)
	}
	feed.Set("WETH", fixed.MustParse("3000000000000000000000"), true, 1)
	if err := r.Poke("WETH"); err != nil {
		t.Fatalf("poke: %v", err)
	}
	p, _ := r.Get("WETH")
	if p.PriceWithSafetyMargin.Sign() <= 0 {
		t.Fatal("margin price should be positive with a fresh feed")
	}

	feed.Set("WETH", fixed.MustParse("3000000000000000000000"), false, 2)
	if err := r.Poke("WETH"); err != nil {
		t.Fatalf("poke: %v", err)
	}
	if p.PriceWithSafetyMargin.Sign() != 0 {
		t.Errorf("stale feed should zero the margin price, got %s", p.PriceWithSafetyMargin)
	}
}

// ============================================================================
// Test: stability fee collection
// ============================================================================

type sinkCall struct {
	poolID    string
	caller    common.Address
	recipient common.Address
	rateDelta *big.Int
}

type recordingSink struct {
	calls []sinkCall
	err   error
}

func (s *recordingSink) AccrueStabilityFee(b *journal.Batch, caller common.Address, poolID string, recipient common.Address, rateDelta *big.Int) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, sinkCall{poolID, caller, recipient, fixed.Clone(rateDelta)})
	return nil
}

func TestFeeCollectorFirstCollectStampsClock(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Init(owner, "WETH"); err != nil {
		t.Fatalf("init: %v", err)
	}
	sink := &recordingSink{}
	coll := NewFeeCollector(r, sink, common.HexToAddress("0xfee"), common.HexToAddress("0x7ea"))
	batch := journal.NewBatch("test", 1, 100)

	if err := coll.Collect(batch, "WETH", 100); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(sink.calls) != 0 {
		t.Fatalf("first collect should not accrue, got %d calls", len(sink.calls))
	}
	p, _ := r.Get("WETH")
	if p.LastAccumulationTime != 100 {
		t.Errorf("last accumulation time: got %d, want 100", p.LastAccumulationTime)
	}
}

func TestFeeCollectorCompounds(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Init(owner, "WETH"); err != nil {
		t.Fatalf("init: %v", err)
	}
	// 10% per second, so two seconds compound to 21%.
	if err := r.SetStabilityFeeRate(owner, "WETH", fixed.MustParse("1100000000000000000000000000")); err != nil {
		t.Fatalf("set fee rate: %v", err)
	}
	sink := &recordingSink{}
	treasury := common.HexToAddress("0x7ea")
	coll := NewFeeCollector(r, sink, common.HexToAddress("0xfee"), treasury)
	batch := journal.NewBatch("test", 1, 100)

	if err := coll.Collect(batch, "WETH", 100); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if err := coll.Collect(batch, "WETH", 102); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(sink.calls) != 1 {
		t.Fatalf("want one accrual call, got %d", len(sink.calls))
	}
	call := sink.calls[0]
	if call.poolID != "WETH" || call.recipient != treasury {
		t.Errorf("accrual routed wrong: %+v", call)
	}
	// 1.1^2 - 1 = 0.21
	want := fixed.MustParse("210000000000000000000000000")
	if call.rateDelta.Cmp(want) != 0 {
		t.Errorf("rate delta: got %s, want %s", call.rateDelta, want)
	}
	p, _ := r.Get("WETH")
	if p.LastAccumulationTime != 102 {
		t.Errorf("clock not advanced: %d", p.LastAccumulationTime)
	}
}

func TestFeeCollectorZeroElapsedIsNoop(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Init(owner, "WETH"); err != nil {
		t.Fatalf("init: %v", err)
	}
	sink := &recordingSink{}
	coll := NewFeeCollector(r, sink, common.HexToAddress("0xfee"), common.HexToAddress("0x7ea"))
	batch := journal.NewBatch("test", 1, 100)

	if err := coll.Collect(batch, "WETH", 100); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if err := coll.Collect(batch, "WETH", 100); err != nil {
		t.Fatalf("same-second collect: %v", err)
	}
	if len(sink.calls) != 0 {
		t.Errorf("zero elapsed should not accrue")
	}
}

func TestFeeCollectorRejectsBackwardsTime(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Init(owner, "WETH"); err != nil {
		t.Fatalf("init: %v", err)
	}
	sink := &recordingSink{}
	coll := NewFeeCollector(r, sink, common.HexToAddress("0xfee"), common.HexToAddress("0x7ea"))
	batch := journal.NewBatch("test", 1, 100)

	if err := coll.Collect(batch, "WETH", 100); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if err := coll.Collect(batch, "WETH", 99); !errors.Is(err, ErrBadParam) {
		t.Errorf("backwards time: got %v, want ErrBadParam", err)
	}
}

func TestFeeCollectorSinkFailureKeepsClock(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Init(owner, "WETH"); err != nil {
		t.Fatalf("init: %v", err)
	}
	sinkErr := errors.New("sink down")
	sink := &recordingSink{err: sinkErr}
	coll := NewFeeCollector(r, sink, common.HexToAddress("0xfee"), common.HexToAddress("0x7ea"))
	batch := journal.NewBatch("test", 1, 100)

	if err := coll.Collect(batch, "WETH", 100); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if err := coll.Collect(batch, "WETH", 105); !errors.Is(err, sinkErr) {
		t.Fatalf("want sink error, got %v", err)
	}
	p, _ := r.Get("WETH")
	if p.LastAccumulationTime != 100 {
		t.Errorf("failed accrual must not advance the clock, got %d", p.LastAccumulationTime)
	}
}
