package pools

import (
	"fmt"
	"math/big"
	"sort"

	"VaultLedger/internal/auth"
	"VaultLedger/internal/fixed"
	"VaultLedger/internal/journal"

	"github.com/ethereum/go-ethereum/common"
)

// FeeSink receives accrued stability fees. Satisfied by the ledger.
type FeeSink interface {
	AccrueStabilityFee(b *journal.Batch, caller common.Address, poolID string, recipient common.Address, rateDelta *big.Int) error
}

// FeeCollector compounds each pool's per-second stability fee rate over
// elapsed wall time and folds the result into the ledger's debt
// accumulator. It acts under its own identity address, which must hold
// the stability_fee_collector role on the ledger's auth table.
type FeeCollector struct {
	registry *Registry
	sink     FeeSink
	identity common.Address
	treasury common.Address
}

func NewFeeCollector(registry *Registry, sink FeeSink, identity, treasury common.Address) *FeeCollector {
	return &FeeCollector{
		registry: registry,
		sink:     sink,
		identity: identity,
		treasury: treasury,
	}
}

// Identity returns the address the collector acts under.
func (c *FeeCollector) Identity() common.Address { return c.identity }

// Treasury returns the current fee recipient.
func (c *FeeCollector) Treasury() common.Address { return c.treasury }

// SetTreasury changes the fee recipient. Owner only.
func (c *FeeCollector) SetTreasury(caller, treasury common.Address) error {
	if !c.registry.table.Has(auth.RoleOwner, caller) {
		return fmt.Errorf("%w: setting fee treasury requires owner role", auth.ErrNotAuthorized)
	}
	if treasury == (common.Address{}) {
		return fmt.Errorf("%w: zero treasury address", ErrBadParam)
	}
	c.treasury = treasury
	return nil
}

// Collect accrues the stability fee for one pool up to now:
//
//	rateDelta = feeRate^(now - lastAccumulation) - 1.0
//
// in rate scale. The first collection after Init only stamps the clock.
// Time never runs backwards here; an earlier timestamp is rejected so a
// replayed or reordered operation cannot rewind the accumulator window.
func (c *FeeCollector) Collect(b *journal.Batch, poolID string, now int64) error {
	p, err := c.registry.Get(poolID)
	if err != nil {
		return err
	}
	if !c.registry.live {
		return ErrRegistryCaged
	}
	if p.LastAccumulationTime == 0 {
		p.LastAccumulationTime = now
		return nil
	}
	if now < p.LastAccumulationTime {
		return fmt.Errorf("%w: accrual time %d before last accumulation %d", ErrBadParam, now, p.LastAccumulationTime)
	}
	elapsed := now - p.LastAccumulationTime
	if elapsed == 0 {
		return nil
	}

	compounded := fixed.RPow(p.StabilityFeeRate, uint64(elapsed))
	rateDelta := fixed.Sub(compounded, fixed.RateScale)
	if err := c.sink.AccrueStabilityFee(b, c.identity, poolID, c.treasury, rateDelta); err != nil {
		return err
	}
	p.LastAccumulationTime = now
	return nil
}

// CollectAll accrues fees for every pool, in sorted id order so journal
// output is deterministic.
func (c *FeeCollector) CollectAll(b *journal.Batch, now int64) error {
	for _, id := range sortedIDs(c.registry.pools) {
		if err := c.Collect(b, id, now); err != nil {
			return err
		}
	}
	return nil
}

func sortedIDs(m map[string]*Pool) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
