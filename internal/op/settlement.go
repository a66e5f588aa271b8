package op

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Cage freezes the whole system and begins emergency settlement.
// One-way, so the key needs no sequence.
type Cage struct {
	Sender    common.Address
	Now       int64 // Epoch seconds, versioned input
	Sequence  int64
	Timestamp time.Time
}

func (c *Cage) IdempotencyKey() string {
	return "cage"
}

func (c *Cage) OpType() OpType {
	return OpTypeCage
}

func (c *Cage) PoolID() *string {
	return nil
}

func (c *Cage) SourceSequence() int64 {
	return c.Sequence
}

// CagePool fixes one pool's settlement price.
type CagePool struct {
	Sender    common.Address
	Pool      string
	Sequence  int64
	Timestamp time.Time
}

func (c *CagePool) IdempotencyKey() string {
	return fmt.Sprintf("cage_pool:%s", c.Pool)
}

func (c *CagePool) OpType() OpType {
	return OpTypeCagePool
}

func (c *CagePool) PoolID() *string {
	p := c.Pool
	return &p
}

func (c *CagePool) SourceSequence() int64 {
	return c.Sequence
}

// AccumulateBadDebt strips one position during settlement.
type AccumulateBadDebt struct {
	Sender       common.Address
	Pool         string
	PositionAddr common.Address
	Sequence     int64
	Timestamp    time.Time
}

func (a *AccumulateBadDebt) IdempotencyKey() string {
	return fmt.Sprintf("strip:%s:%s", a.Pool, a.PositionAddr.Hex())
}

func (a *AccumulateBadDebt) OpType() OpType {
	return OpTypeAccumulateBadDebt
}

func (a *AccumulateBadDebt) PoolID() *string {
	p := a.Pool
	return &p
}

func (a *AccumulateBadDebt) SourceSequence() int64 {
	return a.Sequence
}

// RedeemLockedCollateral releases a stripped position's residual
// collateral to its owner.
type RedeemLockedCollateral struct {
	RequestID  uuid.UUID
	Sender     common.Address
	PositionID uint64
	Dst        common.Address
	Sequence   int64
	Timestamp  time.Time
}

func (r *RedeemLockedCollateral) IdempotencyKey() string {
	return r.RequestID.String()
}

func (r *RedeemLockedCollateral) OpType() OpType {
	return OpTypeRedeemLockedCollateral
}

func (r *RedeemLockedCollateral) PoolID() *string {
	return nil
}

func (r *RedeemLockedCollateral) SourceSequence() int64 {
	return r.Sequence
}

// FinalizeDebt nets the system debt to total outstanding stablecoin.
type FinalizeDebt struct {
	Sender    common.Address
	Sequence  int64
	Timestamp time.Time
}

func (f *FinalizeDebt) IdempotencyKey() string {
	return "finalize_debt"
}

func (f *FinalizeDebt) OpType() OpType {
	return OpTypeFinalizeDebt
}

func (f *FinalizeDebt) PoolID() *string {
	return nil
}

func (f *FinalizeDebt) SourceSequence() int64 {
	return f.Sequence
}

// FinalizeCashPrice fixes one pool's redemption rate.
type FinalizeCashPrice struct {
	Sender    common.Address
	Pool      string
	Sequence  int64
	Timestamp time.Time
}

func (f *FinalizeCashPrice) IdempotencyKey() string {
	return fmt.Sprintf("cash_price:%s", f.Pool)
}

func (f *FinalizeCashPrice) OpType() OpType {
	return OpTypeFinalizeCashPrice
}

func (f *FinalizeCashPrice) PoolID() *string {
	p := f.Pool
	return &p
}

func (f *FinalizeCashPrice) SourceSequence() int64 {
	return f.Sequence
}

// AccumulateStablecoin deposits stablecoin into the sender's redemption
// bag.
type AccumulateStablecoin struct {
	RequestID uuid.UUID
	Sender    common.Address
	Amount    *big.Int // Unit scale
	Sequence  int64
	Timestamp time.Time
}

func (a *AccumulateStablecoin) IdempotencyKey() string {
	return a.RequestID.String()
}

func (a *AccumulateStablecoin) OpType() OpType {
	return OpTypeAccumulateStablecoin
}

func (a *AccumulateStablecoin) PoolID() *string {
	return nil
}

func (a *AccumulateStablecoin) SourceSequence() int64 {
	return a.Sequence
}

// RedeemStablecoin claims collateral against the sender's bag at the
// pool's final cash price.
type RedeemStablecoin struct {
	RequestID uuid.UUID
	Sender    common.Address
	Pool      string
	Amount    *big.Int // Unit scale
	Sequence  int64
	Timestamp time.Time
}

func (r *RedeemStablecoin) IdempotencyKey() string {
	return r.RequestID.String()
}

func (r *RedeemStablecoin) OpType() OpType {
	return OpTypeRedeemStablecoin
}

func (r *RedeemStablecoin) PoolID() *string {
	p := r.Pool
	return &p
}

func (r *RedeemStablecoin) SourceSequence() int64 {
	return r.Sequence
}
