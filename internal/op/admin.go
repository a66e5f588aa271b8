package op

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// InitPool registers a new collateral pool.
// Idempotency key: init_pool:<pool>, creation is naturally unique.
type InitPool struct {
	Sender    common.Address
	Pool      string
	Sequence  int64
	Timestamp time.Time
}

func (i *InitPool) IdempotencyKey() string {
	return fmt.Sprintf("init_pool:%s", i.Pool)
}

func (i *InitPool) OpType() OpType {
	return OpTypeInitPool
}

func (i *InitPool) PoolID() *string {
	p := i.Pool
	return &p
}

func (i *InitPool) SourceSequence() int64 {
	return i.Sequence
}

// Pool parameter names accepted by SetPoolParam.
const (
	ParamDebtCeiling            = "debt_ceiling"
	ParamDebtFloor              = "debt_floor"
	ParamLiquidationRatio       = "liquidation_ratio"
	ParamStabilityFeeRate       = "stability_fee_rate"
	ParamAdapter                = "adapter"
	ParamStrategy               = "strategy"
	ParamCloseFactorBps         = "close_factor_bps"
	ParamLiquidatorIncentiveBps = "liquidator_incentive_bps"
	ParamTreasuryFeesBps        = "treasury_fees_bps"
	ParamStableRefPrice         = "stable_ref_price"
)

// SetPoolParam updates one governance parameter. Exactly one of
// NumValue, BpsValue, AddrValue is meaningful depending on Param.
// Pool is empty for ParamStableRefPrice, which is registry-wide.
type SetPoolParam struct {
	Sender    common.Address
	Pool      string
	Param     string
	NumValue  *big.Int
	BpsValue  uint64
	AddrValue common.Address
	Sequence  int64
	Timestamp time.Time
}

func (s *SetPoolParam) IdempotencyKey() string {
	return fmt.Sprintf("param:%s:%s:%d", s.Pool, s.Param, s.Sequence)
}

func (s *SetPoolParam) OpType() OpType {
	return OpTypeSetPoolParam
}

func (s *SetPoolParam) PoolID() *string {
	if s.Pool == "" {
		return nil
	}
	p := s.Pool
	return &p
}

func (s *SetPoolParam) SourceSequence() int64 {
	return s.Sequence
}

// SetTotalDebtCeiling updates the system-wide issuance cap.
type SetTotalDebtCeiling struct {
	Sender    common.Address
	Ceiling   *big.Int // Accum scale
	Sequence  int64
	Timestamp time.Time
}

func (s *SetTotalDebtCeiling) IdempotencyKey() string {
	return fmt.Sprintf("total_ceiling:%d", s.Sequence)
}

func (s *SetTotalDebtCeiling) OpType() OpType {
	return OpTypeSetTotalDebtCeiling
}

func (s *SetTotalDebtCeiling) PoolID() *string {
	return nil
}

func (s *SetTotalDebtCeiling) SourceSequence() int64 {
	return s.Sequence
}

// GrantRole adds a role grant to the access table.
type GrantRole struct {
	Sender    common.Address
	Role      uint8
	Target    common.Address
	Sequence  int64
	Timestamp time.Time
}

func (g *GrantRole) IdempotencyKey() string {
	return fmt.Sprintf("grant:%d:%s:%d", g.Role, g.Target.Hex(), g.Sequence)
}

func (g *GrantRole) OpType() OpType {
	return OpTypeGrantRole
}

func (g *GrantRole) PoolID() *string {
	return nil
}

func (g *GrantRole) SourceSequence() int64 {
	return g.Sequence
}

// RevokeRole removes a role grant from the access table.
type RevokeRole struct {
	Sender    common.Address
	Role      uint8
	Target    common.Address
	Sequence  int64
	Timestamp time.Time
}

func (r *RevokeRole) IdempotencyKey() string {
	return fmt.Sprintf("revoke:%d:%s:%d", r.Role, r.Target.Hex(), r.Sequence)
}

func (r *RevokeRole) OpType() OpType {
	return OpTypeRevokeRole
}

func (r *RevokeRole) PoolID() *string {
	return nil
}

func (r *RevokeRole) SourceSequence() int64 {
	return r.Sequence
}

// Pause suspends state-changing ledger operations.
type Pause struct {
	Sender    common.Address
	Sequence  int64
	Timestamp time.Time
}

func (p *Pause) IdempotencyKey() string {
	return fmt.Sprintf("pause:%d", p.Sequence)
}

func (p *Pause) OpType() OpType {
	return OpTypePause
}

func (p *Pause) PoolID() *string {
	return nil
}

func (p *Pause) SourceSequence() int64 {
	return p.Sequence
}

// Unpause resumes state-changing ledger operations.
type Unpause struct {
	Sender    common.Address
	Sequence  int64
	Timestamp time.Time
}

func (u *Unpause) IdempotencyKey() string {
	return fmt.Sprintf("unpause:%d", u.Sequence)
}

func (u *Unpause) OpType() OpType {
	return OpTypeUnpause
}

func (u *Unpause) PoolID() *string {
	return nil
}

func (u *Unpause) SourceSequence() int64 {
	return u.Sequence
}

// Uncage lifts the ledger's issuance freeze. It reverses a direct ledger
// cage only; system-wide settlement stays one-way.
type Uncage struct {
	Sender    common.Address
	Sequence  int64
	Timestamp time.Time
}

func (u *Uncage) IdempotencyKey() string {
	return fmt.Sprintf("uncage:%d", u.Sequence)
}

func (u *Uncage) OpType() OpType {
	return OpTypeUncage
}

func (u *Uncage) PoolID() *string {
	return nil
}

func (u *Uncage) SourceSequence() int64 {
	return u.Sequence
}
