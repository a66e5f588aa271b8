package op

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// AddCollateral credits or debits an address's free collateral on behalf
// of a token adapter. Amount is unit scale and signed: negative withdraws.
// Idempotency key: request_id (UUID from the adapter bridge).
type AddCollateral struct {
	RequestID uuid.UUID // Idempotency key
	Sender    common.Address
	Pool      string
	Target    common.Address
	Amount    *big.Int // Unit scale, signed
	Sequence  int64    // Source sequence from the adapter bridge
	Timestamp time.Time
}

func (a *AddCollateral) IdempotencyKey() string {
	return a.RequestID.String()
}

func (a *AddCollateral) OpType() OpType {
	return OpTypeAddCollateral
}

func (a *AddCollateral) PoolID() *string {
	p := a.Pool
	return &p
}

func (a *AddCollateral) SourceSequence() int64 {
	return a.Sequence
}

// MoveCollateral transfers free collateral between addresses.
type MoveCollateral struct {
	RequestID uuid.UUID
	Sender    common.Address
	Pool      string
	Src       common.Address
	Dst       common.Address
	Amount    *big.Int // Unit scale
	Sequence  int64
	Timestamp time.Time
}

func (m *MoveCollateral) IdempotencyKey() string {
	return m.RequestID.String()
}

func (m *MoveCollateral) OpType() OpType {
	return OpTypeMoveCollateral
}

func (m *MoveCollateral) PoolID() *string {
	p := m.Pool
	return &p
}

func (m *MoveCollateral) SourceSequence() int64 {
	return m.Sequence
}

// MoveStablecoin transfers internal stablecoin between addresses.
type MoveStablecoin struct {
	RequestID uuid.UUID
	Sender    common.Address
	Src       common.Address
	Dst       common.Address
	Amount    *big.Int // Accum scale
	Sequence  int64
	Timestamp time.Time
}

func (m *MoveStablecoin) IdempotencyKey() string {
	return m.RequestID.String()
}

func (m *MoveStablecoin) OpType() OpType {
	return OpTypeMoveStablecoin
}

func (m *MoveStablecoin) PoolID() *string {
	return nil
}

func (m *MoveStablecoin) SourceSequence() int64 {
	return m.Sequence
}

// AllowMove grants or revokes the operator's right to move the sender's
// free collateral and stablecoin.
type AllowMove struct {
	RequestID uuid.UUID
	Sender    common.Address
	Operator  common.Address
	Allow     bool
	Sequence  int64
	Timestamp time.Time
}

func (a *AllowMove) IdempotencyKey() string {
	return a.RequestID.String()
}

func (a *AllowMove) OpType() OpType {
	return OpTypeAllowMove
}

func (a *AllowMove) PoolID() *string {
	return nil
}

func (a *AllowMove) SourceSequence() int64 {
	return a.Sequence
}

// AdjustPosition locks or frees collateral and draws or wipes debt on a
// raw ledger position in one atomic step. Deltas are signed.
type AdjustPosition struct {
	RequestID       uuid.UUID
	Sender          common.Address
	Pool            string
	PositionAddr    common.Address
	CollateralOwner common.Address
	StablecoinOwner common.Address
	DeltaCollateral *big.Int // Unit scale, signed
	DeltaDebtShare  *big.Int // Unit scale, signed
	Sequence        int64
	Timestamp       time.Time
}

func (a *AdjustPosition) IdempotencyKey() string {
	return a.RequestID.String()
}

func (a *AdjustPosition) OpType() OpType {
	return OpTypeAdjustPosition
}

func (a *AdjustPosition) PoolID() *string {
	p := a.Pool
	return &p
}

func (a *AdjustPosition) SourceSequence() int64 {
	return a.Sequence
}

// MovePosition transfers locked collateral and debt share between two
// raw position addresses in the same pool.
type MovePosition struct {
	RequestID       uuid.UUID
	Sender          common.Address
	Pool            string
	Src             common.Address
	Dst             common.Address
	DeltaCollateral *big.Int // Unit scale
	DeltaDebtShare  *big.Int // Unit scale
	Sequence        int64
	Timestamp       time.Time
}

func (m *MovePosition) IdempotencyKey() string {
	return m.RequestID.String()
}

func (m *MovePosition) OpType() OpType {
	return OpTypeMovePosition
}

func (m *MovePosition) PoolID() *string {
	p := m.Pool
	return &p
}

func (m *MovePosition) SourceSequence() int64 {
	return m.Sequence
}
