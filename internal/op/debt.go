package op

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// AccrueFee collects the stability fee for one pool up to Now.
// Idempotency key: fee:<pool>:<now>, so scheduler retries are harmless.
type AccrueFee struct {
	Pool      string
	Now       int64 // Epoch seconds, versioned input
	Sequence  int64
	Timestamp time.Time
}

func (a *AccrueFee) IdempotencyKey() string {
	return fmt.Sprintf("fee:%s:%d", a.Pool, a.Now)
}

func (a *AccrueFee) OpType() OpType {
	return OpTypeAccrueFee
}

func (a *AccrueFee) PoolID() *string {
	p := a.Pool
	return &p
}

func (a *AccrueFee) SourceSequence() int64 {
	return a.Sequence
}

// MintUnbacked creates stablecoin against system debt.
type MintUnbacked struct {
	RequestID uuid.UUID
	Sender    common.Address
	Debtor    common.Address
	Creditor  common.Address
	Amount    *big.Int // Accum scale
	Sequence  int64
	Timestamp time.Time
}

func (m *MintUnbacked) IdempotencyKey() string {
	return m.RequestID.String()
}

func (m *MintUnbacked) OpType() OpType {
	return OpTypeMintUnbacked
}

func (m *MintUnbacked) PoolID() *string {
	return nil
}

func (m *MintUnbacked) SourceSequence() int64 {
	return m.Sequence
}

// SettleBadDebt burns the sender's stablecoin against their own unbacked
// balance.
type SettleBadDebt struct {
	RequestID uuid.UUID
	Sender    common.Address
	Amount    *big.Int // Accum scale
	Sequence  int64
	Timestamp time.Time
}

func (s *SettleBadDebt) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *SettleBadDebt) OpType() OpType {
	return OpTypeSettleBadDebt
}

func (s *SettleBadDebt) PoolID() *string {
	return nil
}

func (s *SettleBadDebt) SourceSequence() int64 {
	return s.Sequence
}
