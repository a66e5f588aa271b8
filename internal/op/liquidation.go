package op

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Liquidate closes part of an unsafe position through the pool's
// liquidation strategy. Data, when non-empty, is handed to the
// registered flash lending callee for the collateral recipient.
type Liquidate struct {
	RequestID           uuid.UUID
	Sender              common.Address
	Pool                string
	PositionAddr        common.Address
	DebtShareToRepay    *big.Int // Unit scale
	CollateralRecipient common.Address
	Data                []byte
	Sequence            int64
	Timestamp           time.Time
}

func (l *Liquidate) IdempotencyKey() string {
	return l.RequestID.String()
}

func (l *Liquidate) OpType() OpType {
	return OpTypeLiquidate
}

func (l *Liquidate) PoolID() *string {
	p := l.Pool
	return &p
}

func (l *Liquidate) SourceSequence() int64 {
	return l.Sequence
}
