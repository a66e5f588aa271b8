package op

import (
	"fmt"
	"math/big"
	"time"
)

// PriceUpdate carries a fresh collateral price from the oracle relay.
// Idempotency key: price:<pool>:<feed sequence>, so a replayed feed
// message never moves the safety margin twice.
type PriceUpdate struct {
	Pool         string
	Price        *big.Int // Unit scale
	Valid        bool     // False marks the feed stale
	FeedSequence int64
	Timestamp    time.Time
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("price:%s:%d", p.Pool, p.FeedSequence)
}

func (p *PriceUpdate) OpType() OpType {
	return OpTypePriceUpdate
}

func (p *PriceUpdate) PoolID() *string {
	s := p.Pool
	return &s
}

func (p *PriceUpdate) SourceSequence() int64 {
	return p.FeedSequence
}
