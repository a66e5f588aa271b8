package oracle

import "math/big"

// Oracle is the price-feed collaborator consumed by the pool registry and
// the liquidation strategy. Prices are unit-scale (1e18) quotes of one unit
// of pool collateral in the reference currency. ok == false marks the feed
// stale or invalid; consumers must treat that as a hard failure and never
// substitute a default.
type Oracle interface {
	GetPrice(poolID string) (price *big.Int, ok bool)
}

// PriceBook is the in-memory oracle backing the deterministic core. Price
// updates arrive as versioned operations and are recorded here before the
// pool registry is poked; the liquidation strategy reads the same book so
// both sides see one price per operation.
//
// Not thread-safe — only accessed from the single-threaded deterministic core.
type PriceBook struct {
	prices map[string]*entry
}

type entry struct {
	price    *big.Int
	valid    bool
	sequence int64
}

func NewPriceBook() *PriceBook {
	return &PriceBook{prices: make(map[string]*entry)}
}

// Set records a price for a pool. valid == false poisons the feed until the
// next valid update.
func (pb *PriceBook) Set(poolID string, price *big.Int, valid bool, sequence int64) {
	pb.prices[poolID] = &entry{
		price:    new(big.Int).Set(price),
		valid:    valid && price.Sign() > 0,
		sequence: sequence,
	}
}

// GetPrice implements Oracle.
func (pb *PriceBook) GetPrice(poolID string) (*big.Int, bool) {
	e, ok := pb.prices[poolID]
	if !ok || !e.valid {
		return new(big.Int), false
	}
	return new(big.Int).Set(e.price), true
}

// Sequence returns the source sequence of the latest update for a pool,
// or -1 when no update has been seen.
func (pb *PriceBook) Sequence(poolID string) int64 {
	if e, ok := pb.prices[poolID]; ok {
		return e.sequence
	}
	return -1
}

// Snapshot copies the book's current prices for state capture. Invalid
// entries are carried so a restore does not resurrect a poisoned feed.
func (pb *PriceBook) Snapshot() map[string]PriceState {
	out := make(map[string]PriceState, len(pb.prices))
	for id, e := range pb.prices {
		out[id] = PriceState{
			Price:    new(big.Int).Set(e.price),
			Valid:    e.valid,
			Sequence: e.sequence,
		}
	}
	return out
}

// Restore loads a previously captured price state.
func (pb *PriceBook) Restore(poolID string, st PriceState) {
	pb.prices[poolID] = &entry{
		price:    new(big.Int).Set(st.Price),
		valid:    st.Valid,
		sequence: st.Sequence,
	}
}

// PriceState is the serializable form of a single feed entry.
type PriceState struct {
	Price    *big.Int
	Valid    bool
	Sequence int64
}
