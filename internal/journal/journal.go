package journal

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// EntryKind classifies the purpose of a journal entry.
type EntryKind int32

const (
	KindAddCollateral EntryKind = iota
	KindRemoveCollateral
	KindMoveCollateral
	KindLockCollateral
	KindFreeCollateral
	KindDrawDebt
	KindWipeDebt
	KindMoveStablecoin
	KindMovePosition
	KindConfiscateCollateral
	KindConfiscateDebt
	KindMintUnbacked
	KindSettleBadDebt
	KindFeeAccrual
	KindLiquidatorPayout
	KindTreasuryFee
	KindRedeemCollateral
	KindRedeemStablecoin
)

func (k EntryKind) String() string {
	switch k {
	case KindAddCollateral:
		return "add_collateral"
	case KindRemoveCollateral:
		return "remove_collateral"
	case KindMoveCollateral:
		return "move_collateral"
	case KindLockCollateral:
		return "lock_collateral"
	case KindFreeCollateral:
		return "free_collateral"
	case KindDrawDebt:
		return "draw_debt"
	case KindWipeDebt:
		return "wipe_debt"
	case KindMoveStablecoin:
		return "move_stablecoin"
	case KindMovePosition:
		return "move_position"
	case KindConfiscateCollateral:
		return "confiscate_collateral"
	case KindConfiscateDebt:
		return "confiscate_debt"
	case KindMintUnbacked:
		return "mint_unbacked"
	case KindSettleBadDebt:
		return "settle_bad_debt"
	case KindFeeAccrual:
		return "fee_accrual"
	case KindLiquidatorPayout:
		return "liquidator_payout"
	case KindTreasuryFee:
		return "treasury_fee"
	case KindRedeemCollateral:
		return "redeem_collateral"
	case KindRedeemStablecoin:
		return "redeem_stablecoin"
	default:
		return "unknown"
	}
}

// Entry is a single double-entry record: Amount moves from the credit
// account to the debit account within one balance dimension. Amounts are
// always positive; direction is carried by the account pair.
type Entry struct {
	EntryID   uuid.UUID
	BatchID   uuid.UUID
	OpRef     string // idempotency key of the source operation
	Sequence  int64
	Debit     string // account path whose balance increases
	Credit    string // account path whose balance decreases
	Dimension string // balance dimension (see Dim helpers)
	Amount    *big.Int
	Kind      EntryKind
	Timestamp int64 // versioned input timestamp, epoch microseconds
}

// Batch groups the entries produced by one ledger operation. A batch is
// applied atomically or not at all.
type Batch struct {
	BatchID   uuid.UUID
	OpRef     string
	Sequence  int64
	Timestamp int64
	Entries   []Entry
}

// Validate ensures the batch is well-formed. Each entry is a balanced
// transfer by construction (one positive amount, credit to debit), so a
// valid batch is zero-sum per dimension.
func (b *Batch) Validate() error {
	for _, e := range b.Entries {
		if e.Amount == nil || e.Amount.Sign() <= 0 {
			return fmt.Errorf("entry %s has non-positive amount", e.EntryID)
		}
		if e.BatchID != b.BatchID {
			return fmt.Errorf("entry %s has mismatched batch_id", e.EntryID)
		}
		if e.Debit == e.Credit {
			return fmt.Errorf("entry %s has same debit and credit account", e.EntryID)
		}
	}
	return nil
}

// Append adds an entry, filling in batch-derived fields.
func (b *Batch) Append(kind EntryKind, dimension, debit, credit string, amount *big.Int) {
	b.Entries = append(b.Entries, Entry{
		EntryID:   uuid.New(),
		BatchID:   b.BatchID,
		OpRef:     b.OpRef,
		Sequence:  b.Sequence,
		Debit:     debit,
		Credit:    credit,
		Dimension: dimension,
		Amount:    new(big.Int).Set(amount),
		Kind:      kind,
		Timestamp: b.Timestamp,
	})
}

// NewBatch creates an empty batch for one operation.
func NewBatch(opRef string, sequence, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		OpRef:     opRef,
		Sequence:  sequence,
		Timestamp: timestamp,
	}
}
