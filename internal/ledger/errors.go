package ledger

import "errors"

// Error taxonomy. Every revert condition is named; callers match with
// errors.Is. A failed operation leaves the ledger untouched — all checks
// run against computed post-state before anything is committed.
var (
	// State errors
	ErrCaged  = errors.New("ledger caged")
	ErrPaused = errors.New("ledger paused")

	// Invariant errors
	ErrPositionUnsafe       = errors.New("position unsafe")
	ErrDebtFloor            = errors.New("position debt below floor")
	ErrPoolCeilingExceeded  = errors.New("pool debt ceiling exceeded")
	ErrTotalCeilingExceeded = errors.New("total debt ceiling exceeded")

	// Input / balance errors
	ErrZeroAddress            = errors.New("zero address")
	ErrSameAddress            = errors.New("identical source and destination")
	ErrNonPositiveAmount      = errors.New("non-positive amount")
	ErrInsufficientCollateral = errors.New("insufficient collateral balance")
	ErrInsufficientStablecoin = errors.New("insufficient stablecoin balance")
	ErrInsufficientUnbacked   = errors.New("insufficient unbacked debt")
	ErrNegativeBalance        = errors.New("operation would produce negative balance")

	// External-dependency errors
	ErrAdapterCallback = errors.New("adapter callback failed")
)
