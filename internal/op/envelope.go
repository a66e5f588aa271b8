package op

import (
	"time"
)

// OpType discriminator for operation payloads
type OpType int32

const (
	OpTypeUnknown OpType = iota
	OpTypeAddCollateral
	OpTypeMoveCollateral
	OpTypeMoveStablecoin
	OpTypeAllowMove
	OpTypeAdjustPosition
	OpTypeMovePosition
	OpTypeOpenPosition
	OpTypeAdjustPositionByID
	OpTypeGivePosition
	OpTypeAllowManage
	OpTypeAllowMigrate
	OpTypeMoveCollateralByID
	OpTypeMoveStablecoinByID
	OpTypeExportPosition
	OpTypeImportPosition
	OpTypeMovePositionByID
	OpTypePriceUpdate
	OpTypeAccrueFee
	OpTypeMintUnbacked
	OpTypeSettleBadDebt
	OpTypeLiquidate
	OpTypeInitPool
	OpTypeSetPoolParam
	OpTypeSetTotalDebtCeiling
	OpTypeGrantRole
	OpTypeRevokeRole
	OpTypePause
	OpTypeUnpause
	OpTypeCage
	OpTypeUncage
	OpTypeCagePool
	OpTypeAccumulateBadDebt
	OpTypeRedeemLockedCollateral
	OpTypeFinalizeDebt
	OpTypeFinalizeCashPrice
	OpTypeAccumulateStablecoin
	OpTypeRedeemStablecoin
)

// Envelope wraps every operation in the log
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Operation type discriminator
	OpType OpType

	// Pool context (nullable for global operations)
	PoolID *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded operation-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this operation
	StateHash [32]byte

	// Previous operation's state hash (chain integrity)
	PrevHash [32]byte
}

// Operation is the interface all operation payloads must implement
type Operation interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// OpType returns the discriminator
	OpType() OpType

	// PoolID returns the pool context (nil for global operations)
	PoolID() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (ot OpType) String() string {
	switch ot {
	case OpTypeAddCollateral:
		return "AddCollateral"
	case OpTypeMoveCollateral:
		return "MoveCollateral"
	case OpTypeMoveStablecoin:
		return "MoveStablecoin"
	case OpTypeAllowMove:
		return "AllowMove"
	case OpTypeAdjustPosition:
		return "AdjustPosition"
	case OpTypeMovePosition:
		return "MovePosition"
	case OpTypeOpenPosition:
		return "OpenPosition"
	case OpTypeAdjustPositionByID:
		return "AdjustPositionByID"
	case OpTypeGivePosition:
		return "GivePosition"
	case OpTypeAllowManage:
		return "AllowManage"
	case OpTypeAllowMigrate:
		return "AllowMigrate"
	case OpTypeMoveCollateralByID:
		return "MoveCollateralByID"
	case OpTypeMoveStablecoinByID:
		return "MoveStablecoinByID"
	case OpTypeExportPosition:
		return "ExportPosition"
	case OpTypeImportPosition:
		return "ImportPosition"
	case OpTypeMovePositionByID:
		return "MovePositionByID"
	case OpTypePriceUpdate:
		return "PriceUpdate"
	case OpTypeAccrueFee:
		return "AccrueFee"
	case OpTypeMintUnbacked:
		return "MintUnbacked"
	case OpTypeSettleBadDebt:
		return "SettleBadDebt"
	case OpTypeLiquidate:
		return "Liquidate"
	case OpTypeInitPool:
		return "InitPool"
	case OpTypeSetPoolParam:
		return "SetPoolParam"
	case OpTypeSetTotalDebtCeiling:
		return "SetTotalDebtCeiling"
	case OpTypeGrantRole:
		return "GrantRole"
	case OpTypeRevokeRole:
		return "RevokeRole"
	case OpTypePause:
		return "Pause"
	case OpTypeUnpause:
		return "Unpause"
	case OpTypeCage:
		return "Cage"
	case OpTypeUncage:
		return "Uncage"
	case OpTypeCagePool:
		return "CagePool"
	case OpTypeAccumulateBadDebt:
		return "AccumulateBadDebt"
	case OpTypeRedeemLockedCollateral:
		return "RedeemLockedCollateral"
	case OpTypeFinalizeDebt:
		return "FinalizeDebt"
	case OpTypeFinalizeCashPrice:
		return "FinalizeCashPrice"
	case OpTypeAccumulateStablecoin:
		return "AccumulateStablecoin"
	case OpTypeRedeemStablecoin:
		return "RedeemStablecoin"
	default:
		return "Unknown"
	}
}
