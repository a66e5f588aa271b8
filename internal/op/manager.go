package op

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// OpenPosition creates a new managed position owned by Owner.
type OpenPosition struct {
	RequestID uuid.UUID
	Sender    common.Address
	Pool      string
	Owner     common.Address
	Sequence  int64
	Timestamp time.Time
}

func (o *OpenPosition) IdempotencyKey() string {
	return o.RequestID.String()
}

func (o *OpenPosition) OpType() OpType {
	return OpTypeOpenPosition
}

func (o *OpenPosition) PoolID() *string {
	p := o.Pool
	return &p
}

func (o *OpenPosition) SourceSequence() int64 {
	return o.Sequence
}

// AdjustPositionByID adjusts a managed position through the registry.
type AdjustPositionByID struct {
	RequestID       uuid.UUID
	Sender          common.Address
	PositionID      uint64
	DeltaCollateral *big.Int // Unit scale, signed
	DeltaDebtShare  *big.Int // Unit scale, signed
	Sequence        int64
	Timestamp       time.Time
}

func (a *AdjustPositionByID) IdempotencyKey() string {
	return a.RequestID.String()
}

func (a *AdjustPositionByID) OpType() OpType {
	return OpTypeAdjustPositionByID
}

func (a *AdjustPositionByID) PoolID() *string {
	return nil
}

func (a *AdjustPositionByID) SourceSequence() int64 {
	return a.Sequence
}

// GivePosition transfers ownership of a managed position.
type GivePosition struct {
	RequestID  uuid.UUID
	Sender     common.Address
	PositionID uint64
	NewOwner   common.Address
	Sequence   int64
	Timestamp  time.Time
}

func (g *GivePosition) IdempotencyKey() string {
	return g.RequestID.String()
}

func (g *GivePosition) OpType() OpType {
	return OpTypeGivePosition
}

func (g *GivePosition) PoolID() *string {
	return nil
}

func (g *GivePosition) SourceSequence() int64 {
	return g.Sequence
}

// AllowManage grants or revokes per-position management rights.
type AllowManage struct {
	RequestID  uuid.UUID
	Sender     common.Address
	PositionID uint64
	Operator   common.Address
	Allow      bool
	Sequence   int64
	Timestamp  time.Time
}

func (a *AllowManage) IdempotencyKey() string {
	return a.RequestID.String()
}

func (a *AllowManage) OpType() OpType {
	return OpTypeAllowManage
}

func (a *AllowManage) PoolID() *string {
	return nil
}

func (a *AllowManage) SourceSequence() int64 {
	return a.Sequence
}

// AllowMigrate grants or revokes position import/export consent.
type AllowMigrate struct {
	RequestID uuid.UUID
	Sender    common.Address
	Operator  common.Address
	Allow     bool
	Sequence  int64
	Timestamp time.Time
}

func (a *AllowMigrate) IdempotencyKey() string {
	return a.RequestID.String()
}

func (a *AllowMigrate) OpType() OpType {
	return OpTypeAllowMigrate
}

func (a *AllowMigrate) PoolID() *string {
	return nil
}

func (a *AllowMigrate) SourceSequence() int64 {
	return a.Sequence
}

// MoveCollateralByID moves free collateral out of a managed position's
// synthetic address.
type MoveCollateralByID struct {
	RequestID  uuid.UUID
	Sender     common.Address
	PositionID uint64
	Dst        common.Address
	Amount     *big.Int // Unit scale
	Sequence   int64
	Timestamp  time.Time
}

func (m *MoveCollateralByID) IdempotencyKey() string {
	return m.RequestID.String()
}

func (m *MoveCollateralByID) OpType() OpType {
	return OpTypeMoveCollateralByID
}

func (m *MoveCollateralByID) PoolID() *string {
	return nil
}

func (m *MoveCollateralByID) SourceSequence() int64 {
	return m.Sequence
}

// MoveStablecoinByID moves stablecoin out of a managed position's
// synthetic address.
type MoveStablecoinByID struct {
	RequestID  uuid.UUID
	Sender     common.Address
	PositionID uint64
	Dst        common.Address
	Amount     *big.Int // Accum scale
	Sequence   int64
	Timestamp  time.Time
}

func (m *MoveStablecoinByID) IdempotencyKey() string {
	return m.RequestID.String()
}

func (m *MoveStablecoinByID) OpType() OpType {
	return OpTypeMoveStablecoinByID
}

func (m *MoveStablecoinByID) PoolID() *string {
	return nil
}

func (m *MoveStablecoinByID) SourceSequence() int64 {
	return m.Sequence
}

// ExportPosition moves a managed position's balances to a raw ledger
// address. Requires mutual migration consent.
type ExportPosition struct {
	RequestID  uuid.UUID
	Sender     common.Address
	PositionID uint64
	Dst        common.Address
	Sequence   int64
	Timestamp  time.Time
}

func (e *ExportPosition) IdempotencyKey() string {
	return e.RequestID.String()
}

func (e *ExportPosition) OpType() OpType {
	return OpTypeExportPosition
}

func (e *ExportPosition) PoolID() *string {
	return nil
}

func (e *ExportPosition) SourceSequence() int64 {
	return e.Sequence
}

// ImportPosition moves balances from a raw ledger address into a managed
// position. Requires mutual migration consent.
type ImportPosition struct {
	RequestID  uuid.UUID
	Sender     common.Address
	Src        common.Address
	PositionID uint64
	Sequence   int64
	Timestamp  time.Time
}

func (i *ImportPosition) IdempotencyKey() string {
	return i.RequestID.String()
}

func (i *ImportPosition) OpType() OpType {
	return OpTypeImportPosition
}

func (i *ImportPosition) PoolID() *string {
	return nil
}

func (i *ImportPosition) SourceSequence() int64 {
	return i.Sequence
}

// MovePositionByID merges one managed position into another in the same
// pool.
type MovePositionByID struct {
	RequestID uuid.UUID
	Sender    common.Address
	SrcID     uint64
	DstID     uint64
	Sequence  int64
	Timestamp time.Time
}

func (m *MovePositionByID) IdempotencyKey() string {
	return m.RequestID.String()
}

func (m *MovePositionByID) OpType() OpType {
	return OpTypeMovePositionByID
}

func (m *MovePositionByID) PoolID() *string {
	return nil
}

func (m *MovePositionByID) SourceSequence() int64 {
	return m.Sequence
}
