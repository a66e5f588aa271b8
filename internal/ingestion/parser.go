package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"VaultLedger/internal/op"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ParseRawOp converts a RawOp (JSON bytes + operation type string) into a
// typed op.Operation. The ingestion shell validates, parses, and converts raw
// messages before sending them to the deterministic core.
func ParseRawOp(raw RawOp, opType string) (op.Operation, error) {
	switch opType {
	case "AddCollateral":
		return parseAddCollateral(raw.Data)
	case "MoveCollateral":
		return parseMoveCollateral(raw.Data)
	case "MoveStablecoin":
		return parseMoveStablecoin(raw.Data)
	case "AllowMove":
		return parseAllowMove(raw.Data)
	case "AdjustPosition":
		return parseAdjustPosition(raw.Data)
	case "MovePosition":
		return parseMovePosition(raw.Data)
	case "OpenPosition":
		return parseOpenPosition(raw.Data)
	case "AdjustPositionByID":
		return parseAdjustPositionByID(raw.Data)
	case "GivePosition":
		return parseGivePosition(raw.Data)
	case "AllowManage":
		return parseAllowManage(raw.Data)
	case "AllowMigrate":
		return parseAllowMigrate(raw.Data)
	case "MoveCollateralByID":
		return parseMoveCollateralByID(raw.Data)
	case "MoveStablecoinByID":
		return parseMoveStablecoinByID(raw.Data)
	case "ExportPosition":
		return parseExportPosition(raw.Data)
	case "ImportPosition":
		return parseImportPosition(raw.Data)
	case "MovePositionByID":
		return parseMovePositionByID(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "AccrueFee":
		return parseAccrueFee(raw.Data)
	case "MintUnbacked":
		return parseMintUnbacked(raw.Data)
	case "SettleBadDebt":
		return parseSettleBadDebt(raw.Data)
	case "Liquidate":
		return parseLiquidate(raw.Data)
	case "InitPool":
		return parseInitPool(raw.Data)
	case "SetPoolParam":
		return parseSetPoolParam(raw.Data)
	case "SetTotalDebtCeiling":
		return parseSetTotalDebtCeiling(raw.Data)
	case "GrantRole":
		return parseGrantRole(raw.Data)
	case "RevokeRole":
		return parseRevokeRole(raw.Data)
	case "Pause":
		return parsePause(raw.Data)
	case "Unpause":
		return parseUnpause(raw.Data)
	case "Cage":
		return parseCage(raw.Data)
	case "Uncage":
		return parseUncage(raw.Data)
	case "CagePool":
		return parseCagePool(raw.Data)
	case "AccumulateBadDebt":
		return parseAccumulateBadDebt(raw.Data)
	case "RedeemLockedCollateral":
		return parseRedeemLockedCollateral(raw.Data)
	case "FinalizeDebt":
		return parseFinalizeDebt(raw.Data)
	case "FinalizeCashPrice":
		return parseFinalizeCashPrice(raw.Data)
	case "AccumulateStablecoin":
		return parseAccumulateStablecoin(raw.Data)
	case "RedeemStablecoin":
		return parseRedeemStablecoin(raw.Data)
	default:
		return nil, fmt.Errorf("unknown op type: %s", opType)
	}
}

// --- Field parsing helpers ---
// Amounts travel as decimal strings because they exceed int64 at every scale
// the ledger uses. Addresses travel as 0x-prefixed hex.

func parseAddr(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("parse %s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s: invalid amount %q", field, s)
	}
	return v, nil
}

func parseReqID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse request_id: %w", err)
	}
	return id, nil
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type addCollateralJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	Pool        string `json:"pool"`
	Target      string `json:"target"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseAddCollateral(data []byte) (*op.AddCollateral, error) {
	var j addCollateralJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AddCollateral: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	target, err := parseAddr("target", j.Target)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &op.AddCollateral{
		RequestID: reqID,
		Sender:    sender,
		Pool:      j.Pool,
		Target:    target,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type moveJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	Pool        string `json:"pool,omitempty"`
	Src         string `json:"src"`
	Dst         string `json:"dst"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseMoveCollateral(data []byte) (*op.MoveCollateral, error) {
	var j moveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MoveCollateral: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	src, err := parseAddr("src", j.Src)
	if err != nil {
		return nil, err
	}
	dst, err := parseAddr("dst", j.Dst)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &op.MoveCollateral{
		RequestID: reqID,
		Sender:    sender,
		Pool:      j.Pool,
		Src:       src,
		Dst:       dst,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseMoveStablecoin(data []byte) (*op.MoveStablecoin, error) {
	var j moveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MoveStablecoin: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	src, err := parseAddr("src", j.Src)
	if err != nil {
		return nil, err
	}
	dst, err := parseAddr("dst", j.Dst)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &op.MoveStablecoin{
		RequestID: reqID,
		Sender:    sender,
		Src:       src,
		Dst:       dst,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type allowJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	Operator    string `json:"operator"`
	Allow       bool   `json:"allow"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseAllowMove(data []byte) (*op.AllowMove, error) {
	var j allowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AllowMove: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	operator, err := parseAddr("operator", j.Operator)
	if err != nil {
		return nil, err
	}
	return &op.AllowMove{
		RequestID: reqID,
		Sender:    sender,
		Operator:  operator,
		Allow:     j.Allow,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseAllowMigrate(data []byte) (*op.AllowMigrate, error) {
	var j allowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AllowMigrate: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	operator, err := parseAddr("operator", j.Operator)
	if err != nil {
		return nil, err
	}
	return &op.AllowMigrate{
		RequestID: reqID,
		Sender:    sender,
		Operator:  operator,
		Allow:     j.Allow,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type adjustPositionJSON struct {
	RequestID       string `json:"request_id"`
	Sender          string `json:"sender"`
	Pool            string `json:"pool"`
	PositionAddr    string `json:"position_addr"`
	CollateralOwner string `json:"collateral_owner"`
	StablecoinOwner string `json:"stablecoin_owner"`
	DeltaCollateral string `json:"delta_collateral"`
	DeltaDebtShare  string `json:"delta_debt_share"`
	Sequence        int64  `json:"sequence"`
	TimestampUs     int64  `json:"timestamp_us"`
}

func parseAdjustPosition(data []byte) (*op.AdjustPosition, error) {
	var j adjustPositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AdjustPosition: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	posAddr, err := parseAddr("position_addr", j.PositionAddr)
	if err != nil {
		return nil, err
	}
	collOwner, err := parseAddr("collateral_owner", j.CollateralOwner)
	if err != nil {
		return nil, err
	}
	stabOwner, err := parseAddr("stablecoin_owner", j.StablecoinOwner)
	if err != nil {
		return nil, err
	}
	dc, err := parseAmount("delta_collateral", j.DeltaCollateral)
	if err != nil {
		return nil, err
	}
	dd, err := parseAmount("delta_debt_share", j.DeltaDebtShare)
	if err != nil {
		return nil, err
	}
	return &op.AdjustPosition{
		RequestID:       reqID,
		Sender:          sender,
		Pool:            j.Pool,
		PositionAddr:    posAddr,
		CollateralOwner: collOwner,
		StablecoinOwner: stabOwner,
		DeltaCollateral: dc,
		DeltaDebtShare:  dd,
		Sequence:        j.Sequence,
		Timestamp:       time.UnixMicro(j.TimestampUs),
	}, nil
}

type movePositionJSON struct {
	RequestID       string `json:"request_id"`
	Sender          string `json:"sender"`
	Pool            string `json:"pool"`
	Src             string `json:"src"`
	Dst             string `json:"dst"`
	DeltaCollateral string `json:"delta_collateral"`
	DeltaDebtShare  string `json:"delta_debt_share"`
	Sequence        int64  `json:"sequence"`
	TimestampUs     int64  `json:"timestamp_us"`
}

func parseMovePosition(data []byte) (*op.MovePosition, error) {
	var j movePositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MovePosition: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	src, err := parseAddr("src", j.Src)
	if err != nil {
		return nil, err
	}
	dst, err := parseAddr("dst", j.Dst)
	if err != nil {
		return nil, err
	}
	dc, err := parseAmount("delta_collateral", j.DeltaCollateral)
	if err != nil {
		return nil, err
	}
	dd, err := parseAmount("delta_debt_share", j.DeltaDebtShare)
	if err != nil {
		return nil, err
	}
	return &op.MovePosition{
		RequestID:       reqID,
		Sender:          sender,
		Pool:            j.Pool,
		Src:             src,
		Dst:             dst,
		DeltaCollateral: dc,
		DeltaDebtShare:  dd,
		Sequence:        j.Sequence,
		Timestamp:       time.UnixMicro(j.TimestampUs),
	}, nil
}

type openPositionJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	Pool        string `json:"pool"`
	Owner       string `json:"owner"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseOpenPosition(data []byte) (*op.OpenPosition, error) {
	var j openPositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OpenPosition: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	owner, err := parseAddr("owner", j.Owner)
	if err != nil {
		return nil, err
	}
	return &op.OpenPosition{
		RequestID: reqID,
		Sender:    sender,
		Pool:      j.Pool,
		Owner:     owner,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type adjustByIDJSON struct {
	RequestID       string `json:"request_id"`
	Sender          string `json:"sender"`
	PositionID      uint64 `json:"position_id"`
	DeltaCollateral string `json:"delta_collateral"`
	DeltaDebtShare  string `json:"delta_debt_share"`
	Sequence        int64  `json:"sequence"`
	TimestampUs     int64  `json:"timestamp_us"`
}

func parseAdjustPositionByID(data []byte) (*op.AdjustPositionByID, error) {
	var j adjustByIDJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AdjustPositionByID: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	dc, err := parseAmount("delta_collateral", j.DeltaCollateral)
	if err != nil {
		return nil, err
	}
	dd, err := parseAmount("delta_debt_share", j.DeltaDebtShare)
	if err != nil {
		return nil, err
	}
	return &op.AdjustPositionByID{
		RequestID:       reqID,
		Sender:          sender,
		PositionID:      j.PositionID,
		DeltaCollateral: dc,
		DeltaDebtShare:  dd,
		Sequence:        j.Sequence,
		Timestamp:       time.UnixMicro(j.TimestampUs),
	}, nil
}

type givePositionJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	PositionID  uint64 `json:"position_id"`
	NewOwner    string `json:"new_owner"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseGivePosition(data []byte) (*op.GivePosition, error) {
	var j givePositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse GivePosition: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	newOwner, err := parseAddr("new_owner", j.NewOwner)
	if err != nil {
		return nil, err
	}
	return &op.GivePosition{
		RequestID:  reqID,
		Sender:     sender,
		PositionID: j.PositionID,
		NewOwner:   newOwner,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type allowManageJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	PositionID  uint64 `json:"position_id"`
	Operator    string `json:"operator"`
	Allow       bool   `json:"allow"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseAllowManage(data []byte) (*op.AllowManage, error) {
	var j allowManageJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AllowManage: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	operator, err := parseAddr("operator", j.Operator)
	if err != nil {
		return nil, err
	}
	return &op.AllowManage{
		RequestID:  reqID,
		Sender:     sender,
		PositionID: j.PositionID,
		Operator:   operator,
		Allow:      j.Allow,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type moveByIDJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	PositionID  uint64 `json:"position_id"`
	Dst         string `json:"dst"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseMoveCollateralByID(data []byte) (*op.MoveCollateralByID, error) {
	var j moveByIDJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MoveCollateralByID: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	dst, err := parseAddr("dst", j.Dst)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &op.MoveCollateralByID{
		RequestID:  reqID,
		Sender:     sender,
		PositionID: j.PositionID,
		Dst:        dst,
		Amount:     amount,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseMoveStablecoinByID(data []byte) (*op.MoveStablecoinByID, error) {
	var j moveByIDJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MoveStablecoinByID: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	dst, err := parseAddr("dst", j.Dst)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &op.MoveStablecoinByID{
		RequestID:  reqID,
		Sender:     sender,
		PositionID: j.PositionID,
		Dst:        dst,
		Amount:     amount,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type exportPositionJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	PositionID  uint64 `json:"position_id"`
	Dst         string `json:"dst"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseExportPosition(data []byte) (*op.ExportPosition, error) {
	var j exportPositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ExportPosition: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	dst, err := parseAddr("dst", j.Dst)
	if err != nil {
		return nil, err
	}
	return &op.ExportPosition{
		RequestID:  reqID,
		Sender:     sender,
		PositionID: j.PositionID,
		Dst:        dst,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type importPositionJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	Src         string `json:"src"`
	PositionID  uint64 `json:"position_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseImportPosition(data []byte) (*op.ImportPosition, error) {
	var j importPositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ImportPosition: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	src, err := parseAddr("src", j.Src)
	if err != nil {
		return nil, err
	}
	return &op.ImportPosition{
		RequestID:  reqID,
		Sender:     sender,
		Src:        src,
		PositionID: j.PositionID,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type movePositionByIDJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	SrcID       uint64 `json:"src_id"`
	DstID       uint64 `json:"dst_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseMovePositionByID(data []byte) (*op.MovePositionByID, error) {
	var j movePositionByIDJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MovePositionByID: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	return &op.MovePositionByID{
		RequestID: reqID,
		Sender:    sender,
		SrcID:     j.SrcID,
		DstID:     j.DstID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type priceUpdateJSON struct {
	Pool         string `json:"pool"`
	Price        string `json:"price"`
	Valid        bool   `json:"valid"`
	FeedSequence int64  `json:"feed_sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parsePriceUpdate(data []byte) (*op.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	price, err := parseAmount("price", j.Price)
	if err != nil {
		return nil, err
	}
	return &op.PriceUpdate{
		Pool:         j.Pool,
		Price:        price,
		Valid:        j.Valid,
		FeedSequence: j.FeedSequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type accrueFeeJSON struct {
	Pool        string `json:"pool"`
	Now         int64  `json:"now"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseAccrueFee(data []byte) (*op.AccrueFee, error) {
	var j accrueFeeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AccrueFee: %w", err)
	}
	return &op.AccrueFee{
		Pool:      j.Pool,
		Now:       j.Now,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type mintUnbackedJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	Debtor      string `json:"debtor"`
	Creditor    string `json:"creditor"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseMintUnbacked(data []byte) (*op.MintUnbacked, error) {
	var j mintUnbackedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MintUnbacked: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	debtor, err := parseAddr("debtor", j.Debtor)
	if err != nil {
		return nil, err
	}
	creditor, err := parseAddr("creditor", j.Creditor)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &op.MintUnbacked{
		RequestID: reqID,
		Sender:    sender,
		Debtor:    debtor,
		Creditor:  creditor,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type settleBadDebtJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSettleBadDebt(data []byte) (*op.SettleBadDebt, error) {
	var j settleBadDebtJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SettleBadDebt: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &op.SettleBadDebt{
		RequestID: reqID,
		Sender:    sender,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type liquidateJSON struct {
	RequestID           string `json:"request_id"`
	Sender              string `json:"sender"`
	Pool                string `json:"pool"`
	PositionAddr        string `json:"position_addr"`
	DebtShareToRepay    string `json:"debt_share_to_repay"`
	CollateralRecipient string `json:"collateral_recipient"`
	Data                []byte `json:"data,omitempty"`
	Sequence            int64  `json:"sequence"`
	TimestampUs         int64  `json:"timestamp_us"`
}

func parseLiquidate(data []byte) (*op.Liquidate, error) {
	var j liquidateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Liquidate: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	posAddr, err := parseAddr("position_addr", j.PositionAddr)
	if err != nil {
		return nil, err
	}
	recipient, err := parseAddr("collateral_recipient", j.CollateralRecipient)
	if err != nil {
		return nil, err
	}
	repay, err := parseAmount("debt_share_to_repay", j.DebtShareToRepay)
	if err != nil {
		return nil, err
	}
	return &op.Liquidate{
		RequestID:           reqID,
		Sender:              sender,
		Pool:                j.Pool,
		PositionAddr:        posAddr,
		DebtShareToRepay:    repay,
		CollateralRecipient: recipient,
		Data:                j.Data,
		Sequence:            j.Sequence,
		Timestamp:           time.UnixMicro(j.TimestampUs),
	}, nil
}

type initPoolJSON struct {
	Sender      string `json:"sender"`
	Pool        string `json:"pool"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseInitPool(data []byte) (*op.InitPool, error) {
	var j initPoolJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InitPool: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	return &op.InitPool{
		Sender:    sender,
		Pool:      j.Pool,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type setPoolParamJSON struct {
	Sender      string `json:"sender"`
	Pool        string `json:"pool"`
	Param       string `json:"param"`
	NumValue    string `json:"num_value,omitempty"`
	BpsValue    uint64 `json:"bps_value,omitempty"`
	AddrValue   string `json:"addr_value,omitempty"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSetPoolParam(data []byte) (*op.SetPoolParam, error) {
	var j setPoolParamJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetPoolParam: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	o := &op.SetPoolParam{
		Sender:    sender,
		Pool:      j.Pool,
		Param:     j.Param,
		BpsValue:  j.BpsValue,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}
	if j.NumValue != "" {
		v, err := parseAmount("num_value", j.NumValue)
		if err != nil {
			return nil, err
		}
		o.NumValue = v
	}
	if j.AddrValue != "" {
		a, err := parseAddr("addr_value", j.AddrValue)
		if err != nil {
			return nil, err
		}
		o.AddrValue = a
	}
	return o, nil
}

type setTotalCeilingJSON struct {
	Sender      string `json:"sender"`
	Ceiling     string `json:"ceiling"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSetTotalDebtCeiling(data []byte) (*op.SetTotalDebtCeiling, error) {
	var j setTotalCeilingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetTotalDebtCeiling: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	ceiling, err := parseAmount("ceiling", j.Ceiling)
	if err != nil {
		return nil, err
	}
	return &op.SetTotalDebtCeiling{
		Sender:    sender,
		Ceiling:   ceiling,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type roleJSON struct {
	Sender      string `json:"sender"`
	Role        uint8  `json:"role"`
	Target      string `json:"target"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseGrantRole(data []byte) (*op.GrantRole, error) {
	var j roleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse GrantRole: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	target, err := parseAddr("target", j.Target)
	if err != nil {
		return nil, err
	}
	return &op.GrantRole{
		Sender:    sender,
		Role:      j.Role,
		Target:    target,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseRevokeRole(data []byte) (*op.RevokeRole, error) {
	var j roleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RevokeRole: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	target, err := parseAddr("target", j.Target)
	if err != nil {
		return nil, err
	}
	return &op.RevokeRole{
		Sender:    sender,
		Role:      j.Role,
		Target:    target,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type pauseJSON struct {
	Sender      string `json:"sender"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePause(data []byte) (*op.Pause, error) {
	var j pauseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Pause: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	return &op.Pause{
		Sender:    sender,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseUnpause(data []byte) (*op.Unpause, error) {
	var j pauseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Unpause: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	return &op.Unpause{
		Sender:    sender,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type cageJSON struct {
	Sender      string `json:"sender"`
	Now         int64  `json:"now"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCage(data []byte) (*op.Cage, error) {
	var j cageJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Cage: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	return &op.Cage{
		Sender:    sender,
		Now:       j.Now,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseUncage(data []byte) (*op.Uncage, error) {
	var j pauseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Uncage: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	return &op.Uncage{
		Sender:    sender,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type cagePoolJSON struct {
	Sender      string `json:"sender"`
	Pool        string `json:"pool"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCagePool(data []byte) (*op.CagePool, error) {
	var j cagePoolJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CagePool: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	return &op.CagePool{
		Sender:    sender,
		Pool:      j.Pool,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type accumulateBadDebtJSON struct {
	Sender       string `json:"sender"`
	Pool         string `json:"pool"`
	PositionAddr string `json:"position_addr"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseAccumulateBadDebt(data []byte) (*op.AccumulateBadDebt, error) {
	var j accumulateBadDebtJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AccumulateBadDebt: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	posAddr, err := parseAddr("position_addr", j.PositionAddr)
	if err != nil {
		return nil, err
	}
	return &op.AccumulateBadDebt{
		Sender:       sender,
		Pool:         j.Pool,
		PositionAddr: posAddr,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type redeemLockedJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	PositionID  uint64 `json:"position_id"`
	Dst         string `json:"dst"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRedeemLockedCollateral(data []byte) (*op.RedeemLockedCollateral, error) {
	var j redeemLockedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RedeemLockedCollateral: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	dst, err := parseAddr("dst", j.Dst)
	if err != nil {
		return nil, err
	}
	return &op.RedeemLockedCollateral{
		RequestID:  reqID,
		Sender:     sender,
		PositionID: j.PositionID,
		Dst:        dst,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type finalizeDebtJSON struct {
	Sender      string `json:"sender"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseFinalizeDebt(data []byte) (*op.FinalizeDebt, error) {
	var j finalizeDebtJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FinalizeDebt: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	return &op.FinalizeDebt{
		Sender:    sender,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type finalizeCashPriceJSON struct {
	Sender      string `json:"sender"`
	Pool        string `json:"pool"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseFinalizeCashPrice(data []byte) (*op.FinalizeCashPrice, error) {
	var j finalizeCashPriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FinalizeCashPrice: %w", err)
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	return &op.FinalizeCashPrice{
		Sender:    sender,
		Pool:      j.Pool,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type accumulateStablecoinJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseAccumulateStablecoin(data []byte) (*op.AccumulateStablecoin, error) {
	var j accumulateStablecoinJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AccumulateStablecoin: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &op.AccumulateStablecoin{
		RequestID: reqID,
		Sender:    sender,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type redeemStablecoinJSON struct {
	RequestID   string `json:"request_id"`
	Sender      string `json:"sender"`
	Pool        string `json:"pool"`
	Amount      string `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRedeemStablecoin(data []byte) (*op.RedeemStablecoin, error) {
	var j redeemStablecoinJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RedeemStablecoin: %w", err)
	}
	reqID, err := parseReqID(j.RequestID)
	if err != nil {
		return nil, err
	}
	sender, err := parseAddr("sender", j.Sender)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", j.Amount)
	if err != nil {
		return nil, err
	}
	return &op.RedeemStablecoin{
		RequestID: reqID,
		Sender:    sender,
		Pool:      j.Pool,
		Amount:    amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
