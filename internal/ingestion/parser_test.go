package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"VaultLedger/internal/ingestion"
	"VaultLedger/internal/op"

	"github.com/ethereum/go-ethereum/common"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawOp {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawOp{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseAddCollateral(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"sender":       "0x0000000000000000000000000000000000000002",
		"pool":         "ETH",
		"target":       "0x000000000000000000000000000000000000a11c",
		"amount":       "10000000000000000000",
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	o, err := ingestion.ParseRawOp(raw, "AddCollateral")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ac, ok := o.(*op.AddCollateral)
	if !ok {
		t.Fatalf("expected *op.AddCollateral, got %T", o)
	}

	if ac.Pool != "ETH" {
		t.Errorf("pool: got %s, want ETH", ac.Pool)
	}
	if ac.Target != common.HexToAddress("0x000000000000000000000000000000000000a11c") {
		t.Errorf("target: got %s", ac.Target.Hex())
	}
	if ac.Amount.String() != "10000000000000000000" {
		t.Errorf("amount: got %s", ac.Amount)
	}
	if ac.Sequence != 7 {
		t.Errorf("sequence: got %d, want 7", ac.Sequence)
	}
	if ac.OpType() != op.OpTypeAddCollateral {
		t.Errorf("op type: got %v, want AddCollateral", ac.OpType())
	}
}

func TestParseAdjustPosition(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":       "660e8400-e29b-41d4-a716-446655440001",
		"sender":           "0x000000000000000000000000000000000000a11c",
		"pool":             "ETH",
		"position_addr":    "0x000000000000000000000000000000000000a11c",
		"collateral_owner": "0x000000000000000000000000000000000000a11c",
		"stablecoin_owner": "0x000000000000000000000000000000000000a11c",
		"delta_collateral": "10000000000000000000",
		"delta_debt_share": "-5000000000000000000000",
		"sequence":         int64(8),
		"timestamp_us":     int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	o, err := ingestion.ParseRawOp(raw, "AdjustPosition")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ap, ok := o.(*op.AdjustPosition)
	if !ok {
		t.Fatalf("expected *op.AdjustPosition, got %T", o)
	}

	if ap.DeltaDebtShare.Sign() >= 0 {
		t.Errorf("delta_debt_share should be negative, got %s", ap.DeltaDebtShare)
	}
	if ap.DeltaCollateral.String() != "10000000000000000000" {
		t.Errorf("delta_collateral: got %s", ap.DeltaCollateral)
	}
	if ap.PoolID() == nil || *ap.PoolID() != "ETH" {
		t.Error("pool partition not set")
	}
}

func TestParsePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"pool":          "BNB",
		"price":         "320000000000000000000",
		"valid":         true,
		"feed_sequence": int64(100),
		"timestamp_us":  int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	o, err := ingestion.ParseRawOp(raw, "PriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pu, ok := o.(*op.PriceUpdate)
	if !ok {
		t.Fatalf("expected *op.PriceUpdate, got %T", o)
	}

	if pu.Pool != "BNB" {
		t.Errorf("pool: got %s, want BNB", pu.Pool)
	}
	if pu.Price.String() != "320000000000000000000" {
		t.Errorf("price: got %s", pu.Price)
	}
	if !pu.Valid {
		t.Error("valid flag dropped")
	}
	if pu.FeedSequence != 100 {
		t.Errorf("feed_sequence: got %d, want 100", pu.FeedSequence)
	}
}

func TestParseLiquidate(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":           "770e8400-e29b-41d4-a716-446655440002",
		"sender":               "0x000000000000000000000000000000000000b0bb",
		"pool":                 "ETH",
		"position_addr":        "0x000000000000000000000000000000000000a11c",
		"debt_share_to_repay":  "2500000000000000000000",
		"collateral_recipient": "0x000000000000000000000000000000000000b0bb",
		"sequence":             int64(12),
		"timestamp_us":         int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	o, err := ingestion.ParseRawOp(raw, "Liquidate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	lq, ok := o.(*op.Liquidate)
	if !ok {
		t.Fatalf("expected *op.Liquidate, got %T", o)
	}

	if lq.DebtShareToRepay.String() != "2500000000000000000000" {
		t.Errorf("debt_share_to_repay: got %s", lq.DebtShareToRepay)
	}
	if len(lq.Data) != 0 {
		t.Errorf("data should be empty, got %d bytes", len(lq.Data))
	}
}

func TestParseSetPoolParam(t *testing.T) {
	payload := map[string]interface{}{
		"sender":       "0x0000000000000000000000000000000000000001",
		"pool":         "ETH",
		"param":        op.ParamLiquidationRatio,
		"num_value":    "1250000000000000000000000000",
		"sequence":     int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	o, err := ingestion.ParseRawOp(raw, "SetPoolParam")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sp, ok := o.(*op.SetPoolParam)
	if !ok {
		t.Fatalf("expected *op.SetPoolParam, got %T", o)
	}

	if sp.Param != op.ParamLiquidationRatio {
		t.Errorf("param: got %s", sp.Param)
	}
	if sp.NumValue.String() != "1250000000000000000000000000" {
		t.Errorf("num_value: got %s", sp.NumValue)
	}
}

func TestParseCage(t *testing.T) {
	payload := map[string]interface{}{
		"sender":       "0x0000000000000000000000000000000000000001",
		"now":          int64(1700000000),
		"sequence":     int64(50),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	o, err := ingestion.ParseRawOp(raw, "Cage")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cg, ok := o.(*op.Cage)
	if !ok {
		t.Fatalf("expected *op.Cage, got %T", o)
	}

	if cg.Now != 1700000000 {
		t.Errorf("now: got %d", cg.Now)
	}
	if cg.IdempotencyKey() != "cage" {
		t.Errorf("idempotency key: got %s", cg.IdempotencyKey())
	}
}

func TestParseUncage(t *testing.T) {
	payload := map[string]interface{}{
		"sender":       "0x0000000000000000000000000000000000000001",
		"sequence":     int64(51),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	o, err := ingestion.ParseRawOp(raw, "Uncage")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	uc, ok := o.(*op.Uncage)
	if !ok {
		t.Fatalf("expected *op.Uncage, got %T", o)
	}

	if uc.Sequence != 51 {
		t.Errorf("sequence: got %d", uc.Sequence)
	}
	if uc.IdempotencyKey() != "uncage:51" {
		t.Errorf("idempotency key: got %s", uc.IdempotencyKey())
	}
}

func TestParseUnknownOpType_Fails(t *testing.T) {
	raw := ingestion.RawOp{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawOp(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown op type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawOp{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawOp(raw, "AddCollateral")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidAddress_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"sender":       "not-an-address",
		"pool":         "ETH",
		"target":       "also-not-an-address",
		"amount":       "1",
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawOp(raw, "AddCollateral")
	if err == nil {
		t.Fatal("expected error for invalid address")
	}
}

func TestParseInvalidAmount_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"sender":       "0x0000000000000000000000000000000000000002",
		"pool":         "ETH",
		"target":       "0x000000000000000000000000000000000000a11c",
		"amount":       "ten",
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawOp(raw, "AddCollateral")
	if err == nil {
		t.Fatal("expected error for invalid amount")
	}
}
