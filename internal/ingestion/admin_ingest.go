package ingestion

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"VaultLedger/internal/op"

	"github.com/ethereum/go-ethereum/common"
)

// AdminIngestService provides manual operation injection for operators.
// It is for admin actions and recovery drills, not for high-throughput
// ingestion (use NATS for that).
type AdminIngestService struct {
	opChan chan<- op.Operation
}

func NewAdminIngestService(opChan chan<- op.Operation) *AdminIngestService {
	return &AdminIngestService{opChan: opChan}
}

// InjectPriceUpdate manually injects a PriceUpdate for a pool.
func (s *AdminIngestService) InjectPriceUpdate(
	ctx context.Context,
	poolID string,
	price *big.Int,
	feedSequence int64,
) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("price must be positive")
	}

	o := &op.PriceUpdate{
		Pool:         poolID,
		Price:        price,
		Valid:        true,
		FeedSequence: feedSequence,
		Timestamp:    time.Now(),
	}

	select {
	case s.opChan <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectAccrueFee manually triggers stability fee accrual for a pool.
func (s *AdminIngestService) InjectAccrueFee(
	ctx context.Context,
	poolID string,
	sequence int64,
) error {
	now := time.Now()
	o := &op.AccrueFee{
		Pool:      poolID,
		Now:       now.Unix(),
		Sequence:  sequence,
		Timestamp: now,
	}

	select {
	case s.opChan <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectCage manually triggers the global emergency shutdown.
func (s *AdminIngestService) InjectCage(
	ctx context.Context,
	sender common.Address,
	sequence int64,
) error {
	now := time.Now()
	o := &op.Cage{
		Sender:    sender,
		Now:       now.Unix(),
		Sequence:  sequence,
		Timestamp: now,
	}

	select {
	case s.opChan <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectCagePool manually settles a single pool after a global cage.
func (s *AdminIngestService) InjectCagePool(
	ctx context.Context,
	sender common.Address,
	poolID string,
	sequence int64,
) error {
	o := &op.CagePool{
		Sender:    sender,
		Pool:      poolID,
		Sequence:  sequence,
		Timestamp: time.Now(),
	}

	select {
	case s.opChan <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectUncage lifts a direct ledger cage. It does not undo a system-wide
// settlement cage, which is one-way.
func (s *AdminIngestService) InjectUncage(
	ctx context.Context,
	sender common.Address,
	sequence int64,
) error {
	o := &op.Uncage{
		Sender:    sender,
		Sequence:  sequence,
		Timestamp: time.Now(),
	}

	select {
	case s.opChan <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectPause manually pauses position adjustments.
func (s *AdminIngestService) InjectPause(
	ctx context.Context,
	sender common.Address,
	sequence int64,
) error {
	o := &op.Pause{
		Sender:    sender,
		Sequence:  sequence,
		Timestamp: time.Now(),
	}

	select {
	case s.opChan <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectUnpause lifts a pause.
func (s *AdminIngestService) InjectUnpause(
	ctx context.Context,
	sender common.Address,
	sequence int64,
) error {
	o := &op.Unpause{
		Sender:    sender,
		Sequence:  sequence,
		Timestamp: time.Now(),
	}

	select {
	case s.opChan <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
