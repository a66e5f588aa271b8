package core

import (
	"VaultLedger/internal/auth"
	"VaultLedger/internal/journal"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/liquidation"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/op"
	"VaultLedger/internal/oracle"
	"VaultLedger/internal/pools"
	"VaultLedger/internal/registry"
	"VaultLedger/internal/settlement"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Identities fixes the system addresses the core is built around. They are
// part of the deterministic configuration: two replicas with different
// identities produce different state hashes.
type Identities struct {
	Owner        common.Address // holds the owner role
	DebtEngine   common.Address // accumulates bad debt, settles with surplus
	FeeCollector common.Address // stability fee collector identity
	Treasury     common.Address // stability fee recipient
	Strategy     common.Address // fixed spread liquidation strategy identity
	Settlement   common.Address // show stopper identity, also the settlement pot
	Manager      common.Address // position registry identity
}

// DeterministicCore is the single-threaded operation processor
type DeterministicCore struct {
	sequence          int64
	hasher            *StateHasher
	table             *auth.Table
	feed              *oracle.PriceBook
	pools             *pools.Registry
	ledger            *ledger.Ledger
	validator         *ledger.InvariantValidator
	fees              *pools.FeeCollector
	manager           *registry.Manager
	liqEngine         *liquidation.Engine
	strategy          *liquidation.FixedSpreadStrategy
	stop              *settlement.Settlement
	ids               Identities
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput

	lastLiquidation *LiquidationRecord
}

type CoreOutput struct {
	Envelope   *op.Envelope
	Batch      *journal.Batch
	StateDelta []byte

	// Set only for executed liquidations; feeds the liquidation history
	// projection.
	Liquidation *LiquidationRecord
}

// LiquidationRecord carries the executed amounts of a liquidation out of the
// core. The journal entries alone do not preserve the repaid/seized split.
type LiquidationRecord struct {
	Pool                 string
	PositionAddr         common.Address
	Liquidator           common.Address
	DebtShareRepaid      *big.Int
	RepaidValue          *big.Int
	CollateralLiquidated *big.Int
	TreasuryShare        *big.Int
}

func NewDeterministicCore(
	startSequence int64,
	ids Identities,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *DeterministicCore {
	table := auth.NewTable()
	table.Grant(auth.RoleOwner, ids.Owner)
	table.Grant(auth.RoleStabilityFeeCollector, ids.FeeCollector)
	table.Grant(auth.RoleLiquidationEngine, ids.Strategy)
	table.Grant(auth.RoleShowStopper, ids.Settlement)
	table.Grant(auth.RoleLiquidationEngine, ids.Settlement)
	table.Grant(auth.RolePositionManager, ids.Manager)
	table.Grant(auth.RoleMintable, ids.DebtEngine)

	feed := oracle.NewPriceBook()
	poolReg := pools.NewRegistry(table, feed)
	l := ledger.New(table, poolReg)
	validator := ledger.NewInvariantValidator(l)
	fees := pools.NewFeeCollector(poolReg, l, ids.FeeCollector, ids.Treasury)
	manager := registry.NewManager(table, l, ids.Manager)

	strategy := liquidation.NewFixedSpreadStrategy(table, poolReg, l, feed, ids.Strategy, ids.DebtEngine)
	liqEngine := liquidation.NewEngine(poolReg, l)
	liqEngine.RegisterStrategy(ids.Strategy, strategy)

	stop := settlement.New(table, poolReg, l, feed, ids.Settlement, ids.DebtEngine)
	manager.SetSettler(stop)

	// Initialize with capacity of 1M entries (configurable)
	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)
	sequenceValidator := NewSequenceValidator()

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		table:             table,
		feed:              feed,
		pools:             poolReg,
		ledger:            l,
		validator:         validator,
		fees:              fees,
		manager:           manager,
		liqEngine:         liqEngine,
		strategy:          strategy,
		stop:              stop,
		ids:               ids,
		idempotency:       idempotencyChecker,
		sequenceValidator: sequenceValidator,
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessOp is the main processing pipeline
func (c *DeterministicCore) ProcessOp(o op.Operation) error {
	return c.process(o, false)
}

// ReplayOp re-applies a logged operation during recovery. Replay skips the
// Postgres idempotency tier (the op log itself is what is being replayed)
// and does not re-emit outputs.
func (c *DeterministicCore) ReplayOp(o op.Operation) error {
	return c.process(o, true)
}

func (c *DeterministicCore) process(o op.Operation, replay bool) error {
	start := time.Now()
	opType := o.OpType().String()
	idempotencyKey := o.IdempotencyKey()

	// Step 1: Idempotency check (two-tier; LRU only during replay)
	var isDuplicate bool
	if replay {
		isDuplicate = c.idempotency.IsDuplicateInMemory(opType, idempotencyKey)
	} else {
		isDuplicate = c.idempotency.IsDuplicate(opType, idempotencyKey)
	}

	// Step 2: Sequence validation
	partition := c.getPartition(o)
	sourceSequence := o.SourceSequence()

	// Special handling for price updates (gaps tolerated)
	if priceOp, ok := o.(*op.PriceUpdate); ok {
		if err := c.sequenceValidator.ValidatePriceSequence(priceOp.Pool, priceOp.FeedSequence); err != nil {
			return err
		}
	} else {
		// Regular sequence validation
		if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreOpsRejected.WithLabelValues(opType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Operation dispatch
	c.lastLiquidation = nil
	batch, err := c.dispatch(o)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreOpsRejected.WithLabelValues(opType, "rejected").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4: Validate batch balance. Domain methods validate the full
	// post-state before mutating, so an unbalanced batch here means a bug
	// in the core itself, not bad input.
	if len(batch.Entries) > 0 {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
	}

	// Step 5: Compute state digest and hash
	stateDigest := c.computeStateDigest(batch)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	// Step 6: Create envelope. Payload is the op itself, so the log can be
	// replayed through op.NewByType without the original wire message.
	payload, err := json.Marshal(o)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal op payload: %v", err))
	}
	envelope := &op.Envelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		OpType:         o.OpType(),
		PoolID:         o.PoolID(),
		Timestamp:      time.UnixMicro(batch.Timestamp),
		SourceSequence: sourceSequence,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:    envelope,
		Batch:       batch,
		StateDelta:  stateDigest,
		Liquidation: c.lastLiquidation,
	}
	c.sequence++

	// Step 7: Post-checks
	if err := c.postCheckInvariants(o); err != nil {
		if c.metrics != nil {
			c.metrics.ConservationFailures.Inc()
		}
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 8: Emit output. Persist channel uses BLOCKING send
	// (backpressure), projection channel uses NON-BLOCKING send with
	// silent drop — projections rebuild from the operation log. Replay
	// emits nothing: the log already holds these outputs.
	if !replay {
		c.persistChan <- output

		select {
		case c.projectionChan <- output:
		default:
			// Dropped — projection will catch up via rebuild
		}
	}

	// Step 9: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(opType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreOpsApplied.WithLabelValues(opType).Inc()
		c.metrics.CoreOpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		for _, e := range batch.Entries {
			c.metrics.CoreEntries.WithLabelValues(e.Kind.String()).Inc()
		}
	}

	return nil
}

// getPartition determines partition key for sequence validation
func (c *DeterministicCore) getPartition(o op.Operation) string {
	if poolID := o.PoolID(); poolID != nil {
		return fmt.Sprintf("pool:%s", *poolID)
	}
	return "global"
}

func (c *DeterministicCore) newBatch(key string, ts time.Time) *journal.Batch {
	return journal.NewBatch(key, c.sequence, ts.UnixMicro())
}

func (c *DeterministicCore) dispatch(o op.Operation) (*journal.Batch, error) {
	switch e := o.(type) {
	case *op.AddCollateral:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.ledger.AddCollateral(b, e.Sender, e.Pool, e.Target, e.Amount)
	case *op.MoveCollateral:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.ledger.MoveCollateral(b, e.Sender, e.Pool, e.Src, e.Dst, e.Amount)
	case *op.MoveStablecoin:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.ledger.MoveStablecoin(b, e.Sender, e.Src, e.Dst, e.Amount)
	case *op.AllowMove:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		c.table.AllowMove(e.Sender, e.Operator, e.Allow)
		return b, nil
	case *op.AdjustPosition:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.ledger.AdjustPosition(b, e.Sender, e.Pool,
			e.PositionAddr, e.CollateralOwner, e.StablecoinOwner,
			e.DeltaCollateral, e.DeltaDebtShare)
	case *op.MovePosition:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.ledger.MovePosition(b, e.Sender, e.Pool, e.Src, e.Dst,
			e.DeltaCollateral, e.DeltaDebtShare)

	case *op.OpenPosition:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		_, err := c.manager.Open(e.Pool, e.Owner)
		return b, err
	case *op.AdjustPositionByID:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.manager.AdjustPosition(b, e.Sender, e.PositionID, e.DeltaCollateral, e.DeltaDebtShare)
	case *op.GivePosition:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.manager.Give(e.Sender, e.PositionID, e.NewOwner)
	case *op.AllowManage:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.manager.AllowManagePosition(e.Sender, e.PositionID, e.Operator, e.Allow)
	case *op.AllowMigrate:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		c.manager.AllowMigratePosition(e.Sender, e.Operator, e.Allow)
		return b, nil
	case *op.MoveCollateralByID:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.manager.MoveCollateral(b, e.Sender, e.PositionID, e.Dst, e.Amount)
	case *op.MoveStablecoinByID:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.manager.MoveStablecoin(b, e.Sender, e.PositionID, e.Dst, e.Amount)
	case *op.ExportPosition:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.manager.ExportPosition(b, e.Sender, e.PositionID, e.Dst)
	case *op.ImportPosition:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.manager.ImportPosition(b, e.Sender, e.Src, e.PositionID)
	case *op.MovePositionByID:
		return c.handleMovePositionByID(e)

	case *op.PriceUpdate:
		return c.handlePriceUpdate(e)
	case *op.AccrueFee:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		err := c.fees.Collect(b, e.Pool, e.Now)
		if err == nil && c.metrics != nil {
			c.metrics.FeeAccrualRuns.WithLabelValues(e.Pool).Inc()
		}
		return b, err
	case *op.MintUnbacked:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.ledger.MintUnbackedStablecoin(b, e.Sender, e.Debtor, e.Creditor, e.Amount)
	case *op.SettleBadDebt:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.ledger.SettleSystemBadDebt(b, e.Sender, e.Amount)

	case *op.Liquidate:
		return c.handleLiquidate(e)

	case *op.InitPool:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		_, err := c.pools.Init(e.Sender, e.Pool)
		return b, err
	case *op.SetPoolParam:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.applyPoolParam(e)
	case *op.SetTotalDebtCeiling:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.ledger.SetTotalDebtCeiling(e.Sender, e.Ceiling)
	case *op.GrantRole:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		if !c.table.Has(auth.RoleOwner, e.Sender) {
			return b, fmt.Errorf("%w: grant requires owner role", auth.ErrNotAuthorized)
		}
		c.table.Grant(auth.Role(e.Role), e.Target)
		return b, nil
	case *op.RevokeRole:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		if !c.table.Has(auth.RoleOwner, e.Sender) {
			return b, fmt.Errorf("%w: revoke requires owner role", auth.ErrNotAuthorized)
		}
		c.table.Revoke(auth.Role(e.Role), e.Target)
		return b, nil
	case *op.Pause:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.ledger.Pause(e.Sender)
	case *op.Unpause:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.ledger.Unpause(e.Sender)

	case *op.Cage:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.stop.Cage(e.Sender, e.Now)
	case *op.Uncage:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.ledger.Uncage(e.Sender)
	case *op.CagePool:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		err := c.stop.CagePool(e.Pool)
		if err == nil && c.metrics != nil {
			c.metrics.SettlementPoolsCaged.Inc()
		}
		return b, err
	case *op.AccumulateBadDebt:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		err := c.stop.AccumulateBadDebt(b, e.Pool, e.PositionAddr)
		if err == nil && c.metrics != nil {
			c.metrics.SettlementPositions.WithLabelValues(e.Pool).Inc()
		}
		return b, err
	case *op.RedeemLockedCollateral:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.manager.RedeemLockedCollateral(b, e.Sender, e.PositionID, e.Dst)
	case *op.FinalizeDebt:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.stop.FinalizeDebt()
	case *op.FinalizeCashPrice:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.stop.FinalizeCashPrice(e.Pool)
	case *op.AccumulateStablecoin:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		return b, c.stop.AccumulateStablecoin(b, e.Sender, e.Amount)
	case *op.RedeemStablecoin:
		b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
		err := c.stop.RedeemStablecoin(b, e.Sender, e.Pool, e.Amount)
		if err == nil && c.metrics != nil {
			c.metrics.SettlementRedemptions.WithLabelValues(e.Pool).Inc()
		}
		return b, err

	default:
		return nil, fmt.Errorf("unknown operation type: %T", o)
	}
}

// handlePriceUpdate stores the feed price and refreshes the pool's safety
// margin. Price updates do NOT generate journal entries — they only mutate
// in-memory state, but still get an envelope in the operation log.
func (c *DeterministicCore) handlePriceUpdate(e *op.PriceUpdate) (*journal.Batch, error) {
	b := c.newBatch(e.IdempotencyKey(), e.Timestamp)
	if !c.pools.Has(e.Pool) {
		return nil, fmt.Errorf("price update for unknown pool %s", e.Pool)
	}

	c.feed.Set(e.Pool, e.Price, e.Valid, e.FeedSequence)
	if err := c.pools.Poke(e.Pool); err != nil {
		return nil, err
	}
	return b, nil
}

// handleMovePositionByID resolves both managed positions before delegating.
func (c *DeterministicCore) handleMovePositionByID(e *op.MovePositionByID) (*journal.Batch, error) {
	b := c.newBatch(e.IdempotencyKey(), e.Timestamp)

	srcAddr, err := c.manager.Address(e.SrcID)
	if err != nil {
		return nil, err
	}
	poolID, err := c.manager.Pool(e.SrcID)
	if err != nil {
		return nil, err
	}
	pos := c.ledger.GetPosition(poolID, srcAddr)

	return b, c.manager.MovePosition(b, e.Sender, e.SrcID, e.DstID,
		pos.LockedCollateral, pos.DebtShare)
}

// handleLiquidate runs the liquidation through the pool's strategy.
// The non-flash path pre-validates liquidator funds so a failure leaves no
// partial state. The flash path hands collateral out before repayment, so
// the core snapshots ledger and pool state up front and rolls back if the
// callee or repayment fails.
func (c *DeterministicCore) handleLiquidate(e *op.Liquidate) (*journal.Batch, error) {
	b := c.newBatch(e.IdempotencyKey(), e.Timestamp)

	var ledgerSnap *ledger.State
	var poolSnap *pools.State
	if len(e.Data) > 0 {
		ledgerSnap = c.ledger.Export()
		poolSnap = c.pools.Export()
	}

	res, err := c.liqEngine.Liquidate(b, e.Sender, e.Pool, e.PositionAddr,
		e.DebtShareToRepay, e.CollateralRecipient, e.Data)
	if err != nil {
		if ledgerSnap != nil {
			if rerr := c.ledger.Restore(ledgerSnap); rerr != nil {
				panic(fmt.Sprintf("FATAL: liquidation rollback failed: %v", rerr))
			}
			if rerr := c.pools.Restore(poolSnap); rerr != nil {
				panic(fmt.Sprintf("FATAL: liquidation rollback failed: %v", rerr))
			}
		}
		if c.metrics != nil {
			c.metrics.LiquidationsRejected.WithLabelValues(e.Pool, "rejected").Inc()
		}
		return nil, err
	}

	c.lastLiquidation = &LiquidationRecord{
		Pool:                 e.Pool,
		PositionAddr:         e.PositionAddr,
		Liquidator:           e.Sender,
		DebtShareRepaid:      res.DebtShareRepaid,
		RepaidValue:          res.RepaidValue,
		CollateralLiquidated: res.CollateralLiquidated,
		TreasuryShare:        res.TreasuryShare,
	}

	if c.metrics != nil {
		c.metrics.LiquidationsExecuted.WithLabelValues(e.Pool).Inc()
		repaid, _ := new(big.Float).SetInt(res.RepaidValue).Float64()
		seized, _ := new(big.Float).SetInt(res.CollateralLiquidated).Float64()
		c.metrics.LiquidationRepaid.WithLabelValues(e.Pool).Add(repaid)
		c.metrics.LiquidationSeized.WithLabelValues(e.Pool).Add(seized)
	}
	return b, nil
}

// applyPoolParam routes a governance parameter update to the registry.
func (c *DeterministicCore) applyPoolParam(e *op.SetPoolParam) error {
	switch e.Param {
	case op.ParamDebtCeiling:
		return c.pools.SetDebtCeiling(e.Sender, e.Pool, e.NumValue)
	case op.ParamDebtFloor:
		return c.pools.SetDebtFloor(e.Sender, e.Pool, e.NumValue)
	case op.ParamLiquidationRatio:
		return c.pools.SetLiquidationRatio(e.Sender, e.Pool, e.NumValue)
	case op.ParamStabilityFeeRate:
		return c.pools.SetStabilityFeeRate(e.Sender, e.Pool, e.NumValue)
	case op.ParamAdapter:
		return c.pools.SetAdapter(e.Sender, e.Pool, e.AddrValue)
	case op.ParamStrategy:
		return c.pools.SetStrategy(e.Sender, e.Pool, e.AddrValue)
	case op.ParamCloseFactorBps:
		return c.pools.SetCloseFactorBps(e.Sender, e.Pool, e.BpsValue)
	case op.ParamLiquidatorIncentiveBps:
		return c.pools.SetLiquidatorIncentiveBps(e.Sender, e.Pool, e.BpsValue)
	case op.ParamTreasuryFeesBps:
		return c.pools.SetTreasuryFeesBps(e.Sender, e.Pool, e.BpsValue)
	case op.ParamStableRefPrice:
		return c.pools.SetStableRefPrice(e.Sender, e.NumValue)
	default:
		return fmt.Errorf("unknown pool parameter: %s", e.Param)
	}
}

// computeStateDigest creates canonical bytes for the state hash: the
// batch's entries in order, then the system totals. Entry order within a
// batch is deterministic because domain methods append in program order.
func (c *DeterministicCore) computeStateDigest(batch *journal.Batch) []byte {
	digest := make([]byte, 0, len(batch.Entries)*96+64)

	for _, e := range batch.Entries {
		digest = appendString(digest, e.Dimension)
		digest = appendString(digest, e.Debit)
		digest = appendString(digest, e.Credit)
		digest = appendString(digest, e.Amount.String())
		digest = appendString(digest, e.Kind.String())
	}

	digest = appendString(digest, c.ledger.TotalStablecoinIssued().String())
	digest = appendString(digest, c.ledger.TotalUnbacked().String())

	return digest
}

func appendString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, []byte(s)...)
}

// postCheckInvariants validates conservation after batch application.
// Liquidation and settlement ops get a full check every time; everything
// else is covered by the periodic sweep.
func (c *DeterministicCore) postCheckInvariants(o op.Operation) error {
	switch o.OpType() {
	case op.OpTypeLiquidate, op.OpTypeAccumulateBadDebt, op.OpTypeRedeemStablecoin,
		op.OpTypeAccumulateStablecoin, op.OpTypeRedeemLockedCollateral:
		return c.validator.ValidateAll()
	}

	if c.sequence > 0 && c.sequence%1000 == 0 {
		return c.validator.ValidateAll()
	}

	return nil
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Ledger          *ledger.State
	Pools           *pools.State
	Auth            *auth.State
	Registry        *registry.State
	Prices          map[string]oracle.PriceState
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state from a snapshot.
// On warm restart, load latest snapshot then replay the operation log.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) error {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)

	c.table.Restore(snap.Auth)
	if err := c.pools.Restore(snap.Pools); err != nil {
		return fmt.Errorf("restore pools: %w", err)
	}
	if err := c.ledger.Restore(snap.Ledger); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	c.manager.Restore(snap.Registry)

	for poolID, st := range snap.Prices {
		c.feed.Restore(poolID, st)
	}

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}

	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache, avoiding
// cold-path DB lookups for recently processed operations.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Ledger:          c.ledger.Export(),
		Pools:           c.pools.Export(),
		Auth:            c.table.Export(),
		Registry:        c.manager.Export(),
		Prices:          c.feed.Snapshot(),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}

// Accessors for the query layer and tests. The referenced state is only
// safe to read from the core's own goroutine.

func (c *DeterministicCore) Ledger() *ledger.Ledger { return c.ledger }

func (c *DeterministicCore) Pools() *pools.Registry { return c.pools }

func (c *DeterministicCore) Auth() *auth.Table { return c.table }

func (c *DeterministicCore) Feed() *oracle.PriceBook { return c.feed }

func (c *DeterministicCore) Manager() *registry.Manager { return c.manager }

func (c *DeterministicCore) Settlement() *settlement.Settlement { return c.stop }

func (c *DeterministicCore) Strategy() *liquidation.FixedSpreadStrategy { return c.strategy }

func (c *DeterministicCore) Validator() *ledger.InvariantValidator { return c.validator }
