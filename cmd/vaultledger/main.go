package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VaultLedger/internal/config"
	"VaultLedger/internal/core"
	"VaultLedger/internal/ingestion"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/op"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/projection"
	"VaultLedger/internal/query"
	"VaultLedger/internal/server"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "vaultledger.toml", "path to TOML config file")
	flag.Parse()

	log := observability.NewLogger("main")
	log.Info().Msg("vaultledger starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.Persistence.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}
	log.Info().Msg("migrations applied")

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: load snapshot + replay op log ---
	startSequence := int64(0)

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("load snapshot")
	}
	if snap != nil {
		startSequence = snap.Sequence + 1
		log.Info().Int64("sequence", snap.Sequence).Msg("loaded snapshot")
	} else {
		log.Info().Msg("no snapshot found, cold start from sequence 0")
	}

	// --- Channels ---
	// Persist channel blocks (backpressure); projection channel drops.
	persistCoreChan := make(chan core.CoreOutput, cfg.Core.PersistChanSize)
	projectionCoreChan := make(chan core.CoreOutput, cfg.Core.ProjectionChanSize)

	// Bridge channels keep the workers free of core imports.
	persistWorkerChan := make(chan persistence.CoreOutput, cfg.Core.PersistChanSize)
	projectionWorkerChan := make(chan projection.Output, cfg.Core.ProjectionChanSize)

	dbChecker := persistence.NewPostgresIdempotencyChecker(db)
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	ids := core.Identities{
		Owner:        config.Address(cfg.Identities.Owner),
		DebtEngine:   config.Address(cfg.Identities.DebtEngine),
		FeeCollector: config.Address(cfg.Identities.FeeCollector),
		Treasury:     config.Address(cfg.Identities.Treasury),
		Strategy:     config.Address(cfg.Identities.Strategy),
		Settlement:   config.Address(cfg.Identities.Settlement),
		Manager:      config.Address(cfg.Identities.Manager),
	}

	deterministicCore := core.NewDeterministicCore(
		startSequence,
		ids,
		persistCoreChan,
		projectionCoreChan,
		dbChecker,
		metrics,
	)

	if snap != nil {
		if err := restoreStateFromSnapshot(deterministicCore, snap); err != nil {
			log.Fatal().Err(err).Msg("snapshot restore")
		}
		log.Info().Int64("sequence", snap.Sequence).Msg("restored in-memory state from snapshot")

		if len(snap.IdempotencyKeys) > 0 {
			log.Info().Int("keys", len(snap.IdempotencyKeys)).Msg("warming idempotency LRU from snapshot")
			deterministicCore.WarmLRU(snap.IdempotencyKeys)
		}
	}

	healthChecker.SetStage(observability.StageReplayingOpLog)
	replayCount, err := replayOpsFromLog(ctx, log, snapMgr, deterministicCore, startSequence)
	if err != nil {
		log.Fatal().Err(err).Msg("op replay")
	}
	if replayCount > 0 {
		log.Info().
			Int64("replayed", replayCount).
			Int64("sequence", deterministicCore.GetSequence()).
			Msg("op log replayed")
	}

	// After a clean restore with nothing to replay, the chain tip must match
	// the stored snapshot hash exactly.
	if snap != nil && replayCount == 0 {
		var expected [32]byte
		copy(expected[:], snap.StateHash)
		if actual := deterministicCore.GetStateHash(); actual != expected {
			log.Fatal().
				Hex("expected", expected[:]).
				Hex("actual", actual[:]).
				Msg("state hash mismatch after restore")
		}
		log.Info().Msg("state hash verified after snapshot restore")
	}

	// --- NATS ---
	healthChecker.SetStage(observability.StageConnectingNATS)
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	log.Info().Str("url", cfg.NATS.URL).Msg("nats connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure nats streams")
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure outbound stream")
	}

	rawOpChan := make(chan ingestion.RawOp, 4096)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawOpChan)
	if err := natsSubscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe")
	}

	publishChan := make(chan ingestion.PublishableOp, 4096)
	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan)

	// --- Services ---
	queryService := query.NewQueryService(db)
	adminOpChan := make(chan op.Operation, 256)
	adminIngest := ingestion.NewAdminIngestService(adminOpChan)

	httpServer := server.New(cfg.Server.HTTPAddr, &server.Deps{
		DB:            db,
		QueryService:  queryService,
		AdminIngest:   adminIngest,
		SnapshotMgr:   snapMgr,
		HealthChecker: healthChecker,
		StartTime:     time.Now(),
	})

	// --- Goroutines ---
	errChan := make(chan error, 10)

	persistWorker := persistence.NewWorker(db, persistWorkerChan, cfg.Persistence.BatchSize, cfg.FlushTimeout(), metrics)
	go func() {
		errChan <- persistWorker.Run(ctx)
	}()

	projWorker := projection.NewWorker(db, projectionWorkerChan)
	go func() {
		errChan <- projWorker.Run(ctx)
	}()

	go func() {
		errChan <- outboundPublisher.Run(ctx)
	}()

	go bridgeCoreOutputs(ctx, persistCoreChan, projectionCoreChan, persistWorkerChan, projectionWorkerChan, publishChan)

	go runIngestionLoop(ctx, log, rawOpChan, adminOpChan, deterministicCore)

	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	go runPeriodicSnapshots(ctx, log, deterministicCore, snapMgr, cfg.Core.SnapshotInterval, metrics)

	go func() {
		errChan <- runMetricsServer(ctx, log, cfg.Server.MetricsAddr)
	}()

	healthChecker.SetReady(true)
	log.Info().
		Int64("sequence", startSequence).
		Str("http", cfg.Server.HTTPAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Msg("vaultledger ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	cancel()
	natsSubscriber.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	close(persistWorkerChan)
	close(projectionWorkerChan)
	close(publishChan)

	if err := takeSnapshot(shutdownCtx, deterministicCore, snapMgr, metrics); err != nil {
		log.Error().Err(err).Msg("final snapshot")
	} else {
		log.Info().Msg("final snapshot saved")
	}

	log.Info().Msg("vaultledger shutdown complete")
}

// bridgeCoreOutputs converts core.CoreOutput into the persistence, projection,
// and outbound publisher shapes. The indirection avoids import cycles between
// core and the workers.
func bridgeCoreOutputs(
	ctx context.Context,
	persistIn <-chan core.CoreOutput,
	projectionIn <-chan core.CoreOutput,
	persistOut chan<- persistence.CoreOutput,
	projectionOut chan<- projection.Output,
	publishOut chan<- ingestion.PublishableOp,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-persistIn:
			if !ok {
				return
			}

			env := output.Envelope
			pOutput := persistence.CoreOutput{
				OpRow: persistence.OpRow{
					Sequence:       env.Sequence,
					OpType:         env.OpType.String(),
					IdempotencyKey: env.IdempotencyKey,
					PoolID:         env.PoolID,
					Payload:        env.Payload,
					StateHash:      env.StateHash[:],
					PrevHash:       env.PrevHash[:],
					Timestamp:      env.Timestamp,
					SourceSequence: env.SourceSequence,
				},
			}

			if output.Batch != nil {
				for _, e := range output.Batch.Entries {
					pOutput.EntryRows = append(pOutput.EntryRows, persistence.EntryRow{
						EntryID:       e.EntryID.String(),
						BatchID:       e.BatchID.String(),
						OpRef:         e.OpRef,
						Sequence:      e.Sequence,
						DebitAccount:  e.Debit,
						CreditAccount: e.Credit,
						Dimension:     e.Dimension,
						Amount:        e.Amount.String(),
						Kind:          int32(e.Kind),
						Timestamp:     e.Timestamp,
					})
				}
			}

			persistOut <- pOutput

			select {
			case publishOut <- ingestion.PublishableOp{
				Sequence:       env.Sequence,
				OpType:         env.OpType.String(),
				IdempotencyKey: env.IdempotencyKey,
				PoolID:         env.PoolID,
				Payload:        json.RawMessage(env.Payload),
				StateHash:      env.StateHash[:],
				Timestamp:      env.Timestamp,
			}:
			default:
				// Outbound publishing is best-effort; drop when full.
			}

		case output, ok := <-projectionIn:
			if !ok {
				return
			}

			env := output.Envelope
			pOutput := projection.Output{
				Sequence:  env.Sequence,
				OpType:    env.OpType.String(),
				OpRef:     env.IdempotencyKey,
				PoolID:    env.PoolID,
				Timestamp: env.Timestamp.UnixMicro(),
			}

			if liq := output.Liquidation; liq != nil {
				pOutput.Liquidation = &projection.LiquidationRecord{
					Pool:                 liq.Pool,
					PositionAddr:         liq.PositionAddr,
					Liquidator:           liq.Liquidator,
					DebtShareRepaid:      liq.DebtShareRepaid.String(),
					RepaidValue:          liq.RepaidValue.String(),
					CollateralLiquidated: liq.CollateralLiquidated.String(),
					TreasuryShare:        liq.TreasuryShare.String(),
				}
			}

			if output.Batch != nil {
				for _, e := range output.Batch.Entries {
					pOutput.Entries = append(pOutput.Entries, projection.Entry{
						DebitAccount:  e.Debit,
						CreditAccount: e.Credit,
						Dimension:     e.Dimension,
						Amount:        e.Amount.String(),
						Kind:          int32(e.Kind),
					})
				}
			}

			select {
			case projectionOut <- pOutput:
			default:
				// Dropped — projections rebuild from the op log.
			}
		}
	}
}

// runIngestionLoop feeds the core from NATS and from the admin HTTP ingest
// channel. Messages are acked after the parse step, not after core
// processing: backpressure propagates through channel blocking instead of
// AckWait expiry.
func runIngestionLoop(
	ctx context.Context,
	log zerolog.Logger,
	rawChan <-chan ingestion.RawOp,
	adminChan <-chan op.Operation,
	deterministicCore *core.DeterministicCore,
) {
	subjectToType := make(map[string]string)
	for _, sc := range ingestion.DefaultSubjects() {
		prefix := sc.Subject
		if len(prefix) > 2 && prefix[len(prefix)-2:] == ".>" {
			prefix = prefix[:len(prefix)-2]
		}
		subjectToType[prefix] = sc.OpType
	}

	typedOpChan := make(chan op.Operation, 4096)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-rawChan:
				if !ok {
					close(typedOpChan)
					return
				}

				opType := resolveOpType(raw.Subject, subjectToType)
				if opType == "" {
					log.Warn().Str("subject", raw.Subject).Msg("unknown nats subject")
					raw.AckFunc()
					continue
				}

				o, err := ingestion.ParseRawOp(raw, opType)
				if err != nil {
					log.Warn().Err(err).Str("subject", raw.Subject).Msg("parse op failed")
					raw.AckFunc()
					continue
				}

				select {
				case typedOpChan <- o:
					raw.AckFunc()
				case <-ctx.Done():
					raw.NakFunc()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-typedOpChan:
			if !ok {
				return
			}
			if err := deterministicCore.ProcessOp(o); err != nil {
				log.Error().
					Err(err).
					Str("op_type", o.OpType().String()).
					Str("key", o.IdempotencyKey()).
					Msg("core rejected op")
			}
		case o, ok := <-adminChan:
			if !ok {
				return
			}
			if err := deterministicCore.ProcessOp(o); err != nil {
				log.Error().
					Err(err).
					Str("op_type", o.OpType().String()).
					Str("key", o.IdempotencyKey()).
					Msg("core rejected admin op")
			}
		}
	}
}

// resolveOpType finds the op type for a NATS subject by longest prefix match.
func resolveOpType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, opType := range prefixMap {
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			if len(prefix) > len(bestMatch) {
				bestMatch = prefix
				bestType = opType
			}
		}
	}
	return bestType
}

// --- Snapshot restore & replay ---

func restoreStateFromSnapshot(deterministicCore *core.DeterministicCore, snap *persistence.SnapshotData) error {
	var coreSnap core.SnapshotState
	if err := json.Unmarshal(snap.State, &coreSnap); err != nil {
		return fmt.Errorf("decode snapshot state: %w", err)
	}

	// Top-level columns are authoritative over the serialized blob.
	coreSnap.Sequence = snap.Sequence
	coreSnap.SequenceState = snap.SequenceState
	coreSnap.IdempotencyKeys = snap.IdempotencyKeys
	copy(coreSnap.StateHash[:], snap.StateHash)

	return deterministicCore.RestoreFromSnapshot(&coreSnap)
}

// replayOpsFromLog re-applies logged operations from fromSequence to head.
// Used for warm restart (snapshot + tail) and cold restart (full log).
func replayOpsFromLog(
	ctx context.Context,
	log zerolog.Logger,
	snapMgr *persistence.SnapshotManager,
	deterministicCore *core.DeterministicCore,
	fromSequence int64,
) (int64, error) {
	const batchSize = 1000
	var totalReplayed int64

	for {
		rows, err := snapMgr.LoadOpsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return totalReplayed, fmt.Errorf("load ops from seq %d: %w", fromSequence, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			o, ok := op.NewByType(row.OpType)
			if !ok {
				return totalReplayed, fmt.Errorf("unknown op type %q at seq %d", row.OpType, row.Sequence)
			}
			if err := json.Unmarshal(row.Payload, o); err != nil {
				return totalReplayed, fmt.Errorf("decode op at seq %d: %w", row.Sequence, err)
			}

			if err := deterministicCore.ReplayOp(o); err != nil {
				// Duplicates within the replay window are expected; anything
				// else means the log and the snapshot disagree.
				log.Debug().Err(err).Int64("sequence", row.Sequence).Msg("replay skip")
			}
			totalReplayed++
		}

		fromSequence = rows[len(rows)-1].Sequence + 1
	}

	return totalReplayed, nil
}

// --- Snapshots ---

func runPeriodicSnapshots(
	ctx context.Context,
	log zerolog.Logger,
	deterministicCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	metrics *observability.Metrics,
) {
	if interval <= 0 {
		interval = 100_000
	}

	lastSnapshotSeq := deterministicCore.GetSequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := deterministicCore.GetSequence()
			if currentSeq-lastSnapshotSeq >= interval {
				if err := takeSnapshot(ctx, deterministicCore, snapMgr, metrics); err != nil {
					log.Warn().Err(err).Msg("periodic snapshot failed")
				} else {
					lastSnapshotSeq = currentSeq
					log.Info().Int64("sequence", currentSeq).Msg("periodic snapshot")
				}
			}
		}
	}
}

func takeSnapshot(
	ctx context.Context,
	deterministicCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	coreSnap := deterministicCore.CreateSnapshotState()
	if coreSnap.Sequence < 0 {
		// Nothing processed yet.
		return nil
	}
	state, err := json.Marshal(coreSnap)
	if err != nil {
		return fmt.Errorf("encode snapshot state: %w", err)
	}

	snapData := &persistence.SnapshotData{
		Sequence:        coreSnap.Sequence,
		StateHash:       coreSnap.StateHash[:],
		State:           state,
		SequenceState:   coreSnap.SequenceState,
		IdempotencyKeys: coreSnap.IdempotencyKeys,
		CreatedAt:       time.Now(),
	}

	if err := snapMgr.SaveSnapshot(ctx, snapData); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Just captured from live state, so mark verified immediately.
	if err := snapMgr.MarkVerified(ctx, snapData.Sequence); err != nil {
		return fmt.Errorf("mark snapshot verified: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snapData.Sequence))
	}

	return nil
}

func runMetricsServer(ctx context.Context, log zerolog.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
