package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds operations
// into the deterministic core via the opChan. JetStream is the primary
// high-throughput ingestion surface; each subject maps to an operation type.
type NATSSubscriber struct {
	js        jetstream.JetStream
	opChan    chan<- RawOp
	consumers []jetstream.ConsumeContext
}

// RawOp is the parsed-but-untyped message from NATS, ready for the shell
// to validate and convert into a typed op.Operation before sending to the core.
type RawOp struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to operation types.
type SubjectConfig struct {
	Subject      string
	OpType       string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration. Each operation
// type has its own subject so producers can scale independently.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "vault.collateral.add.>", OpType: "AddCollateral", ConsumerName: "ledger-coll-add", StreamName: "VAULT_COLLATERAL"},
		{Subject: "vault.collateral.move.>", OpType: "MoveCollateral", ConsumerName: "ledger-coll-move", StreamName: "VAULT_COLLATERAL"},
		{Subject: "vault.stablecoin.move.>", OpType: "MoveStablecoin", ConsumerName: "ledger-stab-move", StreamName: "VAULT_STABLECOIN"},
		{Subject: "vault.stablecoin.allow.>", OpType: "AllowMove", ConsumerName: "ledger-stab-allow", StreamName: "VAULT_STABLECOIN"},
		{Subject: "vault.positions.adjust.>", OpType: "AdjustPosition", ConsumerName: "ledger-pos-adjust", StreamName: "VAULT_POSITIONS"},
		{Subject: "vault.positions.move.>", OpType: "MovePosition", ConsumerName: "ledger-pos-move", StreamName: "VAULT_POSITIONS"},
		{Subject: "vault.manager.open.>", OpType: "OpenPosition", ConsumerName: "ledger-mgr-open", StreamName: "VAULT_MANAGER"},
		{Subject: "vault.manager.adjust.>", OpType: "AdjustPositionByID", ConsumerName: "ledger-mgr-adjust", StreamName: "VAULT_MANAGER"},
		{Subject: "vault.manager.give.>", OpType: "GivePosition", ConsumerName: "ledger-mgr-give", StreamName: "VAULT_MANAGER"},
		{Subject: "vault.manager.allow_manage.>", OpType: "AllowManage", ConsumerName: "ledger-mgr-allow", StreamName: "VAULT_MANAGER"},
		{Subject: "vault.manager.allow_migrate.>", OpType: "AllowMigrate", ConsumerName: "ledger-mgr-migrate", StreamName: "VAULT_MANAGER"},
		{Subject: "vault.manager.move_collateral.>", OpType: "MoveCollateralByID", ConsumerName: "ledger-mgr-mvcoll", StreamName: "VAULT_MANAGER"},
		{Subject: "vault.manager.move_stablecoin.>", OpType: "MoveStablecoinByID", ConsumerName: "ledger-mgr-mvstab", StreamName: "VAULT_MANAGER"},
		{Subject: "vault.manager.export.>", OpType: "ExportPosition", ConsumerName: "ledger-mgr-export", StreamName: "VAULT_MANAGER"},
		{Subject: "vault.manager.import.>", OpType: "ImportPosition", ConsumerName: "ledger-mgr-import", StreamName: "VAULT_MANAGER"},
		{Subject: "vault.manager.move_position.>", OpType: "MovePositionByID", ConsumerName: "ledger-mgr-mvpos", StreamName: "VAULT_MANAGER"},
		{Subject: "vault.prices.>", OpType: "PriceUpdate", ConsumerName: "ledger-prices", StreamName: "VAULT_PRICES"},
		{Subject: "vault.fees.accrue.>", OpType: "AccrueFee", ConsumerName: "ledger-fees", StreamName: "VAULT_FEES"},
		{Subject: "vault.debt.mint.>", OpType: "MintUnbacked", ConsumerName: "ledger-debt-mint", StreamName: "VAULT_DEBT"},
		{Subject: "vault.debt.settle.>", OpType: "SettleBadDebt", ConsumerName: "ledger-debt-settle", StreamName: "VAULT_DEBT"},
		{Subject: "vault.liquidation.execute.>", OpType: "Liquidate", ConsumerName: "ledger-liq", StreamName: "VAULT_LIQUIDATION"},
		{Subject: "vault.admin.init_pool.>", OpType: "InitPool", ConsumerName: "ledger-admin-init", StreamName: "VAULT_ADMIN"},
		{Subject: "vault.admin.pool_param.>", OpType: "SetPoolParam", ConsumerName: "ledger-admin-param", StreamName: "VAULT_ADMIN"},
		{Subject: "vault.admin.total_ceiling", OpType: "SetTotalDebtCeiling", ConsumerName: "ledger-admin-ceiling", StreamName: "VAULT_ADMIN"},
		{Subject: "vault.admin.grant.>", OpType: "GrantRole", ConsumerName: "ledger-admin-grant", StreamName: "VAULT_ADMIN"},
		{Subject: "vault.admin.revoke.>", OpType: "RevokeRole", ConsumerName: "ledger-admin-revoke", StreamName: "VAULT_ADMIN"},
		{Subject: "vault.admin.pause", OpType: "Pause", ConsumerName: "ledger-admin-pause", StreamName: "VAULT_ADMIN"},
		{Subject: "vault.admin.unpause", OpType: "Unpause", ConsumerName: "ledger-admin-unpause", StreamName: "VAULT_ADMIN"},
		{Subject: "vault.admin.uncage", OpType: "Uncage", ConsumerName: "ledger-admin-uncage", StreamName: "VAULT_ADMIN"},
		{Subject: "vault.settlement.cage", OpType: "Cage", ConsumerName: "ledger-settle-cage", StreamName: "VAULT_SETTLEMENT"},
		{Subject: "vault.settlement.cage_pool.>", OpType: "CagePool", ConsumerName: "ledger-settle-cagepool", StreamName: "VAULT_SETTLEMENT"},
		{Subject: "vault.settlement.strip.>", OpType: "AccumulateBadDebt", ConsumerName: "ledger-settle-strip", StreamName: "VAULT_SETTLEMENT"},
		{Subject: "vault.settlement.redeem_locked.>", OpType: "RedeemLockedCollateral", ConsumerName: "ledger-settle-redeemlock", StreamName: "VAULT_SETTLEMENT"},
		{Subject: "vault.settlement.finalize_debt", OpType: "FinalizeDebt", ConsumerName: "ledger-settle-findebt", StreamName: "VAULT_SETTLEMENT"},
		{Subject: "vault.settlement.cash_price.>", OpType: "FinalizeCashPrice", ConsumerName: "ledger-settle-cashprice", StreamName: "VAULT_SETTLEMENT"},
		{Subject: "vault.settlement.pack.>", OpType: "AccumulateStablecoin", ConsumerName: "ledger-settle-pack", StreamName: "VAULT_SETTLEMENT"},
		{Subject: "vault.settlement.cash.>", OpType: "RedeemStablecoin", ConsumerName: "ledger-settle-cash", StreamName: "VAULT_SETTLEMENT"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, opChan chan<- RawOp) *NATSSubscriber {
	return &NATSSubscriber{
		js:     js,
		opChan: opChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawOp{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.opChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "VAULT_COLLATERAL",
			Subjects:  []string{"vault.collateral.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "VAULT_STABLECOIN",
			Subjects:  []string{"vault.stablecoin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "VAULT_POSITIONS",
			Subjects:  []string{"vault.positions.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "VAULT_MANAGER",
			Subjects:  []string{"vault.manager.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "VAULT_PRICES",
			Subjects:  []string{"vault.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "VAULT_FEES",
			Subjects:  []string{"vault.fees.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "VAULT_DEBT",
			Subjects:  []string{"vault.debt.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "VAULT_LIQUIDATION",
			Subjects:  []string{"vault.liquidation.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "VAULT_ADMIN",
			Subjects:  []string{"vault.admin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "VAULT_SETTLEMENT",
			Subjects:  []string{"vault.settlement.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
