package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// OutboundPublisher publishes processed operations to NATS for downstream
// consumers. Outbound messages are published after persistence is confirmed.
// Subjects follow the pattern: vault.ledger.ops.{op_type}
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableOp
}

// PublishableOp is a processed operation ready for outbound publishing.
type PublishableOp struct {
	Sequence       int64       `json:"sequence"`
	OpType         string      `json:"op_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	PoolID         *string     `json:"pool_id,omitempty"`
	Payload        interface{} `json:"payload"`
	StateHash      []byte      `json:"state_hash"`
	Timestamp      time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableOp) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop, publishing to
// vault.ledger.ops.{op_type}.{pool_id}.
func (p *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case o, ok := <-p.inputChan:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, o); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", o.Sequence, err)
				// Non-fatal: downstream consumers can query the op log directly
			}
		}
	}
}

func (p *OutboundPublisher) publish(ctx context.Context, o PublishableOp) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal op: %w", err)
	}

	subject := fmt.Sprintf("vault.ledger.ops.%s", o.OpType)
	if o.PoolID != nil {
		subject = fmt.Sprintf("%s.%s", subject, *o.PoolID)
	}

	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound ops stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "VAULT_LEDGER_OPS",
		Subjects:  []string{"vault.ledger.ops.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream VAULT_LEDGER_OPS")
	return nil
}
