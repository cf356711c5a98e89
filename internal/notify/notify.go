// Package notify publishes terminal claim transitions to the member
// communication pipeline. Consumers downstream generate the
// explanation-of-benefits messaging; this package only guarantees that
// every closed claim produces exactly one event per terminal transition,
// keyed by claim id for partition ordering.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"medisure/internal/claims/models"
	"medisure/pkg/platform/audit"
)

// TerminalEvent is the wire payload for a terminal claim transition.
type TerminalEvent struct {
	ClaimID          string    `json:"claim_id"`
	MemberID         string    `json:"member_id"`
	InstitutionID    string    `json:"institution_id"`
	BenefitID        string    `json:"benefit_id"`
	Event            string    `json:"event"`
	Status           string    `json:"status"`
	Amount           int64     `json:"amount"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// KafkaNotifier produces terminal events to a single topic.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*KafkaNotifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *KafkaNotifier) { n.logger = logger }
}

func NewKafkaNotifier(brokers []string, topic string, opts ...Option) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	n := &KafkaNotifier{
		client: client,
		topic:  topic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NotifyTerminal publishes one event for a terminal transition. The record
// key is the claim id so all events for one claim land on one partition.
func (n *KafkaNotifier) NotifyTerminal(ctx context.Context, claim *models.Claim, event audit.ClaimEvent) error {
	payload, err := json.Marshal(TerminalEvent{
		ClaimID:          claim.ID.String(),
		MemberID:         claim.MemberID.String(),
		InstitutionID:    claim.InstitutionID.String(),
		BenefitID:        claim.BenefitID.String(),
		Event:            string(event),
		Status:           string(claim.Status),
		Amount:           claim.Amount(),
		PaymentReference: claim.PaymentReference,
		OccurredAt:       time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal terminal event: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(claim.ID.String()),
		Value: payload,
	}
	if err := n.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce terminal event: %w", err)
	}

	n.logger.DebugContext(ctx, "terminal event published",
		"claim_id", claim.ID.String(),
		"event", string(event),
		"topic", n.topic,
	)
	return nil
}

// Close flushes buffered records and releases the client.
func (n *KafkaNotifier) Close(ctx context.Context) error {
	if err := n.client.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush kafka producer: %w", err)
	}
	n.client.Close()
	return nil
}

// NopNotifier discards terminal events. It is the default notifier when no
// broker is configured, keeping the service's publish path unconditional.
type NopNotifier struct{}

func (NopNotifier) NotifyTerminal(context.Context, *models.Claim, audit.ClaimEvent) error {
	return nil
}
