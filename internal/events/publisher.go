// Package events announces completed transactions to downstream
// consumers such as notification and reporting services.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-petr/ledger-engine/internal/domain"
	"github.com/segmentio/kafka-go"
)

// TransactionCompleted is the wire event emitted for every COMPLETED
// ledger row.
type TransactionCompleted struct {
	ReferenceNumber     string    `json:"reference_number"`
	Type                string    `json:"type"`
	Amount              string    `json:"amount"`
	SourceAccountNumber string    `json:"source_account_number,omitempty"`
	TargetAccountNumber string    `json:"target_account_number,omitempty"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// KafkaPublisher writes completed-transaction events to a kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns a publisher writing to the given brokers
// and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishCompleted emits a TransactionCompleted event keyed by
// reference number.
func (p *KafkaPublisher) PublishCompleted(ctx context.Context, result domain.TransactionResult) error {
	event := TransactionCompleted{
		ReferenceNumber:     result.ReferenceNumber,
		Type:                string(result.Type),
		Amount:              result.Amount,
		SourceAccountNumber: result.SourceAccountNumber,
		TargetAccountNumber: result.TargetAccountNumber,
		OccurredAt:          result.Timestamp,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(result.ReferenceNumber),
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

// PublishCompleted implements the publisher interface, doing nothing.
func (NopPublisher) PublishCompleted(ctx context.Context, result domain.TransactionResult) error {
	return nil
}
