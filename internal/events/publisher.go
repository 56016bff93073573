// Package events mirrors the audit trail onto Kafka for downstream consumers
// (SIEM ingestion, long-term archival). Mirroring is optional; the service
// runs without a broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/campuscare/clinicdesk/internal/models"
)

type KafkaAuditPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaAuditPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaAuditPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}

	return &KafkaAuditPublisher{
		writer: writer,
		logger: logger,
	}
}

// Publish sends one audit entry to the audit topic, keyed by event type so a
// consumer can partition by category.
func (p *KafkaAuditPublisher) Publish(ctx context.Context, entry *models.AuditLog) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.EventType),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}

	return nil
}

func (p *KafkaAuditPublisher) Close() error {
	return p.writer.Close()
}
