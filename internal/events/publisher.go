// Package events publishes integrity verdicts to Kafka so downstream
// consumers (approval workflows, accounting sync) can react to them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/config"
	"github.com/facturaIA/invoice-integrity-service/internal/logging"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

// Event types
const (
	TypeInvoiceValidated   = "invoice.validated"
	TypeInvoiceDuplication = "invoice.duplication"
)

// Event is the envelope written as the message value
type Event struct {
	ID         string          `json:"event_id"`
	Type       string          `json:"type"`
	Tenant     string          `json:"tenant,omitempty"`
	InvoiceID  string          `json:"invoice_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher emits integrity verdicts
type Publisher interface {
	PublishValidation(ctx context.Context, tenant string, report *models.ValidationReport) error
	PublishDuplication(ctx context.Context, tenant string, result *models.DuplicateAnalysisResult) error
	Close() error
}

// Writer abstracts kafka.Writer for testing
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per verdict, keyed by invoice id so all
// events for an invoice land on the same partition
type KafkaPublisher struct {
	writer           Writer
	validationTopic  string
	duplicationTopic string
	timeout          time.Duration
	logger           logging.Logger
	now              func() time.Time
}

// NewKafkaPublisher builds a publisher over a kafka.Writer for cfg.Brokers
func NewKafkaPublisher(cfg config.KafkaConfig, logger logging.Logger) (*KafkaPublisher, error) {
	if !cfg.Enabled() {
		return nil, apperrors.ConfigInvalid("kafka brokers are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
	}
	return NewPublisherWithWriter(w, cfg, logger), nil
}

// NewPublisherWithWriter is NewKafkaPublisher over an existing writer
func NewPublisherWithWriter(w Writer, cfg config.KafkaConfig, logger logging.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:           w,
		validationTopic:  cfg.ValidationTopic,
		duplicationTopic: cfg.DuplicationTopic,
		timeout:          cfg.WriteTimeout,
		logger:           logger,
		now:              time.Now,
	}
}

func (p *KafkaPublisher) PublishValidation(ctx context.Context, tenant string, report *models.ValidationReport) error {
	return p.publish(ctx, p.validationTopic, TypeInvoiceValidated, tenant, report.InvoiceID, report)
}

func (p *KafkaPublisher) PublishDuplication(ctx context.Context, tenant string, result *models.DuplicateAnalysisResult) error {
	return p.publish(ctx, p.duplicationTopic, TypeInvoiceDuplication, tenant, result.InvoiceID, result)
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, eventType, tenant, invoiceID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode event payload")
	}
	evt := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Tenant:     tenant,
		InvoiceID:  invoiceID,
		OccurredAt: p.now().UTC(),
		Payload:    body,
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode event")
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(invoiceID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "event_id", Value: []byte(evt.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("event publish failed",
			logging.String("topic", topic),
			logging.String("invoice_id", invoiceID),
			logging.Err(err))
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "failed to publish "+eventType)
	}

	p.logger.Debug("event published",
		logging.String("topic", topic),
		logging.String("event_id", evt.ID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishValidation(context.Context, string, *models.ValidationReport) error {
	return nil
}

func (NopPublisher) PublishDuplication(context.Context, string, *models.DuplicateAnalysisResult) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
