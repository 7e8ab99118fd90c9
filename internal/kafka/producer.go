package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"health-service/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AlertEvent is the payload published for every persisted alert.
type AlertEvent struct {
	AlertID   int64           `json:"alert_id"`
	MachineID string          `json:"machine_id"`
	Severity  models.Severity `json:"severity"`
	Category  models.Category `json:"category"`
	Message   string          `json:"message"`
	Value     float64         `json:"value"`
	Threshold float64         `json:"threshold"`
	Timestamp time.Time       `json:"timestamp"`
}

// Producer publishes alerts to the alert topic, keyed by machine id so one
// device's events stay in one partition.
type Producer struct {
	writer messageWriter
}

func NewProducer(cfg Config) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Broker),
		Topic:        cfg.AlertTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (p *Producer) Name() string { return "kafka" }

func (p *Producer) Send(ctx context.Context, a models.Alert) error {
	value, err := json.Marshal(AlertEvent{
		AlertID:   a.ID,
		MachineID: a.MachineID,
		Severity:  a.Severity,
		Category:  a.Category,
		Message:   a.Message,
		Value:     a.Value,
		Threshold: a.Threshold,
		Timestamp: a.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert %d: %w", a.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(a.MachineID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "severity", Value: []byte(a.Severity)},
			{Key: "alert_id", Value: []byte(strconv.FormatInt(a.ID, 10))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish alert %d: %w", a.ID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
