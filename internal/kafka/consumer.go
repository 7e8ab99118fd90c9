package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"health-service/internal/health"
	"health-service/internal/logging"
	"health-service/internal/models"
)

type Config struct {
	Broker         string
	TelemetryTopic string
	AlertTopic     string
	GroupID        string
}

// Submitter is the ingestion entry point the consumer feeds.
type Submitter interface {
	Submit(ctx context.Context, sub models.HealthSubmission, source string) (models.Submission, error)
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads health submissions from the telemetry topic.
type Consumer struct {
	reader messageReader
	svc    Submitter
	logger *logging.Logger
}

func NewConsumer(cfg Config, svc Submitter, logger *logging.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Broker},
		GroupID:     cfg.GroupID,
		Topic:       cfg.TelemetryTopic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
	})
	return &Consumer{reader: r, svc: svc, logger: logger}
}

func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Kafka telemetry consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					c.logger.Info("Kafka telemetry consumer stopped")
					return
				}
				c.logger.Errorf("Fetch message failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			// Offsets only move past a message once it is stored or rejected.
			for !c.handle(ctx, msg) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
				}
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
			}
		}
	}()
}

// handle processes one message and reports whether its offset may be committed.
// Malformed or invalid messages are committed and skipped.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	var sub models.HealthSubmission
	if err := json.Unmarshal(msg.Value, &sub); err != nil {
		c.logger.Errorf("Unmarshal message at offset %d failed: %v", msg.Offset, err)
		return true
	}
	if _, err := c.svc.Submit(ctx, sub, "kafka"); err != nil {
		if errors.Is(err, health.ErrInvalidInput) {
			c.logger.Warnf("Invalid message at offset %d: %v", msg.Offset, err)
			return true
		}
		c.logger.WithDevice(sub.MachineID).Errorf("Submission failed: %v", err)
		return false
	}
	return true
}

func (c *Consumer) Close() {
	err := c.reader.Close()
	if err != nil {
		c.logger.Warnf("Kafka reader close: %v", err)
	}
}
