package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/agriclip/chat-service/internal/models"
)

const (
	EventMessageCreated          = "message.created"
	EventClassificationCompleted = "classification.completed"
	EventClassificationFailed    = "classification.failed"
)

type envelope struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Publisher emits chat events to Kafka. All publishes are
// fire-and-forget: failures are logged, never propagated to the request
// that triggered them. A nil Publisher is valid and publishes nothing.
type Publisher struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewPublisher(brokers []string, topic string, log *zap.SugaredLogger) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Publisher{writer: w, log: log}
}

func (p *Publisher) MessageCreated(ctx context.Context, m *models.Message) {
	p.publish(ctx, m.SessionID, envelope{
		Event:     EventMessageCreated,
		Timestamp: time.Now().UTC(),
		Payload:   m,
	})
}

func (p *Publisher) ClassificationFinished(ctx context.Context, uploadID string, status models.JobStatus, result *models.ClassificationResult) {
	event := EventClassificationCompleted
	if status == models.JobFailed {
		event = EventClassificationFailed
	}
	p.publish(ctx, uploadID, envelope{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Payload: struct {
			UploadID       string                       `json:"uploadId"`
			Status         models.JobStatus             `json:"status"`
			Classification *models.ClassificationResult `json:"classification,omitempty"`
		}{UploadID: uploadID, Status: status, Classification: result},
	})
}

func (p *Publisher) publish(ctx context.Context, key string, ev envelope) {
	if p == nil || p.writer == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		p.log.Warnw("event marshal failed", "event", ev.Event, "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warnw("event publish failed", "event", ev.Event, "error", err)
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
