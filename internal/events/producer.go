package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/iierror404/messenger-backend/internal/models"
)

// Publisher feeds persisted messages to downstream consumers (notifications,
// archival). Delivery is best effort; the chat path never depends on it.
type Publisher interface {
	MessageSent(ctx context.Context, msg *models.MessageView)
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.SugaredLogger) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &KafkaPublisher{writer: w, log: log}
}

func (p *KafkaPublisher) MessageSent(ctx context.Context, msg *models.MessageView) {
	value, err := json.Marshal(msg)
	if err != nil {
		p.log.Errorw("marshal message event", "err", err)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ChatID),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		p.log.Errorw("kafka publish", "err", err, "chat_id", msg.ChatID)
	}
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) MessageSent(context.Context, *models.MessageView) {}
func (NopPublisher) Close() error                                     { return nil }
