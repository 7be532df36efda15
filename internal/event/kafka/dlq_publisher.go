package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DLQPublisher публикует необрабатываемые сообщения в Dead Letter Queue
type DLQPublisher struct {
	logger *zap.Logger
	writer *kafka.Writer
}

// NewDLQPublisher создаёт новый DLQ publisher
func NewDLQPublisher(logger *zap.Logger, brokers []string, topic string) *DLQPublisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &DLQPublisher{
		logger: logger,
		writer: writer,
	}
}

// DLQMessage представляет сообщение для DLQ
type DLQMessage struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int       `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	FailedAt          time.Time `json:"failed_at"`
	EventType         string    `json:"event_type,omitempty"`
	ProductID         string    `json:"product_id,omitempty"`
}

// Publish публикует сообщение в DLQ
// productID используется как ключ сообщения, если известен
func (p *DLQPublisher) Publish(ctx context.Context, originalMessage kafka.Message, originalErr error, eventType, productID string) error {
	errorMsg := ""
	if originalErr != nil {
		errorMsg = originalErr.Error()
	}

	dlqMsg := DLQMessage{
		OriginalTopic:     originalMessage.Topic,
		OriginalPartition: originalMessage.Partition,
		OriginalOffset:    originalMessage.Offset,
		OriginalKey:       string(originalMessage.Key),
		OriginalValue:     string(originalMessage.Value),
		ErrorMessage:      errorMsg,
		FailedAt:          time.Now().UTC(),
		EventType:         eventType,
		ProductID:         productID,
	}

	payload, err := json.Marshal(dlqMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	key := originalMessage.Key
	if productID != "" {
		key = []byte(productID)
	}

	if writeErr := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: payload}); writeErr != nil {
		p.logger.Error("failed to publish message to DLQ",
			zap.Error(writeErr),
			zap.String("original_topic", originalMessage.Topic),
			zap.Int("original_partition", originalMessage.Partition),
			zap.Int64("original_offset", originalMessage.Offset),
		)
		return writeErr
	}

	p.logger.Info("message published to DLQ",
		zap.String("original_topic", originalMessage.Topic),
		zap.Int("original_partition", originalMessage.Partition),
		zap.Int64("original_offset", originalMessage.Offset),
		zap.String("error_message", errorMsg),
	)

	return nil
}

// Close закрывает writer
func (p *DLQPublisher) Close() error {
	p.logger.Info("closing DLQ publisher")
	return p.writer.Close()
}
