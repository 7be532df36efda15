package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/service"
)

// LowStockConsumer обрабатывает события inventory.low_stock из Kafka
// и запускает создание flash sale промоакций
type LowStockConsumer struct {
	logger       *zap.Logger
	reader       *kafka.Reader
	service      *service.LowStockPromotionService
	dlqPublisher *DLQPublisher
	maxAttempts  int
	backoffBase  time.Duration
}

// NewLowStockConsumer создаёт новый consumer для событий низкого остатка
func NewLowStockConsumer(
	logger *zap.Logger,
	brokers []string,
	groupID, topic string,
	svc *service.LowStockPromotionService,
	dlqPublisher *DLQPublisher,
	maxAttempts int,
	backoffBase time.Duration,
) *LowStockConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &LowStockConsumer{
		logger:       logger,
		reader:       reader,
		service:      svc,
		dlqPublisher: dlqPublisher,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBase,
	}
}

// Start запускает consumer и начинает обработку сообщений
// At-least-once семантика: FetchMessage + CommitMessages после успешной обработки.
// При ошибке обработки offset не коммитится до исчерпания retry и записи в DLQ
func (c *LowStockConsumer) Start(ctx context.Context) error {
	c.logger.Info("starting low stock kafka consumer",
		zap.String("topic", c.reader.Config().Topic),
		zap.String("group_id", c.reader.Config().GroupID),
		zap.Int("max_retry_attempts", c.maxAttempts),
		zap.Duration("retry_backoff_base", c.backoffBase),
	)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer context cancelled, stopping")
				return nil
			}
			c.logger.Error("failed to fetch message from kafka", zap.Error(err))
			continue
		}

		shouldCommit := c.processMessage(ctx, m)

		if shouldCommit {
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				c.logger.Error("failed to commit message offset",
					zap.Error(err),
					zap.String("topic", m.Topic),
					zap.Int("partition", m.Partition),
					zap.Int64("offset", m.Offset),
				)
				continue
			}
		}
	}
}

// processMessage обрабатывает одно сообщение из Kafka
// Возвращает true, если нужно закоммитить offset
func (c *LowStockConsumer) processMessage(ctx context.Context, m kafka.Message) bool {
	event, err := parseLowStockEvent(m.Value)
	if err != nil {
		c.logger.Error("failed to parse low stock event",
			zap.Error(err),
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		// Битое сообщение retry не спасёт - сразу в DLQ и коммитим
		if dlqErr := c.dlqPublisher.Publish(context.Background(), m, err, "inventory.low_stock", ""); dlqErr != nil {
			c.logger.Error("failed to publish to DLQ, not committing", zap.Error(dlqErr))
			return false
		}
		return true
	}

	c.logger.Info("received low stock event",
		zap.String("product_id", event.ProductID),
		zap.Int("stock", event.Stock),
		zap.Int("threshold", event.Threshold),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)

	if !c.handleWithRetry(ctx, event) {
		c.logger.Error("failed to handle low stock event after all retries, sending to DLQ",
			zap.String("product_id", event.ProductID),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		dlqErr := fmt.Errorf("exhausted all retry attempts")
		if err := c.dlqPublisher.Publish(context.Background(), m, dlqErr, "inventory.low_stock", event.ProductID); err != nil {
			c.logger.Error("failed to publish to DLQ, not committing", zap.Error(err))
			return false
		}
		return true
	}

	return true
}

// handleWithRetry вызывает политику с bounded retry и экспоненциальным backoff
func (c *LowStockConsumer) handleWithRetry(ctx context.Context, event service.LowStockEvent) bool {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.backoffBase * time.Duration(1<<uint(attempt-2))
			c.logger.Info("retrying low stock event",
				zap.String("product_id", event.ProductID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
		}

		_, _, err := c.service.CreateLowStockPromotion(ctx, event)
		if err == nil {
			return true
		}

		lastErr = err
		c.logger.Warn("failed to handle low stock event",
			zap.Error(err),
			zap.String("product_id", event.ProductID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
		)
	}

	c.logger.Error("exhausted all retry attempts",
		zap.Error(lastErr),
		zap.String("product_id", event.ProductID),
	)

	return false
}

// lowStockPayload - wire-формат события inventory.low_stock
type lowStockPayload struct {
	EventType  string `json:"eventType"`
	ProductID  string `json:"productId"`
	Stock      int    `json:"stock"`
	Threshold  int    `json:"threshold"`
	OccurredAt string `json:"occurredAt"`
}

// parseLowStockEvent разбирает JSON входящего события и валидирует обязательные поля
func parseLowStockEvent(value []byte) (service.LowStockEvent, error) {
	var payload lowStockPayload
	if err := json.Unmarshal(value, &payload); err != nil {
		return service.LowStockEvent{}, err
	}

	if payload.ProductID == "" {
		return service.LowStockEvent{}, &ParseError{Field: "productId", Message: "productId is required"}
	}

	// occurredAt входит в idempotency ключ: без него все события товара
	// склеились бы в один ключ и настоящие повторные триггеры терялись бы
	if payload.OccurredAt == "" {
		return service.LowStockEvent{}, &ParseError{Field: "occurredAt", Message: "occurredAt is required"}
	}
	occurredAt, err := time.Parse(time.RFC3339, payload.OccurredAt)
	if err != nil {
		return service.LowStockEvent{}, &ParseError{Field: "occurredAt", Message: "occurredAt must be RFC3339"}
	}

	return service.LowStockEvent{
		EventType:  payload.EventType,
		ProductID:  payload.ProductID,
		Stock:      payload.Stock,
		Threshold:  payload.Threshold,
		OccurredAt: occurredAt,
	}, nil
}

// Close закрывает Kafka reader
func (c *LowStockConsumer) Close() error {
	c.logger.Info("closing low stock kafka consumer")
	return c.reader.Close()
}
