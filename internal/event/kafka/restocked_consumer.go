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

// RestockedConsumer обрабатывает события inventory.restocked из Kafka
// и завершает автоматические flash sale промоакции
type RestockedConsumer struct {
	logger       *zap.Logger
	reader       *kafka.Reader
	service      *service.RestockPromotionService
	dlqPublisher *DLQPublisher
	maxAttempts  int
	backoffBase  time.Duration
}

// NewRestockedConsumer создаёт новый consumer для событий пополнения склада
func NewRestockedConsumer(
	logger *zap.Logger,
	brokers []string,
	groupID, topic string,
	svc *service.RestockPromotionService,
	dlqPublisher *DLQPublisher,
	maxAttempts int,
	backoffBase time.Duration,
) *RestockedConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &RestockedConsumer{
		logger:       logger,
		reader:       reader,
		service:      svc,
		dlqPublisher: dlqPublisher,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBase,
	}
}

// Start запускает consumer и начинает обработку сообщений
func (c *RestockedConsumer) Start(ctx context.Context) error {
	c.logger.Info("starting restocked kafka consumer",
		zap.String("topic", c.reader.Config().Topic),
		zap.String("group_id", c.reader.Config().GroupID),
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
func (c *RestockedConsumer) processMessage(ctx context.Context, m kafka.Message) bool {
	event, err := parseRestockedEvent(m.Value)
	if err != nil {
		c.logger.Error("failed to parse restocked event",
			zap.Error(err),
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		if dlqErr := c.dlqPublisher.Publish(context.Background(), m, err, "inventory.restocked", ""); dlqErr != nil {
			c.logger.Error("failed to publish to DLQ, not committing", zap.Error(dlqErr))
			return false
		}
		return true
	}

	c.logger.Info("received restocked event",
		zap.String("product_id", event.Item.ProductID),
		zap.Int("added", event.Item.Added),
		zap.Int("stock_after", event.Item.StockAfter),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)

	if !c.handleWithRetry(ctx, event) {
		c.logger.Error("failed to handle restocked event after all retries, sending to DLQ",
			zap.String("product_id", event.Item.ProductID),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		dlqErr := fmt.Errorf("exhausted all retry attempts")
		if err := c.dlqPublisher.Publish(context.Background(), m, dlqErr, "inventory.restocked", event.Item.ProductID); err != nil {
			c.logger.Error("failed to publish to DLQ, not committing", zap.Error(err))
			return false
		}
		return true
	}

	return true
}

// handleWithRetry вызывает отмену промоакций с bounded retry и экспоненциальным backoff
func (c *RestockedConsumer) handleWithRetry(ctx context.Context, event service.RestockedEvent) bool {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.backoffBase * time.Duration(1<<uint(attempt-2))
			c.logger.Info("retrying restocked event",
				zap.String("product_id", event.Item.ProductID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
			}
		}

		cancelled, err := c.service.CancelLowStockPromotions(ctx, event.Item.ProductID, event.Item.StockAfter)
		if err == nil {
			c.logger.Info("restocked event handled",
				zap.String("product_id", event.Item.ProductID),
				zap.Int("promotions_cancelled", cancelled),
			)
			return true
		}

		lastErr = err
		c.logger.Warn("failed to handle restocked event",
			zap.Error(err),
			zap.String("product_id", event.Item.ProductID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
		)
	}

	c.logger.Error("exhausted all retry attempts",
		zap.Error(lastErr),
		zap.String("product_id", event.Item.ProductID),
	)

	return false
}

// restockedPayload - wire-формат события inventory.restocked
type restockedPayload struct {
	EventType string `json:"eventType"`
	Item      struct {
		ProductID  string `json:"productId"`
		Added      int    `json:"added"`
		StockAfter int    `json:"stockAfter"`
	} `json:"item"`
	OccurredAt string `json:"occurredAt"`
}

// parseRestockedEvent разбирает JSON входящего события и валидирует обязательные поля
func parseRestockedEvent(value []byte) (service.RestockedEvent, error) {
	var payload restockedPayload
	if err := json.Unmarshal(value, &payload); err != nil {
		return service.RestockedEvent{}, err
	}

	if payload.Item.ProductID == "" {
		return service.RestockedEvent{}, &ParseError{Field: "item.productId", Message: "item.productId is required"}
	}

	event := service.RestockedEvent{
		EventType: payload.EventType,
		Item: service.RestockedItem{
			ProductID:  payload.Item.ProductID,
			Added:      payload.Item.Added,
			StockAfter: payload.Item.StockAfter,
		},
	}

	if payload.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339, payload.OccurredAt)
		if err != nil {
			return service.RestockedEvent{}, &ParseError{Field: "occurredAt", Message: "occurredAt must be RFC3339"}
		}
		event.OccurredAt = t
	}

	return event, nil
}

// Close закрывает Kafka reader
func (c *RestockedConsumer) Close() error {
	c.logger.Info("closing restocked kafka consumer")
	return c.reader.Close()
}
