package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/service"
)

// messageWriter абстрагирует kafka.Writer для подмены в тестах
// Изоляцию каналов друг от друга нужно проверять, роняя ровно один канал
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PromotionEventPublisher реализует service.PromotionEventPublisher используя Kafka.
// Каждое lifecycle-событие уходит в два независимых канала: внутренний топик
// domain-событий и внешний notification-топик. Отправки независимы: сбой
// одного канала логируется и не блокирует второй, ошибки не поднимаются
// наверх - durable-состояние уже зафиксировано, уведомление best-effort
type PromotionEventPublisher struct {
	logger        *zap.Logger
	domain        messageWriter
	notifications messageWriter
	domainTopic   string
	notifTopic    string
}

// NewPromotionEventPublisher создаёт новый Kafka publisher для событий промоакций
func NewPromotionEventPublisher(logger *zap.Logger, brokers []string, domainTopic, notificationTopic string) *PromotionEventPublisher {
	return &PromotionEventPublisher{
		logger: logger,
		domain: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    domainTopic,
			Balancer: &kafka.LeastBytes{},
		},
		notifications: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    notificationTopic,
			Balancer: &kafka.LeastBytes{},
		},
		domainTopic: domainTopic,
		notifTopic:  notificationTopic,
	}
}

// newPublisherWithWriters используется в тестах для подмены writers
func newPublisherWithWriters(logger *zap.Logger, domain, notifications messageWriter) *PromotionEventPublisher {
	return &PromotionEventPublisher{
		logger:        logger,
		domain:        domain,
		notifications: notifications,
		domainTopic:   "promotions.events",
		notifTopic:    "notifications.events",
	}
}

// Close закрывает оба Kafka writer
func (p *PromotionEventPublisher) Close() error {
	domainErr := p.domain.Close()
	notifErr := p.notifications.Close()
	if domainErr != nil {
		return domainErr
	}
	return notifErr
}

// PublishPromotionStarted публикует событие promotion.started в оба канала
func (p *PromotionEventPublisher) PublishPromotionStarted(ctx context.Context, event service.PromotionStartedEvent) service.PublishResult {
	payload := map[string]interface{}{
		"eventType":   "promotion.started",
		"promotionId": event.PromotionID,
		"name":        event.Name,
		"startDate":   event.StartDate.UTC().Format(time.RFC3339),
		"endDate":     event.EndDate.UTC().Format(time.RFC3339),
		"occurredAt":  event.OccurredAt.UTC().Format(time.RFC3339),
	}
	return p.fanOut(ctx, "promotion.started", event.PromotionID, payload)
}

// PublishPromotionEnded публикует событие promotion.ended в оба канала
func (p *PromotionEventPublisher) PublishPromotionEnded(ctx context.Context, event service.PromotionEndedEvent) service.PublishResult {
	payload := map[string]interface{}{
		"eventType":   "promotion.ended",
		"promotionId": event.PromotionID,
		"occurredAt":  event.OccurredAt.UTC().Format(time.RFC3339),
	}
	return p.fanOut(ctx, "promotion.ended", event.PromotionID, payload)
}

// PublishProductPromotionUpdated публикует событие promotion.product_updated в оба канала
func (p *PromotionEventPublisher) PublishProductPromotionUpdated(ctx context.Context, event service.ProductPromotionUpdatedEvent) service.PublishResult {
	payload := map[string]interface{}{
		"eventType":    "promotion.product_updated",
		"promotionId":  event.PromotionID,
		"productId":    event.ProductID,
		"discountRate": event.DiscountRate,
		"occurredAt":   event.OccurredAt.UTC().Format(time.RFC3339),
	}
	return p.fanOut(ctx, "promotion.product_updated", event.PromotionID, payload)
}

// fanOut отправляет payload в оба канала независимо.
// Каждая отправка - отдельная попытка: ошибка первого канала не отменяет
// второй и наоборот. Результат возвращается вызывающему для инспекции,
// но никогда как error
func (p *PromotionEventPublisher) fanOut(ctx context.Context, eventType, key string, payload map[string]interface{}) service.PublishResult {
	valueBytes, err := json.Marshal(payload)
	if err != nil {
		// Маршалинг map с примитивами не падает на практике, но контракт
		// publisher'а - не ронять вызывающего ни при каких условиях
		p.logger.Error("failed to marshal event payload",
			zap.Error(err),
			zap.String("event_type", eventType),
		)
		return service.PublishResult{DomainErr: err, NotificationErr: err}
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: valueBytes,
	}

	result := service.PublishResult{}

	if err := p.domain.WriteMessages(ctx, msg); err != nil {
		result.DomainErr = err
		p.logger.Error("failed to publish event to domain topic",
			zap.Error(err),
			zap.String("topic", p.domainTopic),
			zap.String("event_type", eventType),
			zap.String("key", key),
		)
	} else {
		p.logger.Info("event published to domain topic",
			zap.String("topic", p.domainTopic),
			zap.String("event_type", eventType),
			zap.String("key", key),
		)
	}

	if err := p.notifications.WriteMessages(ctx, msg); err != nil {
		result.NotificationErr = err
		p.logger.Error("failed to publish event to notification topic",
			zap.Error(err),
			zap.String("topic", p.notifTopic),
			zap.String("event_type", eventType),
			zap.String("key", key),
		)
	} else {
		p.logger.Info("event published to notification topic",
			zap.String("topic", p.notifTopic),
			zap.String("event_type", eventType),
			zap.String("key", key),
		)
	}

	return result
}
