package service

import (
	"context"
	"time"
)

// PromotionStartedEvent представляет событие начала действия промоакции (исходящее в Kafka)
type PromotionStartedEvent struct {
	PromotionID string
	Name        string
	StartDate   time.Time
	EndDate     time.Time
	OccurredAt  time.Time
}

// PromotionEndedEvent представляет событие завершения промоакции (исходящее в Kafka)
// "Завершена" здесь означает "удалена": событие публикуется при удалении,
// даже если окно действия уже истекло
type PromotionEndedEvent struct {
	PromotionID string
	OccurredAt  time.Time
}

// ProductPromotionUpdatedEvent представляет событие привязки товара к промоакции
// или изменения его ставки (исходящее в Kafka)
type ProductPromotionUpdatedEvent struct {
	PromotionID  string
	ProductID    string
	DiscountRate float64
	OccurredAt   time.Time
}

// LowStockEvent представляет событие падения остатка ниже порога (входящее из Kafka)
type LowStockEvent struct {
	EventType  string
	ProductID  string
	Stock      int
	Threshold  int
	OccurredAt time.Time
}

// RestockedItem представляет одну пополненную позицию
type RestockedItem struct {
	ProductID  string
	Added      int
	StockAfter int
}

// RestockedEvent представляет событие пополнения склада (входящее из Kafka)
type RestockedEvent struct {
	EventType  string
	Item       RestockedItem
	OccurredAt time.Time
}

// PublishResult содержит по-канальные результаты публикации события.
// Публикация - best-effort side channel: ошибки каналов не влияют на
// уже зафиксированное состояние и никогда не возвращаются как error наверх,
// но вызывающий может их инспектировать (например для метрик)
type PublishResult struct {
	DomainErr       error // ошибка публикации во внутренний канал domain-событий
	NotificationErr error // ошибка публикации во внешний notification-канал
}

// Ok возвращает true, если событие доставлено в оба канала
func (r PublishResult) Ok() bool {
	return r.DomainErr == nil && r.NotificationErr == nil
}

// PromotionEventPublisher определяет интерфейс для публикации lifecycle-событий промоакций
// Реализация обязана изолировать сбои каналов друг от друга: неудача в одном
// канале не отменяет и не откатывает попытку во втором
type PromotionEventPublisher interface {
	// PublishPromotionStarted публикует событие promotion.started
	PublishPromotionStarted(ctx context.Context, event PromotionStartedEvent) PublishResult

	// PublishPromotionEnded публикует событие promotion.ended
	PublishPromotionEnded(ctx context.Context, event PromotionEndedEvent) PublishResult

	// PublishProductPromotionUpdated публикует событие promotion.product_updated
	PublishProductPromotionUpdated(ctx context.Context, event ProductPromotionUpdatedEvent) PublishResult
}

// ProcessedEventsStore хранит ключи обработанных входящих событий для обеспечения idempotency
// При at-least-once доставке повторно доставленное low_stock событие без дедупликации
// создало бы вторую flash sale для того же триггера
type ProcessedEventsStore interface {
	// MarkProcessed сохраняет key как обработанный. Должен быть idempotent сам по себе.
	// ttl определяет время жизни записи
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) error

	// IsProcessed возвращает true если key уже был обработан и ещё не истёк ttl
	IsProcessed(ctx context.Context, key string) (bool, error)
}
