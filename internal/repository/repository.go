package repository

import (
	"context"
	"errors"
	"time"
)

// PromotionOrigin показывает, кем была создана промоакция
// Используется restock-политикой для классификации flash sale вместо
// сравнения префикса имени (имя - это display text, не метаданные)
type PromotionOrigin string

const (
	// OriginManual - промоакция создана вручную через API
	OriginManual PromotionOrigin = "manual"
	// OriginLowStockAuto - промоакция создана автоматически low-stock политикой
	OriginLowStockAuto PromotionOrigin = "low_stock_auto"
)

// Promotion представляет промоакцию: окно действия и единая ставка скидки
type Promotion struct {
	ID           string
	Name         string
	StartTime    time.Time
	EndTime      time.Time
	DiscountRate float64 // значение в диапазоне [0, 1]
	Origin       PromotionOrigin
}

// IsActiveAt возвращает true, если промоакция действует в момент t
// Обе границы окна включительно: активна ровно в StartTime и ровно в EndTime
func (p Promotion) IsActiveAt(t time.Time) bool {
	return !t.Before(p.StartTime) && !t.After(p.EndTime)
}

// ProductPromotion представляет связь промоакции с товаром
// Ставка скидки здесь НЕ хранится - она всегда читается из Promotion,
// чтобы связь не могла разойтись с актуальной ставкой промоакции
type ProductPromotion struct {
	ID          string
	PromotionID string
	ProductID   string // внешний идентификатор товара, локальной сущности Product нет
}

// PromotionStore определяет интерфейс для работы с хранилищем промоакций и связей
// Service слой зависит от этого интерфейса, а не от конкретной реализации
type PromotionStore interface {
	// FindAllPromotions возвращает все промоакции
	FindAllPromotions(ctx context.Context) ([]Promotion, error)

	// SavePromotion сохраняет промоакцию (upsert по ID)
	// ID должен быть назначен вызывающей стороной до сохранения
	SavePromotion(ctx context.Context, promotion Promotion) (Promotion, error)

	// FindPromotion загружает промоакцию по ID
	// Возвращает ErrNotFound, если промоакция не найдена
	FindPromotion(ctx context.Context, id string) (Promotion, error)

	// PromotionExists проверяет, существует ли промоакция с данным ID
	PromotionExists(ctx context.Context, id string) (bool, error)

	// DeletePromotion удаляет промоакцию И каскадно все её связи с товарами.
	// Каскад живёт в store, чтобы никакой слой выше не мог удалить промоакцию,
	// оставив висячие связи. Операция идемпотентна: повторное удаление
	// уже удалённой промоакции или её связей - no-op
	DeletePromotion(ctx context.Context, id string) error

	// SaveProductPromotion сохраняет связь товара с промоакцией (upsert по ID)
	SaveProductPromotion(ctx context.Context, link ProductPromotion) (ProductPromotion, error)

	// FindProductPromotion загружает связь по ID
	// Возвращает ErrNotFound, если связь не найдена
	FindProductPromotion(ctx context.Context, id string) (ProductPromotion, error)

	// FindAllProductPromotions возвращает все связи
	FindAllProductPromotions(ctx context.Context) ([]ProductPromotion, error)

	// FindProductPromotions возвращает связи для указанного товара
	FindProductPromotions(ctx context.Context, productID string) ([]ProductPromotion, error)

	// FindPromotionLinks возвращает связи для указанной промоакции
	FindPromotionLinks(ctx context.Context, promotionID string) ([]ProductPromotion, error)

	// DeleteProductPromotion удаляет связь по ID
	// Возвращает false, если связь не существовала (идемпотентное удаление)
	DeleteProductPromotion(ctx context.Context, id string) (bool, error)
}

// ErrNotFound возвращается, когда промоакция или связь не найдена в хранилище
var ErrNotFound = errors.New("not found")
