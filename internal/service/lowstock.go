package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository"
)

const (
	// defaultLowStockDiscountRate - фиксированная ставка flash sale (20%)
	defaultLowStockDiscountRate = 0.2
	// flashSaleDuration - фиксированная длительность flash sale
	flashSaleDuration = 48 * time.Hour
	// lowStockPromotionPrefix - префикс имени flash sale промоакции
	// Классификация идёт по полю Origin, префикс остаётся display text
	lowStockPromotionPrefix = "Flash Sale - Low Stock"
)

// LowStockPromotionService автоматически создаёт flash sale промоакции,
// когда остаток товара падает ниже порога.
// Поток: Inventory обнаруживает low stock -> Promotions создаёт flash sale
type LowStockPromotionService struct {
	logger     *zap.Logger
	promotions *PromotionService
	links      *ProductPromotionService
	processed  ProcessedEventsStore
	now        func() time.Time
}

// NewLowStockPromotionService создаёт новый экземпляр LowStockPromotionService
func NewLowStockPromotionService(
	logger *zap.Logger,
	promotions *PromotionService,
	links *ProductPromotionService,
	processed ProcessedEventsStore,
) *LowStockPromotionService {
	return &LowStockPromotionService{
		logger:     logger,
		promotions: promotions,
		links:      links,
		processed:  processed,
		now:        time.Now,
	}
}

// NewLowStockPromotionServiceWithClock создаёт сервис с кастомным источником времени (для тестов)
func NewLowStockPromotionServiceWithClock(
	logger *zap.Logger,
	promotions *PromotionService,
	links *ProductPromotionService,
	processed ProcessedEventsStore,
	now func() time.Time,
) *LowStockPromotionService {
	svc := NewLowStockPromotionService(logger, promotions, links, processed)
	svc.now = now
	return svc
}

// lowStockEventKey строит детерминированный idempotency ключ для входящего события.
// productId + occurredAt однозначно идентифицируют исходный триггер:
// повторная доставка того же сообщения даёт тот же ключ
func lowStockEventKey(event LowStockEvent) string {
	return fmt.Sprintf("inventory.low_stock:%s:%s", event.ProductID, event.OccurredAt.UTC().Format(time.RFC3339Nano))
}

// CreateLowStockPromotion создаёт flash sale для товара с низким остатком:
// промоакция стартует немедленно и длится 48 часов, ставка 0.2, origin low_stock_auto.
// Возвращает created=false, если событие с тем же idempotency ключом уже было
// обработано (повторная доставка при at-least-once).
//
// Это двухшаговая сага без компенсации: если привязка товара падает после
// успешного создания промоакции, промоакция-сирота остаётся. Она безвредна,
// пока не привязана (ничего не скидывает), а ключ события не помечается
// обработанным, так что redelivery повторит попытку.
// После успешной привязки ошибок наверх уже нет: сбой записи idempotency
// ключа логируется, но не отдаётся транспорту, иначе retry продублирует
// уже созданную flash sale
func (s *LowStockPromotionService) CreateLowStockPromotion(ctx context.Context, event LowStockEvent) (repository.Promotion, bool, error) {
	key := lowStockEventKey(event)

	alreadyProcessed, err := s.processed.IsProcessed(ctx, key)
	if err != nil {
		return repository.Promotion{}, false, err
	}
	if alreadyProcessed {
		s.logger.Info("low stock event already processed, skipping",
			zap.String("idempotency_key", key),
			zap.String("product_id", event.ProductID),
		)
		return repository.Promotion{}, false, nil
	}

	s.logger.Info("creating low-stock flash sale",
		zap.String("product_id", event.ProductID),
		zap.Int("stock", event.Stock),
		zap.Int("threshold", event.Threshold),
	)

	startTime := s.now()
	endTime := startTime.Add(flashSaleDuration)

	promotion := repository.Promotion{
		Name:         fmt.Sprintf("%s - %d items left", lowStockPromotionPrefix, event.Stock),
		StartTime:    startTime,
		EndTime:      endTime,
		DiscountRate: defaultLowStockDiscountRate,
		Origin:       repository.OriginLowStockAuto,
	}

	// Публикует promotion.started
	saved, err := s.promotions.CreatePromotion(ctx, promotion)
	if err != nil {
		return repository.Promotion{}, false, err
	}

	// Публикует promotion.product_updated
	if _, err := s.links.Attach(ctx, saved.ID, event.ProductID, defaultLowStockDiscountRate); err != nil {
		return repository.Promotion{}, false, err
	}

	if err := s.processed.MarkProcessed(ctx, key, flashSaleDuration); err != nil {
		// Flash sale уже создана и привязана: возврат ошибки здесь заставил бы
		// транспорт повторить всю сагу и наплодить дубликаты, пока ключ так и
		// не записывается. Запись ключа best-effort, как и публикация событий
		s.logger.Error("failed to mark low stock event as processed",
			zap.Error(err),
			zap.String("idempotency_key", key),
		)
		return saved, true, nil
	}

	s.logger.Info("created low-stock flash sale",
		zap.String("promotion_id", saved.ID),
		zap.String("product_id", event.ProductID),
		zap.Time("valid_until", endTime),
	)

	return saved, true, nil
}
