package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository"
)

// RestockPromotionService отменяет активные flash sale промоакции,
// когда товар пополнен на складе.
// Поток: Inventory пополнен -> Promotions досрочно завершает flash sale
type RestockPromotionService struct {
	logger     *zap.Logger
	store      repository.PromotionStore
	promotions *PromotionService
	now        func() time.Time
}

// NewRestockPromotionService создаёт новый экземпляр RestockPromotionService
func NewRestockPromotionService(logger *zap.Logger, store repository.PromotionStore, promotions *PromotionService) *RestockPromotionService {
	return &RestockPromotionService{
		logger:     logger,
		store:      store,
		promotions: promotions,
		now:        time.Now,
	}
}

// NewRestockPromotionServiceWithClock создаёт сервис с кастомным источником времени (для тестов)
func NewRestockPromotionServiceWithClock(logger *zap.Logger, store repository.PromotionStore, promotions *PromotionService, now func() time.Time) *RestockPromotionService {
	svc := NewRestockPromotionService(logger, store, promotions)
	svc.now = now
	return svc
}

// CancelLowStockPromotions удаляет каждую промоакцию товара, которая
// одновременно создана low-stock политикой (Origin == low_stock_auto)
// И ещё активна на момент вызова. Удаление идёт через PromotionService,
// поэтому каскад связей и promotion.ended срабатывают как при обычном delete.
//
// Уже истёкшие auto-промоакции не трогаем: задача политики - досрочно
// завершить АКТИВНЫЕ flash sale, а не подчищать историю.
// Возвращает количество фактически отменённых промоакций
func (s *RestockPromotionService) CancelLowStockPromotions(ctx context.Context, productID string, stockAfter int) (int, error) {
	s.logger.Info("checking for low-stock promotions to cancel",
		zap.String("product_id", productID),
		zap.Int("stock_after", stockAfter),
	)

	links, err := s.store.FindProductPromotions(ctx, productID)
	if err != nil {
		return 0, err
	}

	canceled := 0
	now := s.now()

	for _, link := range links {
		promotion, err := s.store.FindPromotion(ctx, link.PromotionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Связь без промоакции - гонка с конкурентным удалением
				continue
			}
			return canceled, err
		}

		if promotion.Origin != repository.OriginLowStockAuto || !promotion.IsActiveAt(now) {
			continue
		}

		deleted, err := s.promotions.DeletePromotion(ctx, promotion.ID)
		if err != nil {
			return canceled, err
		}
		if deleted {
			canceled++
			s.logger.Info("canceled low-stock promotion",
				zap.String("promotion_id", promotion.ID),
				zap.String("name", promotion.Name),
				zap.String("product_id", productID),
			)
		}
	}

	if canceled > 0 {
		s.logger.Info("canceled low-stock promotions",
			zap.Int("count", canceled),
			zap.String("product_id", productID),
		)
	} else {
		s.logger.Debug("no active low-stock promotions found",
			zap.String("product_id", productID),
		)
	}

	return canceled, nil
}
