package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository"
)

// ProductPromotionService управляет связями товар-промоакция
// Ставка скидки никогда не берётся у вызывающего для персистентности:
// при create/update она всегда заново резолвится из промоакции,
// чтобы кешированное значение не могло разойтись с авторитетным
type ProductPromotionService struct {
	logger    *zap.Logger
	store     repository.PromotionStore
	publisher PromotionEventPublisher
}

// NewProductPromotionService создаёт новый экземпляр ProductPromotionService
func NewProductPromotionService(logger *zap.Logger, store repository.PromotionStore, publisher PromotionEventPublisher) *ProductPromotionService {
	return &ProductPromotionService{
		logger:    logger,
		store:     store,
		publisher: publisher,
	}
}

// GetAllProductPromotions возвращает все связи
func (s *ProductPromotionService) GetAllProductPromotions(ctx context.Context) ([]repository.ProductPromotion, error) {
	return s.store.FindAllProductPromotions(ctx)
}

// GetProductPromotion возвращает связь по ID
// Возвращает repository.ErrNotFound, если связь не существует
func (s *ProductPromotionService) GetProductPromotion(ctx context.Context, id string) (repository.ProductPromotion, error) {
	return s.store.FindProductPromotion(ctx, id)
}

// CreateProductPromotion создаёт связь, резолвя ставку из промоакции
// Делегирует в Attach, поэтому валидация и событие те же
func (s *ProductPromotionService) CreateProductPromotion(ctx context.Context, promotionID, productID string) (repository.ProductPromotion, error) {
	rate, err := s.resolveDiscountRate(ctx, promotionID)
	if err != nil {
		return repository.ProductPromotion{}, err
	}
	return s.Attach(ctx, promotionID, productID, rate)
}

// UpdateProductPromotion перезаписывает связь новыми promotionID/productID.
// Ставка заново резолвится из новой промоакции. Возвращает repository.ErrNotFound,
// если связь не существует. Публикует promotion.product_updated при успехе
func (s *ProductPromotionService) UpdateProductPromotion(ctx context.Context, linkID, promotionID, productID string) (repository.ProductPromotion, error) {
	rate, err := s.resolveDiscountRate(ctx, promotionID)
	if err != nil {
		return repository.ProductPromotion{}, err
	}

	existing, err := s.store.FindProductPromotion(ctx, linkID)
	if err != nil {
		return repository.ProductPromotion{}, err
	}

	existing.PromotionID = promotionID
	existing.ProductID = productID

	saved, err := s.store.SaveProductPromotion(ctx, existing)
	if err != nil {
		return repository.ProductPromotion{}, err
	}

	s.publishUpdated(ctx, promotionID, productID, rate)
	return saved, nil
}

// DeleteProductPromotion удаляет связь по ID
// Возвращает false, если связи не было (идемпотентное удаление)
func (s *ProductPromotionService) DeleteProductPromotion(ctx context.Context, id string) (bool, error) {
	return s.store.DeleteProductPromotion(ctx, id)
}

// FindProductPromotionsByProduct возвращает связи для указанного товара
func (s *ProductPromotionService) FindProductPromotionsByProduct(ctx context.Context, productID string) ([]repository.ProductPromotion, error) {
	return s.store.FindProductPromotions(ctx, productID)
}

// FindPromotionsForProduct возвращает сами промоакции, привязанные к товару
// Связи с несуществующими промоакциями пропускаются
func (s *ProductPromotionService) FindPromotionsForProduct(ctx context.Context, productID string) ([]repository.Promotion, error) {
	links, err := s.store.FindProductPromotions(ctx, productID)
	if err != nil {
		return nil, err
	}

	out := make([]repository.Promotion, 0, len(links))
	for _, link := range links {
		promotion, err := s.store.FindPromotion(ctx, link.PromotionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, promotion)
	}
	return out, nil
}

// FindProductPromotionsByPromotion возвращает связи для указанной промоакции
func (s *ProductPromotionService) FindProductPromotionsByPromotion(ctx context.Context, promotionID string) ([]repository.ProductPromotion, error) {
	return s.store.FindPromotionLinks(ctx, promotionID)
}

// Attach привязывает товар к промоакции с указанной ставкой.
// Валидирует существование промоакции и диапазон ставки ДО любой мутации.
// Ставка в связи не хранится, но уходит в событие promotion.product_updated:
// low-stock политика создаёт промоакцию и связь вместе, и ставка известна
// синхронно без повторного чтения
func (s *ProductPromotionService) Attach(ctx context.Context, promotionID, productID string, discountRate float64) (repository.ProductPromotion, error) {
	exists, err := s.store.PromotionExists(ctx, promotionID)
	if err != nil {
		return repository.ProductPromotion{}, err
	}
	if !exists {
		return repository.ProductPromotion{}, fmt.Errorf("%w: %s", ErrPromotionNotFound, promotionID)
	}

	if discountRate < 0.0 || discountRate > 1.0 {
		return repository.ProductPromotion{}, ErrInvalidDiscountRate
	}

	link := repository.ProductPromotion{
		ID:          uuid.NewString(),
		PromotionID: promotionID,
		ProductID:   productID,
	}

	saved, err := s.store.SaveProductPromotion(ctx, link)
	if err != nil {
		return repository.ProductPromotion{}, err
	}

	s.logger.Info("product attached to promotion",
		zap.String("promotion_id", promotionID),
		zap.String("product_id", productID),
		zap.Float64("discount_rate", discountRate),
	)

	s.publishUpdated(ctx, promotionID, productID, discountRate)
	return saved, nil
}

// Detach отвязывает товар от промоакции: сканирует связи товара и удаляет ту,
// чей promotionID совпадает. Возвращает false, если подходящей связи нет.
// Событие при detach не публикуется
func (s *ProductPromotionService) Detach(ctx context.Context, promotionID, productID string) (bool, error) {
	links, err := s.store.FindProductPromotions(ctx, productID)
	if err != nil {
		return false, err
	}

	for _, link := range links {
		if link.PromotionID == promotionID {
			return s.store.DeleteProductPromotion(ctx, link.ID)
		}
	}
	return false, nil
}

// resolveDiscountRate читает авторитетную ставку из промоакции
func (s *ProductPromotionService) resolveDiscountRate(ctx context.Context, promotionID string) (float64, error) {
	promotion, err := s.store.FindPromotion(ctx, promotionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrPromotionNotFound, promotionID)
		}
		return 0, err
	}
	return promotion.DiscountRate, nil
}

func (s *ProductPromotionService) publishUpdated(ctx context.Context, promotionID, productID string, discountRate float64) {
	s.publisher.PublishProductPromotionUpdated(ctx, ProductPromotionUpdatedEvent{
		PromotionID:  promotionID,
		ProductID:    productID,
		DiscountRate: discountRate,
		OccurredAt:   time.Now().UTC(),
	})
}
