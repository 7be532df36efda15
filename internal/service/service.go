package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository"
)

// ErrPromotionNotFound возвращается, когда промоакция с указанным ID не существует
var ErrPromotionNotFound = errors.New("promotion not found")

// ErrInvalidDiscountRate возвращается, когда ставка скидки вне диапазона [0, 1]
var ErrInvalidDiscountRate = errors.New("discount rate must be between 0.0 and 1.0")

// PromotionService содержит бизнес-логику жизненного цикла промоакций
// и движок вычисления лучшей скидки. Зависит от интерфейсов PromotionStore
// и PromotionEventPublisher, а не от конкретных реализаций
type PromotionService struct {
	logger    *zap.Logger
	store     repository.PromotionStore
	publisher PromotionEventPublisher
	now       func() time.Time
}

// NewPromotionService создаёт новый экземпляр PromotionService
func NewPromotionService(logger *zap.Logger, store repository.PromotionStore, publisher PromotionEventPublisher) *PromotionService {
	return &PromotionService{
		logger:    logger,
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// NewPromotionServiceWithClock создаёт PromotionService с кастомным источником времени (для тестов)
func NewPromotionServiceWithClock(logger *zap.Logger, store repository.PromotionStore, publisher PromotionEventPublisher, now func() time.Time) *PromotionService {
	return &PromotionService{
		logger:    logger,
		store:     store,
		publisher: publisher,
		now:       now,
	}
}

// BestDiscountFor находит лучшую (максимальную) ставку скидки для товара на момент asOf.
// Читает все связи товара, для каждой резолвит промоакцию и оставляет только
// активные в asOf. Возвращает (0, false), если ни одна промоакция не подошла.
// Ставка ровно 0 для вызывающего неотличима от "скидки нет"
func (s *PromotionService) BestDiscountFor(ctx context.Context, productID string, asOf time.Time) (float64, bool, error) {
	links, err := s.store.FindProductPromotions(ctx, productID)
	if err != nil {
		return 0, false, err
	}

	best := 0.0
	for _, link := range links {
		promotion, err := s.store.FindPromotion(ctx, link.PromotionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Связь пережила свою промоакцию (гонка с конкурентным удалением
				// или частичный каскад). Пропускаем молча: ответ на ценовой запрос
				// важнее строгой консистентности с параллельной админской правкой
				continue
			}
			return 0, false, err
		}

		if promotion.IsActiveAt(asOf) && promotion.DiscountRate > best {
			best = promotion.DiscountRate
		}
	}

	if best > 0 {
		return best, true, nil
	}
	return 0, false, nil
}

// GetPromotions возвращает все промоакции
func (s *PromotionService) GetPromotions(ctx context.Context) ([]repository.Promotion, error) {
	return s.store.FindAllPromotions(ctx)
}

// GetPromotion возвращает промоакцию по ID
// Возвращает repository.ErrNotFound, если промоакция не существует
func (s *PromotionService) GetPromotion(ctx context.Context, id string) (repository.Promotion, error) {
	return s.store.FindPromotion(ctx, id)
}

// CreatePromotion сохраняет новую промоакцию, назначая ID если он пуст.
// Публикует promotion.started, если промоакция активна сейчас или стартует
// в будущем. Промоакция, созданная целиком в прошлом, сохраняется без события:
// downstream-системы не должны узнавать о скидках, которые никогда не будут
// наблюдаемы как активные
func (s *PromotionService) CreatePromotion(ctx context.Context, promotion repository.Promotion) (repository.Promotion, error) {
	if promotion.ID == "" {
		promotion.ID = uuid.NewString()
	}
	if promotion.Origin == "" {
		promotion.Origin = repository.OriginManual
	}

	saved, err := s.store.SavePromotion(ctx, promotion)
	if err != nil {
		return repository.Promotion{}, err
	}

	s.logger.Info("promotion created",
		zap.String("promotion_id", saved.ID),
		zap.String("name", saved.Name),
		zap.Float64("discount_rate", saved.DiscountRate),
		zap.String("origin", string(saved.Origin)),
	)

	now := s.now()
	if saved.IsActiveAt(now) || saved.StartTime.After(now) {
		// Результат публикации не влияет на успех операции:
		// durable-состояние уже зафиксировано, уведомление best-effort
		s.publisher.PublishPromotionStarted(ctx, PromotionStartedEvent{
			PromotionID: saved.ID,
			Name:        saved.Name,
			StartDate:   saved.StartTime,
			EndDate:     saved.EndTime,
			OccurredAt:  now.UTC(),
		})
	}

	return saved, nil
}

// ReplacePromotion полностью перезаписывает имя, окно и ставку существующей промоакции.
// Возвращает repository.ErrNotFound, если ID не существует.
// События при replace не публикуются: событийные side-effect'ы есть только
// у create и delete
func (s *PromotionService) ReplacePromotion(ctx context.Context, id string, updated repository.Promotion) (repository.Promotion, error) {
	existing, err := s.store.FindPromotion(ctx, id)
	if err != nil {
		return repository.Promotion{}, err
	}

	existing.Name = updated.Name
	existing.StartTime = updated.StartTime
	existing.EndTime = updated.EndTime
	existing.DiscountRate = updated.DiscountRate

	return s.store.SavePromotion(ctx, existing)
}

// PatchPromotionInput содержит опциональные поля для частичного обновления
// nil-поле означает "не менять"
type PatchPromotionInput struct {
	Name         *string
	StartTime    *time.Time
	EndTime      *time.Time
	DiscountRate *float64
}

// PatchPromotion применяет частичное обновление к существующей промоакции.
// Семантика not-found и отсутствие событий - как у ReplacePromotion
func (s *PromotionService) PatchPromotion(ctx context.Context, id string, input PatchPromotionInput) (repository.Promotion, error) {
	existing, err := s.store.FindPromotion(ctx, id)
	if err != nil {
		return repository.Promotion{}, err
	}

	if input.Name != nil {
		existing.Name = *input.Name
	}
	if input.StartTime != nil {
		existing.StartTime = *input.StartTime
	}
	if input.EndTime != nil {
		existing.EndTime = *input.EndTime
	}
	if input.DiscountRate != nil {
		existing.DiscountRate = *input.DiscountRate
	}

	return s.store.SavePromotion(ctx, existing)
}

// DeletePromotion удаляет промоакцию вместе со всеми её связями (каскад в store).
// Возвращает false, если промоакции не было (идемпотентный no-op, не ошибка).
// promotion.ended публикуется безусловно, даже если окно уже истекло:
// "ended" означает "больше не существует", а не "окно закончилось"
func (s *PromotionService) DeletePromotion(ctx context.Context, id string) (bool, error) {
	exists, err := s.store.PromotionExists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	if err := s.store.DeletePromotion(ctx, id); err != nil {
		return false, err
	}

	s.logger.Info("promotion deleted", zap.String("promotion_id", id))

	s.publisher.PublishPromotionEnded(ctx, PromotionEndedEvent{
		PromotionID: id,
		OccurredAt:  s.now().UTC(),
	})

	return true, nil
}
