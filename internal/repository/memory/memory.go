package memory

import (
	"context"
	"sync"

	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository"
)

// Store реализует PromotionStore используя in-memory map
// Используется для разработки и тестирования
// В production заменяется на реализацию с MongoDB
type Store struct {
	mu         sync.RWMutex
	promotions map[string]repository.Promotion
	links      map[string]repository.ProductPromotion
}

// NewStore создаёт новый in-memory store с пустыми коллекциями
func NewStore() *Store {
	return &Store{
		promotions: make(map[string]repository.Promotion),
		links:      make(map[string]repository.ProductPromotion),
	}
}

// FindAllPromotions возвращает все промоакции
func (s *Store) FindAllPromotions(ctx context.Context) ([]repository.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]repository.Promotion, 0, len(s.promotions))
	for _, p := range s.promotions {
		out = append(out, p)
	}
	return out, nil
}

// SavePromotion сохраняет промоакцию (upsert по ID)
func (s *Store) SavePromotion(ctx context.Context, promotion repository.Promotion) (repository.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.promotions[promotion.ID] = promotion
	return promotion, nil
}

// FindPromotion загружает промоакцию по ID
func (s *Store) FindPromotion(ctx context.Context, id string) (repository.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.promotions[id]
	if !ok {
		return repository.Promotion{}, repository.ErrNotFound
	}
	return p, nil
}

// PromotionExists проверяет наличие промоакции
func (s *Store) PromotionExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.promotions[id]
	return ok, nil
}

// DeletePromotion удаляет промоакцию и каскадно все её связи
// Повторное удаление - no-op, поэтому операцию безопасно перезапускать
func (s *Store) DeletePromotion(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.promotions, id)
	for linkID, link := range s.links {
		if link.PromotionID == id {
			delete(s.links, linkID)
		}
	}
	return nil
}

// SaveProductPromotion сохраняет связь (upsert по ID)
func (s *Store) SaveProductPromotion(ctx context.Context, link repository.ProductPromotion) (repository.ProductPromotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.links[link.ID] = link
	return link, nil
}

// FindProductPromotion загружает связь по ID
func (s *Store) FindProductPromotion(ctx context.Context, id string) (repository.ProductPromotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[id]
	if !ok {
		return repository.ProductPromotion{}, repository.ErrNotFound
	}
	return link, nil
}

// FindAllProductPromotions возвращает все связи
func (s *Store) FindAllProductPromotions(ctx context.Context) ([]repository.ProductPromotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]repository.ProductPromotion, 0, len(s.links))
	for _, link := range s.links {
		out = append(out, link)
	}
	return out, nil
}

// FindProductPromotions возвращает связи для указанного товара
func (s *Store) FindProductPromotions(ctx context.Context, productID string) ([]repository.ProductPromotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]repository.ProductPromotion, 0)
	for _, link := range s.links {
		if link.ProductID == productID {
			out = append(out, link)
		}
	}
	return out, nil
}

// FindPromotionLinks возвращает связи для указанной промоакции
func (s *Store) FindPromotionLinks(ctx context.Context, promotionID string) ([]repository.ProductPromotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]repository.ProductPromotion, 0)
	for _, link := range s.links {
		if link.PromotionID == promotionID {
			out = append(out, link)
		}
	}
	return out, nil
}

// DeleteProductPromotion удаляет связь по ID
// Возвращает false, если связи не было
func (s *Store) DeleteProductPromotion(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.links[id]
	if !ok {
		return false, nil
	}
	delete(s.links, id)
	return true, nil
}
