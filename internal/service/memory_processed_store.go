package service

import (
	"context"
	"sync"
	"time"
)

// MemoryProcessedEventsStore реализует ProcessedEventsStore используя in-memory map
// Используется для dev/test окружений. В production заменяется на Redis:
// после рестарта процесса in-memory ключи теряются и дедупликация не работает
type MemoryProcessedEventsStore struct {
	mu   sync.Mutex
	keys map[string]time.Time // key -> expiresAt
}

// NewMemoryProcessedEventsStore создаёт новый in-memory store
func NewMemoryProcessedEventsStore() *MemoryProcessedEventsStore {
	return &MemoryProcessedEventsStore{
		keys: make(map[string]time.Time),
	}
}

// MarkProcessed сохраняет key как обработанный с указанным ttl
func (s *MemoryProcessedEventsStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ленивая очистка протухших записей
	s.cleanupExpiredLocked()

	s.keys[key] = time.Now().Add(ttl)
	return nil
}

// IsProcessed проверяет, был ли key уже обработан и не истёк ли его ttl
func (s *MemoryProcessedEventsStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, exists := s.keys[key]
	if !exists {
		return false, nil
	}

	if time.Now().After(expiresAt) {
		delete(s.keys, key)
		return false, nil
	}

	return true, nil
}

// cleanupExpiredLocked удаляет протухшие записи (вызывается с уже захваченным lock)
func (s *MemoryProcessedEventsStore) cleanupExpiredLocked() {
	now := time.Now()
	for key, expiresAt := range s.keys {
		if now.After(expiresAt) {
			delete(s.keys, key)
		}
	}
}
