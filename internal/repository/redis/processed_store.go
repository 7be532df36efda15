package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProcessedEventsStore реализует service.ProcessedEventsStore используя Redis
// Ключи переживают рестарт сервиса, поэтому дедупликация входящих событий
// работает и после redeploy. TTL делает Redis сам
type ProcessedEventsStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewProcessedEventsStore создаёт новый Redis processed events store
func NewProcessedEventsStore(client *redis.Client, logger *zap.Logger) *ProcessedEventsStore {
	return &ProcessedEventsStore{
		client: client,
		logger: logger,
	}
}

func processedKey(key string) string {
	return fmt.Sprintf("promotions:processed:%s", key)
}

// MarkProcessed сохраняет key как обработанный с указанным ttl
// SET идемпотентен: повторная запись того же ключа лишь продлевает ttl
func (s *ProcessedEventsStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, processedKey(key), "1", ttl).Err(); err != nil {
		s.logger.Error("failed to mark event as processed in redis",
			zap.Error(err),
			zap.String("key", key),
		)
		return fmt.Errorf("failed to mark processed: %w", err)
	}
	return nil
}

// IsProcessed проверяет наличие ключа
func (s *ProcessedEventsStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKey(key)).Result()
	if err != nil {
		s.logger.Error("failed to check processed key in redis",
			zap.Error(err),
			zap.String("key", key),
		)
		return false, fmt.Errorf("failed to check processed: %w", err)
	}
	return n > 0, nil
}
