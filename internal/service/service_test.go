package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository"
	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository/memory"
)

// capturingPublisher реализует PromotionEventPublisher для тестов,
// запоминая все опубликованные события
type capturingPublisher struct {
	mu      sync.Mutex
	started []PromotionStartedEvent
	ended   []PromotionEndedEvent
	updated []ProductPromotionUpdatedEvent
	result  PublishResult
}

func (p *capturingPublisher) PublishPromotionStarted(ctx context.Context, event PromotionStartedEvent) PublishResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, event)
	return p.result
}

func (p *capturingPublisher) PublishPromotionEnded(ctx context.Context, event PromotionEndedEvent) PublishResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, event)
	return p.result
}

func (p *capturingPublisher) PublishProductPromotionUpdated(ctx context.Context, event ProductPromotionUpdatedEvent) PublishResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, event)
	return p.result
}

var testNow = time.Date(2025, 10, 30, 12, 0, 0, 0, time.UTC)

func newTestPromotionService(t *testing.T) (*PromotionService, *memory.Store, *capturingPublisher) {
	t.Helper()
	store := memory.NewStore()
	publisher := &capturingPublisher{}
	svc := NewPromotionServiceWithClock(zap.NewNop(), store, publisher, func() time.Time { return testNow })
	return svc, store, publisher
}

func TestPromotionService_CreatePromotion(t *testing.T) {
	ctx := context.Background()

	t.Run("active promotion publishes started event", func(t *testing.T) {
		svc, _, publisher := newTestPromotionService(t)

		created, err := svc.CreatePromotion(ctx, repository.Promotion{
			Name:         "Black Friday",
			StartTime:    testNow.Add(-time.Hour),
			EndTime:      testNow.Add(24 * time.Hour),
			DiscountRate: 0.15,
		})
		require.NoError(t, err)

		assert.NotEmpty(t, created.ID)
		assert.Equal(t, repository.OriginManual, created.Origin)

		require.Len(t, publisher.started, 1)
		assert.Equal(t, created.ID, publisher.started[0].PromotionID)
		assert.Equal(t, "Black Friday", publisher.started[0].Name)
	})

	t.Run("future promotion publishes started event", func(t *testing.T) {
		svc, _, publisher := newTestPromotionService(t)

		_, err := svc.CreatePromotion(ctx, repository.Promotion{
			Name:         "New Year Sale",
			StartTime:    testNow.Add(48 * time.Hour),
			EndTime:      testNow.Add(72 * time.Hour),
			DiscountRate: 0.1,
		})
		require.NoError(t, err)
		assert.Len(t, publisher.started, 1)
	})

	t.Run("promotion entirely in the past is saved silently", func(t *testing.T) {
		svc, store, publisher := newTestPromotionService(t)

		created, err := svc.CreatePromotion(ctx, repository.Promotion{
			Name:         "Last Year Sale",
			StartTime:    testNow.Add(-72 * time.Hour),
			EndTime:      testNow.Add(-48 * time.Hour),
			DiscountRate: 0.1,
		})
		require.NoError(t, err)

		// Сохранена, но событие не публикуется
		_, err = store.FindPromotion(ctx, created.ID)
		require.NoError(t, err)
		assert.Empty(t, publisher.started)
	})

	t.Run("provided id and origin are preserved", func(t *testing.T) {
		svc, _, _ := newTestPromotionService(t)

		created, err := svc.CreatePromotion(ctx, repository.Promotion{
			ID:           "fixed-id",
			Name:         "Flash Sale",
			StartTime:    testNow,
			EndTime:      testNow.Add(time.Hour),
			DiscountRate: 0.2,
			Origin:       repository.OriginLowStockAuto,
		})
		require.NoError(t, err)
		assert.Equal(t, "fixed-id", created.ID)
		assert.Equal(t, repository.OriginLowStockAuto, created.Origin)
	})
}

func TestPromotionService_BestDiscountFor(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, store *memory.Store, id string, rate float64, start, end time.Time) {
		t.Helper()
		_, err := store.SavePromotion(ctx, repository.Promotion{
			ID: id, Name: id, StartTime: start, EndTime: end, DiscountRate: rate, Origin: repository.OriginManual,
		})
		require.NoError(t, err)
		_, err = store.SaveProductPromotion(ctx, repository.ProductPromotion{
			ID: "link-" + id, PromotionID: id, ProductID: "prod-a",
		})
		require.NoError(t, err)
	}

	t.Run("picks maximum rate among active promotions", func(t *testing.T) {
		svc, store, _ := newTestPromotionService(t)
		seed(t, store, "p1", 0.1, testNow.Add(-time.Hour), testNow.Add(time.Hour))
		seed(t, store, "p2", 0.3, testNow.Add(-time.Hour), testNow.Add(time.Hour))
		seed(t, store, "p3", 0.2, testNow.Add(-time.Hour), testNow.Add(time.Hour))

		rate, ok, err := svc.BestDiscountFor(ctx, "prod-a", testNow)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0.3, rate)
	})

	t.Run("window boundaries are inclusive", func(t *testing.T) {
		svc, store, _ := newTestPromotionService(t)
		start := testNow
		end := testNow.Add(time.Hour)
		seed(t, store, "p1", 0.25, start, end)

		rate, ok, err := svc.BestDiscountFor(ctx, "prod-a", start)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0.25, rate)

		rate, ok, err = svc.BestDiscountFor(ctx, "prod-a", end)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0.25, rate)

		// Момент сразу за границей окна - уже не активна
		_, ok, err = svc.BestDiscountFor(ctx, "prod-a", end.Add(time.Nanosecond))
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = svc.BestDiscountFor(ctx, "prod-a", start.Add(-time.Nanosecond))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired and future promotions are ignored", func(t *testing.T) {
		svc, store, _ := newTestPromotionService(t)
		seed(t, store, "past", 0.5, testNow.Add(-3*time.Hour), testNow.Add(-time.Hour))
		seed(t, store, "future", 0.5, testNow.Add(time.Hour), testNow.Add(3*time.Hour))

		_, ok, err := svc.BestDiscountFor(ctx, "prod-a", testNow)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("zero rate is indistinguishable from no discount", func(t *testing.T) {
		svc, store, _ := newTestPromotionService(t)
		seed(t, store, "free", 0.0, testNow.Add(-time.Hour), testNow.Add(time.Hour))

		rate, ok, err := svc.BestDiscountFor(ctx, "prod-a", testNow)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0.0, rate)
	})

	t.Run("dangling link is skipped silently", func(t *testing.T) {
		svc, store, _ := newTestPromotionService(t)
		seed(t, store, "alive", 0.1, testNow.Add(-time.Hour), testNow.Add(time.Hour))

		// Связь на промоакцию, которой нет в хранилище
		_, err := store.SaveProductPromotion(ctx, repository.ProductPromotion{
			ID: "dangling", PromotionID: "deleted-promo", ProductID: "prod-a",
		})
		require.NoError(t, err)

		rate, ok, err := svc.BestDiscountFor(ctx, "prod-a", testNow)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0.1, rate)
	})

	t.Run("product without links has no discount", func(t *testing.T) {
		svc, _, _ := newTestPromotionService(t)

		_, ok, err := svc.BestDiscountFor(ctx, "prod-unknown", testNow)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPromotionService_ReplacePromotion(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces all mutable fields without events", func(t *testing.T) {
		svc, store, publisher := newTestPromotionService(t)
		_, err := store.SavePromotion(ctx, repository.Promotion{
			ID: "promo-1", Name: "Old", StartTime: testNow, EndTime: testNow.Add(time.Hour), DiscountRate: 0.1, Origin: repository.OriginManual,
		})
		require.NoError(t, err)

		updated, err := svc.ReplacePromotion(ctx, "promo-1", repository.Promotion{
			Name:         "New",
			StartTime:    testNow.Add(time.Hour),
			EndTime:      testNow.Add(2 * time.Hour),
			DiscountRate: 0.4,
		})
		require.NoError(t, err)

		assert.Equal(t, "promo-1", updated.ID)
		assert.Equal(t, "New", updated.Name)
		assert.Equal(t, 0.4, updated.DiscountRate)
		// Origin переживает замену
		assert.Equal(t, repository.OriginManual, updated.Origin)

		assert.Empty(t, publisher.started)
		assert.Empty(t, publisher.ended)
	})

	t.Run("missing promotion returns ErrNotFound", func(t *testing.T) {
		svc, _, _ := newTestPromotionService(t)

		_, err := svc.ReplacePromotion(ctx, "no-such-id", repository.Promotion{Name: "X"})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestPromotionService_PatchPromotion(t *testing.T) {
	ctx := context.Background()

	t.Run("patches only provided fields without events", func(t *testing.T) {
		svc, store, publisher := newTestPromotionService(t)
		_, err := store.SavePromotion(ctx, repository.Promotion{
			ID: "promo-1", Name: "Old", StartTime: testNow, EndTime: testNow.Add(time.Hour), DiscountRate: 0.1, Origin: repository.OriginManual,
		})
		require.NoError(t, err)

		newRate := 0.35
		updated, err := svc.PatchPromotion(ctx, "promo-1", PatchPromotionInput{DiscountRate: &newRate})
		require.NoError(t, err)

		assert.Equal(t, "Old", updated.Name)
		assert.Equal(t, 0.35, updated.DiscountRate)
		assert.Equal(t, testNow, updated.StartTime)

		assert.Empty(t, publisher.started)
		assert.Empty(t, publisher.ended)
		assert.Empty(t, publisher.updated)
	})

	t.Run("missing promotion returns ErrNotFound", func(t *testing.T) {
		svc, _, _ := newTestPromotionService(t)

		name := "X"
		_, err := svc.PatchPromotion(ctx, "no-such-id", PatchPromotionInput{Name: &name})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestPromotionService_DeletePromotion(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes promotion with links and publishes ended", func(t *testing.T) {
		svc, store, publisher := newTestPromotionService(t)
		_, err := store.SavePromotion(ctx, repository.Promotion{
			ID: "promo-1", Name: "Sale", StartTime: testNow, EndTime: testNow.Add(time.Hour), DiscountRate: 0.1,
		})
		require.NoError(t, err)
		_, err = store.SaveProductPromotion(ctx, repository.ProductPromotion{
			ID: "link-1", PromotionID: "promo-1", ProductID: "prod-a",
		})
		require.NoError(t, err)

		deleted, err := svc.DeletePromotion(ctx, "promo-1")
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = store.FindPromotion(ctx, "promo-1")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		links, err := store.FindProductPromotions(ctx, "prod-a")
		require.NoError(t, err)
		assert.Empty(t, links)

		require.Len(t, publisher.ended, 1)
		assert.Equal(t, "promo-1", publisher.ended[0].PromotionID)
	})

	t.Run("ended is published even for expired promotion", func(t *testing.T) {
		svc, store, publisher := newTestPromotionService(t)
		_, err := store.SavePromotion(ctx, repository.Promotion{
			ID: "expired", Name: "Old Sale", StartTime: testNow.Add(-72 * time.Hour), EndTime: testNow.Add(-48 * time.Hour), DiscountRate: 0.1,
		})
		require.NoError(t, err)

		deleted, err := svc.DeletePromotion(ctx, "expired")
		require.NoError(t, err)
		assert.True(t, deleted)
		assert.Len(t, publisher.ended, 1)
	})

	t.Run("missing promotion is a silent no-op", func(t *testing.T) {
		svc, _, publisher := newTestPromotionService(t)

		deleted, err := svc.DeletePromotion(ctx, "no-such-id")
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.Empty(t, publisher.ended)
	})
}
