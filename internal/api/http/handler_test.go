package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository/memory"
	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/service"
)

var testNow = time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC)

// nopPublisher отбрасывает события: HTTP тесты проверяют транспорт, не события
type nopPublisher struct{}

func (nopPublisher) PublishPromotionStarted(ctx context.Context, event service.PromotionStartedEvent) service.PublishResult {
	return service.PublishResult{}
}

func (nopPublisher) PublishPromotionEnded(ctx context.Context, event service.PromotionEndedEvent) service.PublishResult {
	return service.PublishResult{}
}

func (nopPublisher) PublishProductPromotionUpdated(ctx context.Context, event service.ProductPromotionUpdatedEvent) service.PublishResult {
	return service.PublishResult{}
}

func newTestRouter(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	logger := zap.NewNop()

	promotions := service.NewPromotionServiceWithClock(logger, store, nopPublisher{}, func() time.Time { return testNow })
	links := service.NewProductPromotionService(logger, store, nopPublisher{})

	handler := NewHandler(logger, promotions)
	linkHandler := NewProductPromotionHandler(logger, links)
	return NewRouter(handler, linkHandler, nil, nil), store
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPromotionLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	// Создание промоакции Black Friday
	rec := doJSON(t, router, http.MethodPost, "/promotions", map[string]any{
		"name":         "Black Friday",
		"startTime":    "2025-10-29T00:00:00Z",
		"endTime":      "2025-10-30T00:00:00Z",
		"discountRate": 0.15,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeBody[PromotionResponse](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Black Friday", created.Name)
	assert.Equal(t, 0.15, created.DiscountRate)
	assert.Equal(t, "manual", created.Origin)
	assert.Equal(t, "/promotions/"+created.ID, rec.Header().Get("Location"))

	// Чтение по id
	rec = doJSON(t, router, http.MethodGet, "/promotions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[PromotionResponse](t, rec)
	assert.Equal(t, created.ID, got.ID)

	// Список
	rec = doJSON(t, router, http.MethodGet, "/promotions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]PromotionResponse](t, rec)
	assert.Len(t, list, 1)

	// Полная замена
	rec = doJSON(t, router, http.MethodPut, "/promotions/"+created.ID, map[string]any{
		"name":         "Black Friday Extended",
		"startTime":    "2025-10-29T00:00:00Z",
		"endTime":      "2025-10-31T00:00:00Z",
		"discountRate": 0.2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	replaced := decodeBody[PromotionResponse](t, rec)
	assert.Equal(t, "Black Friday Extended", replaced.Name)
	assert.Equal(t, 0.2, replaced.DiscountRate)

	// Частичное обновление одного поля
	rec = doJSON(t, router, http.MethodPatch, "/promotions/"+created.ID, map[string]any{
		"discountRate": 0.25,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decodeBody[PromotionResponse](t, rec)
	assert.Equal(t, "Black Friday Extended", patched.Name)
	assert.Equal(t, 0.25, patched.DiscountRate)

	// Удаление
	rec = doJSON(t, router, http.MethodDelete, "/promotions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/promotions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostPromotions_Validation(t *testing.T) {
	router, _ := newTestRouter(t)

	valid := func() map[string]any {
		return map[string]any{
			"name":         "Black Friday",
			"startTime":    "2025-10-29T00:00:00Z",
			"endTime":      "2025-10-30T00:00:00Z",
			"discountRate": 0.15,
		}
	}

	tests := []struct {
		name   string
		mutate func(body map[string]any)
	}{
		{"missing name", func(b map[string]any) { delete(b, "name") }},
		{"empty name", func(b map[string]any) { b["name"] = "" }},
		{"missing startTime", func(b map[string]any) { delete(b, "startTime") }},
		{"missing endTime", func(b map[string]any) { delete(b, "endTime") }},
		{"missing discountRate", func(b map[string]any) { delete(b, "discountRate") }},
		{"inverted window", func(b map[string]any) {
			b["startTime"] = "2025-10-30T00:00:00Z"
			b["endTime"] = "2025-10-29T00:00:00Z"
		}},
		{"rate above one", func(b map[string]any) { b["discountRate"] = 1.5 }},
		{"negative rate", func(b map[string]any) { b["discountRate"] = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			tt.mutate(body)

			rec := doJSON(t, router, http.MethodPost, "/promotions", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			errBody := decodeBody[map[string]string](t, rec)
			assert.NotEmpty(t, errBody["error"])
		})
	}

	t.Run("zero-length window is allowed", func(t *testing.T) {
		body := valid()
		body["endTime"] = body["startTime"]

		rec := doJSON(t, router, http.MethodPost, "/promotions", body)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/promotions", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPatchPromotion_Validation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/promotions", map[string]any{
		"name":         "Black Friday",
		"startTime":    "2025-10-29T00:00:00Z",
		"endTime":      "2025-10-30T00:00:00Z",
		"discountRate": 0.15,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[PromotionResponse](t, rec)

	t.Run("empty patch rejected", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPatch, "/promotions/"+created.ID, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("inverted window rejected", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPatch, "/promotions/"+created.ID, map[string]any{
			"startTime": "2025-11-02T00:00:00Z",
			"endTime":   "2025-11-01T00:00:00Z",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rate out of range rejected", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPatch, "/promotions/"+created.ID, map[string]any{
			"discountRate": 2.0,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPatch, "/promotions/missing", map[string]any{
			"discountRate": 0.1,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetPromotion_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/promotions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/promotions/missing", map[string]any{
		"name":         "X",
		"startTime":    "2025-10-29T00:00:00Z",
		"endTime":      "2025-10-30T00:00:00Z",
		"discountRate": 0.1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostPromotionsApply(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/promotions", map[string]any{
		"name":         "Black Friday",
		"startTime":    "2025-10-29T00:00:00Z",
		"endTime":      "2025-10-30T00:00:00Z",
		"discountRate": 0.15,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	promo := decodeBody[PromotionResponse](t, rec)

	rec = doJSON(t, router, http.MethodPost, "/product-promotions", map[string]any{
		"promotionId": promo.ID,
		"productId":   "prod-a",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("active promotion discounts item", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/promotions/apply", map[string]any{
			"now": "2025-10-29T12:00:00Z",
			"items": []map[string]any{
				{"productId": "prod-a", "quantity": 2, "unitPrice": 100.0},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeBody[ApplyResponse](t, rec)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "prod-a", resp.Items[0].ProductID)
		assert.Equal(t, 0.15, resp.Items[0].DiscountRate)
		assert.InDelta(t, 15.0, resp.Items[0].DiscountAmount, 1e-9)
		assert.InDelta(t, 85.0, resp.Items[0].FinalUnitPrice, 1e-9)
	})

	t.Run("expired promotion gives zero discount", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/promotions/apply", map[string]any{
			"now": "2025-10-31T00:00:00Z",
			"items": []map[string]any{
				{"productId": "prod-a", "unitPrice": 100.0},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeBody[ApplyResponse](t, rec)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, 0.0, resp.Items[0].DiscountRate)
		assert.Equal(t, 100.0, resp.Items[0].FinalUnitPrice)
	})

	t.Run("unknown product gives zero discount", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/promotions/apply", map[string]any{
			"now": "2025-10-29T12:00:00Z",
			"items": []map[string]any{
				{"productId": "other", "unitPrice": 50.0},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeBody[ApplyResponse](t, rec)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, 0.0, resp.Items[0].DiscountRate)
		assert.Equal(t, 50.0, resp.Items[0].FinalUnitPrice)
	})

	t.Run("empty cart", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/promotions/apply", map[string]any{
			"items": []map[string]any{},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeBody[ApplyResponse](t, rec)
		assert.Empty(t, resp.Items)
	})

	t.Run("item without productId rejected", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/promotions/apply", map[string]any{
			"items": []map[string]any{
				{"unitPrice": 50.0},
			},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("item without unitPrice rejected", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/promotions/apply", map[string]any{
			"items": []map[string]any{
				{"productId": "prod-a"},
			},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
