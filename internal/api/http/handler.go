package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository"
	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/service"
)

// Handler содержит HTTP-обработчики для промоакций
// Зависит от service слоя, но не знает о деталях реализации (Kafka, БД и т.д.)
type Handler struct {
	logger     *zap.Logger
	promotions *service.PromotionService
}

// NewHandler создаёт новый HTTP handler
func NewHandler(logger *zap.Logger, promotions *service.PromotionService) *Handler {
	return &Handler{
		logger:     logger,
		promotions: promotions,
	}
}

// PromotionRequest представляет HTTP запрос на создание/замену промоакции
type PromotionRequest struct {
	Name         *string    `json:"name"`
	StartTime    *time.Time `json:"startTime"`
	EndTime      *time.Time `json:"endTime"`
	DiscountRate *float64   `json:"discountRate"`
}

// PromotionPatchRequest представляет частичное обновление промоакции
// Все поля опциональны, но хотя бы одно должно быть задано
type PromotionPatchRequest struct {
	Name         *string    `json:"name"`
	StartTime    *time.Time `json:"startTime"`
	EndTime      *time.Time `json:"endTime"`
	DiscountRate *float64   `json:"discountRate"`
}

// PromotionResponse представляет HTTP ответ с информацией о промоакции
type PromotionResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	DiscountRate float64   `json:"discountRate"`
	Origin       string    `json:"origin"`
}

func promotionResponse(p repository.Promotion) PromotionResponse {
	return PromotionResponse{
		ID:           p.ID,
		Name:         p.Name,
		StartTime:    p.StartTime,
		EndTime:      p.EndTime,
		DiscountRate: p.DiscountRate,
		Origin:       string(p.Origin),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// invalidWindow проверяет, что окно действия не вывернуто наизнанку
func invalidWindow(start, end time.Time) bool {
	return end.Before(start)
}

// invalidRate проверяет границы скидки [0, 1]
func invalidRate(rate float64) bool {
	return rate < 0 || rate > 1
}

// GetPromotions обрабатывает GET /promotions - список всех промоакций
func (h *Handler) GetPromotions(w http.ResponseWriter, r *http.Request) {
	promotions, err := h.promotions.GetPromotions(r.Context())
	if err != nil {
		h.logger.Error("failed to list promotions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list promotions")
		return
	}

	resp := make([]PromotionResponse, 0, len(promotions))
	for _, p := range promotions {
		resp = append(resp, promotionResponse(p))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetPromotion обрабатывает GET /promotions/{id}
func (h *Handler) GetPromotion(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.promotions.GetPromotion(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "promotion not found")
			return
		}
		h.logger.Error("failed to get promotion", zap.Error(err), zap.String("promotion_id", id))
		writeError(w, http.StatusInternalServerError, "failed to get promotion")
		return
	}

	writeJSON(w, http.StatusOK, promotionResponse(p))
}

// PostPromotions обрабатывает POST /promotions - создание промоакции
func (h *Handler) PostPromotions(w http.ResponseWriter, r *http.Request) {
	var req PromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if req.Name == nil || *req.Name == "" || req.StartTime == nil || req.EndTime == nil || req.DiscountRate == nil {
		writeError(w, http.StatusBadRequest, "name, startTime, endTime and discountRate are required")
		return
	}
	if invalidWindow(*req.StartTime, *req.EndTime) {
		writeError(w, http.StatusBadRequest, "endTime must not be before startTime")
		return
	}
	if invalidRate(*req.DiscountRate) {
		writeError(w, http.StatusBadRequest, "discountRate must be between 0 and 1")
		return
	}

	created, err := h.promotions.CreatePromotion(r.Context(), repository.Promotion{
		Name:         *req.Name,
		StartTime:    *req.StartTime,
		EndTime:      *req.EndTime,
		DiscountRate: *req.DiscountRate,
	})
	if err != nil {
		h.logger.Error("failed to create promotion", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create promotion")
		return
	}

	w.Header().Set("Location", "/promotions/"+created.ID)
	writeJSON(w, http.StatusCreated, promotionResponse(created))
}

// PutPromotion обрабатывает PUT /promotions/{id} - полная замена
func (h *Handler) PutPromotion(w http.ResponseWriter, r *http.Request, id string) {
	var req PromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if req.Name == nil || *req.Name == "" || req.StartTime == nil || req.EndTime == nil || req.DiscountRate == nil {
		writeError(w, http.StatusBadRequest, "name, startTime, endTime and discountRate are required")
		return
	}
	if invalidWindow(*req.StartTime, *req.EndTime) {
		writeError(w, http.StatusBadRequest, "endTime must not be before startTime")
		return
	}
	if invalidRate(*req.DiscountRate) {
		writeError(w, http.StatusBadRequest, "discountRate must be between 0 and 1")
		return
	}

	updated, err := h.promotions.ReplacePromotion(r.Context(), id, repository.Promotion{
		Name:         *req.Name,
		StartTime:    *req.StartTime,
		EndTime:      *req.EndTime,
		DiscountRate: *req.DiscountRate,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "promotion not found")
			return
		}
		h.logger.Error("failed to replace promotion", zap.Error(err), zap.String("promotion_id", id))
		writeError(w, http.StatusInternalServerError, "failed to replace promotion")
		return
	}

	writeJSON(w, http.StatusOK, promotionResponse(updated))
}

// PatchPromotion обрабатывает PATCH /promotions/{id} - частичное обновление
func (h *Handler) PatchPromotion(w http.ResponseWriter, r *http.Request, id string) {
	var req PromotionPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if req.Name == nil && req.StartTime == nil && req.EndTime == nil && req.DiscountRate == nil {
		writeError(w, http.StatusBadRequest, "at least one field must be provided")
		return
	}
	if req.StartTime != nil && req.EndTime != nil && invalidWindow(*req.StartTime, *req.EndTime) {
		writeError(w, http.StatusBadRequest, "endTime must not be before startTime")
		return
	}
	if req.DiscountRate != nil && invalidRate(*req.DiscountRate) {
		writeError(w, http.StatusBadRequest, "discountRate must be between 0 and 1")
		return
	}

	updated, err := h.promotions.PatchPromotion(r.Context(), id, service.PatchPromotionInput{
		Name:         req.Name,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		DiscountRate: req.DiscountRate,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "promotion not found")
			return
		}
		h.logger.Error("failed to patch promotion", zap.Error(err), zap.String("promotion_id", id))
		writeError(w, http.StatusInternalServerError, "failed to patch promotion")
		return
	}

	writeJSON(w, http.StatusOK, promotionResponse(updated))
}

// DeletePromotion обрабатывает DELETE /promotions/{id}
// 204 если промоакция удалена, 404 если её не было
func (h *Handler) DeletePromotion(w http.ResponseWriter, r *http.Request, id string) {
	deleted, err := h.promotions.DeletePromotion(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete promotion", zap.Error(err), zap.String("promotion_id", id))
		writeError(w, http.StatusInternalServerError, "failed to delete promotion")
		return
	}

	if !deleted {
		writeError(w, http.StatusNotFound, "promotion not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApplyItem представляет товар в запросе расчёта скидок
type ApplyItem struct {
	ProductID *string  `json:"productId"`
	Quantity  *int     `json:"quantity"`
	UnitPrice *float64 `json:"unitPrice"`
}

// ApplyRequest представляет запрос на расчёт скидок для корзины
type ApplyRequest struct {
	Now   *time.Time  `json:"now"`
	Items []ApplyItem `json:"items"`
}

// ApplyResponseItem представляет результат расчёта для одного товара
type ApplyResponseItem struct {
	ProductID      string  `json:"productId"`
	DiscountRate   float64 `json:"discountRate"`
	DiscountAmount float64 `json:"discountAmount"`
	FinalUnitPrice float64 `json:"finalUnitPrice"`
}

// ApplyResponse представляет ответ расчёта скидок
type ApplyResponse struct {
	Items []ApplyResponseItem `json:"items"`
}

// PostPromotionsApply обрабатывает POST /promotions/apply - расчёт скидок для корзины.
// Для каждого товара берётся лучшая (максимальная) активная ставка на момент now,
// finalUnitPrice = unitPrice * (1 - rate)
func (h *Handler) PostPromotionsApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	asOf := time.Now().UTC()
	if req.Now != nil {
		asOf = req.Now.UTC()
	}

	out := make([]ApplyResponseItem, 0, len(req.Items))
	for i, item := range req.Items {
		if item.ProductID == nil || *item.ProductID == "" {
			writeError(w, http.StatusBadRequest, "productId is required for each item")
			return
		}
		if item.UnitPrice == nil {
			writeError(w, http.StatusBadRequest, "unitPrice is required for each item")
			return
		}

		rate, ok, err := h.promotions.BestDiscountFor(ctx, *item.ProductID, asOf)
		if err != nil {
			h.logger.Error("failed to evaluate discount",
				zap.Error(err),
				zap.String("product_id", *item.ProductID),
				zap.Int("item_index", i),
			)
			writeError(w, http.StatusInternalServerError, "failed to evaluate discounts")
			return
		}
		if !ok {
			rate = 0
		}

		finalUnit := *item.UnitPrice * (1 - rate)
		out = append(out, ApplyResponseItem{
			ProductID:      *item.ProductID,
			DiscountRate:   rate,
			DiscountAmount: *item.UnitPrice - finalUnit,
			FinalUnitPrice: finalUnit,
		})
	}

	writeJSON(w, http.StatusOK, ApplyResponse{Items: out})
}
