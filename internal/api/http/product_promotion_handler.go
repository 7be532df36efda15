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

// ProductPromotionHandler содержит HTTP-обработчики для связей товар-промоакция
type ProductPromotionHandler struct {
	logger *zap.Logger
	links  *service.ProductPromotionService
}

// NewProductPromotionHandler создаёт новый handler для связей
func NewProductPromotionHandler(logger *zap.Logger, links *service.ProductPromotionService) *ProductPromotionHandler {
	return &ProductPromotionHandler{
		logger: logger,
		links:  links,
	}
}

// ProductPromotionRequest представляет запрос на создание/обновление связи
type ProductPromotionRequest struct {
	PromotionID *string `json:"promotionId"`
	ProductID   *string `json:"productId"`
}

// ProductPromotionResponse представляет связь товар-промоакция
type ProductPromotionResponse struct {
	ID          string `json:"id"`
	PromotionID string `json:"promotionId"`
	ProductID   string `json:"productId"`
}

// ProductPromotionDetailResponse представляет промоакцию, привязанную к товару
type ProductPromotionDetailResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	DiscountRate float64   `json:"discountRate"`
}

// PromotionProductDetailResponse представляет товар, привязанный к промоакции
type PromotionProductDetailResponse struct {
	ProductID string `json:"productId"`
}

func linkResponse(link repository.ProductPromotion) ProductPromotionResponse {
	return ProductPromotionResponse{
		ID:          link.ID,
		PromotionID: link.PromotionID,
		ProductID:   link.ProductID,
	}
}

// GetProductPromotions обрабатывает GET /product-promotions - список всех связей
func (h *ProductPromotionHandler) GetProductPromotions(w http.ResponseWriter, r *http.Request) {
	links, err := h.links.GetAllProductPromotions(r.Context())
	if err != nil {
		h.logger.Error("failed to list product promotions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list product promotions")
		return
	}

	resp := make([]ProductPromotionResponse, 0, len(links))
	for _, link := range links {
		resp = append(resp, linkResponse(link))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetProductPromotion обрабатывает GET /product-promotions/{id}
func (h *ProductPromotionHandler) GetProductPromotion(w http.ResponseWriter, r *http.Request, id string) {
	link, err := h.links.GetProductPromotion(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product promotion not found")
			return
		}
		h.logger.Error("failed to get product promotion", zap.Error(err), zap.String("link_id", id))
		writeError(w, http.StatusInternalServerError, "failed to get product promotion")
		return
	}

	writeJSON(w, http.StatusOK, linkResponse(link))
}

// PostProductPromotions обрабатывает POST /product-promotions - привязка товара к промоакции
func (h *ProductPromotionHandler) PostProductPromotions(w http.ResponseWriter, r *http.Request) {
	var req ProductPromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if req.PromotionID == nil || *req.PromotionID == "" || req.ProductID == nil || *req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "promotionId and productId are required")
		return
	}

	created, err := h.links.CreateProductPromotion(r.Context(), *req.PromotionID, *req.ProductID)
	if err != nil {
		if errors.Is(err, service.ErrPromotionNotFound) || errors.Is(err, service.ErrInvalidDiscountRate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create product promotion",
			zap.Error(err),
			zap.String("promotion_id", *req.PromotionID),
			zap.String("product_id", *req.ProductID),
		)
		writeError(w, http.StatusInternalServerError, "failed to create product promotion")
		return
	}

	w.Header().Set("Location", "/product-promotions/"+created.ID)
	writeJSON(w, http.StatusCreated, linkResponse(created))
}

// PutProductPromotion обрабатывает PUT /product-promotions/{id} - перенацеливание связи
func (h *ProductPromotionHandler) PutProductPromotion(w http.ResponseWriter, r *http.Request, id string) {
	var req ProductPromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if req.PromotionID == nil || *req.PromotionID == "" || req.ProductID == nil || *req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "promotionId and productId are required")
		return
	}

	updated, err := h.links.UpdateProductPromotion(r.Context(), id, *req.PromotionID, *req.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product promotion not found")
			return
		}
		if errors.Is(err, service.ErrPromotionNotFound) || errors.Is(err, service.ErrInvalidDiscountRate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to update product promotion", zap.Error(err), zap.String("link_id", id))
		writeError(w, http.StatusInternalServerError, "failed to update product promotion")
		return
	}

	writeJSON(w, http.StatusOK, linkResponse(updated))
}

// DeleteProductPromotion обрабатывает DELETE /product-promotions/{id}
// 204 если связь удалена, 404 если её не было
func (h *ProductPromotionHandler) DeleteProductPromotion(w http.ResponseWriter, r *http.Request, id string) {
	deleted, err := h.links.DeleteProductPromotion(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete product promotion", zap.Error(err), zap.String("link_id", id))
		writeError(w, http.StatusInternalServerError, "failed to delete product promotion")
		return
	}

	if !deleted {
		writeError(w, http.StatusNotFound, "product promotion not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetPromotionsForProduct обрабатывает GET /products/{productId}/promotions
// Возвращает промоакции, привязанные к товару (висячие ссылки пропускаются)
func (h *ProductPromotionHandler) GetPromotionsForProduct(w http.ResponseWriter, r *http.Request, productID string) {
	promotions, err := h.links.FindPromotionsForProduct(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to find promotions for product", zap.Error(err), zap.String("product_id", productID))
		writeError(w, http.StatusInternalServerError, "failed to find promotions for product")
		return
	}

	resp := make([]ProductPromotionDetailResponse, 0, len(promotions))
	for _, p := range promotions {
		resp = append(resp, ProductPromotionDetailResponse{
			ID:           p.ID,
			Name:         p.Name,
			StartTime:    p.StartTime,
			EndTime:      p.EndTime,
			DiscountRate: p.DiscountRate,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetProductsForPromotion обрабатывает GET /promotions/{id}/products
// Возвращает товары, привязанные к промоакции
func (h *ProductPromotionHandler) GetProductsForPromotion(w http.ResponseWriter, r *http.Request, promotionID string) {
	links, err := h.links.FindProductPromotionsByPromotion(r.Context(), promotionID)
	if err != nil {
		h.logger.Error("failed to find products for promotion", zap.Error(err), zap.String("promotion_id", promotionID))
		writeError(w, http.StatusInternalServerError, "failed to find products for promotion")
		return
	}

	resp := make([]PromotionProductDetailResponse, 0, len(links))
	for _, link := range links {
		resp = append(resp, PromotionProductDetailResponse{ProductID: link.ProductID})
	}

	writeJSON(w, http.StatusOK, resp)
}
