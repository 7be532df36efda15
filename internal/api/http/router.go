package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	platformhealth "github.com/billjohnathan8/CS302-DonDonDevOps/platform/health/http"
	platformobservability "github.com/billjohnathan8/CS302-DonDonDevOps/platform/observability"
)

// NewRouter создаёт и настраивает HTTP роутер сервиса промоакций
// readiness - функция для проверки готовности сервиса (например, проверка БД).
// Если readiness возвращает false, health endpoint вернёт 503 Service Unavailable.
// logger используется для observability HTTP middleware (trace_id в логах).
func NewRouter(handler *Handler, linkHandler *ProductPromotionHandler, readiness func() bool, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	// Observability: trace context + span на каждый запрос, logger с trace_id в контексте
	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("promotions", logger))
	}

	router.Route("/promotions", func(r chi.Router) {
		r.Get("/", handler.GetPromotions)
		r.Post("/", handler.PostPromotions)
		r.Post("/apply", handler.PostPromotionsApply)
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			handler.GetPromotion(w, r, chi.URLParam(r, "id"))
		})
		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			handler.PutPromotion(w, r, chi.URLParam(r, "id"))
		})
		r.Patch("/{id}", func(w http.ResponseWriter, r *http.Request) {
			handler.PatchPromotion(w, r, chi.URLParam(r, "id"))
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			handler.DeletePromotion(w, r, chi.URLParam(r, "id"))
		})
		r.Get("/{id}/products", func(w http.ResponseWriter, r *http.Request) {
			linkHandler.GetProductsForPromotion(w, r, chi.URLParam(r, "id"))
		})
	})

	router.Route("/product-promotions", func(r chi.Router) {
		r.Get("/", linkHandler.GetProductPromotions)
		r.Post("/", linkHandler.PostProductPromotions)
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			linkHandler.GetProductPromotion(w, r, chi.URLParam(r, "id"))
		})
		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			linkHandler.PutProductPromotion(w, r, chi.URLParam(r, "id"))
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			linkHandler.DeleteProductPromotion(w, r, chi.URLParam(r, "id"))
		})
	})

	router.Get("/products/{productId}/promotions", func(w http.ResponseWriter, r *http.Request) {
		linkHandler.GetPromotionsForProduct(w, r, chi.URLParam(r, "productId"))
	})

	// Health без middleware промоакций (для k8s проб)
	router.Get("/health", platformhealth.Handler(readiness))

	return router
}
