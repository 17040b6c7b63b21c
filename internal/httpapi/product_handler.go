package httpapi

import (
	"net/http"
	"time"

	"github.com/avolkov/smartstore/internal/catalog"
	"github.com/avolkov/smartstore/internal/domain"
	"github.com/go-chi/chi/v5"
)

type ProductHandler struct {
	catalog *catalog.Service
	timeout time.Duration
}

func NewProductHandler(svc *catalog.Service, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		catalog: svc,
		timeout: timeout,
	}
}

type productView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	ImageURL    string `json:"image_url"`
	InStock     bool   `json:"in_stock"`
}

func productViewOf(p *domain.Product) productView {
	return productView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.RoundBank(2).StringFixed(2),
		ImageURL:    p.ImageURL,
		InStock:     p.Stock > 0,
	}
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeoutContext(r, h.timeout)
	defer cancel()

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	views := make([]productView, len(products))
	for i, p := range products {
		views[i] = productViewOf(p)
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeoutContext(r, h.timeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id is required")
		return
	}

	product, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, productViewOf(product))
}
