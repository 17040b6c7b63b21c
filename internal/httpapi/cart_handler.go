package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/avolkov/smartstore/internal/cart"
	"github.com/avolkov/smartstore/internal/catalog"
	"github.com/avolkov/smartstore/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	carts   *cart.Store
	catalog *catalog.Service
	timeout time.Duration
}

func NewCartHandler(carts *cart.Store, catalog *catalog.Service, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		catalog: catalog,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type lineItemView struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
}

type cartView struct {
	Items         []lineItemView `json:"items"`
	TotalQuantity int            `json:"total_quantity"`
	TotalPrice    string         `json:"total_price"`
}

func cartViewOf(items []domain.LineItem) cartView {
	view := cartView{Items: make([]lineItemView, len(items))}
	for i, item := range items {
		view.Items[i] = lineItemView{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice.RoundBank(2).StringFixed(2),
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal().RoundBank(2).StringFixed(2),
		}
		view.TotalQuantity += item.Quantity
	}

	aggregate := domain.Cart{Items: items}
	view.TotalPrice = aggregate.TotalPrice().RoundBank(2).StringFixed(2)
	return view
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	respondJSON(w, http.StatusOK, cartViewOf(h.carts.Snapshot(ctx, userID)))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity < 1 || req.Quantity > domain.MaxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 5")
		return
	}

	// The catalog owns product data; the cart stores a copy of the display
	// fields taken here, at add time.
	product, err := h.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.carts.AddItem(ctx, userID, *product, req.Quantity); err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, cartViewOf(h.carts.Snapshot(ctx, userID)))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.carts.SetQuantity(ctx, userID, productID, req.Quantity); err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cartViewOf(h.carts.Snapshot(ctx, userID)))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	h.carts.RemoveItem(ctx, userID, productID)
	respondJSON(w, http.StatusOK, cartViewOf(h.carts.Snapshot(ctx, userID)))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	h.carts.Clear(ctx, userID)
	respondJSON(w, http.StatusOK, cartViewOf(nil))
}

func (h *CartHandler) begin(w http.ResponseWriter, r *http.Request) (context.Context, context.CancelFunc, string, bool) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return nil, nil, "", false
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	return ctx, cancel, userID, true
}
