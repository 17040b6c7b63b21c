package httpapi

import (
	"net/http"
	"time"

	"github.com/avolkov/smartstore/internal/domain"
	o "github.com/avolkov/smartstore/internal/order"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrdersHandler struct {
	orders  o.OrderRepository
	timeout time.Duration
}

func NewOrdersHandler(orders o.OrderRepository, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

type orderItemView struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

type orderView struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Items      []orderItemView `json:"items"`
	CouponCode string          `json:"coupon_code,omitempty"`
	Breakdown  breakdownView   `json:"breakdown"`
	Currency   string          `json:"currency"`
	CreatedAt  time.Time       `json:"created_at"`
}

func orderViewOf(ord *domain.Order) orderView {
	items := make([]orderItemView, len(ord.Items))
	for i, item := range ord.Items {
		items[i] = orderItemView{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.RoundBank(2).StringFixed(2),
		}
	}
	return orderView{
		ID:         ord.ID.String(),
		Status:     string(ord.Status),
		Items:      items,
		CouponCode: ord.CouponCode,
		Breakdown: breakdownView{
			Subtotal: ord.Subtotal.RoundBank(2).StringFixed(2),
			Tax:      ord.TaxAmount.RoundBank(2).StringFixed(2),
			Shipping: ord.Shipping.RoundBank(2).StringFixed(2),
			Discount: ord.Discount.RoundBank(2).StringFixed(2),
			Total:    ord.Total.RoundBank(2).StringFixed(2),
		},
		Currency:  ord.Currency,
		CreatedAt: ord.CreatedAt,
	}
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	ctx, cancel := timeoutContext(r, h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrdersByUserID(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	views := make([]orderView, len(orders))
	for i, ord := range orders {
		views[i] = orderViewOf(ord)
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	ctx, cancel := timeoutContext(r, h.timeout)
	defer cancel()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a UUID")
		return
	}

	ord, err := h.orders.GetOrderByID(ctx, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if ord.UserID != userID {
		// Don't leak existence of other users' orders.
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
		return
	}
	respondJSON(w, http.StatusOK, orderViewOf(ord))
}
