package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/avolkov/smartstore/internal/cart"
	"github.com/avolkov/smartstore/internal/catalog"
	"github.com/avolkov/smartstore/internal/checkout"
	"github.com/avolkov/smartstore/internal/coupon"
	"github.com/avolkov/smartstore/internal/order"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError converts known service errors into HTTP responses.
// Everything unrecognized is a 500 with a generic body; the detail goes to
// the log, not the client.
func handleServiceError(w http.ResponseWriter, err error) {
	var rejected *checkout.CouponRejectedError
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity out of range")
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, catalog.ErrInsufficientStock):
		respondError(w, http.StatusConflict, "insufficient_stock", "not enough stock")
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", "cart is empty")
	case errors.As(err, &rejected):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   rejected.Reason.Message(),
			Code:    "coupon_rejected",
			Details: string(rejected.Reason),
		})
	case errors.Is(err, coupon.ErrCouponNotFound):
		respondError(w, http.StatusNotFound, "coupon_not_found", "no such coupon code")
	case errors.Is(err, order.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
