package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/avolkov/smartstore/internal/checkout"
	"github.com/avolkov/smartstore/internal/pricing"
)

type CheckoutHandler struct {
	checkout *checkout.Service
	timeout  time.Duration
}

func NewCheckoutHandler(svc *checkout.Service, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: svc,
		timeout:  timeout,
	}
}

type PreviewRequestDTO struct {
	CouponCode string `json:"coupon_code,omitempty"`
}

type PlaceOrderRequestDTO struct {
	CheckoutKey string `json:"checkout_key"`
	CouponCode  string `json:"coupon_code,omitempty"`
}

type breakdownView struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax_amount"`
	Shipping string `json:"shipping_amount"`
	Discount string `json:"discount_amount"`
	Total    string `json:"total"`
}

// breakdownViewOf renders the presentation copy: two decimal places, half to
// even. The stored breakdown keeps full precision.
func breakdownViewOf(b pricing.Breakdown) breakdownView {
	r := b.Rounded()
	return breakdownView{
		Subtotal: r.Subtotal.StringFixed(2),
		Tax:      r.Tax.StringFixed(2),
		Shipping: r.Shipping.StringFixed(2),
		Discount: r.Discount.StringFixed(2),
		Total:    r.Total.StringFixed(2),
	}
}

type previewView struct {
	Cart            cartView      `json:"cart"`
	Breakdown       breakdownView `json:"breakdown"`
	CouponCode      string        `json:"coupon_code,omitempty"`
	CouponApplied   bool          `json:"coupon_applied"`
	CouponRejection string        `json:"coupon_rejection,omitempty"`
}

type couponCheckView struct {
	CouponCode string `json:"coupon_code"`
	Valid      bool   `json:"valid"`
	Rejection  string `json:"rejection,omitempty"`
	Discount   string `json:"discount_amount"`
}

type placementView struct {
	OrderID        string        `json:"order_id"`
	Status         string        `json:"status"`
	Breakdown      breakdownView `json:"breakdown"`
	CouponCode     string        `json:"coupon_code,omitempty"`
	AlreadyPlaced  bool          `json:"already_placed"`
	StockAdjusted  bool          `json:"stock_adjusted"`
	CouponRecorded bool          `json:"coupon_recorded"`
	CartCleared    bool          `json:"cart_cleared"`
	Warnings       []string      `json:"warnings,omitempty"`
}

func (h *CheckoutHandler) Preview(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	ctx, cancel := timeoutContext(r, h.timeout)
	defer cancel()

	var req PreviewRequestDTO
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	preview, err := h.checkout.Preview(ctx, userID, req.CouponCode)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, previewView{
		Cart:            cartViewOf(preview.Items),
		Breakdown:       breakdownViewOf(preview.Breakdown),
		CouponCode:      preview.CouponCode,
		CouponApplied:   preview.CouponApplied,
		CouponRejection: string(preview.CouponRejection),
	})
}

// CheckCoupon prices the caller's current cart against a coupon without
// placing anything. Usage counters are untouched.
func (h *CheckoutHandler) CheckCoupon(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	ctx, cancel := timeoutContext(r, h.timeout)
	defer cancel()

	var req PreviewRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.CouponCode == "" {
		respondError(w, http.StatusBadRequest, "invalid_coupon_code", "coupon_code is required")
		return
	}

	preview, err := h.checkout.Preview(ctx, userID, req.CouponCode)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, couponCheckView{
		CouponCode: preview.CouponCode,
		Valid:      preview.CouponApplied,
		Rejection:  string(preview.CouponRejection),
		Discount:   preview.Breakdown.Rounded().Discount.StringFixed(2),
	})
}

func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	ctx, cancel := timeoutContext(r, h.timeout)
	defer cancel()

	var req PlaceOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.CheckoutKey == "" {
		respondError(w, http.StatusBadRequest, "invalid_checkout_key", "checkout_key is required")
		return
	}

	result, err := h.checkout.PlaceOrder(ctx, checkout.PlaceOrderRequest{
		UserID:      userID,
		CheckoutKey: req.CheckoutKey,
		CouponCode:  req.CouponCode,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyPlaced {
		status = http.StatusOK
	}

	ord := result.Order
	respondJSON(w, status, placementView{
		OrderID: ord.ID.String(),
		Status:  string(ord.Status),
		Breakdown: breakdownViewOf(pricing.Breakdown{
			Subtotal: ord.Subtotal,
			Tax:      ord.TaxAmount,
			Shipping: ord.Shipping,
			Discount: ord.Discount,
			Total:    ord.Total,
		}),
		CouponCode:     ord.CouponCode,
		AlreadyPlaced:  result.AlreadyPlaced,
		StockAdjusted:  result.StockAdjusted,
		CouponRecorded: result.CouponRecorded,
		CartCleared:    result.CartCleared,
		Warnings:       result.Warnings,
	})
}
