// Package checkout turns a cart snapshot into a priced preview and, on
// confirmation, a persisted order. Placement reports partial success
// explicitly: once the order row exists it is the point of no return, and
// failures in the follow-up steps (stock, coupon usage, cart clear) degrade
// the result instead of failing it.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/avolkov/smartstore/internal/coupon"
	"github.com/avolkov/smartstore/internal/domain"
	"github.com/avolkov/smartstore/internal/order"
	"github.com/avolkov/smartstore/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const currency = "USD"

var ErrEmptyCart = errors.New("cart is empty, nothing to checkout")

// CouponRejectedError carries the first failing validation reason for a
// coupon the user tried to apply. Always recoverable: the user may retry
// with another code.
type CouponRejectedError struct {
	Code   string
	Reason coupon.Rejection
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Reason)
}

type CartStore interface {
	Snapshot(ctx context.Context, userID string) []domain.LineItem
	Clear(ctx context.Context, userID string)
}

type CouponSource interface {
	Find(ctx context.Context, code string) (*domain.Coupon, error)
}

type UsageRecorder interface {
	RecordUsage(ctx context.Context, code string) error
}

type StockAdjuster interface {
	DecrementStock(ctx context.Context, id string, quantity int) error
}

type OrderWriter interface {
	CreateOrder(ctx context.Context, order *domain.Order, eventPayload []byte) error
	GetOrderByCheckoutKey(ctx context.Context, key string) (*domain.Order, error)
}

type Service struct {
	carts   CartStore
	coupons CouponSource
	usage   UsageRecorder
	stock   StockAdjuster
	orders  OrderWriter
	cfg     pricing.Config
}

func NewService(carts CartStore, coupons CouponSource, usage UsageRecorder, stock StockAdjuster, orders OrderWriter, cfg pricing.Config) *Service {
	return &Service{
		carts:   carts,
		coupons: coupons,
		usage:   usage,
		stock:   stock,
		orders:  orders,
		cfg:     cfg,
	}
}

// Preview is the checkout summary shown before confirmation. It is safe to
// call any number of times; validating a coupon here consumes nothing.
type Preview struct {
	Items     []domain.LineItem
	Breakdown pricing.Breakdown

	CouponCode      string
	CouponApplied   bool
	CouponRejection coupon.Rejection
}

func (s *Service) Preview(ctx context.Context, userID, couponCode string) (*Preview, error) {
	items := s.carts.Snapshot(ctx, userID)

	p := &Preview{Items: items}

	var applied *domain.Coupon
	if couponCode != "" {
		p.CouponCode = domain.CanonicalCode(couponCode)
		found, rejection, err := s.resolveCoupon(ctx, couponCode, items)
		if err != nil {
			return nil, err
		}
		if rejection != coupon.RejectionNone {
			p.CouponRejection = rejection
		} else {
			applied = found
			p.CouponApplied = true
		}
	}

	p.Breakdown = pricing.Calculate(items, applied, s.cfg)
	if p.Breakdown.TotalClamped {
		log.Printf("pricing total clamped to zero for user %s, check discount configuration", userID)
	}
	return p, nil
}

type PlaceOrderRequest struct {
	UserID      string
	CheckoutKey string
	CouponCode  string
}

// PlacementResult reports what actually happened. AlreadyPlaced short-
// circuits repeated confirmations with the same checkout key. The remaining
// booleans cover the follow-up steps (CouponRecorded is only meaningful when
// the order carries a coupon); a step that failed leaves an entry in
// Warnings.
type PlacementResult struct {
	Order         *domain.Order
	AlreadyPlaced bool

	StockAdjusted  bool
	CouponRecorded bool
	CartCleared    bool
	Warnings       []string
}

func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlacementResult, error) {
	items := s.carts.Snapshot(ctx, req.UserID)
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	var applied *domain.Coupon
	if req.CouponCode != "" {
		found, rejection, err := s.resolveCoupon(ctx, req.CouponCode, items)
		if err != nil {
			return nil, err
		}
		if rejection != coupon.RejectionNone {
			return nil, &CouponRejectedError{Code: domain.CanonicalCode(req.CouponCode), Reason: rejection}
		}
		applied = found
	}

	breakdown := pricing.Calculate(items, applied, s.cfg)
	if breakdown.TotalClamped {
		log.Printf("pricing total clamped to zero for user %s, check discount configuration", req.UserID)
	}

	ord := buildOrder(req, items, applied, breakdown)

	payload, err := eventPayload(ord)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order payload: %w", err)
	}

	if err := s.orders.CreateOrder(ctx, ord, payload); err != nil {
		if errors.Is(err, order.ErrDuplicateCheckout) {
			existing, getErr := s.orders.GetOrderByCheckoutKey(ctx, req.CheckoutKey)
			if getErr != nil {
				return nil, fmt.Errorf("duplicate checkout, failed to load original: %w", getErr)
			}
			log.Printf("duplicate checkout key %s, returning order %s", req.CheckoutKey, existing.ID)
			return &PlacementResult{Order: existing, AlreadyPlaced: true}, nil
		}
		return nil, err
	}

	result := &PlacementResult{Order: ord, StockAdjusted: true}
	s.finishPlacement(ctx, req, items, applied, result)
	return result, nil
}

// finishPlacement runs the best-effort steps after the order row exists.
// There is no compensating transaction; failures are reported, not rolled
// back.
func (s *Service) finishPlacement(ctx context.Context, req PlaceOrderRequest, items []domain.LineItem, applied *domain.Coupon, result *PlacementResult) {
	for _, item := range items {
		if err := s.stock.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			result.StockAdjusted = false
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("stock for product %s not adjusted: %v", item.ProductID, err))
		}
	}

	if applied != nil {
		if err := s.usage.RecordUsage(ctx, applied.Code); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("coupon %s usage not recorded: %v", applied.Code, err))
		} else {
			result.CouponRecorded = true
		}
	}

	s.carts.Clear(ctx, req.UserID)
	result.CartCleared = true
}

// resolveCoupon looks the code up and validates it against the snapshot's
// subtotal. A missing code is a rejection, not an error; only lookup
// infrastructure failures surface as errors.
func (s *Service) resolveCoupon(ctx context.Context, code string, items []domain.LineItem) (*domain.Coupon, coupon.Rejection, error) {
	found, err := s.coupons.Find(ctx, code)
	if err != nil {
		if errors.Is(err, coupon.ErrCouponNotFound) {
			return nil, coupon.RejectionNotFound, nil
		}
		return nil, coupon.RejectionNone, fmt.Errorf("coupon lookup failed: %w", err)
	}

	subtotal := subtotalOf(items)
	if rejection := coupon.Validate(*found, subtotal, time.Now()); rejection != coupon.RejectionNone {
		return nil, rejection, nil
	}
	return found, coupon.RejectionNone, nil
}

func buildOrder(req PlaceOrderRequest, items []domain.LineItem, applied *domain.Coupon, b pricing.Breakdown) *domain.Order {
	orderItems := make([]domain.OrderItem, len(items))
	for i, item := range items {
		orderItems[i] = domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}

	couponCode := ""
	if applied != nil {
		couponCode = applied.Code
	}

	return &domain.Order{
		ID:          uuid.New(),
		CheckoutKey: req.CheckoutKey,
		UserID:      req.UserID,
		Items:       orderItems,
		CouponCode:  couponCode,
		Subtotal:    b.Subtotal,
		TaxAmount:   b.Tax,
		Shipping:    b.Shipping,
		Discount:    b.Discount,
		Total:       b.Total,
		Currency:    currency,
		Status:      domain.OrderStatusConfirmed,
	}
}

func eventPayload(ord *domain.Order) ([]byte, error) {
	payload := map[string]interface{}{
		"order_id":     ord.ID.String(),
		"checkout_key": ord.CheckoutKey,
		"user_id":      ord.UserID,
		"items":        ord.Items,
		"total":        ord.Total,
		"currency":     ord.Currency,
		"placed_at":    time.Now(),
	}
	return json.Marshal(payload)
}

func subtotalOf(items []domain.LineItem) (subtotal decimal.Decimal) {
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	return subtotal
}
