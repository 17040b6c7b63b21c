// Package pricing turns a cart snapshot plus an optional validated coupon
// into a price breakdown. Calculate is a pure function: no I/O, no hidden
// state, identical inputs produce identical outputs.
//
// All amounts are kept at full precision; rounding to two places happens
// only at the presentation boundary via Breakdown.Rounded, using banker's
// rounding so chained subtotal→tax→total computations don't compound error.
package pricing

import (
	"github.com/avolkov/smartstore/internal/domain"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax_amount"`
	Shipping decimal.Decimal `json:"shipping_amount"`
	Discount decimal.Decimal `json:"discount_amount"`
	Total    decimal.Decimal `json:"total"`

	// TotalClamped is set when the computed total went negative and was
	// floored at zero. Discounts are capped at the subtotal, so this only
	// fires on a misconfigured Config. Log it; never show it to users.
	TotalClamped bool `json:"-"`
}

// Calculate prices the given items under cfg, applying coupon if non-nil.
// The coupon must already have been validated; Calculate only computes the
// discount it yields.
func Calculate(items []domain.LineItem, coupon *domain.Coupon, cfg Config) Breakdown {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}

	tax := subtotal.Mul(cfg.TaxRate)
	shipping := shippingFor(subtotal, len(items), cfg)
	discount := discountFor(subtotal, coupon)

	total := subtotal.Add(tax).Add(shipping).Sub(discount)
	clamped := false
	if total.IsNegative() {
		total = decimal.Zero
		clamped = true
	}

	return Breakdown{
		Subtotal:     subtotal,
		Tax:          tax,
		Shipping:     shipping,
		Discount:     discount,
		Total:        total,
		TotalClamped: clamped,
	}
}

func shippingFor(subtotal decimal.Decimal, itemCount int, cfg Config) decimal.Decimal {
	if itemCount == 0 && cfg.FreeShippingOnEmptyCart {
		return decimal.Zero
	}
	// Strictly greater than: a subtotal exactly at the threshold still pays.
	if subtotal.GreaterThan(cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return cfg.FlatShippingFee
}

func discountFor(subtotal decimal.Decimal, coupon *domain.Coupon) decimal.Decimal {
	if coupon == nil {
		return decimal.Zero
	}

	switch coupon.Type {
	case domain.CouponTypePercentage:
		discount := subtotal.Mul(coupon.Value).Div(oneHundred)
		if coupon.MaximumDiscount != nil && discount.GreaterThan(*coupon.MaximumDiscount) {
			discount = *coupon.MaximumDiscount
		}
		if discount.GreaterThan(subtotal) {
			discount = subtotal
		}
		return discount
	case domain.CouponTypeFixedAmount:
		if coupon.Value.GreaterThan(subtotal) {
			return subtotal
		}
		return coupon.Value
	}
	return decimal.Zero
}

// Rounded returns a presentation copy with every amount rounded to two
// places, half to even. The total is recomputed from the rounded parts so
// the displayed columns always sum.
func (b Breakdown) Rounded() Breakdown {
	r := Breakdown{
		Subtotal:     b.Subtotal.RoundBank(2),
		Tax:          b.Tax.RoundBank(2),
		Shipping:     b.Shipping.RoundBank(2),
		Discount:     b.Discount.RoundBank(2),
		TotalClamped: b.TotalClamped,
	}
	r.Total = r.Subtotal.Add(r.Tax).Add(r.Shipping).Sub(r.Discount)
	if r.Total.IsNegative() {
		r.Total = decimal.Zero
		r.TotalClamped = true
	}
	return r
}
