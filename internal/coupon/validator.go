// Package coupon decides whether a coupon applies to an order and owns the
// coupon store. Validation is side-effect free; usage is recorded separately
// at the moment an order is actually placed.
package coupon

import (
	"time"

	"github.com/avolkov/smartstore/internal/domain"
	"github.com/shopspring/decimal"
)

// Rejection is the reason a coupon cannot be applied. Rejections are return
// values, not errors: a rejected code is an expected, frequent user outcome.
type Rejection string

const (
	RejectionNone              Rejection = ""
	RejectionInactive          Rejection = "inactive"
	RejectionExpired           Rejection = "expired"
	RejectionUsageLimitReached Rejection = "usage_limit_reached"
	RejectionBelowMinimum      Rejection = "below_minimum"
	RejectionNotFound          Rejection = "not_found"
)

func (r Rejection) Message() string {
	switch r {
	case RejectionInactive:
		return "this coupon is no longer active"
	case RejectionExpired:
		return "this coupon is outside its validity window"
	case RejectionUsageLimitReached:
		return "this coupon has reached its usage limit"
	case RejectionBelowMinimum:
		return "the order subtotal is below this coupon's minimum"
	case RejectionNotFound:
		return "no such coupon code"
	}
	return ""
}

// Validate checks c against the order subtotal at time now. Checks run in a
// fixed order (inactive, expired, usage limit, minimum) and the first
// failure wins, so a coupon failing several checks always reports the same
// reason. A zero Rejection means the coupon applies.
func Validate(c domain.Coupon, subtotal decimal.Decimal, now time.Time) Rejection {
	if !c.IsActive {
		return RejectionInactive
	}
	if now.Before(c.ValidFrom) {
		return RejectionExpired
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return RejectionExpired
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return RejectionUsageLimitReached
	}
	if subtotal.LessThan(c.MinimumAmount) {
		return RejectionBelowMinimum
	}
	return RejectionNone
}
