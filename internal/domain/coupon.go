package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponTypePercentage  CouponType = "percentage"
	CouponTypeFixedAmount CouponType = "fixed_amount"
)

type Coupon struct {
	Code            string
	Type            CouponType
	Value           decimal.Decimal
	MinimumAmount   decimal.Decimal
	MaximumDiscount *decimal.Decimal // only meaningful for percentage coupons
	UsageLimit      *int
	UsedCount       int
	ValidFrom       time.Time
	ValidUntil      *time.Time
	IsActive        bool
}

// CanonicalCode uppercases and trims a user-supplied coupon code so lookups
// are case-insensitive.
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
