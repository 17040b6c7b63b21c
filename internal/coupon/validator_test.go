package coupon

import (
	"testing"
	"time"

	"github.com/avolkov/smartstore/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func validCoupon() domain.Coupon {
	return domain.Coupon{
		Code:          "SAVE10",
		Type:          domain.CouponTypePercentage,
		Value:         decimal.NewFromInt(10),
		MinimumAmount: decimal.NewFromInt(50),
		ValidFrom:     now.Add(-24 * time.Hour),
		IsActive:      true,
	}
}

func TestValidate_Applies(t *testing.T) {
	got := Validate(validCoupon(), decimal.NewFromInt(80), now)
	assert.Equal(t, RejectionNone, got)
}

func TestValidate_Inactive(t *testing.T) {
	c := validCoupon()
	c.IsActive = false

	got := Validate(c, decimal.NewFromInt(80), now)
	assert.Equal(t, RejectionInactive, got)
}

func TestValidate_NotYetValid(t *testing.T) {
	c := validCoupon()
	c.ValidFrom = now.Add(time.Hour)

	got := Validate(c, decimal.NewFromInt(80), now)
	assert.Equal(t, RejectionExpired, got)
}

func TestValidate_Expired(t *testing.T) {
	c := validCoupon()
	until := now.Add(-time.Minute)
	c.ValidUntil = &until

	got := Validate(c, decimal.NewFromInt(80), now)
	assert.Equal(t, RejectionExpired, got)
}

func TestValidate_UsageLimitReached(t *testing.T) {
	c := validCoupon()
	limit := 100
	c.UsageLimit = &limit
	c.UsedCount = 100

	got := Validate(c, decimal.NewFromInt(80), now)
	assert.Equal(t, RejectionUsageLimitReached, got)
}

func TestValidate_NoUsageLimit(t *testing.T) {
	c := validCoupon()
	c.UsedCount = 1000000

	got := Validate(c, decimal.NewFromInt(80), now)
	assert.Equal(t, RejectionNone, got)
}

func TestValidate_BelowMinimum(t *testing.T) {
	got := Validate(validCoupon(), decimal.NewFromInt(49), now)
	assert.Equal(t, RejectionBelowMinimum, got)
}

func TestValidate_SubtotalAtExactMinimum(t *testing.T) {
	got := Validate(validCoupon(), decimal.NewFromInt(50), now)
	assert.Equal(t, RejectionNone, got)
}

// A coupon failing several checks must always report the first one in the
// fixed order, so the user sees a stable reason.
func TestValidate_FirstFailureWins(t *testing.T) {
	c := validCoupon()
	c.IsActive = false
	until := now.Add(-time.Hour)
	c.ValidUntil = &until
	limit := 1
	c.UsageLimit = &limit
	c.UsedCount = 5

	got := Validate(c, decimal.NewFromInt(1), now)
	assert.Equal(t, RejectionInactive, got)

	c.IsActive = true
	got = Validate(c, decimal.NewFromInt(1), now)
	assert.Equal(t, RejectionExpired, got)

	c.ValidUntil = nil
	got = Validate(c, decimal.NewFromInt(1), now)
	assert.Equal(t, RejectionUsageLimitReached, got)

	c.UsageLimit = nil
	got = Validate(c, decimal.NewFromInt(1), now)
	assert.Equal(t, RejectionBelowMinimum, got)
}

func TestRejection_Messages(t *testing.T) {
	for _, r := range []Rejection{
		RejectionInactive,
		RejectionExpired,
		RejectionUsageLimitReached,
		RejectionBelowMinimum,
		RejectionNotFound,
	} {
		assert.NotEmpty(t, r.Message())
	}
	assert.Empty(t, RejectionNone.Message())
}
