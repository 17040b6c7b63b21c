package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/avolkov/smartstore/internal/domain"
	"github.com/sony/gobreaker/v2"
)

// Lookup fronts the coupon store with a circuit breaker so a struggling
// database fails checkout previews fast instead of hanging them. NotFound is
// a normal outcome and does not count against the breaker.
type Lookup struct {
	store   Store
	breaker *gobreaker.CircuitBreaker[*domain.Coupon]
}

func NewLookup(store Store) *Lookup {
	settings := gobreaker.Settings{
		Name:    "coupon-lookup",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCouponNotFound)
		},
	}
	return &Lookup{
		store:   store,
		breaker: gobreaker.NewCircuitBreaker[*domain.Coupon](settings),
	}
}

// Find resolves a user-supplied code to its coupon record. The code is
// canonicalized before lookup, so lookups are case-insensitive.
func (l *Lookup) Find(ctx context.Context, code string) (*domain.Coupon, error) {
	return l.breaker.Execute(func() (*domain.Coupon, error) {
		return l.store.GetByCode(ctx, code)
	})
}
