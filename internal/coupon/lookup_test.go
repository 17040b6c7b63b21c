package coupon

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/avolkov/smartstore/internal/domain"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	m      sync.Mutex
	coupon *domain.Coupon
	err    error
	calls  int
}

func (m *mockStore) GetByCode(context.Context, string) (*domain.Coupon, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.coupon, nil
}

func (m *mockStore) RecordUsage(context.Context, string) error {
	return nil
}

func TestLookup_Find(t *testing.T) {
	store := &mockStore{coupon: &domain.Coupon{Code: "SAVE10", IsActive: true}}

	sut := NewLookup(store)
	got, err := sut.Find(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", got.Code)
}

func TestLookup_NotFoundPassesThrough(t *testing.T) {
	store := &mockStore{err: ErrCouponNotFound}

	sut := NewLookup(store)
	_, err := sut.Find(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrCouponNotFound)
}

func TestLookup_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	store := &mockStore{err: fmt.Errorf("connection refused")}
	sut := NewLookup(store)

	for i := 0; i < 5; i++ {
		_, err := sut.Find(context.Background(), "SAVE10")
		require.ErrorContains(t, err, "connection refused")
	}

	_, err := sut.Find(context.Background(), "SAVE10")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)

	store.m.Lock()
	defer store.m.Unlock()
	assert.Equal(t, 5, store.calls, "the open breaker must not reach the store")
}

// A flood of unknown codes is normal user behavior, not a database outage.
func TestLookup_NotFoundDoesNotTripBreaker(t *testing.T) {
	store := &mockStore{err: ErrCouponNotFound}
	sut := NewLookup(store)

	for i := 0; i < 20; i++ {
		_, err := sut.Find(context.Background(), "NOPE")
		require.ErrorIs(t, err, ErrCouponNotFound)
	}

	store.m.Lock()
	defer store.m.Unlock()
	assert.Equal(t, 20, store.calls)
}
