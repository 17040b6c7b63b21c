package cart

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avolkov/smartstore/internal/cart/mirror"
	"github.com/avolkov/smartstore/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMirror struct {
	m     sync.RWMutex
	carts map[string]*domain.Cart

	loadErr error
	saveErr error
	deleted []string
}

func newMockMirror() *mockMirror {
	return &mockMirror{carts: map[string]*domain.Cart{}}
}

func (m *mockMirror) Load(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, mirror.ErrCartNotFound
	}
	return cart, nil
}

func (m *mockMirror) Save(_ context.Context, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.carts[cart.UserID] = cart
	return nil
}

func (m *mockMirror) Delete(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deleted = append(m.deleted, userID)
	delete(m.carts, userID)
	return nil
}

func (m *mockMirror) saved(userID string) *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.carts[userID]
}

func product(id, price string) domain.Product {
	p, err := decimal.NewFromString(price)
	if err != nil {
		panic(err)
	}
	return domain.Product{ID: id, Name: "Product " + id, Price: p, ImageURL: "/images/" + id + ".jpg"}
}

func TestAddItem_NewRow(t *testing.T) {
	mockM := newMockMirror()
	sut := NewStore(mockM)

	err := sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2)
	require.NoError(t, err)

	items := sut.Snapshot(context.Background(), "u1")
	require.Len(t, items, 1)
	assert.Equal(t, "prod-001", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "Product prod-001", items[0].Name)
	assert.False(t, items[0].AddedAt.IsZero())
}

func TestAddItem_MergesExistingRow(t *testing.T) {
	sut := NewStore(newMockMirror())

	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))

	items := sut.Snapshot(context.Background(), "u1")
	require.Len(t, items, 1, "re-adding the same product must not create a second row")
	assert.Equal(t, 4, items[0].Quantity)
}

func TestAddItem_MergeCapsAtMaxQuantity(t *testing.T) {
	sut := NewStore(newMockMirror())

	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 4))
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 4))

	items := sut.Snapshot(context.Background(), "u1")
	require.Len(t, items, 1)
	assert.Equal(t, domain.MaxLineQuantity, items[0].Quantity, "cap silently, never error")
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	sut := NewStore(newMockMirror())

	require.ErrorIs(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 0), ErrInvalidQuantity)
	require.ErrorIs(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), -1), ErrInvalidQuantity)
	assert.Empty(t, sut.Snapshot(context.Background(), "u1"))
}

func TestSetQuantity(t *testing.T) {
	sut := NewStore(newMockMirror())
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 1))

	require.NoError(t, sut.SetQuantity(context.Background(), "u1", "prod-001", 3))
	assert.Equal(t, 3, sut.Snapshot(context.Background(), "u1")[0].Quantity)

	require.NoError(t, sut.SetQuantity(context.Background(), "u1", "prod-001", 99))
	assert.Equal(t, domain.MaxLineQuantity, sut.Snapshot(context.Background(), "u1")[0].Quantity)
}

func TestSetQuantity_ZeroRemovesRow(t *testing.T) {
	sut := NewStore(newMockMirror())
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))

	require.NoError(t, sut.SetQuantity(context.Background(), "u1", "prod-001", 0))
	assert.Empty(t, sut.Snapshot(context.Background(), "u1"))
}

func TestSetQuantity_Negative(t *testing.T) {
	sut := NewStore(newMockMirror())
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))

	require.ErrorIs(t, sut.SetQuantity(context.Background(), "u1", "prod-001", -1), ErrInvalidQuantity)
	assert.Equal(t, 2, sut.Snapshot(context.Background(), "u1")[0].Quantity, "cart unchanged after rejected mutation")
}

func TestSetQuantity_AbsentProductIsNoOp(t *testing.T) {
	sut := NewStore(newMockMirror())
	require.NoError(t, sut.SetQuantity(context.Background(), "u1", "prod-404", 3))
	assert.Empty(t, sut.Snapshot(context.Background(), "u1"))
}

func TestRemoveItem(t *testing.T) {
	sut := NewStore(newMockMirror())
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-002", "89.50"), 1))

	sut.RemoveItem(context.Background(), "u1", "prod-001")

	items := sut.Snapshot(context.Background(), "u1")
	require.Len(t, items, 1)
	assert.Equal(t, "prod-002", items[0].ProductID)

	// Removing what is not there changes nothing.
	sut.RemoveItem(context.Background(), "u1", "prod-001")
	assert.Len(t, sut.Snapshot(context.Background(), "u1"), 1)
}

func TestClear(t *testing.T) {
	sut := NewStore(newMockMirror())
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))

	sut.Clear(context.Background(), "u1")
	assert.Empty(t, sut.Snapshot(context.Background(), "u1"))
}

func TestTotals(t *testing.T) {
	sut := NewStore(newMockMirror())
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-002", "89.50"), 1))

	assert.Equal(t, 3, sut.TotalQuantity(context.Background(), "u1"))
	assert.Equal(t, "189.48", sut.TotalPrice(context.Background(), "u1").StringFixed(2))
}

func TestSnapshot_IsACopy(t *testing.T) {
	sut := NewStore(newMockMirror())
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))

	items := sut.Snapshot(context.Background(), "u1")
	items[0].Quantity = 99

	assert.Equal(t, 2, sut.Snapshot(context.Background(), "u1")[0].Quantity)
}

func TestHydrateFromMirror(t *testing.T) {
	mockM := newMockMirror()
	mockM.carts["u1"] = &domain.Cart{
		UserID: "u1",
		Items:  []domain.LineItem{{ProductID: "prod-001", Quantity: 3}},
	}
	sut := NewStore(mockM)

	items := sut.Snapshot(context.Background(), "u1")
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestHydrate_FailsOpen(t *testing.T) {
	mockM := newMockMirror()
	mockM.loadErr = fmt.Errorf("connection refused")
	sut := NewStore(mockM)

	assert.Empty(t, sut.Snapshot(context.Background(), "u1"))

	// Once hydrated empty, the in-memory copy is authoritative.
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 1))
	assert.Len(t, sut.Snapshot(context.Background(), "u1"), 1)
}

func TestHydrate_CorruptMirrorFailsOpen(t *testing.T) {
	mockM := newMockMirror()
	mockM.loadErr = mirror.ErrCartCorrupt
	sut := NewStore(mockM)

	assert.Empty(t, sut.Snapshot(context.Background(), "u1"))
}

func TestMutations_FlushToMirror(t *testing.T) {
	mockM := newMockMirror()
	sut := NewStore(mockM)

	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))

	require.Eventually(t, func() bool {
		saved := mockM.saved("u1")
		return saved != nil && len(saved.Items) == 1
	}, 100*time.Millisecond, 10*time.Millisecond, "cart was not written to the mirror")
}

func TestMirrorWriteFailure_DoesNotSurface(t *testing.T) {
	mockM := newMockMirror()
	mockM.saveErr = fmt.Errorf("write timeout")
	sut := NewStore(mockM)

	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))
	assert.Len(t, sut.Snapshot(context.Background(), "u1"), 1)
}

func TestDrop_EvictsAndDeletesMirror(t *testing.T) {
	mockM := newMockMirror()
	sut := NewStore(mockM)
	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))

	require.Eventually(t, func() bool {
		return mockM.saved("u1") != nil
	}, 100*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, sut.Drop(context.Background(), "u1"))
	assert.Empty(t, sut.Snapshot(context.Background(), "u1"))

	mockM.m.RLock()
	deleted := mockM.deleted
	mockM.m.RUnlock()
	assert.Contains(t, deleted, "u1")
}

func TestSubscribers_NotifiedOnEveryMutation(t *testing.T) {
	sut := NewStore(newMockMirror())

	var m sync.Mutex
	var calls [][]domain.LineItem
	sut.Subscribe(func(_ string, items []domain.LineItem) {
		m.Lock()
		defer m.Unlock()
		calls = append(calls, items)
	})

	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))
	require.NoError(t, sut.SetQuantity(context.Background(), "u1", "prod-001", 1))
	sut.RemoveItem(context.Background(), "u1", "prod-001")

	m.Lock()
	defer m.Unlock()
	require.Len(t, calls, 3)
	assert.Equal(t, 2, calls[0][0].Quantity)
	assert.Equal(t, 1, calls[1][0].Quantity)
	assert.Empty(t, calls[2])
}

// slowSaveMirror stalls non-empty saves until released, forcing the mutation
// that empties the cart to race the earlier write.
type slowSaveMirror struct {
	m       sync.Mutex
	release chan struct{}
	saves   [][]domain.LineItem
}

func (s *slowSaveMirror) Load(context.Context, string) (*domain.Cart, error) {
	return nil, mirror.ErrCartNotFound
}

func (s *slowSaveMirror) Save(_ context.Context, cart *domain.Cart) error {
	if len(cart.Items) > 0 {
		<-s.release
	}
	s.m.Lock()
	defer s.m.Unlock()
	s.saves = append(s.saves, copyItems(cart.Items))
	return nil
}

func (s *slowSaveMirror) Delete(context.Context, string) error { return nil }

func (s *slowSaveMirror) lastSave() ([]domain.LineItem, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	if len(s.saves) == 0 {
		return nil, false
	}
	return s.saves[len(s.saves)-1], true
}

func TestMirrorWrites_FollowMutationOrder(t *testing.T) {
	mockM := &slowSaveMirror{release: make(chan struct{})}
	sut := NewStore(mockM)

	require.NoError(t, sut.AddItem(context.Background(), "u1", product("prod-001", "49.99"), 2))
	sut.RemoveItem(context.Background(), "u1", "prod-001")
	close(mockM.release)

	// The last mirror write must be the post-removal snapshot; a stale
	// pre-removal write landing after it would resurrect the item on the
	// next hydration.
	require.Eventually(t, func() bool {
		last, ok := mockM.lastSave()
		return ok && len(last) == 0
	}, time.Second, 10*time.Millisecond, "mirror kept a snapshot from before the removal")
	assert.Empty(t, sut.Snapshot(context.Background(), "u1"))
}

// blockingLoadMirror parks the hydration load for one chosen user.
type blockingLoadMirror struct {
	slowUser string
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (b *blockingLoadMirror) Load(_ context.Context, userID string) (*domain.Cart, error) {
	if userID == b.slowUser {
		b.once.Do(func() { close(b.started) })
		<-b.release
	}
	return nil, mirror.ErrCartNotFound
}

func (b *blockingLoadMirror) Save(context.Context, *domain.Cart) error { return nil }
func (b *blockingLoadMirror) Delete(context.Context, string) error { return nil }

func TestSlowHydration_DoesNotBlockOtherUsers(t *testing.T) {
	mockM := &blockingLoadMirror{
		slowUser: "u-slow",
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	sut := NewStore(mockM)
	defer close(mockM.release)

	go sut.Snapshot(context.Background(), "u-slow")
	<-mockM.started

	done := make(chan error, 1)
	go func() {
		done <- sut.AddItem(context.Background(), "u-fast", product("prod-001", "49.99"), 1)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cart mutation stalled behind another user's hydration")
	}
	assert.Len(t, sut.Snapshot(context.Background(), "u-fast"), 1)
}

func TestConcurrentMutations(t *testing.T) {
	sut := NewStore(newMockMirror())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("u%d", n%4)
			_ = sut.AddItem(context.Background(), userID, product("prod-001", "49.99"), 1)
		}(i)
	}
	wg.Wait()

	for n := 0; n < 4; n++ {
		items := sut.Snapshot(context.Background(), fmt.Sprintf("u%d", n))
		require.Len(t, items, 1)
		assert.Equal(t, domain.MaxLineQuantity, items[0].Quantity)
	}
}
