// Package cart holds the authoritative in-memory cart for each user and its
// durable mirror. All mutations are synchronous; the mirror write after each
// mutation is best-effort and never surfaces to the caller.
package cart

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/avolkov/smartstore/internal/cart/mirror"
	"github.com/avolkov/smartstore/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrInvalidQuantity is returned when a mutation is asked for a quantity the
// cart cannot represent. The cart is left unchanged.
var ErrInvalidQuantity = errors.New("quantity out of range")

// Subscriber is called synchronously after every successful mutation with a
// snapshot of the user's cart, so dependent views stay consistent.
type Subscriber func(userID string, items []domain.LineItem)

type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	mirror       mirror.CartMirror
	flushTimeout time.Duration

	subMu       sync.RWMutex
	subscribers []Subscriber
}

// entry is one user's cart plus its flush state. cartMu orders mutations and
// hydration for that user without stalling other users. Mirror writes go
// through a single flush loop per entry: a newer snapshot replaces an unsent
// pending one, so the mirror can never end up holding a stale cart.
type entry struct {
	cartMu sync.Mutex
	cart   *domain.Cart // nil until hydrated

	flushMu    sync.Mutex
	pending    []domain.LineItem
	hasPending bool
	flushing   bool
	dropped    bool

	// writeMu is held across each mirror write so Drop can wait out an
	// in-flight save before deleting the durable copy.
	writeMu sync.Mutex
}

func NewStore(m mirror.CartMirror) *Store {
	return &Store{
		entries:      make(map[string]*entry),
		mirror:       m,
		flushTimeout: 2 * time.Second,
	}
}

// Subscribe registers fn for change notifications. Intended for wiring time;
// there is no unsubscribe.
func (s *Store) Subscribe(fn Subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// AddItem puts quantity units of product into the user's cart. Re-adding a
// product merges into the existing row; the merged quantity is capped at
// domain.MaxLineQuantity, never an error.
func (s *Store) AddItem(ctx context.Context, userID string, product domain.Product, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	e := s.entry(userID)
	e.cartMu.Lock()
	cart := s.hydrate(ctx, e, userID)
	if existing := cart.Find(product.ID); existing != nil {
		existing.Quantity = capQuantity(existing.Quantity + quantity)
	} else {
		cart.Items = append(cart.Items, domain.LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			UnitPrice: product.Price,
			Quantity:  capQuantity(quantity),
			AddedAt:   time.Now(),
		})
	}
	snapshot := copyItems(cart.Items)
	e.cartMu.Unlock()

	s.flush(e, userID, snapshot)
	s.notify(userID, snapshot)
	return nil
}

// SetQuantity sets the row's quantity, clamped to domain.MaxLineQuantity.
// Zero removes the row. A negative quantity is rejected; an absent product
// is a no-op.
func (s *Store) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}

	e := s.entry(userID)
	e.cartMu.Lock()
	cart := s.hydrate(ctx, e, userID)
	item := cart.Find(productID)
	if item == nil {
		e.cartMu.Unlock()
		return nil
	}
	if quantity == 0 {
		removeRow(cart, productID)
	} else {
		item.Quantity = capQuantity(quantity)
	}
	snapshot := copyItems(cart.Items)
	e.cartMu.Unlock()

	s.flush(e, userID, snapshot)
	s.notify(userID, snapshot)
	return nil
}

// RemoveItem deletes the row if present. Removing an absent product is a
// no-op, not an error.
func (s *Store) RemoveItem(ctx context.Context, userID, productID string) {
	e := s.entry(userID)
	e.cartMu.Lock()
	cart := s.hydrate(ctx, e, userID)
	if cart.Find(productID) == nil {
		e.cartMu.Unlock()
		return
	}
	removeRow(cart, productID)
	snapshot := copyItems(cart.Items)
	e.cartMu.Unlock()

	s.flush(e, userID, snapshot)
	s.notify(userID, snapshot)
}

// Clear empties the cart, used after checkout completes.
func (s *Store) Clear(ctx context.Context, userID string) {
	e := s.entry(userID)
	e.cartMu.Lock()
	cart := s.hydrate(ctx, e, userID)
	cart.Items = nil
	e.cartMu.Unlock()

	s.flush(e, userID, nil)
	s.notify(userID, nil)
}

// Drop discards the in-memory cart and deletes the durable copy. Used by the
// order-placed consumer so a cart cleared on one instance does not resurrect
// from the mirror on another.
func (s *Store) Drop(ctx context.Context, userID string) error {
	s.mu.Lock()
	e, ok := s.entries[userID]
	delete(s.entries, userID)
	s.mu.Unlock()

	if ok {
		e.flushMu.Lock()
		e.dropped = true
		e.pending = nil
		e.hasPending = false
		e.flushMu.Unlock()

		// Wait for an in-flight mirror write so it cannot land after the
		// delete below.
		e.writeMu.Lock()
		defer e.writeMu.Unlock()
	}

	s.notify(userID, nil)

	err := s.mirror.Delete(ctx, userID)
	if err != nil && !errors.Is(err, mirror.ErrCartNotFound) {
		return err
	}
	return nil
}

// Snapshot returns a copy of the user's ordered line items. Mutating the
// returned slice does not affect the store.
func (s *Store) Snapshot(ctx context.Context, userID string) []domain.LineItem {
	e := s.entry(userID)
	e.cartMu.Lock()
	defer e.cartMu.Unlock()
	return copyItems(s.hydrate(ctx, e, userID).Items)
}

func (s *Store) TotalQuantity(ctx context.Context, userID string) int {
	e := s.entry(userID)
	e.cartMu.Lock()
	defer e.cartMu.Unlock()
	return s.hydrate(ctx, e, userID).TotalQuantity()
}

func (s *Store) TotalPrice(ctx context.Context, userID string) decimal.Decimal {
	e := s.entry(userID)
	e.cartMu.Lock()
	defer e.cartMu.Unlock()
	return s.hydrate(ctx, e, userID).TotalPrice()
}

// entry returns the user's entry, creating an empty one on first sight. The
// store-wide lock guards only the map; hydration I/O happens later under the
// entry's own lock.
func (s *Store) entry(userID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{}
		s.entries[userID] = e
	}
	return e
}

// hydrate returns the in-memory cart, loading it from the mirror on first
// access. Missing, corrupt or unreachable durable state all degrade to an
// empty cart; from then on the in-memory copy is authoritative. Callers must
// hold e.cartMu.
func (s *Store) hydrate(ctx context.Context, e *entry, userID string) *domain.Cart {
	if e.cart != nil {
		return e.cart
	}

	cart, err := s.mirror.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, mirror.ErrCartNotFound) {
			log.Printf("cart hydrate for user %s failed, starting empty: %v", userID, err)
		}
		cart = &domain.Cart{UserID: userID, CreatedAt: time.Now()}
	}

	e.cart = cart
	return cart
}

// flush hands the snapshot to the entry's flush loop without blocking the
// caller. Failures are logged and swallowed: the in-memory cart stays
// correct for the session.
func (s *Store) flush(e *entry, userID string, items []domain.LineItem) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	if e.dropped {
		return
	}
	e.pending = items
	e.hasPending = true
	if e.flushing {
		return
	}
	e.flushing = true
	go s.flushLoop(e, userID)
}

// flushLoop is the entry's single mirror writer. It drains pending snapshots
// in mutation order until none are left, then exits.
func (s *Store) flushLoop(e *entry, userID string) {
	for {
		e.writeMu.Lock()
		e.flushMu.Lock()
		if !e.hasPending || e.dropped {
			e.flushing = false
			e.flushMu.Unlock()
			e.writeMu.Unlock()
			return
		}
		items := e.pending
		e.pending = nil
		e.hasPending = false
		e.flushMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
		err := s.mirror.Save(ctx, &domain.Cart{UserID: userID, Items: items})
		cancel()
		e.writeMu.Unlock()
		if err != nil {
			log.Printf("cart storage write for user %s failed: %v", userID, err)
		}
	}
}

func (s *Store) notify(userID string, items []domain.LineItem) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subscribers {
		fn(userID, items)
	}
}

func capQuantity(q int) int {
	if q > domain.MaxLineQuantity {
		return domain.MaxLineQuantity
	}
	return q
}

func removeRow(cart *domain.Cart, productID string) {
	for i, item := range cart.Items {
		if item.ProductID == productID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return
		}
	}
}

func copyItems(items []domain.LineItem) []domain.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.LineItem, len(items))
	copy(out, items)
	return out
}
