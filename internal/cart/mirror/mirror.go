package mirror

import (
	"context"
	"errors"

	"github.com/avolkov/smartstore/internal/domain"
)

// CartMirror is the durable copy of each user's cart. The in-memory store is
// authoritative for the session; the mirror only needs to survive restarts.
// Consumers define this interface, not the MongoDB implementation.
type CartMirror interface {
	Load(ctx context.Context, userID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

var (
	ErrCartNotFound = errors.New("cart not found")

	// ErrCartCorrupt means the stored document exists but cannot be
	// decoded. Callers fail open and start from an empty cart.
	ErrCartCorrupt = errors.New("stored cart is not decodable")
)
