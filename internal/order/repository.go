package order

import (
	"context"
	"errors"
	"time"

	"github.com/avolkov/smartstore/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateCheckout means an order with this checkout key already
	// exists; the original result should be returned instead of a second
	// order.
	ErrDuplicateCheckout = errors.New("order for this checkout already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OutboxEvent is a pending order event awaiting publication to Kafka. Events
// are written in the same transaction as the order row.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order, eventPayload []byte) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByCheckoutKey(ctx context.Context, key string) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id int64) error
	RunMigrations(*Credentials) error
	Close() error
}
