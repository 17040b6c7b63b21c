package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/segmentio/kafka-go"
)

// CartDropper is the slice of the cart store this consumer needs.
type CartDropper interface {
	Drop(ctx context.Context, userID string) error
}

// CartClearConsumer drops the buyer's cart (in-memory and mirror) when an
// order-placed event arrives. The placing instance already cleared its own
// copy synchronously; this makes the clear stick across instances.
type CartClearConsumer struct {
	carts  CartDropper
	reader *kafka.Reader
}

func NewCartClearConsumer(carts CartDropper, brokers ...string) *CartClearConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  "cart-clear-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return &CartClearConsumer{carts, reader}
}

func (c *CartClearConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *CartClearConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		log.Printf("error closing kafka reader: %v", err)
	}
}

func (c *CartClearConsumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("error reading message: %v", err)
		return
	}

	var payload map[string]interface{}
	if errUnmarshal := json.Unmarshal(m.Value, &payload); errUnmarshal != nil {
		log.Printf("error parsing message: %v", errUnmarshal)
		return
	}
	userID, ok := payload["user_id"].(string)
	if !ok || userID == "" {
		log.Printf("order event missing user_id, skipping")
		return
	}

	if errDrop := c.carts.Drop(ctx, userID); errDrop != nil {
		log.Printf("failed to drop cart for user %s: %v", userID, errDrop)
	}
}
