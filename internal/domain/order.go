package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
)

type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type Order struct {
	ID          uuid.UUID
	CheckoutKey string
	UserID      string
	Items       []OrderItem
	CouponCode  string // empty when no coupon was applied
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	Shipping    decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
	Currency    string
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
