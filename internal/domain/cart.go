package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity caps how many units of a single product a cart may hold.
const MaxLineQuantity = 5

type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at"`
}

func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Cart struct {
	UserID    string
	Items     []LineItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Find returns a pointer into Items for the given product, or nil.
func (c *Cart) Find(productID string) *LineItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

func (c *Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// TotalPrice is the plain sum of line totals. Tax, shipping and discounts
// are the pricing calculator's business.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}
