package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart statuses.
const (
	CartStatusActive    = "active"
	CartStatusConverted = "converted"
	CartStatusAbandoned = "abandoned"
)

// Cart belongs to one user. The partial unique index keeps a single active
// cart per user at the storage layer.
type Cart struct {
	BaseModel
	UserID uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_carts_one_active,where:status = 'active'" json:"user_id"`
	Status string     `gorm:"index;size:16" json:"status"`
	Items  []CartItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
}

// CartItem is a (cart, product) line. Price is a snapshot taken when the line
// is added and refreshed when its quantity changes.
type CartItem struct {
	BaseModel
	CartID    uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_cart_items_cart_product" json:"cart_id"`
	ProductID uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_cart_items_cart_product" json:"product_id"`
	Product   *Product        `json:"product,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
}

// LineTotal returns price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Subtotal sums every line of the cart.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}
