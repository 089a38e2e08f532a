package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order statuses. Status is the only stored lifecycle field.
const (
	OrderStatusPending        = "pending"
	OrderStatusProcessing     = "processing"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
)

// Delivery status labels projected from the order status.
const (
	DeliveryStatusPending        = "pending"
	DeliveryStatusOutForDelivery = "out_for_delivery"
	DeliveryStatusDelivered      = "delivered"
)

// Payment statuses.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Payment methods.
const (
	PaymentMethodCash        = "cash"
	PaymentMethodMobileMoney = "mobile_money"
)

type Order struct {
	BaseModel
	Reference    string     `gorm:"uniqueIndex;size:40" json:"reference"`
	UserID       uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	User         *User      `json:"user,omitempty"`
	CartID       *uuid.UUID `gorm:"type:uuid" json:"cart_id"`
	DeliveryCode string     `gorm:"uniqueIndex;size:4" json:"delivery_code,omitempty"`

	Status         string `gorm:"index;size:32" json:"status"`
	DeliveryStatus string `gorm:"-" json:"delivery_status"`
	PaymentMethod  string `gorm:"size:32" json:"payment_method"`
	PaymentStatus  string `gorm:"size:32" json:"payment_status"`

	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	DeliveryFee decimal.Decimal `gorm:"type:decimal(12,2)" json:"delivery_fee"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_amount"`
	Currency    string          `json:"currency"`

	ZoneKind  string     `gorm:"size:16" json:"zone_kind"`
	ZoneID    *uuid.UUID `gorm:"type:uuid" json:"zone_id"`
	ZoneName  string     `json:"zone_name"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`

	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone"`
	CustomerAddress string `json:"customer_address"`
	Notes           string `json:"notes"`

	PlacedAt    time.Time  `json:"placed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	DeliveredBy *uuid.UUID `gorm:"type:uuid" json:"delivered_by"`

	Items    []OrderItem `json:"items,omitempty"`
	Delivery *Delivery   `json:"delivery,omitempty"`
}

// OrderItem snapshots quantity and price at order time.
type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID       `gorm:"type:uuid;index" json:"order_id"`
	ProductID   uuid.UUID       `gorm:"type:uuid;index" json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
}

// DeliveryStatusFor projects an order status onto the coarser delivery label.
func DeliveryStatusFor(status string) string {
	switch status {
	case OrderStatusOutForDelivery:
		return DeliveryStatusOutForDelivery
	case OrderStatusDelivered:
		return DeliveryStatusDelivered
	default:
		return DeliveryStatusPending
	}
}

// SetStatus changes the status and keeps the projection in step.
func (o *Order) SetStatus(status string) {
	o.Status = status
	o.DeliveryStatus = DeliveryStatusFor(status)
}

// AfterFind fills the projected delivery status.
func (o *Order) AfterFind(tx *gorm.DB) error {
	o.DeliveryStatus = DeliveryStatusFor(o.Status)
	return nil
}

// IsCancellable reports whether the order may still be cancelled.
func (o *Order) IsCancellable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusProcessing
}

// IsTerminal reports whether no further transition may start from this order.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCancelled || o.Status == OrderStatusDelivered
}

// HideDeliveryCode blanks the confirmation code. The code is only ever shown
// to the customer who placed the order.
func (o *Order) HideDeliveryCode() {
	o.DeliveryCode = ""
}

// ItemsTotal sums the item subtotals.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal)
	}
	return total
}
