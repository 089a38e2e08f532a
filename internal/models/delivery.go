package models

import (
	"time"

	"github.com/google/uuid"
)

// Delivery task statuses. DeliveryTaskFailed is reserved; no transition sets it yet.
const (
	DeliveryTaskAssigned  = "assigned"
	DeliveryTaskInTransit = "in_transit"
	DeliveryTaskDelivered = "delivered"
	DeliveryTaskFailed    = "failed"
)

// Delivery is the one-per-order task handed to delivery staff.
type Delivery struct {
	BaseModel
	OrderID          uuid.UUID  `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	DeliveryPersonID uuid.UUID  `gorm:"type:uuid;index" json:"delivery_person_id"`
	DeliveryPerson   *User      `json:"delivery_person,omitempty"`
	AssignedBy       *uuid.UUID `gorm:"type:uuid" json:"assigned_by"`
	Status           string     `gorm:"index;size:16" json:"status"`
	AssignedAt       time.Time  `json:"assigned_at"`
	PickedUpAt       *time.Time `json:"picked_up_at"`
	DeliveredAt      *time.Time `json:"delivered_at"`
	CollectorPhone   string     `json:"collector_phone"`
}
