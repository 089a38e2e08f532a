package models

import (
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is a notification written in the same transaction as the
// change it announces and delivered after commit.
type OutboxMessage struct {
	BaseModel
	Event        string     `gorm:"index;size:64" json:"event"`
	Sink         string     `gorm:"index;size:32" json:"sink"`
	OrderID      uuid.UUID  `gorm:"type:uuid;index" json:"order_id"`
	Payload      string     `gorm:"type:text" json:"payload"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"last_error"`
	DispatchedAt *time.Time `gorm:"index" json:"dispatched_at"`
	FailedAt     *time.Time `json:"failed_at"`
}
