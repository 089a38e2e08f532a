package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Zone kinds recorded on orders.
const (
	ZoneKindCircle  = "circle"
	ZoneKindPolygon = "polygon"
)

// DeliveryZone is a circular deliverable area with a flat fee.
type DeliveryZone struct {
	BaseModel
	Name            string          `json:"name"`
	CenterLatitude  float64         `json:"center_latitude"`
	CenterLongitude float64         `json:"center_longitude"`
	RadiusMeters    float64         `json:"radius_meters"`
	DeliveryFee     decimal.Decimal `gorm:"type:decimal(12,2)" json:"delivery_fee"`
	IsActive        bool            `gorm:"index" json:"is_active"`
}

// DeliveryLocation is a polygon deliverable area.
type DeliveryLocation struct {
	BaseModel
	Name        string                  `json:"name"`
	DeliveryFee decimal.Decimal         `gorm:"type:decimal(12,2)" json:"delivery_fee"`
	IsActive    bool                    `gorm:"index" json:"is_active"`
	Points      []DeliveryLocationPoint `gorm:"constraint:OnDelete:CASCADE" json:"points"`
}

// DeliveryLocationPoint is one boundary vertex; Position orders the ring.
type DeliveryLocationPoint struct {
	BaseModel
	DeliveryLocationID uuid.UUID `gorm:"type:uuid;index" json:"delivery_location_id"`
	Position           int       `json:"position"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
}
