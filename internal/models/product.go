package models

import "github.com/shopspring/decimal"

// Product is a sellable item. StockQuantity is only changed through
// conditional arithmetic in the stock ledger.
type Product struct {
	BaseModel
	Name          string          `json:"name"`
	SKU           string          `gorm:"uniqueIndex" json:"sku"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	StockQuantity int             `gorm:"not null;check:chk_products_stock_non_negative,stock_quantity >= 0" json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
}
