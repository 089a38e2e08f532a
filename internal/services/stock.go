package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/models"
)

// StockLedger debits and credits product stock with single conditional
// statements. Stock is never read and then written back.
type StockLedger struct {
	db *gorm.DB
}

func NewStockLedger(db *gorm.DB) *StockLedger {
	return &StockLedger{db: db}
}

// WithTx returns a ledger bound to an open transaction.
func (l *StockLedger) WithTx(tx *gorm.DB) *StockLedger {
	return &StockLedger{db: tx}
}

// Reserve removes qty units when at least qty are available.
func (l *StockLedger) Reserve(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return Failf(ErrInvalidInput, "quantity must be positive")
	}

	result := l.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", productID, qty).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	if result.Error != nil {
		return errors.Wrapf(result.Error, "reserve stock for product %s", productID)
	}
	if result.RowsAffected == 0 {
		return Fail(ErrInsufficientStock)
	}
	return nil
}

// Release returns qty units. It cannot fail on quantity.
func (l *StockLedger) Release(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}

	result := l.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", qty))
	if result.Error != nil {
		return errors.Wrapf(result.Error, "release stock for product %s", productID)
	}
	if result.RowsAffected == 0 {
		log.Warn().Str("product_id", productID.String()).Int("quantity", qty).Msg("released stock for a missing product")
	}
	return nil
}

// Available reads the current stock level.
func (l *StockLedger) Available(ctx context.Context, productID uuid.UUID) (int, error) {
	var product models.Product
	if err := l.db.WithContext(ctx).Select("stock_quantity").First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, Fail(ErrProductUnavailable)
		}
		return 0, errors.Wrap(err, "read stock")
	}
	return product.StockQuantity, nil
}
