package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/campusdelivery/internal/models"
)

// CartService manages the single active cart of each customer. Stock checks
// here are advisory; stock only moves at checkout.
type CartService struct {
	db *gorm.DB
}

func NewCartService(db *gorm.DB) *CartService {
	return &CartService{db: db}
}

// Active returns the user's active cart with its items, creating an empty
// one when none exists.
func (s *CartService) Active(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	db := s.db.WithContext(ctx)

	cart, err := s.findActive(db, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "load cart")
	}

	cart = &models.Cart{UserID: userID, Status: models.CartStatusActive}
	if err := db.Create(cart).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, errors.Wrap(err, "create cart")
		}
		// Another request created it first.
		cart, err = s.findActive(db, userID)
		if err != nil {
			return nil, errors.Wrap(err, "load cart")
		}
	}
	return cart, nil
}

func (s *CartService) findActive(db *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := db.Preload("Items", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at asc")
	}).Preload("Items.Product").
		Where("user_id = ? AND status = ?", userID, models.CartStatusActive).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddItem adds qty of a product, merging with an existing line. The line
// price is refreshed to the current product price.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.Cart, error) {
	if qty <= 0 {
		return nil, Failf(ErrInvalidInput, "quantity must be positive")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := lockCart(tx, userID)
		if err != nil {
			return err
		}
		product, err := loadSellable(tx, productID)
		if err != nil {
			return err
		}

		var item models.CartItem
		err = tx.Where("cart_id = ? AND product_id = ?", cart.ID, productID).First(&item).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if product.StockQuantity < qty {
				return Failf(ErrInsufficientStock, "only %d of %s left in stock", product.StockQuantity, product.Name)
			}
			item = models.CartItem{CartID: cart.ID, ProductID: productID, Quantity: qty, Price: product.Price}
			if err := tx.Create(&item).Error; err != nil {
				return errors.Wrap(err, "add cart item")
			}
		case err != nil:
			return errors.Wrap(err, "load cart item")
		default:
			total := item.Quantity + qty
			if product.StockQuantity < total {
				return Failf(ErrInsufficientStock, "only %d of %s left in stock", product.StockQuantity, product.Name)
			}
			if err := tx.Model(&item).Updates(map[string]interface{}{
				"quantity": total,
				"price":    product.Price,
			}).Error; err != nil {
				return errors.Wrap(err, "update cart item")
			}
		}
		return touchCart(tx, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.Active(ctx, userID)
}

// UpdateItem sets the quantity of a line; zero removes it.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, qty int) (*models.Cart, error) {
	if qty < 0 {
		return nil, Failf(ErrInvalidInput, "quantity cannot be negative")
	}
	if qty == 0 {
		return s.RemoveItem(ctx, userID, itemID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := lockCart(tx, userID)
		if err != nil {
			return err
		}
		item, err := findCartItem(tx, cart.ID, itemID)
		if err != nil {
			return err
		}
		product, err := loadSellable(tx, item.ProductID)
		if err != nil {
			return err
		}
		if product.StockQuantity < qty {
			return Failf(ErrInsufficientStock, "only %d of %s left in stock", product.StockQuantity, product.Name)
		}
		if err := tx.Model(item).Updates(map[string]interface{}{
			"quantity": qty,
			"price":    product.Price,
		}).Error; err != nil {
			return errors.Wrap(err, "update cart item")
		}
		return touchCart(tx, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.Active(ctx, userID)
}

// RemoveItem deletes a line from the active cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*models.Cart, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := lockCart(tx, userID)
		if err != nil {
			return err
		}
		item, err := findCartItem(tx, cart.ID, itemID)
		if err != nil {
			return err
		}
		if err := tx.Delete(item).Error; err != nil {
			return errors.Wrap(err, "remove cart item")
		}
		return touchCart(tx, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.Active(ctx, userID)
}

// AbandonStale marks active carts untouched for longer than ttl as abandoned.
func (s *CartService) AbandonStale(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	result := s.db.WithContext(ctx).Model(&models.Cart{}).
		Where("status = ? AND updated_at < ?", models.CartStatusActive, cutoff).
		Update("status", models.CartStatusAbandoned)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "abandon stale carts")
	}
	if result.RowsAffected > 0 {
		log.Info().Int64("carts", result.RowsAffected).Dur("ttl", ttl).Msg("abandoned stale carts")
	}
	return result.RowsAffected, nil
}

// lockCart locks the user's active cart for the rest of tx, creating one when
// none exists. A cart converted by a checkout that committed first is no
// longer active, so edits land in a fresh cart instead.
func lockCart(tx *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	find := func() (*models.Cart, error) {
		var cart models.Cart
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", userID, models.CartStatusActive).
			First(&cart).Error
		if err != nil {
			return nil, err
		}
		return &cart, nil
	}

	cart, err := find()
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "lock cart")
	}

	cart = &models.Cart{UserID: userID, Status: models.CartStatusActive}
	err = tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(cart).Error
	})
	if err == nil {
		return cart, nil
	}
	if !isUniqueViolation(err) {
		return nil, errors.Wrap(err, "create cart")
	}
	// Another request created it first.
	cart, err = find()
	if err != nil {
		return nil, errors.Wrap(err, "lock cart")
	}
	return cart, nil
}

func loadSellable(tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := tx.First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Failf(ErrProductUnavailable, "product not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load product")
	}
	if !product.IsActive {
		return nil, Failf(ErrProductUnavailable, "%s is no longer available", product.Name)
	}
	return &product, nil
}

func findCartItem(tx *gorm.DB, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := tx.First(&item, "id = ? AND cart_id = ?", itemID, cartID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Fail(ErrCartItemNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load cart item")
	}
	return &item, nil
}

func touchCart(tx *gorm.DB, cartID uuid.UUID) error {
	return errors.Wrap(
		tx.Model(&models.Cart{}).Where("id = ?", cartID).Update("updated_at", time.Now()).Error,
		"touch cart",
	)
}
