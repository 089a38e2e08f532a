package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/models"
	"github.com/example/campusdelivery/internal/testutil"
)

func TestCartLifecycle(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	carts := NewCartService(db)
	user := testutil.CreateUser(t, db, "amina", models.RoleCustomer)
	meal := testutil.CreateProduct(t, db, "Chambo meal", 3000, 5)

	first, err := carts.Active(ctx, user.ID)
	require.NoError(t, err)
	again, err := carts.Active(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "one active cart per user")

	cart, err := carts.AddItem(ctx, user.ID, meal.ID, 2)
	require.NoError(t, err)
	cart, err = carts.AddItem(ctx, user.ID, meal.ID, 1)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, "9000", cart.Subtotal().String())

	_, err = carts.AddItem(ctx, user.ID, meal.ID, 3)
	requireFailure(t, err, ErrInsufficientStock)

	require.NoError(t, db.Model(meal).Update("price", "3500").Error)
	cart, err = carts.UpdateItem(ctx, user.ID, cart.Items[0].ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "7000", cart.Subtotal().String(), "price snapshot refreshes on update")

	cart, err = carts.UpdateItem(ctx, user.ID, cart.Items[0].ID, 0)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	assert.Equal(t, 5, testutil.Stock(t, db, meal.ID), "carts never move stock")
}

func TestCartRejectsBadLines(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	carts := NewCartService(db)
	user := testutil.CreateUser(t, db, "amina", models.RoleCustomer)
	other := testutil.CreateUser(t, db, "tiyamike", models.RoleCustomer)
	meal := testutil.CreateProduct(t, db, "Chambo meal", 3000, 5)

	_, err := carts.AddItem(ctx, user.ID, meal.ID, 0)
	requireFailure(t, err, ErrInvalidInput)

	_, err = carts.AddItem(ctx, user.ID, uuid.New(), 1)
	requireFailure(t, err, ErrProductUnavailable)

	cart, err := carts.AddItem(ctx, other.ID, meal.ID, 1)
	require.NoError(t, err)

	_, err = carts.RemoveItem(ctx, user.ID, cart.Items[0].ID)
	requireFailure(t, err, ErrCartItemNotFound)
}

func TestCartEditsNeverReachAConvertedCart(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	carts := NewCartService(db)
	user := testutil.CreateUser(t, db, "amina", models.RoleCustomer)
	meal := testutil.CreateProduct(t, db, "Chambo meal", 3000, 5)
	drink := testutil.CreateProduct(t, db, "Maheu", 1500, 5)

	original, err := carts.AddItem(ctx, user.ID, meal.ID, 1)
	require.NoError(t, err)

	// A checkout commits between the request reading the cart and writing to it.
	converted := false
	err = db.Callback().Query().Before("gorm:query").Register("test:checkout_first", func(tx *gorm.DB) {
		if converted {
			return
		}
		if _, ok := tx.Statement.Dest.(*models.Cart); !ok {
			return
		}
		if _, inTx := tx.Statement.ConnPool.(gorm.TxCommitter); !inTx {
			return
		}
		converted = true
		tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE carts SET status = ? WHERE id = ?", models.CartStatusConverted, original.ID)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Callback().Query().Remove("test:checkout_first") })

	cart, err := carts.AddItem(ctx, user.ID, drink.ID, 1)
	require.NoError(t, err)
	require.True(t, converted)
	assert.NotEqual(t, original.ID, cart.ID)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, drink.ID, cart.Items[0].ProductID)

	var lines int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", original.ID).Count(&lines).Error)
	assert.EqualValues(t, 1, lines, "the converted cart keeps only what was checked out")

	_, err = carts.RemoveItem(ctx, user.ID, original.Items[0].ID)
	requireFailure(t, err, ErrCartItemNotFound)
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", original.ID).Count(&lines).Error)
	assert.EqualValues(t, 1, lines)
}

func TestAbandonStaleCarts(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	carts := NewCartService(db)

	stale := testutil.CreateUser(t, db, "stale", models.RoleCustomer)
	fresh := testutil.CreateUser(t, db, "fresh", models.RoleCustomer)
	staleCart, err := carts.Active(ctx, stale.ID)
	require.NoError(t, err)
	_, err = carts.Active(ctx, fresh.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Cart{}).Where("id = ?", staleCart.ID).
		UpdateColumn("updated_at", time.Now().Add(-96*time.Hour)).Error)

	abandoned, err := carts.AbandonStale(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, abandoned)

	replacement, err := carts.Active(ctx, stale.ID)
	require.NoError(t, err)
	assert.NotEqual(t, staleCart.ID, replacement.ID)
}
