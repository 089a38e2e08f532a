package services

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/geo"
	"github.com/example/campusdelivery/internal/models"
	"github.com/example/campusdelivery/internal/testutil"
)

func TestCheckoutCreatesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	meal := testutil.CreateProduct(t, f.db, "Chambo meal", 3000, 10)
	drink := testutil.CreateProduct(t, f.db, "Maheu", 1500, 4)
	cart := testutil.FillCart(t, f.db, f.customer, map[*models.Product]int{meal: 2, drink: 1})

	order, zone, err := f.orders.Checkout(ctx, f.checkoutRequest(f.customer))
	require.NoError(t, err)

	assert.Equal(t, f.zone.ID, zone.ZoneID)
	assert.Equal(t, "7500", order.Subtotal.String())
	assert.Equal(t, "500", order.DeliveryFee.String())
	assert.Equal(t, "8000", order.TotalAmount.String())
	assert.True(t, order.TotalAmount.Equal(order.ItemsTotal().Add(order.DeliveryFee)))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.DeliveryStatusPending, order.DeliveryStatus)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "Main Campus", order.ZoneName)
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{14}-[A-Z0-9]{6}$`), order.Reference)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}$`), order.DeliveryCode)

	stored := reloadOrder(t, f.db, order)
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, order.DeliveryCode, stored.DeliveryCode)
	assert.Equal(t, "Hostel B, room 12", stored.CustomerAddress)

	assert.Equal(t, 8, testutil.Stock(t, f.db, meal.ID))
	assert.Equal(t, 3, testutil.Stock(t, f.db, drink.ID))

	var storedCart models.Cart
	require.NoError(t, f.db.First(&storedCart, "id = ?", cart.ID).Error)
	assert.Equal(t, models.CartStatusConverted, storedCart.Status)

	delivered, err := f.outbox.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.ElementsMatch(t, []string{
		EventOrderConfirmation + ":" + order.Reference,
		EventOrderStatus + "=pending:" + order.Reference,
	}, f.notifier.Sent())
}

func TestCheckoutBelowMinimumLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	snack := testutil.CreateProduct(t, f.db, "Samosa", 1500, 5)
	testutil.FillCart(t, f.db, f.customer, map[*models.Product]int{snack: 1})

	_, _, err := f.orders.Checkout(context.Background(), f.checkoutRequest(f.customer))
	requireFailure(t, err, ErrBelowMinimumOrder)

	var orders, outbox int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, f.db.Model(&models.OutboxMessage{}).Count(&outbox).Error)
	assert.Zero(t, orders)
	assert.Zero(t, outbox)
	assert.Equal(t, 5, testutil.Stock(t, f.db, snack.ID))

	cart, err := f.carts.Active(context.Background(), f.customer.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestCheckoutRejectsUnsellableCarts(t *testing.T) {
	ctx := context.Background()

	t.Run("no cart", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.orders.Checkout(ctx, f.checkoutRequest(f.customer))
		requireFailure(t, err, ErrEmptyCart)
	})

	t.Run("inactive product", func(t *testing.T) {
		f := newFixture(t)
		product := testutil.CreateProduct(t, f.db, "Retired combo", 5000, 5)
		require.NoError(t, f.db.Model(product).Update("is_active", false).Error)
		testutil.FillCart(t, f.db, f.customer, map[*models.Product]int{product: 1})

		_, _, err := f.orders.Checkout(ctx, f.checkoutRequest(f.customer))
		requireFailure(t, err, ErrProductUnavailable)
	})

	t.Run("not enough stock", func(t *testing.T) {
		f := newFixture(t)
		product := testutil.CreateProduct(t, f.db, "Rice plate", 2500, 1)
		testutil.FillCart(t, f.db, f.customer, map[*models.Product]int{product: 2})

		_, _, err := f.orders.Checkout(ctx, f.checkoutRequest(f.customer))
		requireFailure(t, err, ErrInsufficientStock)
		assert.Equal(t, 1, testutil.Stock(t, f.db, product.ID))
	})

	t.Run("invalid input never reaches the database", func(t *testing.T) {
		f := newFixture(t)
		req := f.checkoutRequest(f.customer)
		req.PaymentMethod = "barter"
		_, _, err := f.orders.Checkout(ctx, req)
		requireFailure(t, err, ErrInvalidInput)

		req = f.checkoutRequest(f.customer)
		req.CustomerPhone = " "
		_, _, err = f.orders.Checkout(ctx, req)
		requireFailure(t, err, ErrInvalidInput)

		req = f.checkoutRequest(f.customer)
		req.Location = &geo.Point{Lat: 123, Lng: 0}
		_, _, err = f.orders.Checkout(ctx, req)
		requireFailure(t, err, ErrInvalidInput)
	})
}

func TestCheckoutLastUnitGoesToOneCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.CreateProduct(t, f.db, "Last pizza", 6000, 1)

	other := testutil.CreateUser(t, f.db, "tiyamike", models.RoleCustomer)
	buyers := []*models.User{f.customer, other}
	for _, u := range buyers {
		testutil.FillCart(t, f.db, u, map[*models.Product]int{product: 1})
	}

	errs := make([]error, len(buyers))
	var wg sync.WaitGroup
	for i, u := range buyers {
		wg.Add(1)
		go func(i int, u *models.User) {
			defer wg.Done()
			_, _, errs[i] = f.orders.Checkout(ctx, f.checkoutRequest(u))
		}(i, u)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		requireFailure(t, err, ErrInsufficientStock)
		lost++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 0, testutil.Stock(t, f.db, product.ID))
}

func TestCheckoutSoldOutMidTransactionRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.CreateProduct(t, f.db, "Nsima and beef", 4000, 3)
	cart := testutil.FillCart(t, f.db, f.customer, map[*models.Product]int{product: 2})

	// Another checkout takes the remaining units once the order row exists.
	err := f.db.Callback().Create().After("gorm:create").Register("test:drain_stock", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*models.Order); !ok {
			return
		}
		tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE products SET stock_quantity = 0 WHERE id = ?", product.ID)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.db.Callback().Create().Remove("test:drain_stock") })

	_, _, err = f.orders.Checkout(ctx, f.checkoutRequest(f.customer))
	requireFailure(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Nsima and beef")

	var orders, items, outbox int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, f.db.Model(&models.OrderItem{}).Count(&items).Error)
	require.NoError(t, f.db.Model(&models.OutboxMessage{}).Count(&outbox).Error)
	assert.Zero(t, orders)
	assert.Zero(t, items)
	assert.Zero(t, outbox)
	assert.Equal(t, 3, testutil.Stock(t, f.db, product.ID), "the drain rolled back with the order")

	var storedCart models.Cart
	require.NoError(t, f.db.First(&storedCart, "id = ?", cart.ID).Error)
	assert.Equal(t, models.CartStatusActive, storedCart.Status)
}

func TestCheckoutZoneResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("outside every zone names the nearest", func(t *testing.T) {
		f := newFixture(t)
		product := testutil.CreateProduct(t, f.db, "Chips", 2500, 5)
		testutil.FillCart(t, f.db, f.customer, map[*models.Product]int{product: 1})

		req := f.checkoutRequest(f.customer)
		req.Location = &farAway
		_, zone, err := f.orders.Checkout(ctx, req)
		requireFailure(t, err, ErrZoneNotFound)
		assert.False(t, zone.Matched)
		assert.Equal(t, "Main Campus", zone.NearestName)
		assert.Contains(t, err.Error(), "Main Campus")
	})

	t.Run("selection alone is enough without coordinates", func(t *testing.T) {
		f := newFixture(t)
		product := testutil.CreateProduct(t, f.db, "Chips", 2500, 5)
		testutil.FillCart(t, f.db, f.customer, map[*models.Product]int{product: 1})

		req := f.checkoutRequest(f.customer)
		req.Location = nil
		req.ZoneSelection = &f.zone.ID
		order, _, err := f.orders.Checkout(ctx, req)
		require.NoError(t, err)
		assert.Nil(t, order.Latitude)
		assert.Equal(t, "3000", order.TotalAmount.String())
	})

	t.Run("bypass falls back to the selection", func(t *testing.T) {
		f := newFixture(t)
		f.orders.opts.BypassGeofence = true
		product := testutil.CreateProduct(t, f.db, "Chips", 2500, 5)
		testutil.FillCart(t, f.db, f.customer, map[*models.Product]int{product: 1})

		req := f.checkoutRequest(f.customer)
		req.Location = &farAway
		req.ZoneSelection = &f.zone.ID
		order, zone, err := f.orders.Checkout(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, f.zone.ID, zone.ZoneID)
		require.NotNil(t, order.Latitude)
		assert.Equal(t, farAway.Lat, *order.Latitude)
	})
}

func TestGetHidesCodeFromEveryoneButTheCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.CreateProduct(t, f.db, "Burger", 4000, 5)
	order := f.placeOrder(t, f.customer, map[*models.Product]int{product: 1})

	own, err := f.orders.Get(ctx, actorOf(f.customer), order.Reference)
	require.NoError(t, err)
	assert.Equal(t, order.DeliveryCode, own.DeliveryCode)

	adminView, err := f.orders.Get(ctx, actorOf(f.admin), order.ID.String())
	require.NoError(t, err)
	assert.Empty(t, adminView.DeliveryCode)

	stranger := testutil.CreateUser(t, f.db, "stranger", models.RoleCustomer)
	_, err = f.orders.Get(ctx, actorOf(stranger), order.ID.String())
	requireFailure(t, err, ErrNotFound)

	_, err = f.orders.Get(ctx, actorOf(f.staff), order.ID.String())
	requireFailure(t, err, ErrNotFound)

	list, total, err := f.orders.ListAll(ctx, ListOptions{Status: models.OrderStatusPending, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].DeliveryCode)

	mine, total, err := f.orders.ListForCustomer(ctx, f.customer.ID, ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, order.DeliveryCode, mine[0].DeliveryCode)
}
