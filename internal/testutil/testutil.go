// Package testutil provides an in-memory database and fixtures for tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/campusdelivery/internal/database"
	"github.com/example/campusdelivery/internal/geo"
	"github.com/example/campusdelivery/internal/models"
)

// NewDB opens a migrated in-memory sqlite database. The pool holds a single
// connection, so concurrent transactions run one after another.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// CreateUser inserts an active user with the given role.
func CreateUser(t testing.TB, db *gorm.DB, name, role string) *models.User {
	t.Helper()

	user := &models.User{
		Name:     name,
		Phone:    "+265" + uuid.NewString()[:8],
		Email:    name + "@campus.test",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateProduct inserts an active product.
func CreateProduct(t testing.TB, db *gorm.DB, name string, price int64, stock int) *models.Product {
	t.Helper()

	product := &models.Product{
		Name:          name,
		SKU:           "SKU-" + uuid.NewString()[:8],
		Price:         decimal.NewFromInt(price),
		StockQuantity: stock,
		IsActive:      true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

// FillCart creates an active cart for the user holding the given products and
// quantities, priced at each product's current price.
func FillCart(t testing.TB, db *gorm.DB, user *models.User, lines map[*models.Product]int) *models.Cart {
	t.Helper()

	cart := &models.Cart{UserID: user.ID, Status: models.CartStatusActive}
	require.NoError(t, db.Create(cart).Error)

	for product, qty := range lines {
		item := &models.CartItem{
			CartID:    cart.ID,
			ProductID: product.ID,
			Quantity:  qty,
			Price:     product.Price,
		}
		require.NoError(t, db.Create(item).Error)
	}
	return cart
}

// CreateCircleZone inserts an active circular zone.
func CreateCircleZone(t testing.TB, db *gorm.DB, name string, center geo.Point, radiusMeters float64, fee int64) *models.DeliveryZone {
	t.Helper()

	zone := &models.DeliveryZone{
		Name:            name,
		CenterLatitude:  center.Lat,
		CenterLongitude: center.Lng,
		RadiusMeters:    radiusMeters,
		DeliveryFee:     decimal.NewFromInt(fee),
		IsActive:        true,
	}
	require.NoError(t, db.Create(zone).Error)
	return zone
}

// CreatePolygonLocation inserts an active polygon area.
func CreatePolygonLocation(t testing.TB, db *gorm.DB, name string, ring []geo.Point, fee int64) *models.DeliveryLocation {
	t.Helper()

	location := &models.DeliveryLocation{
		Name:        name,
		DeliveryFee: decimal.NewFromInt(fee),
		IsActive:    true,
	}
	for i, p := range ring {
		location.Points = append(location.Points, models.DeliveryLocationPoint{
			Position:  i,
			Latitude:  p.Lat,
			Longitude: p.Lng,
		})
	}
	require.NoError(t, db.Create(location).Error)
	return location
}

// Stock reads the current stock of a product.
func Stock(t testing.TB, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", productID).Error)
	return product.StockQuantity
}
