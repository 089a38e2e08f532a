package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/config"
	"github.com/example/campusdelivery/internal/handlers"
	"github.com/example/campusdelivery/internal/middleware"
	"github.com/example/campusdelivery/internal/models"
	"github.com/example/campusdelivery/internal/services"
)

// Services bundles what the handlers need. Cache may be nil.
type Services struct {
	Zones      services.ZoneResolver
	Stock      *services.StockLedger
	Carts      *services.CartService
	Orders     *services.OrderService
	Deliveries *services.DeliveryService
	Cache      handlers.Pinger
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, svc Services) {
	healthHandler := handlers.NewHealthHandler(db, svc.Cache)
	geofenceHandler := handlers.NewGeofenceHandler(svc.Zones)
	productHandler := handlers.NewProductHandler(db, svc.Stock)
	cartHandler := handlers.NewCartHandler(svc.Carts)
	checkoutHandler := handlers.NewCheckoutHandler(svc.Orders)
	orderHandler := handlers.NewOrderHandler(svc.Orders, svc.Deliveries)
	deliveryHandler := handlers.NewDeliveryHandler(svc.Deliveries)

	api := app.Group("/api")

	api.Get("/health", healthHandler.Health)
	api.Post("/geofence/validate", geofenceHandler.Validate)

	products := api.Group("/products")
	products.Get("/", productHandler.ListProducts)
	products.Get("/:id", productHandler.GetProduct)

	authRequired := middleware.AuthMiddleware(cfg.JWTSecret, db)
	customerOnly := middleware.RequireRole(models.RoleCustomer)
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	staffOnly := middleware.RequireRole(models.RoleDelivery)

	cart := api.Group("/cart", authRequired, customerOnly)
	cart.Get("/", cartHandler.GetCart)
	cart.Post("/items", cartHandler.AddItem)
	cart.Patch("/items/:id", cartHandler.UpdateItem)
	cart.Delete("/items/:id", cartHandler.RemoveItem)

	api.Post("/checkout", authRequired, customerOnly, checkoutHandler.Checkout)

	orders := api.Group("/orders", authRequired)
	orders.Get("/", customerOnly, orderHandler.ListOrders)
	orders.Get("/:id", middleware.RequireRole(models.RoleCustomer, models.RoleAdmin), orderHandler.GetOrder)
	orders.Patch("/:id/cancel", middleware.RequireRole(models.RoleCustomer, models.RoleAdmin), orderHandler.CancelOrder)
	orders.Patch("/:id/assign", adminOnly, orderHandler.AssignOrder)

	admin := api.Group("/admin", authRequired, adminOnly)
	admin.Get("/orders", orderHandler.ListAllOrders)
	admin.Get("/delivery-codes/utilization", orderHandler.CodeUtilization)
	admin.Post("/products", productHandler.CreateProduct)
	admin.Put("/products/:id", productHandler.UpdateProduct)
	admin.Post("/products/:id/restock", productHandler.Restock)

	delivery := api.Group("/delivery", authRequired, staffOnly)
	delivery.Get("/assignments", deliveryHandler.ListAssignments)
	delivery.Patch("/:id/start", deliveryHandler.StartDelivery)
	delivery.Post("/verify", deliveryHandler.VerifyDelivery)
}
