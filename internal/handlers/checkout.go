package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/campusdelivery/internal/geo"
	"github.com/example/campusdelivery/internal/middleware"
	"github.com/example/campusdelivery/internal/services"
)

// CheckoutHandler places orders.
type CheckoutHandler struct {
	orders *services.OrderService
}

// NewCheckoutHandler constructs CheckoutHandler.
func NewCheckoutHandler(orders *services.OrderService) *CheckoutHandler {
	return &CheckoutHandler{orders: orders}
}

type checkoutRequest struct {
	DeliveryLocationID string   `json:"delivery_location_id" validate:"omitempty,uuid"`
	PaymentMethod      string   `json:"payment_method" validate:"required,oneof=cash mobile_money"`
	Notes              string   `json:"notes" validate:"max=1000"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	CustomerName       string   `json:"customer_name"`
	CustomerPhone      string   `json:"customer_phone"`
	CustomerAddress    string   `json:"customer_address"`
}

// Checkout converts the customer's cart into an order.
func (h *CheckoutHandler) Checkout(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req checkoutRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	in := services.CheckoutRequest{
		UserID:          userID,
		PaymentMethod:   req.PaymentMethod,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
		Notes:           req.Notes,
	}

	if req.DeliveryLocationID != "" {
		id := uuid.MustParse(req.DeliveryLocationID)
		in.ZoneSelection = &id
	}

	switch {
	case req.Latitude != nil && req.Longitude != nil:
		in.Location = &geo.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	case req.Latitude != nil || req.Longitude != nil:
		return services.Failf(services.ErrInvalidInput, "latitude and longitude must be sent together")
	}

	order, zone, err := h.orders.Checkout(c.UserContext(), in)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order":         order,
			"order_id":      order.ID,
			"delivery_zone": zone,
		},
	})
}
