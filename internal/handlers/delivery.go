package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/campusdelivery/internal/middleware"
	"github.com/example/campusdelivery/internal/services"
	"github.com/example/campusdelivery/internal/utils"
)

// DeliveryHandler serves delivery staff.
type DeliveryHandler struct {
	deliveries *services.DeliveryService
}

// NewDeliveryHandler constructs DeliveryHandler.
func NewDeliveryHandler(deliveries *services.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{deliveries: deliveries}
}

// ListAssignments returns the orders assigned to the caller.
func (h *DeliveryHandler) ListAssignments(c *fiber.Ctx) error {
	staffID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	orders, total, err := h.deliveries.ListAssignments(c.UserContext(), staffID, services.ListOptions{
		Status: c.Query("status"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       orders,
		"pagination": pg.Meta(total),
	})
}

// StartDelivery marks the order picked up. The id is the order's.
func (h *DeliveryHandler) StartDelivery(c *fiber.Ctx) error {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	order, err := h.deliveries.Start(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": orderWithDelivery(order)})
}

type verifyRequest struct {
	OrderID      string `json:"order_id" validate:"required"`
	DeliveryCode string `json:"delivery_code" validate:"required"`
}

// VerifyDelivery completes the handshake with the customer's code.
func (h *DeliveryHandler) VerifyDelivery(c *fiber.Ctx) error {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req verifyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	order, err := h.deliveries.Verify(c.UserContext(), actor, req.OrderID, req.DeliveryCode)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": orderWithDelivery(order)})
}
