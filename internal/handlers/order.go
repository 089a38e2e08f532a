package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/campusdelivery/internal/middleware"
	"github.com/example/campusdelivery/internal/models"
	"github.com/example/campusdelivery/internal/services"
	"github.com/example/campusdelivery/internal/utils"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	orders     *services.OrderService
	deliveries *services.DeliveryService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService, deliveries *services.DeliveryService) *OrderHandler {
	return &OrderHandler{orders: orders, deliveries: deliveries}
}

// ListOrders returns orders for the authenticated customer.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	orders, total, err := h.orders.ListForCustomer(c.UserContext(), userID, services.ListOptions{
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

// ListAllOrders returns every order for admins.
func (h *OrderHandler) ListAllOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	orders, total, err := h.orders.ListAll(c.UserContext(), services.ListOptions{
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

// GetOrder returns a single order by id or reference.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	order, err := h.orders.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

// CancelOrder cancels a pending or processing order.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	order, err := h.deliveries.Cancel(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"order": order}})
}

type assignRequest struct {
	DeliveryPersonID string `json:"delivery_person_id" validate:"required,uuid"`
}

// AssignOrder hands an order to delivery staff.
func (h *OrderHandler) AssignOrder(c *fiber.Ctx) error {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req assignRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	staffID := uuid.MustParse(req.DeliveryPersonID)

	order, err := h.deliveries.Assign(c.UserContext(), actor, c.Params("id"), staffID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": orderWithDelivery(order)})
}

// CodeUtilization reports how much of the delivery code space is used.
func (h *OrderHandler) CodeUtilization(c *fiber.Ctx) error {
	usage, err := h.orders.Utilization(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": usage})
}

func orderWithDelivery(order *models.Order) fiber.Map {
	return fiber.Map{
		"order":    order,
		"delivery": order.Delivery,
	}
}
