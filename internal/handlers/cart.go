package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/campusdelivery/internal/middleware"
	"github.com/example/campusdelivery/internal/models"
	"github.com/example/campusdelivery/internal/services"
)

// CartHandler manages the customer's active cart.
type CartHandler struct {
	carts *services.CartService
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(carts *services.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// GetCart returns the active cart, creating it if needed.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	cart, err := h.carts.Active(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": cartView(cart)})
}

// AddItem adds a product to the cart.
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req addItemRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	cart, err := h.carts.AddItem(c.UserContext(), userID, uuid.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": cartView(cart)})
}

// UpdateItem changes a line's quantity.
func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	itemID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateItemRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	cart, err := h.carts.UpdateItem(c.UserContext(), userID, itemID, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": cartView(cart)})
}

// RemoveItem deletes a line.
func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	itemID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	cart, err := h.carts.RemoveItem(c.UserContext(), userID, itemID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": cartView(cart)})
}

func cartView(cart *models.Cart) fiber.Map {
	return fiber.Map{
		"id":       cart.ID,
		"status":   cart.Status,
		"items":    cart.Items,
		"subtotal": cart.Subtotal(),
	}
}
