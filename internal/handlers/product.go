package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/models"
	"github.com/example/campusdelivery/internal/services"
	"github.com/example/campusdelivery/internal/utils"
)

// ProductHandler manages the product catalogue.
type ProductHandler struct {
	db    *gorm.DB
	stock *services.StockLedger
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB, stock *services.StockLedger) *ProductHandler {
	return &ProductHandler{db: db, stock: stock}
}

// ListProducts returns paginated active products with an optional search.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Product{}).Where("is_active = ?", true)

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", q, q)
	}

	if c.QueryBool("in_stock") {
		query = query.Where("stock_quantity > 0")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.Limit(pg.Limit).Offset(pg.Offset).
		Order("name asc").
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       products,
		"pagination": pg.Meta(total),
	})
}

// GetProduct returns a single product.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	product, err := h.find(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": product})
}

type productRequest struct {
	Name          string  `json:"name" validate:"max=200"`
	SKU           string  `json:"sku" validate:"max=64"`
	Price         *string `json:"price"`
	StockQuantity int     `json:"stock_quantity" validate:"gte=0"`
	IsActive      *bool   `json:"is_active"`
}

// CreateProduct adds a product. Admin only.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || req.Price == nil {
		return services.Failf(services.ErrInvalidInput, "name and price are required")
	}
	price, err := parsePrice(*req.Price)
	if err != nil {
		return err
	}
	product := models.Product{
		Name:          name,
		SKU:           strings.TrimSpace(req.SKU),
		Price:         price,
		StockQuantity: req.StockQuantity,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, "sku already exists")
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

// UpdateProduct changes catalogue fields. Stock is not editable here.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	product, err := h.find(c)
	if err != nil {
		return err
	}

	var req productRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if name := strings.TrimSpace(req.Name); name != "" {
		updates["name"] = name
	}
	if req.Price != nil {
		price, err := parsePrice(*req.Price)
		if err != nil {
			return err
		}
		updates["price"] = price
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return services.Failf(services.ErrInvalidInput, "nothing to update")
	}

	if err := h.db.WithContext(c.UserContext()).Model(product).Updates(updates).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": product})
}

type restockRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

// Restock adds units through the stock ledger.
func (h *ProductHandler) Restock(c *fiber.Ctx) error {
	product, err := h.find(c)
	if err != nil {
		return err
	}

	var req restockRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	if err := h.stock.Release(ctx, product.ID, req.Quantity); err != nil {
		return err
	}
	available, err := h.stock.Available(ctx, product.ID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{
		"product_id":     product.ID,
		"stock_quantity": available,
	}})
}

func (h *ProductHandler) find(c *fiber.Ctx) (*models.Product, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var product models.Product
	if err := h.db.WithContext(c.UserContext()).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return nil, err
	}
	return &product, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || price.IsNegative() {
		return decimal.Zero, services.Failf(services.ErrInvalidInput, "price must be a non-negative amount")
	}
	return price, nil
}
