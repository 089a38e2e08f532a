package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/campusdelivery/internal/geo"
	"github.com/example/campusdelivery/internal/models"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool    { return a.Role == models.RoleAdmin }
func (a Actor) IsCustomer() bool { return a.Role == models.RoleCustomer }
func (a Actor) IsStaff() bool    { return a.Role == models.RoleDelivery }

// CheckoutRequest is everything a customer submits to place an order.
type CheckoutRequest struct {
	UserID          uuid.UUID
	ZoneSelection   *uuid.UUID
	Location        *geo.Point
	PaymentMethod   string
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	Notes           string
}

// OrderOptions are the platform rules applied at checkout.
type OrderOptions struct {
	MinOrderAmount decimal.Decimal
	Currency       string
	BypassGeofence bool
}

// ListOptions filters and pages order listings.
type ListOptions struct {
	Status string
	Limit  int
	Offset int
}

// OrderService creates orders from carts and answers order queries.
type OrderService struct {
	db     *gorm.DB
	zones  ZoneResolver
	stock  *StockLedger
	codes  *CodeAllocator
	outbox *Outbox
	audit  AuditLog
	opts   OrderOptions
}

func NewOrderService(db *gorm.DB, zones ZoneResolver, stock *StockLedger, codes *CodeAllocator, outbox *Outbox, audit AuditLog, opts OrderOptions) *OrderService {
	if opts.Currency == "" {
		opts.Currency = "MWK"
	}
	return &OrderService{
		db:     db,
		zones:  zones,
		stock:  stock,
		codes:  codes,
		outbox: outbox,
		audit:  audit,
		opts:   opts,
	}
}

// Checkout validates the request, resolves the delivery zone and places the
// order. Nothing is written unless every step succeeds.
func (s *OrderService) Checkout(ctx context.Context, req CheckoutRequest) (*models.Order, ZoneMatch, error) {
	if err := validateCheckout(req); err != nil {
		return nil, ZoneMatch{}, err
	}

	zone, err := s.ResolveDeliveryZone(ctx, req.ZoneSelection, req.Location)
	if err != nil {
		return nil, zone, err
	}

	order, err := s.CreateOrder(ctx, req, zone)
	return order, zone, err
}

func validateCheckout(req CheckoutRequest) error {
	var missing []string
	if req.UserID == uuid.Nil {
		missing = append(missing, "user")
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		missing = append(missing, "customer_name")
	}
	if strings.TrimSpace(req.CustomerPhone) == "" {
		missing = append(missing, "customer_phone")
	}
	if strings.TrimSpace(req.CustomerAddress) == "" {
		missing = append(missing, "customer_address")
	}
	if len(missing) > 0 {
		return Failf(ErrInvalidInput, "missing fields: %s", strings.Join(missing, ", "))
	}

	switch req.PaymentMethod {
	case models.PaymentMethodCash, models.PaymentMethodMobileMoney:
	default:
		return Failf(ErrInvalidInput, "payment_method must be cash or mobile_money")
	}

	if req.Location == nil && req.ZoneSelection == nil {
		return Failf(ErrInvalidInput, "a delivery location or coordinates are required")
	}
	if req.Location != nil && !req.Location.Valid() {
		return Failf(ErrInvalidInput, "coordinates are out of range")
	}
	if len(req.Notes) > 1000 {
		return Failf(ErrInvalidInput, "notes must be at most 1000 characters")
	}
	return nil
}

// ResolveDeliveryZone turns a zone selection and optional coordinates into a
// matched zone. Coordinates win over the selection; the selection is used
// alone when no coordinates are sent or when the geofence bypass is on.
func (s *OrderService) ResolveDeliveryZone(ctx context.Context, selection *uuid.UUID, location *geo.Point) (ZoneMatch, error) {
	if location != nil {
		match, err := s.zones.Resolve(ctx, *location)
		if err != nil {
			return match, errors.Wrap(err, "resolve delivery zone")
		}
		if match.Matched {
			return match, nil
		}

		if !s.opts.BypassGeofence || selection == nil {
			return match, zoneNotFound(match)
		}
		log.Warn().
			Float64("lat", location.Lat).
			Float64("lng", location.Lng).
			Str("selection", selection.String()).
			Msg("geofence bypass: coordinates outside every zone, using selected zone")
	}

	if selection == nil {
		return ZoneMatch{Kind: s.zones.Kind()}, Fail(ErrZoneNotFound)
	}

	match, err := s.zones.Lookup(ctx, *selection)
	if err != nil {
		return match, errors.Wrap(err, "look up delivery zone")
	}
	if !match.Matched {
		return match, Failf(ErrZoneNotFound, "the selected delivery location is not available")
	}
	return match, nil
}

func zoneNotFound(match ZoneMatch) error {
	if match.NearestName != "" {
		return Failf(ErrZoneNotFound, "we do not deliver to this location yet; the nearest zone is %s", match.NearestName)
	}
	return Fail(ErrZoneNotFound)
}

// CreateOrder converts the customer's active cart into an order in one
// transaction: validate lines, price, allocate identifiers, insert, debit
// stock and consume the cart. Notifications are queued in the same
// transaction and dispatched after it commits.
func (s *OrderService) CreateOrder(ctx context.Context, req CheckoutRequest, zone ZoneMatch) (*models.Order, error) {
	if !zone.Matched {
		return nil, Fail(ErrZoneNotFound)
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := lockActiveCart(tx, req.UserID)
		if err != nil {
			return err
		}

		if err := checkCartLines(cart); err != nil {
			return err
		}

		subtotal := cart.Subtotal()
		if subtotal.LessThan(s.opts.MinOrderAmount) {
			return Failf(ErrBelowMinimumOrder, "the minimum order is %s, your cart comes to %s",
				FormatPrice(s.opts.MinOrderAmount, s.opts.Currency), FormatPrice(subtotal, s.opts.Currency))
		}

		order = s.buildOrder(req, zone, cart, subtotal)
		if err := s.codes.Insert(ctx, tx, order); err != nil {
			return err
		}

		ledger := s.stock.WithTx(tx)
		for _, item := range cart.Items {
			if err := ledger.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, Fail(ErrInsufficientStock)) {
					return Failf(ErrInsufficientStock, "%s sold out while your order was being placed", item.Product.Name)
				}
				return err
			}
		}

		result := tx.Model(&models.Cart{}).
			Where("id = ? AND status = ?", cart.ID, models.CartStatusActive).
			Update("status", models.CartStatusConverted)
		if result.Error != nil {
			return errors.Wrap(result.Error, "convert cart")
		}
		if result.RowsAffected == 0 {
			return Fail(ErrEmptyCart)
		}

		s.outbox.Enqueue(ctx, tx, NewNotification(EventOrderConfirmation, order))
		s.outbox.Enqueue(ctx, tx, NewNotification(EventOrderStatus, order))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.outbox.Kick()
	s.audit.Record(ctx, "order.created", "order", order.ID.String(),
		"order "+order.Reference+" placed for "+FormatPrice(order.TotalAmount, order.Currency))

	return order, nil
}

func lockActiveCart(tx *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status = ?", userID, models.CartStatusActive).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Fail(ErrEmptyCart)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	if err := tx.Preload("Product").
		Where("cart_id = ?", cart.ID).
		Order("created_at asc").
		Find(&cart.Items).Error; err != nil {
		return nil, errors.Wrap(err, "load cart items")
	}
	if len(cart.Items) == 0 {
		return nil, Fail(ErrEmptyCart)
	}
	return &cart, nil
}

// Stock here is advisory; Reserve is the authoritative check.
func checkCartLines(cart *models.Cart) error {
	for _, item := range cart.Items {
		if item.Product == nil || !item.Product.IsActive {
			name := "a product"
			if item.Product != nil {
				name = item.Product.Name
			}
			return Failf(ErrProductUnavailable, "%s is no longer available", name)
		}
		if item.Quantity <= 0 {
			return Failf(ErrInvalidInput, "quantity for %s must be positive", item.Product.Name)
		}
		if item.Product.StockQuantity < item.Quantity {
			return Failf(ErrInsufficientStock, "only %d of %s left in stock", item.Product.StockQuantity, item.Product.Name)
		}
	}
	return nil
}

func (s *OrderService) buildOrder(req CheckoutRequest, zone ZoneMatch, cart *models.Cart, subtotal decimal.Decimal) *models.Order {
	cartID := cart.ID
	zoneID := zone.ZoneID

	order := &models.Order{
		UserID:          req.UserID,
		CartID:          &cartID,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   models.PaymentStatusPending,
		Subtotal:        subtotal,
		DeliveryFee:     zone.Fee,
		TotalAmount:     subtotal.Add(zone.Fee),
		Currency:        s.opts.Currency,
		ZoneKind:        zone.Kind,
		ZoneID:          &zoneID,
		ZoneName:        zone.ZoneName,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		CustomerAddress: strings.TrimSpace(req.CustomerAddress),
		Notes:           strings.TrimSpace(req.Notes),
		PlacedAt:        time.Now(),
	}
	order.SetStatus(models.OrderStatusPending)

	if req.Location != nil {
		lat, lng := req.Location.Lat, req.Location.Lng
		order.Latitude = &lat
		order.Longitude = &lng
	}

	for _, item := range cart.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.Product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.Price,
			Subtotal:    item.LineTotal(),
		})
	}
	return order
}

// Get returns one order visible to actor, by id or reference. Customers see
// their own orders and staff the orders assigned to them; anything else is
// reported as not found. The delivery code is shown only to the customer
// who placed the order.
func (s *OrderService) Get(ctx context.Context, actor Actor, idOrReference string) (*models.Order, error) {
	order, err := findOrder(s.db.WithContext(ctx).Preload("Items").Preload("Delivery.DeliveryPerson"), idOrReference)
	if err != nil {
		return nil, err
	}

	switch {
	case actor.IsAdmin():
	case actor.IsCustomer() && order.UserID == actor.ID:
	case actor.IsStaff() && order.Delivery != nil && order.Delivery.DeliveryPersonID == actor.ID:
	default:
		return nil, Fail(ErrNotFound)
	}

	if order.UserID != actor.ID {
		order.HideDeliveryCode()
	}
	return order, nil
}

// ListForCustomer pages the customer's own orders, newest first.
func (s *OrderService) ListForCustomer(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("orders.user_id = ?", userID)
	return listOrders(query, opts, false)
}

// ListAll pages every order for admins. Delivery codes are hidden.
func (s *OrderService) ListAll(ctx context.Context, opts ListOptions) ([]models.Order, int64, error) {
	return listOrders(s.db.WithContext(ctx).Model(&models.Order{}), opts, true)
}

func listOrders(query *gorm.DB, opts ListOptions, hideCodes bool) ([]models.Order, int64, error) {
	if opts.Status != "" {
		query = query.Where("orders.status = ?", opts.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Preload("Delivery.DeliveryPerson").
		Order("orders.placed_at desc").
		Limit(opts.Limit).Offset(opts.Offset).
		Find(&orders).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}

	if hideCodes {
		for i := range orders {
			orders[i].HideDeliveryCode()
		}
	}
	return orders, total, nil
}

// Utilization reports how much of the delivery code space is used.
func (s *OrderService) Utilization(ctx context.Context) (CodeUtilization, error) {
	return s.codes.Utilization(ctx, s.db)
}

// findOrder loads an order by uuid or, failing that, by reference.
func findOrder(query *gorm.DB, idOrReference string) (*models.Order, error) {
	idOrReference = strings.TrimSpace(idOrReference)
	if idOrReference == "" {
		return nil, Fail(ErrNotFound)
	}

	var order models.Order
	var err error
	if id, parseErr := uuid.Parse(idOrReference); parseErr == nil {
		err = query.First(&order, "id = ?", id).Error
	} else {
		err = query.First(&order, "reference = ?", idOrReference).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Fail(ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}
	return &order, nil
}
