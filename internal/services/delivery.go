package services

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/campusdelivery/internal/models"
)

// DeliveryService moves orders through assignment, pickup, handshake and
// cancellation. Every transition checks its preconditions inside the
// transaction that applies it, against a locked order row.
type DeliveryService struct {
	db     *gorm.DB
	stock  *StockLedger
	outbox *Outbox
	audit  AuditLog
	now    func() time.Time
}

func NewDeliveryService(db *gorm.DB, stock *StockLedger, outbox *Outbox, audit AuditLog) *DeliveryService {
	return &DeliveryService{
		db:     db,
		stock:  stock,
		outbox: outbox,
		audit:  audit,
		now:    time.Now,
	}
}

// Assign hands the order to a delivery staff member. Reassigning replaces
// the previous assignee and clears the task's timestamps.
func (s *DeliveryService) Assign(ctx context.Context, actor Actor, orderID string, staffID uuid.UUID) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, Fail(ErrForbidden)
	}
	if staffID == uuid.Nil {
		return nil, Failf(ErrInvalidInput, "delivery_person_id is required")
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case models.OrderStatusPending, models.OrderStatusProcessing:
		case models.OrderStatusCancelled:
			return Failf(ErrInvalidTransition, "a cancelled order cannot be assigned")
		case models.OrderStatusDelivered:
			return Failf(ErrInvalidTransition, "a delivered order cannot be assigned")
		default:
			return Failf(ErrInvalidTransition, "an order out for delivery cannot be reassigned")
		}

		var staff models.User
		if err := tx.First(&staff, "id = ?", staffID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Fail(ErrStaffNotFound)
			}
			return errors.Wrap(err, "load delivery staff")
		}
		if !staff.IsDeliveryStaff() {
			return Fail(ErrInactiveStaff)
		}

		delivery, err := findDelivery(tx, order.ID)
		if err != nil && !errors.Is(err, Fail(ErrNotYetAssigned)) {
			return err
		}

		now := s.now()
		assignedBy := actor.ID
		if delivery == nil {
			delivery = &models.Delivery{OrderID: order.ID}
		}
		delivery.DeliveryPersonID = staff.ID
		delivery.AssignedBy = &assignedBy
		delivery.Status = models.DeliveryTaskAssigned
		delivery.AssignedAt = now
		delivery.PickedUpAt = nil
		delivery.DeliveredAt = nil
		delivery.CollectorPhone = ""
		if err := tx.Omit(clause.Associations).Save(delivery).Error; err != nil {
			return errors.Wrap(err, "save delivery")
		}
		delivery.DeliveryPerson = &staff

		if err := updateOrderStatus(tx, order, models.OrderStatusProcessing, nil); err != nil {
			return err
		}
		order.Delivery = delivery

		s.outbox.Enqueue(ctx, tx, NewNotification(EventOrderStatus, order))
		s.outbox.Enqueue(ctx, tx, NewNotification(EventStaffAssigned, order))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.outbox.Kick()
	s.audit.Record(ctx, "order.assigned", "order", order.ID.String(),
		"order "+order.Reference+" assigned to "+order.Delivery.DeliveryPerson.Name)

	order.HideDeliveryCode()
	return order, nil
}

// Start marks the assigned delivery as picked up.
func (s *DeliveryService) Start(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	if !actor.IsStaff() {
		return nil, Fail(ErrForbidden)
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.IsTerminal() {
			return Failf(ErrInvalidTransition, "a %s order cannot be started", order.Status)
		}

		delivery, err := findDelivery(tx, order.ID)
		if err != nil {
			return err
		}
		if delivery.DeliveryPersonID != actor.ID {
			return Fail(ErrWrongAssignee)
		}
		if delivery.Status != models.DeliveryTaskAssigned {
			return Failf(ErrInvalidTransition, "this delivery has already been started")
		}

		now := s.now()
		if err := tx.Model(delivery).Updates(map[string]interface{}{
			"status":       models.DeliveryTaskInTransit,
			"picked_up_at": now,
		}).Error; err != nil {
			return errors.Wrap(err, "start delivery")
		}
		delivery.Status = models.DeliveryTaskInTransit
		delivery.PickedUpAt = &now

		if err := updateOrderStatus(tx, order, models.OrderStatusOutForDelivery, nil); err != nil {
			return err
		}
		order.Delivery = delivery

		s.outbox.Enqueue(ctx, tx, NewNotification(EventOrderStatus, order))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.outbox.Kick()
	s.audit.Record(ctx, "delivery.started", "order", order.ID.String(), "order "+order.Reference+" is out for delivery")

	order.HideDeliveryCode()
	return order, nil
}

// Cancel cancels a pending or processing order and returns its stock. The
// customer who placed the order and admins may cancel; other customers get
// NotFound and staff get Forbidden.
func (s *DeliveryService) Cancel(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	if actor.IsStaff() {
		return nil, Fail(ErrForbidden)
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && order.UserID != actor.ID {
			return Fail(ErrNotFound)
		}
		if !order.IsCancellable() {
			return Failf(ErrInvalidTransition, "a %s order cannot be cancelled", order.Status)
		}

		if err := tx.Where("order_id = ?", order.ID).Order("created_at asc").Find(&order.Items).Error; err != nil {
			return errors.Wrap(err, "load order items")
		}

		ledger := s.stock.WithTx(tx)
		for _, item := range order.Items {
			if err := ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		now := s.now()
		if err := updateOrderStatus(tx, order, models.OrderStatusCancelled, map[string]interface{}{
			"payment_status": models.PaymentStatusFailed,
			"cancelled_at":   now,
		}); err != nil {
			return err
		}
		order.PaymentStatus = models.PaymentStatusFailed
		order.CancelledAt = &now

		s.outbox.Enqueue(ctx, tx, NewNotification(EventOrderStatus, order))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.outbox.Kick()
	s.audit.Record(ctx, "order.cancelled", "order", order.ID.String(), "order "+order.Reference+" cancelled by "+actor.Role)

	if order.UserID != actor.ID {
		order.HideDeliveryCode()
	}
	return order, nil
}

// Verify completes a delivery when the staff member holding it submits the
// customer's code. Checks run in a fixed order and the first failure wins.
func (s *DeliveryService) Verify(ctx context.Context, actor Actor, orderID, code string) (*models.Order, error) {
	if !actor.IsStaff() {
		return nil, Fail(ErrForbidden)
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusCancelled {
			return Fail(ErrAlreadyCancelled)
		}
		if order.Status == models.OrderStatusDelivered || order.DeliveryStatus == models.DeliveryStatusDelivered {
			return Fail(ErrAlreadyDelivered)
		}

		delivery, err := findDelivery(tx, order.ID)
		if err != nil {
			return err
		}
		if delivery.DeliveryPersonID != actor.ID {
			return Fail(ErrWrongAssignee)
		}
		if delivery.Status != models.DeliveryTaskInTransit {
			return Fail(ErrNotStarted)
		}
		if order.DeliveryStatus != models.DeliveryStatusOutForDelivery {
			return Fail(ErrNotOutForDelivery)
		}
		if !codesMatch(code, order.DeliveryCode) {
			return Fail(ErrCodeMismatch)
		}

		now := s.now()
		deliveredBy := actor.ID
		if err := updateOrderStatus(tx, order, models.OrderStatusDelivered, map[string]interface{}{
			"payment_status": models.PaymentStatusCompleted,
			"delivered_at":   now,
			"delivered_by":   deliveredBy,
		}); err != nil {
			return err
		}
		order.PaymentStatus = models.PaymentStatusCompleted
		order.DeliveredAt = &now
		order.DeliveredBy = &deliveredBy

		if err := tx.Model(delivery).Updates(map[string]interface{}{
			"status":          models.DeliveryTaskDelivered,
			"delivered_at":    now,
			"collector_phone": order.CustomerPhone,
		}).Error; err != nil {
			return errors.Wrap(err, "complete delivery")
		}
		delivery.Status = models.DeliveryTaskDelivered
		delivery.DeliveredAt = &now
		delivery.CollectorPhone = order.CustomerPhone
		order.Delivery = delivery

		s.outbox.Enqueue(ctx, tx, NewNotification(EventDeliveryConfirmed, order))
		s.outbox.Enqueue(ctx, tx, NewNotification(EventOrderStatus, order))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.outbox.Kick()
	s.audit.Record(ctx, "delivery.completed", "order", order.ID.String(), "order "+order.Reference+" delivered")

	order.HideDeliveryCode()
	return order, nil
}

// ListAssignments pages the orders assigned to a staff member.
func (s *DeliveryService) ListAssignments(ctx context.Context, staffID uuid.UUID, opts ListOptions) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).
		Joins("JOIN deliveries ON deliveries.order_id = orders.id").
		Where("deliveries.delivery_person_id = ?", staffID)
	return listOrders(query, opts, true)
}

// Submitted codes are compared as strings so "0123" never equals "123".
func codesMatch(submitted, stored string) bool {
	submitted = strings.TrimSpace(submitted)
	if submitted == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(stored)) == 1
}

func lockOrder(tx *gorm.DB, idOrReference string) (*models.Order, error) {
	return findOrder(tx.Clauses(clause.Locking{Strength: "UPDATE"}), idOrReference)
}

func findDelivery(tx *gorm.DB, orderID uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	err := tx.Preload("DeliveryPerson").First(&delivery, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Fail(ErrNotYetAssigned)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load delivery")
	}
	return &delivery, nil
}

// updateOrderStatus writes status plus extra columns only if the row still
// holds the status that was checked.
func updateOrderStatus(tx *gorm.DB, order *models.Order, status string, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": status}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(updates)
	if result.Error != nil {
		return errors.Wrap(result.Error, "update order status")
	}
	if result.RowsAffected == 0 {
		return Failf(ErrInvalidTransition, "the order changed while this request was processed")
	}

	order.SetStatus(status)
	return nil
}
