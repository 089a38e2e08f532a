package services

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/models"
)

// Outbox events.
const (
	EventOrderConfirmation = "order.confirmation"
	EventOrderStatus       = "order.status_changed"
	EventDeliveryConfirmed = "order.delivery_confirmed"
	EventStaffAssigned     = "delivery.staff_assigned"
)

// Notification is the snapshot of an order carried by an outbox message.
type Notification struct {
	Event          string             `json:"event"`
	OrderID        uuid.UUID          `json:"order_id"`
	Reference      string             `json:"reference"`
	Status         string             `json:"status"`
	DeliveryStatus string             `json:"delivery_status"`
	CustomerID     uuid.UUID          `json:"customer_id"`
	CustomerName   string             `json:"customer_name"`
	CustomerPhone  string             `json:"customer_phone"`
	PaymentMethod  string             `json:"payment_method"`
	TotalAmount    decimal.Decimal    `json:"total_amount"`
	Currency       string             `json:"currency"`
	ZoneName       string             `json:"zone_name"`
	StaffID        *uuid.UUID         `json:"staff_id,omitempty"`
	StaffName      string             `json:"staff_name,omitempty"`
	Items          []NotificationItem `json:"items,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

type NotificationItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// NewNotification snapshots order for event.
func NewNotification(event string, order *models.Order) Notification {
	n := Notification{
		Event:          event,
		OrderID:        order.ID,
		Reference:      order.Reference,
		Status:         order.Status,
		DeliveryStatus: models.DeliveryStatusFor(order.Status),
		CustomerID:     order.UserID,
		CustomerName:   order.CustomerName,
		CustomerPhone:  order.CustomerPhone,
		PaymentMethod:  order.PaymentMethod,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
		ZoneName:       order.ZoneName,
		OccurredAt:     time.Now().UTC(),
	}
	for _, item := range order.Items {
		n.Items = append(n.Items, NotificationItem{
			Name:     item.ProductName,
			Quantity: item.Quantity,
			Price:    item.UnitPrice,
		})
	}
	if order.Delivery != nil {
		staffID := order.Delivery.DeliveryPersonID
		n.StaffID = &staffID
		if order.Delivery.DeliveryPerson != nil {
			n.StaffName = order.Delivery.DeliveryPerson.Name
		}
	}
	return n
}

// NotificationService delivers lifecycle notices to people.
type NotificationService interface {
	SendOrderConfirmation(ctx context.Context, n Notification) error
	SendOrderStatusUpdate(ctx context.Context, n Notification, status string) error
	SendDeliveryConfirmation(ctx context.Context, n Notification) error
	SendStaffAssignment(ctx context.Context, n Notification) error
}

// AuditLog records who changed what.
type AuditLog interface {
	Record(ctx context.Context, action, resourceType, resourceID, description string)
}

// LogAudit writes audit entries to the structured log.
type LogAudit struct {
	logger zerolog.Logger
}

func NewLogAudit() *LogAudit {
	return &LogAudit{logger: log.With().Str("component", "audit").Logger()}
}

func (a *LogAudit) Record(ctx context.Context, action, resourceType, resourceID, description string) {
	a.logger.Info().
		Str("action", action).
		Str("resource_type", resourceType).
		Str("resource_id", resourceID).
		Msg(description)
}

// LogNotifier only logs. It is the sink used when no channel is configured.
type LogNotifier struct{}

func (LogNotifier) SendOrderConfirmation(ctx context.Context, n Notification) error {
	log.Info().Str("reference", n.Reference).Str("customer", n.CustomerName).Msg("order confirmation")
	return nil
}

func (LogNotifier) SendOrderStatusUpdate(ctx context.Context, n Notification, status string) error {
	log.Info().Str("reference", n.Reference).Str("status", status).Msg("order status update")
	return nil
}

func (LogNotifier) SendDeliveryConfirmation(ctx context.Context, n Notification) error {
	log.Info().Str("reference", n.Reference).Msg("delivery confirmed")
	return nil
}

func (LogNotifier) SendStaffAssignment(ctx context.Context, n Notification) error {
	log.Info().Str("reference", n.Reference).Str("staff", n.StaffName).Msg("delivery assigned")
	return nil
}

// Sink is a named notification channel. The outbox tracks delivery per sink
// so a retry never re-sends to a channel that already accepted the notice.
type Sink struct {
	Name     string
	Notifier NotificationService
}

// Outbox stores notifications in the transaction that caused them and
// delivers them once that transaction has committed.
type Outbox struct {
	db          *gorm.DB
	sinks       []Sink
	maxAttempts int
	batchSize   int

	mu   sync.Mutex
	kick chan struct{}
}

func NewOutbox(db *gorm.DB, maxAttempts int, sinks ...Sink) *Outbox {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Outbox{
		db:          db,
		sinks:       sinks,
		maxAttempts: maxAttempts,
		batchSize:   100,
		kick:        make(chan struct{}, 1),
	}
}

func (o *Outbox) sinkNames() []string {
	names := make([]string, 0, len(o.sinks))
	for _, s := range o.sinks {
		names = append(names, s.Name)
	}
	return names
}

// Enqueue writes one message per sink inside tx. A failure here is logged and
// swallowed so a notification can never undo the change it describes.
func (o *Outbox) Enqueue(ctx context.Context, tx *gorm.DB, n Notification) {
	if len(o.sinks) == 0 {
		return
	}

	payload, err := json.Marshal(n)
	if err != nil {
		log.Error().Err(err).Str("event", n.Event).Str("order_id", n.OrderID.String()).Msg("failed to encode notification")
		return
	}

	msgs := make([]models.OutboxMessage, 0, len(o.sinks))
	for _, s := range o.sinks {
		msgs = append(msgs, models.OutboxMessage{
			Event:   n.Event,
			Sink:    s.Name,
			OrderID: n.OrderID,
			Payload: string(payload),
		})
	}
	err = tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return sp.Create(&msgs).Error
	})
	if err != nil {
		log.Error().Err(err).Str("event", n.Event).Str("order_id", n.OrderID.String()).Msg("failed to enqueue notification")
	}
}

// Kick asks the dispatcher to flush soon. It never blocks.
func (o *Outbox) Kick() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

// Run flushes on every kick until ctx is done.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.kick:
			if _, err := o.Flush(ctx); err != nil {
				log.Error().Err(err).Msg("outbox flush failed")
			}
		}
	}
}

// Flush delivers pending messages and returns how many were delivered.
// Sinks are worked concurrently and independently; within a sink messages
// go out in creation order.
func (o *Outbox) Flush(ctx context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.sinks) == 0 {
		return 0, nil
	}

	var pending []models.OutboxMessage
	if err := o.db.WithContext(ctx).
		Where("dispatched_at IS NULL AND failed_at IS NULL").
		Where("sink IN ?", o.sinkNames()).
		Order("created_at asc").
		Limit(o.batchSize).
		Find(&pending).Error; err != nil {
		return 0, errors.Wrap(err, "load outbox")
	}

	bySink := make(map[string][]*models.OutboxMessage, len(o.sinks))
	for i := range pending {
		bySink[pending[i].Sink] = append(bySink[pending[i].Sink], &pending[i])
	}

	var (
		g         errgroup.Group
		delivered atomic.Int64
	)
	for _, sink := range o.sinks {
		sink := sink
		msgs := bySink[sink.Name]
		if len(msgs) == 0 {
			continue
		}
		g.Go(func() error {
			for _, msg := range msgs {
				if o.attempt(ctx, sink, msg) {
					delivered.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(delivered.Load()), nil
}

// attempt sends msg through sink once and records the outcome.
func (o *Outbox) attempt(ctx context.Context, sink Sink, msg *models.OutboxMessage) bool {
	logger := log.With().
		Str("event", msg.Event).
		Str("sink", sink.Name).
		Str("order_id", msg.OrderID.String()).
		Int("attempt", msg.Attempts+1).
		Logger()

	sendErr := deliver(ctx, sink.Notifier, msg)
	now := time.Now()
	updates := map[string]interface{}{"attempts": msg.Attempts + 1}

	if sendErr == nil {
		updates["dispatched_at"] = now
		updates["last_error"] = ""
	} else {
		updates["last_error"] = sendErr.Error()
		if msg.Attempts+1 >= o.maxAttempts {
			updates["failed_at"] = now
			logger.Error().Err(sendErr).Msg("notification abandoned")
		} else {
			logger.Warn().Err(sendErr).Msg("notification delivery failed")
		}
	}

	if err := o.db.WithContext(ctx).Model(msg).Updates(updates).Error; err != nil {
		logger.Error().Err(err).Msg("failed to record outbox attempt")
	}
	return sendErr == nil
}

func deliver(ctx context.Context, notifier NotificationService, msg *models.OutboxMessage) error {
	var n Notification
	if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
		return errors.Wrap(err, "decode notification")
	}

	switch msg.Event {
	case EventOrderConfirmation:
		return notifier.SendOrderConfirmation(ctx, n)
	case EventOrderStatus:
		return notifier.SendOrderStatusUpdate(ctx, n, n.Status)
	case EventDeliveryConfirmed:
		return notifier.SendDeliveryConfirmation(ctx, n)
	case EventStaffAssigned:
		return notifier.SendStaffAssignment(ctx, n)
	default:
		return errors.Errorf("unknown outbox event %q", msg.Event)
	}
}

// Pending counts messages for configured sinks not yet delivered or abandoned.
func (o *Outbox) Pending(ctx context.Context) (int64, error) {
	if len(o.sinks) == 0 {
		return 0, nil
	}
	var count int64
	err := o.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("dispatched_at IS NULL AND failed_at IS NULL").
		Where("sink IN ?", o.sinkNames()).
		Count(&count).Error
	return count, errors.Wrap(err, "count outbox")
}
