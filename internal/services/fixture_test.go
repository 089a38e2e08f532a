package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/geo"
	"github.com/example/campusdelivery/internal/models"
	"github.com/example/campusdelivery/internal/testutil"
)

var (
	campus  = geo.Point{Lat: -15.3893, Lng: 35.3374}
	farAway = geo.Point{Lat: -15.7861, Lng: 35.0058}
)

// recordingNotifier remembers every notice it was asked to send.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingNotifier) record(event, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, event+":"+reference)
	return nil
}

func (r *recordingNotifier) SendOrderConfirmation(ctx context.Context, n Notification) error {
	return r.record(EventOrderConfirmation, n.Reference)
}

func (r *recordingNotifier) SendOrderStatusUpdate(ctx context.Context, n Notification, status string) error {
	return r.record(EventOrderStatus+"="+status, n.Reference)
}

func (r *recordingNotifier) SendDeliveryConfirmation(ctx context.Context, n Notification) error {
	return r.record(EventDeliveryConfirmed, n.Reference)
}

func (r *recordingNotifier) SendStaffAssignment(ctx context.Context, n Notification) error {
	return r.record(EventStaffAssigned, n.Reference)
}

func (r *recordingNotifier) Sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

type nopAudit struct{}

func (nopAudit) Record(ctx context.Context, action, resourceType, resourceID, description string) {}

type fixture struct {
	db         *gorm.DB
	zone       *models.DeliveryZone
	orders     *OrderService
	deliveries *DeliveryService
	carts      *CartService
	outbox     *Outbox
	notifier   *recordingNotifier

	customer *models.User
	admin    *models.User
	staff    *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	notifier := &recordingNotifier{}
	outbox := NewOutbox(db, 3, Sink{Name: "test", Notifier: notifier})
	stock := NewStockLedger(db)
	zones := NewCircleResolver(db, nil, time.Minute)

	return &fixture{
		db:   db,
		zone: testutil.CreateCircleZone(t, db, "Main Campus", campus, 1500, 500),
		orders: NewOrderService(db, zones, stock, NewCodeAllocator(DefaultCodePolicy()), outbox, nopAudit{}, OrderOptions{
			MinOrderAmount: decimal.NewFromInt(2000),
			Currency:       "MWK",
		}),
		deliveries: NewDeliveryService(db, stock, outbox, nopAudit{}),
		carts:      NewCartService(db),
		outbox:     outbox,
		notifier:   notifier,
		customer:   testutil.CreateUser(t, db, "amina", models.RoleCustomer),
		admin:      testutil.CreateUser(t, db, "admin", models.RoleAdmin),
		staff:      testutil.CreateUser(t, db, "chikondi", models.RoleDelivery),
	}
}

func (f *fixture) checkoutRequest(user *models.User) CheckoutRequest {
	loc := campus
	return CheckoutRequest{
		UserID:          user.ID,
		Location:        &loc,
		PaymentMethod:   models.PaymentMethodCash,
		CustomerName:    user.Name,
		CustomerPhone:   user.Phone,
		CustomerAddress: "Hostel B, room 12",
	}
}

// placeOrder fills the customer's cart and checks it out.
func (f *fixture) placeOrder(t *testing.T, user *models.User, lines map[*models.Product]int) *models.Order {
	t.Helper()

	testutil.FillCart(t, f.db, user, lines)
	order, _, err := f.orders.Checkout(context.Background(), f.checkoutRequest(user))
	require.NoError(t, err)
	return order
}

func actorOf(u *models.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

func requireFailure(t *testing.T, err error, info ErrorInfo) {
	t.Helper()

	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, info.Name, e.Info.Name, "got %v", err)
}

func reloadOrder(t *testing.T, db *gorm.DB, order *models.Order) *models.Order {
	t.Helper()

	var fresh models.Order
	require.NoError(t, db.Preload("Items").Preload("Delivery").First(&fresh, "id = ?", order.ID).Error)
	return &fresh
}
