package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"

	"github.com/example/campusdelivery/internal/services"
)

// Sender is the part of an azservicebus sender the notifier uses.
type Sender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// ServiceBusNotifier publishes order notices to a queue for downstream
// channels (SMS, push, email) to pick up.
type ServiceBusNotifier struct {
	client *azservicebus.Client
	sender Sender
	queue  string
	source string
}

// NewServiceBusNotifier connects to the queue named in queue.
func NewServiceBusNotifier(connectionString, queue string) (*ServiceBusNotifier, error) {
	if connectionString == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(queue, nil)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &ServiceBusNotifier{client: client, sender: sender, queue: queue, source: "campusdelivery"}, nil
}

// NewWithSender builds a notifier around an existing sender.
func NewWithSender(sender Sender, queue string) *ServiceBusNotifier {
	return &ServiceBusNotifier{sender: sender, queue: queue, source: "campusdelivery"}
}

// message is the queue body. Kind names the notice; Status is set for
// status updates.
type message struct {
	Kind         string                `json:"kind"`
	Status       string                `json:"status,omitempty"`
	Notification services.Notification `json:"notification"`
}

func (s *ServiceBusNotifier) publish(ctx context.Context, kind, status string, n services.Notification) error {
	body, err := json.Marshal(message{Kind: kind, Status: status, Notification: n})
	if err != nil {
		return errors.Wrap(err, "failed to marshal message body")
	}

	msg := &azservicebus.Message{
		Body:        body,
		ContentType: stringPtr("application/json"),
		Subject:     stringPtr(kind),
		MessageID:   stringPtr(kind + ":" + n.OrderID.String() + ":" + status),
		ApplicationProperties: map[string]interface{}{
			"source":    s.source,
			"event":     kind,
			"order_id":  n.OrderID.String(),
			"reference": n.Reference,
			"time":      time.Now().UTC().Format(time.RFC3339),
		},
	}
	return errors.Wrapf(s.sender.SendMessage(ctx, msg, nil), "publish %s to %s", kind, s.queue)
}

func (s *ServiceBusNotifier) SendOrderConfirmation(ctx context.Context, n services.Notification) error {
	return s.publish(ctx, services.EventOrderConfirmation, "", n)
}

func (s *ServiceBusNotifier) SendOrderStatusUpdate(ctx context.Context, n services.Notification, status string) error {
	return s.publish(ctx, services.EventOrderStatus, status, n)
}

func (s *ServiceBusNotifier) SendDeliveryConfirmation(ctx context.Context, n services.Notification) error {
	return s.publish(ctx, services.EventDeliveryConfirmed, "", n)
}

func (s *ServiceBusNotifier) SendStaffAssignment(ctx context.Context, n services.Notification) error {
	return s.publish(ctx, services.EventStaffAssigned, "", n)
}

// Close releases the sender and the client.
func (s *ServiceBusNotifier) Close(ctx context.Context) error {
	if s.sender != nil {
		if err := s.sender.Close(ctx); err != nil {
			return err
		}
	}
	if s.client != nil {
		return s.client.Close(ctx)
	}
	return nil
}

func stringPtr(s string) *string {
	return &s
}
