// Package notify hands order confirmations to the mailer service over the event bus.
package notify

import (
	"context"
	"errors"
	"fmt"

	"foodmarket/internal/common/events"
	"foodmarket/internal/common/middleware"
	"foodmarket/internal/orders/domain"
)

// Dispatcher publishes confirmation requests for the mailer to deliver.
type Dispatcher struct {
	publisher events.EventPublisher
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(publisher events.EventPublisher) *Dispatcher {
	return &Dispatcher{publisher: publisher}
}

// SendOrderConfirmation queues a confirmation email for a paid order.
func (d *Dispatcher) SendOrderConfirmation(ctx context.Context, email string, order *domain.Order) error {
	if email == "" {
		return errors.New("no contact email on order")
	}

	event, err := events.NewEvent(events.EventNotificationOrderConfirmation, order.VendorID, "order", order.OrderID,
		events.OrderConfirmationData{
			To:          email,
			Subject:     fmt.Sprintf("Order %s confirmed", order.OrderID),
			OrderID:     order.OrderID,
			VendorID:    order.VendorID,
			TotalAmount: order.TotalAmount.String(),
		})
	if err != nil {
		return fmt.Errorf("building confirmation event: %w", err)
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx), order.PaymentReference).WithIdempotencyKey(order.PaymentReference)

	if err := d.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publishing confirmation: %w", err)
	}
	return nil
}
