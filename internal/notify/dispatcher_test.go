package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodmarket/internal/common/events"
	"foodmarket/internal/common/middleware"
	"foodmarket/internal/common/money"
	"foodmarket/internal/notify"
	"foodmarket/internal/orders/domain"
)

type capture struct {
	events []*events.Event
	err    error
}

func (c *capture) Publish(ctx context.Context, e *events.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, e)
	return nil
}

func paidOrder() *domain.Order {
	return &domain.Order{
		OrderID:          "ORD-1",
		VendorID:         "V1",
		PaymentReference: "R1",
		TotalAmount:      money.New(10000, money.NGN),
	}
}

func TestSendOrderConfirmationPublishes(t *testing.T) {
	pub := &capture{}
	d := notify.NewDispatcher(pub)

	ctx := middleware.WithCorrelationID(context.Background(), "corr-1")
	require.NoError(t, d.SendOrderConfirmation(ctx, "ada@example.com", paidOrder()))
	require.Len(t, pub.events, 1)

	e := pub.events[0]
	assert.Equal(t, events.EventNotificationOrderConfirmation, e.Type)
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.Equal(t, "R1", e.CausationID)
	assert.Equal(t, "R1", e.IdempotencyKey)

	var data events.OrderConfirmationData
	require.NoError(t, e.DecodeData(&data))
	assert.Equal(t, "ada@example.com", data.To)
	assert.Equal(t, "₦100.00", data.TotalAmount)
}

func TestSendOrderConfirmationErrors(t *testing.T) {
	d := notify.NewDispatcher(&capture{})
	assert.Error(t, d.SendOrderConfirmation(context.Background(), "", paidOrder()))

	d = notify.NewDispatcher(&capture{err: errors.New("nats down")})
	assert.Error(t, d.SendOrderConfirmation(context.Background(), "ada@example.com", paidOrder()))
}
