package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID             string          `json:"event_id"`
	Type           string          `json:"type"`
	Version        int             `json:"version"`
	OccurredAt     time.Time       `json:"occurred_at"`
	CorrelationID  string          `json:"correlation_id"`
	CausationID    string          `json:"causation_id,omitempty"`
	VendorID       string          `json:"vendor_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Data           json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType string, vendorID, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		VendorID:      vendorID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation adds correlation and causation IDs
func (e *Event) WithCorrelation(correlationID, causationID string) *Event {
	e.CorrelationID = correlationID
	e.CausationID = causationID
	return e
}

// WithIdempotencyKey sets a key that stays the same when the same fact is
// emitted again, such as a payment reference.
func (e *Event) WithIdempotencyKey(key string) *Event {
	e.IdempotencyKey = key
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// EventPublisher publishes events to a message broker
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

// LogPublisher writes events to the log instead of a broker. Used when NATS is disabled.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that only logs.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, event *Event) error {
	p.logger.Info("event",
		"event_id", event.ID,
		"type", event.Type,
		"aggregate_id", event.AggregateID,
		"correlation_id", event.CorrelationID,
	)
	return nil
}

// Event types
const (
	EventOrderCreated        = "order.created"
	EventOrderPaid           = "order.paid"
	EventOrderAmountMismatch = "order.amount_mismatch"
	EventOrdersSwept         = "order.swept"

	EventWalletCredited = "wallet.credited"

	EventNotificationOrderConfirmation = "notification.order_confirmation"
)

// Event data structures

// OrderCreatedData is the data for order.created events
type OrderCreatedData struct {
	OrderID          string `json:"order_id"`
	VendorID         string `json:"vendor_id"`
	PaymentReference string `json:"payment_reference"`
	TotalAmount      int64  `json:"total_amount"`
	Currency         string `json:"currency"`
}

// OrderPaidData is the data for order.paid events
type OrderPaidData struct {
	OrderID          string    `json:"order_id"`
	VendorID         string    `json:"vendor_id"`
	PaymentReference string    `json:"payment_reference"`
	TotalAmount      int64     `json:"total_amount"`
	Currency         string    `json:"currency"`
	PaidAt           time.Time `json:"paid_at"`
}

// AmountMismatchData is the data for order.amount_mismatch events
type AmountMismatchData struct {
	OrderID          string `json:"order_id"`
	PaymentReference string `json:"payment_reference"`
	ExpectedAmount   int64  `json:"expected_amount"`
	ExpectedCurrency string `json:"expected_currency"`
	ReportedAmount   int64  `json:"reported_amount"`
	ReportedCurrency string `json:"reported_currency"`
}

// OrdersSweptData is the data for order.swept events
type OrdersSweptData struct {
	Removed int64     `json:"removed"`
	Cutoff  time.Time `json:"cutoff"`
}

// WalletCreditedData is the data for wallet.credited events
type WalletCreditedData struct {
	VendorID  string `json:"vendor_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

// OrderConfirmationData is consumed by the mailer service.
type OrderConfirmationData struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	OrderID     string `json:"order_id"`
	VendorID    string `json:"vendor_id"`
	TotalAmount string `json:"total_amount"`
}
