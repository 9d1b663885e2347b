// Package domain holds the order aggregate and its payment state machine.
package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"foodmarket/internal/common/money"
)

// PaymentStatus is the payment axis of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Status is the fulfillment axis of an order, owned by the fulfillment endpoints.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// DeliveryMethod says how the customer receives the order.
type DeliveryMethod string

const (
	DeliveryWalkIn   DeliveryMethod = "walk-in"
	DeliveryDelivery DeliveryMethod = "delivery"
)

// Item is a single order line. Prices are in minor units.
type Item struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

// LineTotal returns unit price times quantity. ok is false when the
// product does not fit in int64.
func (i Item) LineTotal() (total int64, ok bool) {
	if i.UnitPrice < 0 || i.Quantity < 0 {
		return 0, false
	}
	if i.Quantity > 0 && i.UnitPrice > math.MaxInt64/i.Quantity {
		return 0, false
	}
	return i.UnitPrice * i.Quantity, true
}

// GuestInfo is the contact record for customers without an account.
type GuestInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Order is a customer's purchase from a single vendor.
type Order struct {
	ID               string         `json:"id"`
	OrderID          string         `json:"order_id"`
	VendorID         string         `json:"vendor_id"`
	CustomerID       string         `json:"customer_id,omitempty"`
	Guest            *GuestInfo     `json:"guest_info,omitempty"`
	Items            []Item         `json:"items"`
	DeliveryMethod   DeliveryMethod `json:"delivery_method"`
	DeliveryFee      int64          `json:"delivery_fee"`
	Note             string         `json:"note,omitempty"`
	TotalAmount      money.Money    `json:"total_amount"`
	PlatformFee      money.Money    `json:"platform_fee"`
	PayerEmail       string         `json:"payer_email"`
	PaymentReference string         `json:"payment_reference"`
	PaymentLink      string         `json:"payment_link,omitempty"`
	PaymentStatus    PaymentStatus  `json:"payment_status"`
	Status           Status         `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	PaidAt           *time.Time     `json:"paid_at,omitempty"`
}

// NewOrderParams carries everything needed to open an order.
type NewOrderParams struct {
	VendorID         string
	CustomerID       string
	Guest            *GuestInfo
	Items            []Item
	DeliveryMethod   DeliveryMethod
	DeliveryFee      int64
	Note             string
	Total            money.Money
	PlatformFee      money.Money
	PayerEmail       string
	PaymentReference string
	Now              time.Time
}

// NewOrderID returns a business-facing order identifier.
func NewOrderID() string {
	return "ORD-" + ulid.Make().String()
}

// NewOrder validates params and returns a pending order.
func NewOrder(p NewOrderParams) (*Order, error) {
	if strings.TrimSpace(p.VendorID) == "" {
		return nil, errors.New("vendor_id is required")
	}
	if strings.TrimSpace(p.PaymentReference) == "" {
		return nil, errors.New("reference is required")
	}
	if strings.TrimSpace(p.PayerEmail) == "" {
		return nil, errors.New("payer_email is required")
	}

	hasCustomer := strings.TrimSpace(p.CustomerID) != ""
	hasGuest := p.Guest != nil
	if hasCustomer == hasGuest {
		return nil, errors.New("exactly one of customer_id or guest_info is required")
	}
	if hasGuest && (strings.TrimSpace(p.Guest.Name) == "" || strings.TrimSpace(p.Guest.Phone) == "") {
		return nil, errors.New("guest_info requires name and phone")
	}

	if len(p.Items) == 0 {
		return nil, errors.New("at least one item is required")
	}
	var sum int64
	for i, item := range p.Items {
		if strings.TrimSpace(item.Name) == "" {
			return nil, fmt.Errorf("item %d: name is required", i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: quantity must be positive", i)
		}
		if item.UnitPrice < 0 {
			return nil, fmt.Errorf("item %d: unit_price must not be negative", i)
		}
		line, ok := item.LineTotal()
		if !ok || line > math.MaxInt64-sum {
			return nil, fmt.Errorf("item %d: order total is out of range", i)
		}
		sum += line
	}

	switch p.DeliveryMethod {
	case "":
		p.DeliveryMethod = DeliveryWalkIn
	case DeliveryWalkIn, DeliveryDelivery:
	default:
		return nil, fmt.Errorf("unknown delivery_method %q", p.DeliveryMethod)
	}
	if p.DeliveryFee < 0 {
		return nil, errors.New("delivery_fee must not be negative")
	}
	if p.DeliveryFee > math.MaxInt64-sum {
		return nil, errors.New("delivery_fee puts the order total out of range")
	}

	if !p.Total.IsPositive() {
		return nil, errors.New("amount must be positive")
	}
	if p.Total.AmountMinor != sum+p.DeliveryFee {
		return nil, fmt.Errorf("amount %d does not equal items %d plus delivery fee %d", p.Total.AmountMinor, sum, p.DeliveryFee)
	}
	if p.PlatformFee.Currency != p.Total.Currency {
		return nil, fmt.Errorf("platform fee currency %s differs from order currency %s", p.PlatformFee.Currency, p.Total.Currency)
	}
	if p.PlatformFee.AmountMinor < 0 || p.Total.AmountMinor <= p.PlatformFee.AmountMinor {
		return nil, fmt.Errorf("amount must exceed the platform fee of %s", p.PlatformFee)
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	items := make([]Item, len(p.Items))
	copy(items, p.Items)

	o := &Order{
		ID:               ulid.Make().String(),
		OrderID:          NewOrderID(),
		VendorID:         p.VendorID,
		Items:            items,
		DeliveryMethod:   p.DeliveryMethod,
		DeliveryFee:      p.DeliveryFee,
		Note:             p.Note,
		TotalAmount:      p.Total,
		PlatformFee:      p.PlatformFee,
		PayerEmail:       p.PayerEmail,
		PaymentReference: p.PaymentReference,
		PaymentStatus:    PaymentPending,
		Status:           StatusPending,
		CreatedAt:        now.UTC(),
	}
	if hasCustomer {
		o.CustomerID = p.CustomerID
	} else {
		g := *p.Guest
		o.Guest = &g
	}
	return o, nil
}

// IsPaid reports whether payment has settled.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid
}

// MarkPaid moves a pending order to paid. Paid is terminal.
func (o *Order) MarkPaid(at time.Time) error {
	if o.PaymentStatus != PaymentPending {
		return fmt.Errorf("cannot mark %s order as paid", o.PaymentStatus)
	}
	t := at.UTC()
	o.PaymentStatus = PaymentPaid
	o.PaidAt = &t
	return nil
}

// VendorShare is the amount routed to the vendor after the platform fee.
// A fee in another currency yields zero, which no credit accepts.
func (o *Order) VendorShare() money.Money {
	share, err := o.TotalAmount.Sub(o.PlatformFee)
	if err != nil {
		return money.Zero(o.TotalAmount.Currency)
	}
	return share
}

// ContactEmail is where the order confirmation goes.
func (o *Order) ContactEmail() string {
	if o.Guest != nil && o.Guest.Email != "" {
		return o.Guest.Email
	}
	return o.PayerEmail
}

// IsStale reports whether an unpaid order was created before cutoff.
func (o *Order) IsStale(cutoff time.Time) bool {
	return o.PaymentStatus == PaymentPending && o.CreatedAt.Before(cutoff)
}
