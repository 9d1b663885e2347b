package domain_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodmarket/internal/common/money"
	"foodmarket/internal/orders/domain"
)

func validParams() domain.NewOrderParams {
	return domain.NewOrderParams{
		VendorID: "V1",
		Guest:    &domain.GuestInfo{Name: "Ada", Phone: "08030000000", Email: "ada@example.com"},
		Items: []domain.Item{
			{Name: "Jollof rice", UnitPrice: 3000, Quantity: 2},
			{Name: "Zobo", UnitPrice: 1500, Quantity: 1},
		},
		DeliveryMethod:   domain.DeliveryDelivery,
		DeliveryFee:      2500,
		Total:            money.New(10000, money.NGN),
		PlatformFee:      money.New(1000, money.NGN),
		PayerEmail:       "a@b.com",
		PaymentReference: "R1",
		Now:              time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewOrder(t *testing.T) {
	o, err := domain.NewOrder(validParams())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(o.OrderID, "ORD-"))
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, domain.PaymentPending, o.PaymentStatus)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, "R1", o.PaymentReference)
	assert.Equal(t, int64(9000), o.VendorShare().AmountMinor)
	assert.Equal(t, "ada@example.com", o.ContactEmail())
	assert.Nil(t, o.PaidAt)
}

func TestNewOrderRejects(t *testing.T) {
	tests := map[string]func(p *domain.NewOrderParams){
		"missing vendor":      func(p *domain.NewOrderParams) { p.VendorID = "" },
		"missing reference":   func(p *domain.NewOrderParams) { p.PaymentReference = " " },
		"no items":            func(p *domain.NewOrderParams) { p.Items = nil },
		"zero quantity":       func(p *domain.NewOrderParams) { p.Items[0].Quantity = 0 },
		"negative price":      func(p *domain.NewOrderParams) { p.Items[1].UnitPrice = -1 },
		"both customer kinds": func(p *domain.NewOrderParams) { p.CustomerID = "C1" },
		"no customer":         func(p *domain.NewOrderParams) { p.Guest = nil },
		"guest without phone": func(p *domain.NewOrderParams) { p.Guest.Phone = "" },
		"total mismatch":      func(p *domain.NewOrderParams) { p.Total = money.New(9999, money.NGN) },
		"line total overflows": func(p *domain.NewOrderParams) {
			p.Items = []domain.Item{
				{Name: "Huge", UnitPrice: 1 << 62, Quantity: 4},
				{Name: "Jollof rice", UnitPrice: 7500, Quantity: 1},
			}
		},
		"sum overflows": func(p *domain.NewOrderParams) {
			p.Items = []domain.Item{
				{Name: "Huge", UnitPrice: math.MaxInt64 - 10, Quantity: 1},
				{Name: "Huge too", UnitPrice: math.MaxInt64 - 10, Quantity: 1},
				{Name: "Jollof rice", UnitPrice: 7522, Quantity: 1},
			}
		},
		"delivery fee overflows": func(p *domain.NewOrderParams) {
			p.Items = []domain.Item{{Name: "Huge", UnitPrice: math.MaxInt64 - 100, Quantity: 1}}
			p.DeliveryFee = 10101
		},
		"unknown delivery":    func(p *domain.NewOrderParams) { p.DeliveryMethod = "drone" },
		"fee swallows total":  func(p *domain.NewOrderParams) { p.PlatformFee = money.New(10000, money.NGN) },
		"zero amount": func(p *domain.NewOrderParams) {
			p.Items = []domain.Item{{Name: "Water", UnitPrice: 0, Quantity: 1}}
			p.DeliveryFee = 0
			p.Total = money.New(0, money.NGN)
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := validParams()
			p.Items = append([]domain.Item(nil), p.Items...)
			g := *p.Guest
			p.Guest = &g
			mutate(&p)

			_, err := domain.NewOrder(p)
			require.Error(t, err)
		})
	}
}

func TestNewOrderRegisteredCustomer(t *testing.T) {
	p := validParams()
	p.Guest = nil
	p.CustomerID = "C1"

	o, err := domain.NewOrder(p)
	require.NoError(t, err)
	assert.Equal(t, "C1", o.CustomerID)
	assert.Equal(t, "a@b.com", o.ContactEmail())
}

func TestMarkPaidIsTerminal(t *testing.T) {
	o, err := domain.NewOrder(validParams())
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	require.NoError(t, o.MarkPaid(at))
	assert.True(t, o.IsPaid())
	assert.Equal(t, at, *o.PaidAt)

	assert.Error(t, o.MarkPaid(at.Add(time.Hour)))
	assert.Equal(t, at, *o.PaidAt)
}

func TestIsStale(t *testing.T) {
	o, err := domain.NewOrder(validParams())
	require.NoError(t, err)

	assert.True(t, o.IsStale(o.CreatedAt.Add(time.Minute)))
	assert.False(t, o.IsStale(o.CreatedAt.Add(-time.Minute)))

	require.NoError(t, o.MarkPaid(o.CreatedAt))
	assert.False(t, o.IsStale(o.CreatedAt.Add(time.Minute)))
}

func TestItemLineTotal(t *testing.T) {
	total, ok := domain.Item{Name: "Suya", UnitPrice: 2500, Quantity: 3}.LineTotal()
	require.True(t, ok)
	assert.Equal(t, int64(7500), total)

	_, ok = domain.Item{Name: "Huge", UnitPrice: 1 << 62, Quantity: 4}.LineTotal()
	assert.False(t, ok)

	_, ok = domain.Item{Name: "Huge", UnitPrice: math.MaxInt64, Quantity: 1}.LineTotal()
	assert.True(t, ok)
}

func TestVendorShareWithForeignFee(t *testing.T) {
	o, err := domain.NewOrder(validParams())
	require.NoError(t, err)

	o.PlatformFee = money.New(1000, money.USD)
	share := o.VendorShare()
	assert.True(t, share.IsZero())
	assert.Equal(t, money.NGN, share.Currency)
}
