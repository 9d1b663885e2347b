// Package orderstest provides in-memory implementations of the order
// coordinator's ports for tests.
package orderstest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"foodmarket/internal/common/database"
	"foodmarket/internal/common/events"
	"foodmarket/internal/common/money"
	"foodmarket/internal/orders"
	"foodmarket/internal/orders/domain"
	"foodmarket/internal/vendors"
	walletdomain "foodmarket/internal/wallet/domain"
)

// MemoryStore keeps orders and wallets in memory. SettleOrder holds one
// mutex across the status flip and the credit, matching the single
// transaction of the SQL store.
type MemoryStore struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	byRef   map[string]string
	wallets map[string]*walletdomain.Wallet

	// FailCredit, when set, makes the wallet step of SettleOrder fail.
	FailCredit error
}

var _ orders.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]*domain.Order),
		byRef:   make(map[string]string),
		wallets: make(map[string]*walletdomain.Wallet),
	}
}

func (m *MemoryStore) CreateOrder(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byRef[o.PaymentReference]; ok {
		return fmt.Errorf("order with reference %s: %w", o.PaymentReference, database.ErrAlreadyExists)
	}
	m.orders[o.OrderID] = cloneOrder(o)
	m.byRef[o.PaymentReference] = o.OrderID
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *MemoryStore) GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byRef[reference]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneOrder(m.orders[id]), nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, vendorID string, limit, offset int) ([]*domain.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*domain.Order
	for _, o := range m.orders {
		if o.VendorID == vendorID {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	out := []*domain.Order{}
	for i := offset; i < len(matched) && len(out) < limit; i++ {
		out = append(out, cloneOrder(matched[i]))
	}
	return out, total, nil
}

func (m *MemoryStore) SettleOrder(ctx context.Context, reference string, paidAt time.Time, credit walletdomain.Credit) (*domain.Order, *walletdomain.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byRef[reference]
	if !ok {
		return nil, nil, false, database.ErrNotFound
	}
	stored := m.orders[id]
	if stored.PaymentStatus != domain.PaymentPending {
		return cloneOrder(stored), nil, false, nil
	}
	if m.FailCredit != nil {
		return nil, nil, false, m.FailCredit
	}

	w, ok := m.wallets[credit.VendorID]
	if !ok {
		w = walletdomain.NewWallet(credit.VendorID, credit.Amount.Currency, paidAt)
	}
	updated := cloneWallet(w)
	t, err := updated.Apply(credit, paidAt)
	if err != nil {
		return nil, nil, false, err
	}

	paid := cloneOrder(stored)
	if err := paid.MarkPaid(paidAt); err != nil {
		return nil, nil, false, err
	}

	m.wallets[credit.VendorID] = updated
	m.orders[id] = paid
	return cloneOrder(paid), &t, true, nil
}

func (m *MemoryStore) DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, o := range m.orders {
		if o.IsStale(cutoff) {
			delete(m.orders, id)
			delete(m.byRef, o.PaymentReference)
			removed++
		}
	}
	return removed, nil
}

// GetWallet returns a copy of a vendor's wallet.
func (m *MemoryStore) GetWallet(ctx context.Context, vendorID string) (*walletdomain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[vendorID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneWallet(w), nil
}

// SeedWallet stores a copy of w as the vendor's existing wallet.
func (m *MemoryStore) SeedWallet(w *walletdomain.Wallet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[w.VendorID] = cloneWallet(w)
}

// Balance returns a vendor's balance, zero if it has no wallet.
func (m *MemoryStore) Balance(vendorID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.wallets[vendorID]; ok {
		return w.Balance
	}
	return 0
}

// Count returns the number of stored orders.
func (m *MemoryStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// Backdate shifts an order's creation time.
func (m *MemoryStore) Backdate(reference string, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byRef[reference]; ok {
		m.orders[id].CreatedAt = createdAt
	}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.Item(nil), o.Items...)
	if o.Guest != nil {
		g := *o.Guest
		c.Guest = &g
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}

func cloneWallet(w *walletdomain.Wallet) *walletdomain.Wallet {
	c := *w
	c.Transactions = append([]walletdomain.Transaction{}, w.Transactions...)
	return &c
}

// Vendors is a fixed vendor directory.
type Vendors map[string]*vendors.Vendor

func (v Vendors) GetVendor(ctx context.Context, vendorID string) (*vendors.Vendor, error) {
	vendor, ok := v[vendorID]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *vendor
	return &c, nil
}

// Gateway is a scripted payment gateway.
type Gateway struct {
	mu            sync.Mutex
	verifications map[string]orders.Verification
	initialized   []orders.InitializeRequest

	InitErr     error
	VerifyErr   error
	VerifyDelay time.Duration

	InitCalls   atomic.Int32
	VerifyCalls atomic.Int32
}

// NewGateway returns a gateway that accepts every initialization.
func NewGateway() *Gateway {
	return &Gateway{verifications: make(map[string]orders.Verification)}
}

// Succeed scripts a successful verification for reference.
func (g *Gateway) Succeed(reference string, amount int64, currency money.Currency) {
	g.Report(reference, orders.VerificationSuccessful, amount, currency)
}

// Report scripts a verification result for reference.
func (g *Gateway) Report(reference string, status orders.VerificationStatus, amount int64, currency money.Currency) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifications[reference] = orders.Verification{
		Reference:   reference,
		Status:      status,
		Amount:      money.New(amount, currency),
		ProviderRef: "flw-" + reference,
	}
}

// Initialized returns the initialization requests received so far.
func (g *Gateway) Initialized() []orders.InitializeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]orders.InitializeRequest(nil), g.initialized...)
}

func (g *Gateway) Initialize(ctx context.Context, req orders.InitializeRequest) (*orders.InitializeResult, error) {
	g.InitCalls.Add(1)
	if g.InitErr != nil {
		return nil, g.InitErr
	}

	g.mu.Lock()
	g.initialized = append(g.initialized, req)
	g.mu.Unlock()

	return &orders.InitializeResult{PaymentLink: "https://checkout.example/pay/" + req.Reference}, nil
}

func (g *Gateway) Verify(ctx context.Context, reference string) (*orders.Verification, error) {
	g.VerifyCalls.Add(1)
	if g.VerifyDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.VerifyDelay):
		}
	}
	if g.VerifyErr != nil {
		return nil, g.VerifyErr
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.verifications[reference]
	if !ok {
		return &orders.Verification{Reference: reference, Status: orders.VerificationFailed}, nil
	}
	return &v, nil
}

// Notifier records confirmations and optionally fails.
type Notifier struct {
	mu   sync.Mutex
	sent []string
	Err  error
}

func (n *Notifier) SendOrderConfirmation(ctx context.Context, email string, order *domain.Order) error {
	if n.Err != nil {
		return n.Err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, email)
	return nil
}

// Sent returns recipients in send order.
func (n *Notifier) Sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *Publisher) Publish(ctx context.Context, event *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns the published events in order.
func (p *Publisher) Events() []*events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*events.Event(nil), p.events...)
}

// Types returns the published event types in order.
func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}
