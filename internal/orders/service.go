// Package orders coordinates the order payment lifecycle: initiation with the
// payment gateway, out-of-band verification and exactly-once wallet credit.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"foodmarket/internal/common/database"
	"foodmarket/internal/common/events"
	"foodmarket/internal/common/metrics"
	"foodmarket/internal/common/middleware"
	"foodmarket/internal/common/money"
	"foodmarket/internal/orders/domain"
	"foodmarket/internal/vendors"
	walletdomain "foodmarket/internal/wallet/domain"
)

// Config holds coordinator configuration
type Config struct {
	PlatformFee    int64         `envconfig:"PLATFORM_FEE_MINOR" default:"10000"`
	Currency       string        `envconfig:"PLATFORM_CURRENCY" default:"NGN"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"15s"`
}

// Store persists orders. SettleOrder must flip payment_status from pending
// to paid and apply the wallet credit as one atomic unit, returning
// applied=false with the stored order when the flip was already made.
type Store interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error)
	ListOrders(ctx context.Context, vendorID string, limit, offset int) ([]*domain.Order, int64, error)
	SettleOrder(ctx context.Context, reference string, paidAt time.Time, credit walletdomain.Credit) (*domain.Order, *walletdomain.Transaction, bool, error)
	DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

// VendorDirectory resolves vendors and their payout targets.
type VendorDirectory interface {
	GetVendor(ctx context.Context, vendorID string) (*vendors.Vendor, error)
}

// Split divides a payment between the platform and the vendor payout account.
type Split struct {
	PayoutAccountRef string
	PlatformFee      money.Money
	VendorShare      money.Money
}

// InitializeRequest asks the gateway to open a payment.
type InitializeRequest struct {
	Reference  string
	Amount     money.Money
	PayerEmail string
	Split      Split
}

// InitializeResult is the gateway's answer to a successful initialization.
type InitializeResult struct {
	PaymentLink string
}

// VerificationStatus is the gateway's verdict on a payment.
type VerificationStatus string

const (
	VerificationSuccessful VerificationStatus = "successful"
	VerificationPending    VerificationStatus = "pending"
	VerificationFailed     VerificationStatus = "failed"
)

// Verification is what the gateway reports for a reference. Amount is in minor units.
type Verification struct {
	Reference   string
	Status      VerificationStatus
	Amount      money.Money
	ProviderRef string
}

// PaymentGateway is the external payment provider.
type PaymentGateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*Verification, error)
}

// Notifier sends the order confirmation. Failures never affect settlement.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, email string, order *domain.Order) error
}

// Service is the order lifecycle coordinator
type Service struct {
	cfg       Config
	store     Store
	vendors   VendorDirectory
	gateway   PaymentGateway
	publisher events.EventPublisher
	notifier  Notifier
	metrics   *metrics.Registry
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new order service
func NewService(
	cfg Config,
	store Store,
	vendorDir VendorDirectory,
	gateway PaymentGateway,
	publisher events.EventPublisher,
	reg *metrics.Registry,
	logger *slog.Logger,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = string(money.NGN)
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 15 * time.Second
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		vendors:   vendorDir,
		gateway:   gateway,
		publisher: publisher,
		metrics:   reg,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// SetNotifier sets the confirmation notifier
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// GuestPayload is the contact record for guest checkouts.
type GuestPayload struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// ItemPayload is one order line. UnitPrice is in minor units.
type ItemPayload struct {
	Name      string `json:"name" validate:"required"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0,lte=100000000000"`
	Quantity  int64  `json:"quantity" validate:"gt=0,lte=10000"`
}

// OrderPayload describes what is being bought and by whom.
type OrderPayload struct {
	CustomerID     string        `json:"customer_id" validate:"required_without=Guest,excluded_with=Guest"`
	Guest          *GuestPayload `json:"guest_info" validate:"omitempty"`
	Items          []ItemPayload `json:"items" validate:"required,min=1,max=200,dive"`
	DeliveryMethod string        `json:"delivery_method" validate:"omitempty,oneof=walk-in delivery"`
	DeliveryFee    int64         `json:"delivery_fee" validate:"gte=0,lte=100000000000"`
	Note           string        `json:"note" validate:"max=500"`
}

// InitiatePurchaseRequest starts a purchase. Amount is in minor units.
type InitiatePurchaseRequest struct {
	Amount     int64        `json:"amount" validate:"gt=0"`
	PayerEmail string       `json:"payer_email" validate:"required,email"`
	VendorID   string       `json:"vendor_id" validate:"required"`
	Reference  string       `json:"reference" validate:"required,max=100"`
	Order      OrderPayload `json:"order_payload"`
}

// InitiatePurchaseResult carries the redirect link for the payer.
type InitiatePurchaseResult struct {
	PaymentLink string `json:"payment_link"`
	OrderID     string `json:"order_id"`
}

// InitiatePurchase opens a payment with the gateway and records a pending
// order. No order is written unless the gateway accepts.
func (s *Service) InitiatePurchase(ctx context.Context, req InitiatePurchaseRequest) (*InitiatePurchaseResult, error) {
	res, err := s.initiatePurchase(ctx, req)
	s.metrics.PaymentsInitiated.WithLabelValues(initiateOutcome(err)).Inc()
	return res, err
}

func (s *Service) initiatePurchase(ctx context.Context, req InitiatePurchaseRequest) (*InitiatePurchaseResult, error) {
	req.Reference = strings.TrimSpace(req.Reference)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	currency := money.Currency(s.cfg.Currency)
	order, err := domain.NewOrder(domain.NewOrderParams{
		VendorID:         req.VendorID,
		CustomerID:       req.Order.CustomerID,
		Guest:            guestInfo(req.Order.Guest),
		Items:            items(req.Order.Items),
		DeliveryMethod:   domain.DeliveryMethod(req.Order.DeliveryMethod),
		DeliveryFee:      req.Order.DeliveryFee,
		Note:             req.Order.Note,
		Total:            money.New(req.Amount, currency),
		PlatformFee:      money.New(s.cfg.PlatformFee, currency),
		PayerEmail:       req.PayerEmail,
		PaymentReference: req.Reference,
		Now:              s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	// Cheap duplicate check before talking to the gateway. The unique index
	// on payment_reference decides races.
	if _, err := s.store.GetOrderByReference(ctx, req.Reference); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrConflict, req.Reference)
	} else if !database.IsNotFound(err) {
		return nil, fmt.Errorf("%w: looking up reference: %w", ErrStorage, err)
	}

	vendor, err := s.vendors.GetVendor(ctx, req.VendorID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, fmt.Errorf("%w: vendor %s not found", ErrValidation, req.VendorID)
		}
		return nil, fmt.Errorf("%w: loading vendor: %w", ErrStorage, err)
	}
	if !vendor.HasPayoutTarget() {
		return nil, fmt.Errorf("%w: vendor %s has no payout account", ErrValidation, req.VendorID)
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	initRes, err := s.gateway.Initialize(gctx, InitializeRequest{
		Reference:  order.PaymentReference,
		Amount:     order.TotalAmount,
		PayerEmail: order.PayerEmail,
		Split: Split{
			PayoutAccountRef: vendor.PayoutAccountRef,
			PlatformFee:      order.PlatformFee,
			VendorShare:      order.VendorShare(),
		},
	})
	s.metrics.GatewayLatencySec.WithLabelValues("initialize").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("gateway rejected initialization",
			"reference", order.PaymentReference,
			"vendor_id", order.VendorID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrPaymentInit, err)
	}
	order.PaymentLink = initRes.PaymentLink

	if err := s.store.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, req.Reference)
		}
		s.logger.Error("order not persisted after gateway accepted",
			"reference", order.PaymentReference,
			"error", err,
		)
		return nil, fmt.Errorf("%w: creating order: %w", ErrStorage, err)
	}

	s.logger.Info("purchase initiated",
		"order_id", order.OrderID,
		"vendor_id", order.VendorID,
		"reference", order.PaymentReference,
		"amount", order.TotalAmount.AmountMinor,
	)

	s.publish(ctx, events.EventOrderCreated, order.VendorID, order.OrderID, order.PaymentReference, events.OrderCreatedData{
		OrderID:          order.OrderID,
		VendorID:         order.VendorID,
		PaymentReference: order.PaymentReference,
		TotalAmount:      order.TotalAmount.AmountMinor,
		Currency:         string(order.TotalAmount.Currency),
	})

	return &InitiatePurchaseResult{
		PaymentLink: order.PaymentLink,
		OrderID:     order.OrderID,
	}, nil
}

// VerifyPurchase confirms a payment with the gateway and settles the order.
// Any number of calls for one reference, concurrent or not, credit the
// vendor wallet at most once.
func (s *Service) VerifyPurchase(ctx context.Context, reference string) (*domain.Order, error) {
	order, outcome, err := s.verifyPurchase(ctx, strings.TrimSpace(reference))
	s.metrics.Verifications.WithLabelValues(outcome).Inc()
	return order, err
}

func (s *Service) verifyPurchase(ctx context.Context, reference string) (*domain.Order, string, error) {
	if reference == "" {
		return nil, metrics.OutcomeFailed, fmt.Errorf("%w: reference is required", ErrValidation)
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	v, err := s.gateway.Verify(gctx, reference)
	s.metrics.GatewayLatencySec.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		}
		return nil, metrics.OutcomeError, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	if v.Status != VerificationSuccessful {
		return nil, metrics.OutcomeFailed, fmt.Errorf("%w: gateway reports %s for %s", ErrVerificationFailed, v.Status, reference)
	}
	if v.Reference != "" && v.Reference != reference {
		return nil, metrics.OutcomeFailed, fmt.Errorf("%w: gateway answered for %s", ErrVerificationFailed, v.Reference)
	}
	if v.Amount.Currency != money.Currency(s.cfg.Currency) {
		return nil, metrics.OutcomeFailed, fmt.Errorf("%w: unexpected currency %s", ErrVerificationFailed, v.Amount.Currency)
	}

	order, err := s.store.GetOrderByReference(ctx, reference)
	if err != nil {
		if database.IsNotFound(err) {
			s.logger.Warn("verified payment has no order", "reference", reference)
			return nil, metrics.OutcomeNotFound, fmt.Errorf("%w: no order for reference %s", ErrNotFound, reference)
		}
		return nil, metrics.OutcomeError, fmt.Errorf("%w: loading order: %w", ErrStorage, err)
	}

	if !v.Amount.Equal(order.TotalAmount) {
		s.logger.Error("verified amount does not match order",
			"reference", reference,
			"order_id", order.OrderID,
			"expected", order.TotalAmount.AmountMinor,
			"reported", v.Amount.AmountMinor,
			"currency", v.Amount.Currency,
		)
		s.publish(ctx, events.EventOrderAmountMismatch, order.VendorID, order.OrderID, "", events.AmountMismatchData{
			OrderID:          order.OrderID,
			PaymentReference: reference,
			ExpectedAmount:   order.TotalAmount.AmountMinor,
			ExpectedCurrency: string(order.TotalAmount.Currency),
			ReportedAmount:   v.Amount.AmountMinor,
			ReportedCurrency: string(v.Amount.Currency),
		})
		return nil, metrics.OutcomeMismatch, fmt.Errorf("%w: expected %s, gateway reported %s",
			ErrAmountMismatch, order.TotalAmount, v.Amount)
	}

	if order.IsPaid() {
		return order, metrics.OutcomeDuplicate, nil
	}

	credit, err := walletdomain.NewCredit(order.VendorID, order.VendorShare(), reference, "Payment for order "+order.OrderID)
	if err != nil {
		return nil, metrics.OutcomeError, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	settled, tx, applied, err := s.store.SettleOrder(ctx, reference, s.now(), credit)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, metrics.OutcomeNotFound, fmt.Errorf("%w: order for reference %s was removed", ErrNotFound, reference)
		}
		if errors.Is(err, walletdomain.ErrCurrencyMismatch) {
			s.logger.Error("order cannot be credited to vendor wallet",
				"reference", reference,
				"order_id", order.OrderID,
				"vendor_id", order.VendorID,
				"error", err,
			)
			return nil, metrics.OutcomeMismatch, fmt.Errorf("%w: %w", ErrWalletCurrency, err)
		}
		return nil, metrics.OutcomeError, fmt.Errorf("%w: settling order: %w", ErrStorage, err)
	}
	if !applied {
		s.logger.Info("order already settled", "reference", reference, "order_id", settled.OrderID)
		return settled, metrics.OutcomeDuplicate, nil
	}

	s.metrics.WalletCredits.Inc()
	s.metrics.WalletCreditedMinor.Add(float64(tx.Amount))

	s.logger.Info("order paid",
		"order_id", settled.OrderID,
		"reference", reference,
		"vendor_id", settled.VendorID,
		"credited", tx.Amount,
		"balance_after", tx.BalanceAfter,
	)

	s.publish(ctx, events.EventOrderPaid, settled.VendorID, settled.OrderID, reference, events.OrderPaidData{
		OrderID:          settled.OrderID,
		VendorID:         settled.VendorID,
		PaymentReference: reference,
		TotalAmount:      settled.TotalAmount.AmountMinor,
		Currency:         string(settled.TotalAmount.Currency),
		PaidAt:           *settled.PaidAt,
	})
	s.publish(ctx, events.EventWalletCredited, settled.VendorID, settled.VendorID, reference, events.WalletCreditedData{
		VendorID:  settled.VendorID,
		Amount:    tx.Amount,
		Currency:  string(tx.Currency),
		Reference: reference,
	})

	s.notify(ctx, settled)

	return settled, metrics.OutcomePaid, nil
}

// SweepStalePending deletes unpaid orders older than maxAge and returns how many were removed.
func (s *Service) SweepStalePending(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("%w: max age must be positive", ErrValidation)
	}

	cutoff := s.now().Add(-maxAge)
	removed, err := s.store.DeleteStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: sweeping orders: %w", ErrStorage, err)
	}

	s.metrics.OrdersSwept.Add(float64(removed))
	if removed > 0 {
		s.logger.Info("stale pending orders removed", "count", removed, "cutoff", cutoff)
		s.publish(ctx, events.EventOrdersSwept, "", "orders", "", events.OrdersSweptData{
			Removed: removed,
			Cutoff:  cutoff.UTC(),
		})
	}
	return removed, nil
}

// GetOrder retrieves an order by its business id
func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("%w: loading order: %w", ErrStorage, err)
	}
	return o, nil
}

// ListOrders lists a vendor's orders, newest first
func (s *Service) ListOrders(ctx context.Context, vendorID string, limit, offset int) ([]*domain.Order, int64, error) {
	if vendorID == "" {
		return nil, 0, fmt.Errorf("%w: vendor_id is required", ErrValidation)
	}
	orders, total, err := s.store.ListOrders(ctx, vendorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: listing orders: %w", ErrStorage, err)
	}
	return orders, total, nil
}

func (s *Service) notify(ctx context.Context, order *domain.Order) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendOrderConfirmation(ctx, order.ContactEmail(), order); err != nil {
		s.logger.Warn("order confirmation not sent",
			"order_id", order.OrderID,
			"error", fmt.Errorf("%w: %w", ErrNotification, err),
		)
	}
}

// publish emits an event best-effort. A non-empty key marks facts that must
// dedupe when the same reference is processed again.
func (s *Service) publish(ctx context.Context, eventType, vendorID, aggregateID, key string, data interface{}) {
	event, err := events.NewEvent(eventType, vendorID, "order", aggregateID, data)
	if err != nil {
		s.logger.Error("building event", "type", eventType, "error", err)
		return
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx), "").WithIdempotencyKey(key)

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event not published", "type", eventType, "aggregate_id", aggregateID, "error", err)
	}
}

func initiateOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPaymentInit):
		return "gateway_rejected"
	default:
		return "error"
	}
}

func guestInfo(g *GuestPayload) *domain.GuestInfo {
	if g == nil {
		return nil
	}
	return &domain.GuestInfo{
		Name:    strings.TrimSpace(g.Name),
		Phone:   strings.TrimSpace(g.Phone),
		Address: g.Address,
		Email:   g.Email,
	}
}

func items(in []ItemPayload) []domain.Item {
	out := make([]domain.Item, 0, len(in))
	for _, it := range in {
		out = append(out, domain.Item{
			Name:      strings.TrimSpace(it.Name),
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	return out
}
