package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"foodmarket/internal/common/database"
	"foodmarket/internal/common/money"
	"foodmarket/internal/customers"
	"foodmarket/internal/orders/domain"
	walletdomain "foodmarket/internal/wallet/domain"
)

// WalletCreditor applies a credit inside an open transaction.
type WalletCreditor interface {
	CreditTx(ctx context.Context, tx pgx.Tx, c walletdomain.Credit, now time.Time) (*walletdomain.Transaction, bool, error)
}

// Store provides order data access
type Store struct {
	db      *database.DB
	wallets WalletCreditor
}

// New creates a new order store
func New(db *database.DB, wallets WalletCreditor) *Store {
	return &Store{db: db, wallets: wallets}
}

const orderColumns = `
	id, order_id, vendor_id, COALESCE(customer_id, ''), guest_info, items,
	delivery_method, delivery_fee, note, total_amount, platform_fee, currency,
	payer_email, payment_reference, COALESCE(payment_link, ''), payment_status,
	status, created_at, paid_at
`

// CreateOrder inserts a pending order and links it to the customer's history.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}

	var guest []byte
	if o.Guest != nil {
		if guest, err = json.Marshal(o.Guest); err != nil {
			return fmt.Errorf("encoding guest info: %w", err)
		}
	}

	var customerID *string
	if o.CustomerID != "" {
		customerID = &o.CustomerID
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (
				id, order_id, vendor_id, customer_id, guest_info, items,
				delivery_method, delivery_fee, note, total_amount, platform_fee, currency,
				payer_email, payment_reference, payment_link, payment_status, status,
				created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18
			)
		`,
			o.ID, o.OrderID, o.VendorID, customerID, guest, items,
			o.DeliveryMethod, o.DeliveryFee, o.Note, o.TotalAmount.AmountMinor,
			o.PlatformFee.AmountMinor, o.TotalAmount.Currency,
			o.PayerEmail, o.PaymentReference, o.PaymentLink, o.PaymentStatus, o.Status,
			o.CreatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("order with reference %s: %w", o.PaymentReference, database.ErrAlreadyExists)
			}
			return fmt.Errorf("inserting order: %w", err)
		}

		if o.CustomerID != "" {
			if err := customers.LinkOrderTx(ctx, tx, o.CustomerID, o.OrderID); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetOrder retrieves an order by its business id
func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	return scanOrder(row)
}

// GetOrderByReference retrieves an order by payment reference
func (s *Store) GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`, reference)
	return scanOrder(row)
}

// ListOrders lists a vendor's orders, newest first
func (s *Store) ListOrders(ctx context.Context, vendorID string, limit, offset int) ([]*domain.Order, int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE vendor_id = $1`, vendorID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE vendor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, vendorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating orders: %w", err)
	}

	return orders, total, nil
}

// SettleOrder marks the order paid with a compare-and-set on payment_status
// and credits the vendor wallet in the same transaction. When another caller
// already won the flip, the stored order is returned with applied=false.
func (s *Store) SettleOrder(ctx context.Context, reference string, paidAt time.Time, credit walletdomain.Credit) (*domain.Order, *walletdomain.Transaction, bool, error) {
	var (
		order   *domain.Order
		walletT *walletdomain.Transaction
		applied bool
	)

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE orders
			SET payment_status = 'paid', paid_at = $2, updated_at = $2
			WHERE payment_reference = $1 AND payment_status = 'pending'
			RETURNING `+orderColumns, reference, paidAt.UTC())

		o, err := scanOrder(row)
		if errors.Is(err, database.ErrNotFound) {
			order, err = scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`, reference))
			return err
		}
		if err != nil {
			return err
		}

		t, ok, err := s.wallets.CreditTx(ctx, tx, credit, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("reference %s credited without a pending order: %w", reference, database.ErrAlreadyExists)
		}

		order, walletT, applied = o, t, true
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}

	return order, walletT, applied, nil
}

// DeleteStalePending removes unpaid orders created before cutoff
func (s *Store) DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM orders
		WHERE payment_status = 'pending' AND created_at < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting stale orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var guest, items []byte
	var total, fee int64
	var currency string

	err := row.Scan(
		&o.ID, &o.OrderID, &o.VendorID, &o.CustomerID, &guest, &items,
		&o.DeliveryMethod, &o.DeliveryFee, &o.Note, &total, &fee, &currency,
		&o.PayerEmail, &o.PaymentReference, &o.PaymentLink, &o.PaymentStatus,
		&o.Status, &o.CreatedAt, &o.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decoding items: %w", err)
	}
	if len(guest) > 0 {
		o.Guest = &domain.GuestInfo{}
		if err := json.Unmarshal(guest, o.Guest); err != nil {
			return nil, fmt.Errorf("decoding guest info: %w", err)
		}
	}

	o.TotalAmount = money.New(total, money.Currency(currency))
	o.PlatformFee = money.New(fee, money.Currency(currency))
	return &o, nil
}
