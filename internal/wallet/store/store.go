package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"foodmarket/internal/common/database"
	"foodmarket/internal/common/money"
	"foodmarket/internal/wallet/domain"
)

// Store provides wallet data access
type Store struct {
	db *database.DB
}

// New creates a new wallet store
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// CreditTx appends a credit inside the caller's transaction and bumps the
// balance in-row. The wallet is created on first credit. The wallet row is
// locked for the rest of tx, so concurrent credits to one vendor serialize
// here. Returns applied=false if the payment reference was already credited.
func (s *Store) CreditTx(ctx context.Context, tx pgx.Tx, c domain.Credit, now time.Time) (*domain.Transaction, bool, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallets (vendor_id, currency, balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (vendor_id) DO NOTHING
	`, c.VendorID, c.Amount.Currency, now)
	if err != nil {
		return nil, false, fmt.Errorf("ensuring wallet: %w", err)
	}

	var currency string
	err = tx.QueryRow(ctx, `SELECT currency FROM wallets WHERE vendor_id = $1 FOR UPDATE`, c.VendorID).Scan(&currency)
	if err != nil {
		return nil, false, fmt.Errorf("locking wallet: %w", err)
	}
	if money.Currency(currency) != c.Amount.Currency {
		return nil, false, fmt.Errorf("%w: wallet %s, credit %s", domain.ErrCurrencyMismatch, currency, c.Amount.Currency)
	}

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallet_transactions WHERE payment_reference = $1)`, c.PaymentReference).Scan(&exists)
	if err != nil {
		return nil, false, fmt.Errorf("checking reference: %w", err)
	}
	if exists {
		return nil, false, nil
	}

	var balance int64
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET balance = balance + $2, updated_at = $3
		WHERE vendor_id = $1
		RETURNING balance
	`, c.VendorID, c.Amount.AmountMinor, now).Scan(&balance)
	if err != nil {
		return nil, false, fmt.Errorf("updating balance: %w", err)
	}

	t := &domain.Transaction{
		ID:               ulid.Make().String(),
		VendorID:         c.VendorID,
		Type:             domain.TransactionCredit,
		Amount:           c.Amount.AmountMinor,
		Currency:         c.Amount.Currency,
		Description:      c.Description,
		PaymentReference: c.PaymentReference,
		BalanceAfter:     balance,
		RecordedAt:       now.UTC(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_transactions (
			id, vendor_id, type, amount, currency, description,
			payment_reference, balance_after, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		t.ID, t.VendorID, t.Type, t.Amount, t.Currency, t.Description,
		t.PaymentReference, t.BalanceAfter, t.RecordedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, false, fmt.Errorf("reference %s already credited: %w", c.PaymentReference, database.ErrAlreadyExists)
		}
		return nil, false, fmt.Errorf("appending transaction: %w", err)
	}

	return t, true, nil
}

// GetWallet retrieves a wallet with its full transaction log
func (s *Store) GetWallet(ctx context.Context, vendorID string) (*domain.Wallet, error) {
	var w domain.Wallet
	var currency string
	err := s.db.QueryRow(ctx, `
		SELECT vendor_id, currency, balance, created_at, updated_at
		FROM wallets
		WHERE vendor_id = $1
	`, vendorID).Scan(&w.VendorID, &currency, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("getting wallet: %w", err)
	}
	w.Currency = money.Currency(currency)

	rows, err := s.db.Query(ctx, `
		SELECT id, vendor_id, type, amount, currency, description,
			   COALESCE(payment_reference, ''), balance_after, recorded_at
		FROM wallet_transactions
		WHERE vendor_id = $1
		ORDER BY seq
	`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing wallet transactions: %w", err)
	}
	defer rows.Close()

	w.Transactions, err = scanTransactions(rows)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	txs := []domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		var currency string
		err := rows.Scan(
			&t.ID, &t.VendorID, &t.Type, &t.Amount, &currency, &t.Description,
			&t.PaymentReference, &t.BalanceAfter, &t.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning wallet transaction: %w", err)
		}
		t.Currency = money.Currency(currency)
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating wallet transactions: %w", err)
	}
	return txs, nil
}
