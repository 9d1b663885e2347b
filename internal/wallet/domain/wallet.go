// Package domain models vendor wallets as a balance over an append-only transaction log.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"foodmarket/internal/common/money"
)

// TransactionType is the direction of a wallet movement.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// Transaction is one immutable wallet movement. Amount is always positive;
// Type carries the sign.
type Transaction struct {
	ID               string          `json:"id"`
	VendorID         string          `json:"vendor_id"`
	Type             TransactionType `json:"type"`
	Amount           int64           `json:"amount"`
	Currency         money.Currency  `json:"currency"`
	Description      string          `json:"description"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	BalanceAfter     int64           `json:"balance_after"`
	RecordedAt       time.Time       `json:"recorded_at"`
}

// Signed returns the transaction's contribution to the balance.
func (t Transaction) Signed() int64 {
	if t.Type == TransactionDebit {
		return -t.Amount
	}
	return t.Amount
}

// Wallet holds one vendor's balance and its transaction log.
type Wallet struct {
	VendorID     string         `json:"vendor_id"`
	Currency     money.Currency `json:"currency"`
	Balance      int64          `json:"balance"`
	Transactions []Transaction  `json:"transactions"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewWallet returns an empty wallet.
func NewWallet(vendorID string, currency money.Currency, now time.Time) *Wallet {
	return &Wallet{
		VendorID:     vendorID,
		Currency:     currency,
		Transactions: []Transaction{},
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
}

// ErrCurrencyMismatch is returned when a credit's currency differs from the wallet's.
var ErrCurrencyMismatch = errors.New("wallet currency mismatch")

// Credit is a request to add funds for a settled payment.
type Credit struct {
	VendorID         string
	Amount           money.Money
	Description      string
	PaymentReference string
}

// NewCredit validates and builds a credit.
func NewCredit(vendorID string, amount money.Money, reference, description string) (Credit, error) {
	if strings.TrimSpace(vendorID) == "" {
		return Credit{}, errors.New("vendor_id is required")
	}
	if !amount.IsPositive() {
		return Credit{}, errors.New("credit amount must be positive")
	}
	if strings.TrimSpace(reference) == "" {
		return Credit{}, errors.New("payment reference is required")
	}
	return Credit{
		VendorID:         vendorID,
		Amount:           amount,
		Description:      description,
		PaymentReference: reference,
	}, nil
}

// Apply appends a credit to the wallet and returns the recorded transaction.
// The caller is responsible for serializing calls on the same wallet.
func (w *Wallet) Apply(c Credit, now time.Time) (Transaction, error) {
	if c.VendorID != w.VendorID {
		return Transaction{}, fmt.Errorf("credit for %s applied to wallet %s", c.VendorID, w.VendorID)
	}
	if c.Amount.Currency != w.Currency {
		return Transaction{}, fmt.Errorf("%w: wallet %s, credit %s", ErrCurrencyMismatch, w.Currency, c.Amount.Currency)
	}
	if w.HasReference(c.PaymentReference) {
		return Transaction{}, fmt.Errorf("reference %s already credited", c.PaymentReference)
	}

	w.Balance += c.Amount.AmountMinor
	tx := Transaction{
		ID:               ulid.Make().String(),
		VendorID:         w.VendorID,
		Type:             TransactionCredit,
		Amount:           c.Amount.AmountMinor,
		Currency:         c.Amount.Currency,
		Description:      c.Description,
		PaymentReference: c.PaymentReference,
		BalanceAfter:     w.Balance,
		RecordedAt:       now.UTC(),
	}
	w.Transactions = append(w.Transactions, tx)
	w.UpdatedAt = tx.RecordedAt
	return tx, nil
}

// HasReference reports whether a payment reference was already recorded.
func (w *Wallet) HasReference(reference string) bool {
	for _, tx := range w.Transactions {
		if tx.PaymentReference != "" && tx.PaymentReference == reference {
			return true
		}
	}
	return false
}

// Fold sums the signed transaction amounts.
func Fold(txs []Transaction) int64 {
	var sum int64
	for _, tx := range txs {
		sum += tx.Signed()
	}
	return sum
}

// AuditReport compares a wallet's stored balance against its log.
type AuditReport struct {
	VendorID            string   `json:"vendor_id"`
	Balance             int64    `json:"balance"`
	Folded              int64    `json:"folded"`
	TransactionCount    int      `json:"transaction_count"`
	DuplicateReferences []string `json:"duplicate_references,omitempty"`
	BrokenChainAt       string   `json:"broken_chain_at,omitempty"`
	Consistent          bool     `json:"consistent"`
}

// Audit recomputes the balance from the log, checks the running
// balance_after chain, and lists payment references recorded more than once.
func Audit(w *Wallet) AuditReport {
	report := AuditReport{
		VendorID:         w.VendorID,
		Balance:          w.Balance,
		Folded:           Fold(w.Transactions),
		TransactionCount: len(w.Transactions),
	}

	seen := make(map[string]int)
	var running int64
	for _, tx := range w.Transactions {
		running += tx.Signed()
		if report.BrokenChainAt == "" && tx.BalanceAfter != running {
			report.BrokenChainAt = tx.ID
		}
		if tx.PaymentReference != "" {
			seen[tx.PaymentReference]++
		}
	}
	for ref, n := range seen {
		if n > 1 {
			report.DuplicateReferences = append(report.DuplicateReferences, ref)
		}
	}
	sort.Strings(report.DuplicateReferences)

	report.Consistent = report.Balance == report.Folded &&
		report.BrokenChainAt == "" &&
		len(report.DuplicateReferences) == 0
	return report
}
