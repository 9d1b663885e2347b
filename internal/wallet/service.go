// Package wallet exposes vendor wallet reads and consistency audits.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"foodmarket/internal/common/database"
	"foodmarket/internal/wallet/domain"
)

// ErrNotFound is returned for vendors that have never been credited.
var ErrNotFound = errors.New("wallet not found")

// Store reads wallets. Credits are written by the order settlement transaction.
type Store interface {
	GetWallet(ctx context.Context, vendorID string) (*domain.Wallet, error)
}

// Service provides wallet operations
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new wallet service
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// GetWallet returns a vendor's wallet with its transaction log.
func (s *Service) GetWallet(ctx context.Context, vendorID string) (*domain.Wallet, error) {
	w, err := s.store.GetWallet(ctx, vendorID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, fmt.Errorf("%w: vendor %s", ErrNotFound, vendorID)
		}
		return nil, fmt.Errorf("getting wallet: %w", err)
	}
	return w, nil
}

// Audit recomputes the balance from the transaction log and reports drift.
func (s *Service) Audit(ctx context.Context, vendorID string) (*domain.AuditReport, error) {
	w, err := s.GetWallet(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	report := domain.Audit(w)
	if !report.Consistent {
		s.logger.Error("wallet audit failed",
			"vendor_id", vendorID,
			"balance", report.Balance,
			"folded", report.Folded,
			"duplicate_references", report.DuplicateReferences,
			"broken_chain_at", report.BrokenChainAt,
		)
	}
	return &report, nil
}
