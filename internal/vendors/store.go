// Package vendors reads the vendor records the order flow depends on.
package vendors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"foodmarket/internal/common/database"
)

// Vendor is the subset of a vendor profile used to route payouts.
type Vendor struct {
	ID               string `json:"id"`
	BusinessName     string `json:"business_name"`
	Email            string `json:"email"`
	PayoutAccountRef string `json:"payout_account_ref,omitempty"`
}

// HasPayoutTarget reports whether the vendor can receive a split.
func (v *Vendor) HasPayoutTarget() bool {
	return v.PayoutAccountRef != ""
}

// Store provides vendor data access
type Store struct {
	db database.Querier
}

// New creates a new vendor store
func New(db database.Querier) *Store {
	return &Store{db: db}
}

// GetVendor retrieves a vendor by ID
func (s *Store) GetVendor(ctx context.Context, id string) (*Vendor, error) {
	var v Vendor
	err := s.db.QueryRow(ctx, `
		SELECT id, business_name, email, COALESCE(payout_account_ref, '')
		FROM vendors
		WHERE id = $1
	`, id).Scan(&v.ID, &v.BusinessName, &v.Email, &v.PayoutAccountRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("getting vendor: %w", err)
	}
	return &v, nil
}
