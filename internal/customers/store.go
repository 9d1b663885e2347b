// Package customers maintains registered customers' order history.
package customers

import (
	"context"
	"fmt"

	"foodmarket/internal/common/database"
)

// LinkOrderTx appends an order to a customer's history. q is normally the
// transaction that inserts the order. Repeating the call for the same pair
// is a no-op.
func LinkOrderTx(ctx context.Context, q database.Querier, customerID, orderID string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO customer_orders (customer_id, order_id)
		VALUES ($1, $2)
		ON CONFLICT (customer_id, order_id) DO NOTHING
	`, customerID, orderID)
	if err != nil {
		return fmt.Errorf("linking order %s to customer %s: %w", orderID, customerID, err)
	}
	return nil
}
