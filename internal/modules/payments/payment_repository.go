package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface records payment outcomes. Both writes only move an
// order out of 'unpaid', so a replayed notification changes nothing.
type RepositoryInterface interface {
	MarkPaid(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, orderID string) (bool, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

// MarkPaid never writes dispensed; the dispense resolver owns that column.
func (r *Repository) MarkPaid(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID string, now time.Time) (bool, error) {
	const query = `
		UPDATE orders
		SET payment_status = 'paid',
			paid_at = $2,
			gateway_order_id = COALESCE(NULLIF($3, ''), gateway_order_id),
			gateway_payment_id = COALESCE(NULLIF($4, ''), gateway_payment_id)
		WHERE id = $1
		  AND payment_status = 'unpaid'`
	cmd, err := r.db.Exec(ctx, query, orderID, now, gatewayOrderID, gatewayPaymentID)
	if err != nil {
		return false, fmt.Errorf("repository.MarkPaid: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *Repository) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	const query = `
		UPDATE orders
		SET payment_status = 'failed'
		WHERE id = $1
		  AND payment_status = 'unpaid'`
	cmd, err := r.db.Exec(ctx, query, orderID)
	if err != nil {
		return false, fmt.Errorf("repository.MarkFailed: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}
