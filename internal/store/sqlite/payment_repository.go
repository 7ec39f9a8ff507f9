package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PaymentRepository implements payments.RepositoryInterface.
type PaymentRepository struct {
	db *sql.DB
}

func (r *PaymentRepository) MarkPaid(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID string, now time.Time) (bool, error) {
	const query = `
		UPDATE orders
		SET payment_status = 'paid',
			paid_at = ?2,
			gateway_order_id = COALESCE(NULLIF(?3, ''), gateway_order_id),
			gateway_payment_id = COALESCE(NULLIF(?4, ''), gateway_payment_id)
		WHERE id = ?1
		  AND payment_status = 'unpaid'`
	return r.exec(ctx, "MarkPaid", query, orderID, toNanos(now), gatewayOrderID, gatewayPaymentID)
}

func (r *PaymentRepository) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	const query = `
		UPDATE orders
		SET payment_status = 'failed'
		WHERE id = ?
		  AND payment_status = 'unpaid'`
	return r.exec(ctx, "MarkFailed", query, orderID)
}

func (r *PaymentRepository) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite.%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite.%s: %w", op, err)
	}
	return n > 0, nil
}
