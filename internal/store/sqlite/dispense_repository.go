package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vending-dispatch/internal/models"
)

// DispenseRepository implements dispense.RepositoryInterface.
type DispenseRepository struct {
	db *sql.DB
}

const orderColumns = `id, machine_id, payment_status, payment_method, amount,
	gateway_order_id, gateway_payment_id, dispensed, dispensed_at, dispense_acked_at,
	paid_at, created_at`

func scanOrder(row scanner) (*models.Order, error) {
	var (
		o                            models.Order
		gwOrder, gwPayment           sql.NullString
		dispensed                    int
		dispensedAt, ackedAt, paidAt sql.NullInt64
		createdAt                    int64
	)
	if err := row.Scan(&o.ID, &o.MachineID, &o.PaymentStatus, &o.PaymentMethod, &o.Amount,
		&gwOrder, &gwPayment, &dispensed, &dispensedAt, &ackedAt, &paidAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	o.GatewayOrderID = stringPtr(gwOrder)
	o.GatewayPaymentID = stringPtr(gwPayment)
	o.Dispensed = dispensed != 0
	o.DispensedAt = timePtr(dispensedAt)
	o.DispenseAckedAt = timePtr(ackedAt)
	o.PaidAt = timePtr(paidAt)
	o.CreatedAt = fromNanos(createdAt)
	return &o, nil
}

func (r *DispenseRepository) FindOldestPending(ctx context.Context, machineID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE machine_id = ?
		  AND payment_status = 'paid'
		  AND dispensed = 0
		ORDER BY created_at ASC, id ASC
		LIMIT 1`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, machineID))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("sqlite.FindOldestPending: %w", err)
	}
	return o, err
}

func (r *DispenseRepository) MarkDispensed(ctx context.Context, orderID string, now time.Time) (*models.Order, error) {
	query := `
		UPDATE orders
		SET dispensed = 1,
			dispensed_at = ?
		WHERE id = ?
		  AND dispensed = 0
		  AND payment_status = 'paid'
		RETURNING ` + orderColumns
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, toNanos(now), orderID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrClaimLost
		}
		return nil, fmt.Errorf("sqlite.MarkDispensed: %w", err)
	}
	return o, nil
}

func (r *DispenseRepository) ListLineItems(ctx context.Context, orderID string) ([]models.ResolvedItem, error) {
	const query = `
		SELECT oi.product_id, p.name, p.description, oi.quantity, oi.unit_price
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ?
		ORDER BY oi.position`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListLineItems: %w", err)
	}
	defer rows.Close()

	var items []models.ResolvedItem
	for rows.Next() {
		var (
			it                models.ResolvedItem
			name, description sql.NullString
		)
		if err := rows.Scan(&it.ProductID, &name, &description, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("sqlite.ListLineItems.Scan: %w", err)
		}
		it.Name, it.Resolved = name.String, name.Valid
		it.Description = description.String
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.ListLineItems.Rows: %w", err)
	}
	return items, nil
}

func (r *DispenseRepository) Acknowledge(ctx context.Context, orderID, machineID string, now time.Time) (bool, error) {
	const query = `
		UPDATE orders
		SET dispense_acked_at = ?
		WHERE id = ?
		  AND machine_id = ?
		  AND dispensed = 1
		  AND dispense_acked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, toNanos(now), orderID, machineID)
	if err != nil {
		return false, fmt.Errorf("sqlite.Acknowledge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite.Acknowledge: %w", err)
	}
	return n > 0, nil
}

func (r *DispenseRepository) ListUnacknowledged(ctx context.Context, before time.Time) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE dispensed = 1
		  AND dispense_acked_at IS NULL
		  AND payment_method = 'online'
		  AND dispensed_at < ?
		ORDER BY dispensed_at`
	rows, err := r.db.QueryContext(ctx, query, toNanos(before))
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListUnacknowledged: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite.ListUnacknowledged.Scan: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.ListUnacknowledged.Rows: %w", err)
	}
	return orders, nil
}

func (r *DispenseRepository) InsertDispensedSale(ctx context.Context, order *models.Order, items []models.LineItem) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.InsertDispensedSale: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertOrder = `
		INSERT INTO orders (id, machine_id, payment_status, payment_method, amount,
			dispensed, dispensed_at, dispense_acked_at, paid_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err = tx.ExecContext(ctx, insertOrder,
		order.ID, order.MachineID, order.PaymentStatus, order.PaymentMethod, order.Amount,
		boolInt(order.Dispensed), nullableNanos(order.DispensedAt), nullableNanos(order.DispenseAckedAt),
		nullableNanos(order.PaidAt), toNanos(order.CreatedAt),
	); err != nil {
		return fmt.Errorf("sqlite.InsertDispensedSale: order: %w", err)
	}

	const insertItem = `
		INSERT INTO order_items (order_id, position, product_id, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?)`
	for _, it := range items {
		if _, err = tx.ExecContext(ctx, insertItem, order.ID, it.Position, it.ProductID, it.Quantity, it.UnitPrice); err != nil {
			return fmt.Errorf("sqlite.InsertDispensedSale: item %d: %w", it.Position, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite.InsertDispensedSale: commit: %w", err)
	}
	return nil
}
