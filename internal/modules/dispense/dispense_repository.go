package dispense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vending-dispatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface is the order-table contract of the dispense resolver.
// Every write is conditional; no method overwrites dispensed or payment_status blindly.
type RepositoryInterface interface {
	// FindOldestPending returns the oldest paid, undispensed order of a machine,
	// or models.ErrNotFound.
	FindOldestPending(ctx context.Context, machineID string) (*models.Order, error)
	// MarkDispensed flips dispensed to true only if it is still false.
	// Returns models.ErrClaimLost when the guard matched no row.
	MarkDispensed(ctx context.Context, orderID string, now time.Time) (*models.Order, error)
	// ListLineItems returns items in position order joined with product metadata.
	// Items whose product row is missing come back with Resolved == false.
	ListLineItems(ctx context.Context, orderID string) ([]models.ResolvedItem, error)
	// Acknowledge stamps dispense_acked_at once for a dispensed order of machineID.
	Acknowledge(ctx context.Context, orderID, machineID string, now time.Time) (bool, error)
	// ListUnacknowledged returns online orders dispensed before cutoff that no device acknowledged.
	ListUnacknowledged(ctx context.Context, before time.Time) ([]*models.Order, error)
	// InsertDispensedSale stores an order and its items in one transaction.
	InsertDispensedSale(ctx context.Context, order *models.Order, items []models.LineItem) error
}

// Repository implements RepositoryInterface on PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const orderColumns = `id, machine_id, payment_status, payment_method, amount,
	gateway_order_id, gateway_payment_id, dispensed, dispensed_at, dispense_acked_at,
	paid_at, created_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	if err := row.Scan(
		&o.ID, &o.MachineID, &o.PaymentStatus, &o.PaymentMethod, &o.Amount,
		&o.GatewayOrderID, &o.GatewayPaymentID, &o.Dispensed, &o.DispensedAt, &o.DispenseAckedAt,
		&o.PaidAt, &o.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// FindOldestPending is served by the partial index
// orders_pending_idx (machine_id, created_at) WHERE payment_status = 'paid' AND NOT dispensed.
func (r *Repository) FindOldestPending(ctx context.Context, machineID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE machine_id = $1
		  AND payment_status = 'paid'
		  AND dispensed = false
		ORDER BY created_at ASC, id ASC
		LIMIT 1`
	o, err := scanOrder(r.db.QueryRow(ctx, query, machineID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("repository.FindOldestPending: %w", err)
	}
	return o, nil
}

func (r *Repository) MarkDispensed(ctx context.Context, orderID string, now time.Time) (*models.Order, error) {
	query := `
		UPDATE orders
		SET dispensed = true,
			dispensed_at = $2
		WHERE id = $1
		  AND dispensed = false
		  AND payment_status = 'paid'
		RETURNING ` + orderColumns
	o, err := scanOrder(r.db.QueryRow(ctx, query, orderID, now))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrClaimLost
		}
		return nil, fmt.Errorf("repository.MarkDispensed: %w", err)
	}
	return o, nil
}

func (r *Repository) ListLineItems(ctx context.Context, orderID string) ([]models.ResolvedItem, error) {
	const query = `
		SELECT oi.product_id, p.name, p.description, oi.quantity, oi.unit_price
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.position`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository.ListLineItems.Query: %w", err)
	}
	defer rows.Close()

	var items []models.ResolvedItem
	for rows.Next() {
		var it models.ResolvedItem
		var name, description *string
		if err := rows.Scan(&it.ProductID, &name, &description, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("repository.ListLineItems.Scan: %w", err)
		}
		if name != nil {
			it.Name = *name
			it.Resolved = true
		}
		if description != nil {
			it.Description = *description
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ListLineItems.Rows: %w", err)
	}
	return items, nil
}

func (r *Repository) Acknowledge(ctx context.Context, orderID, machineID string, now time.Time) (bool, error) {
	const query = `
		UPDATE orders
		SET dispense_acked_at = $3
		WHERE id = $1
		  AND machine_id = $2
		  AND dispensed = true
		  AND dispense_acked_at IS NULL`
	cmd, err := r.db.Exec(ctx, query, orderID, machineID, now)
	if err != nil {
		return false, fmt.Errorf("repository.Acknowledge: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *Repository) ListUnacknowledged(ctx context.Context, before time.Time) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE dispensed = true
		  AND dispense_acked_at IS NULL
		  AND payment_method = 'online'
		  AND dispensed_at < $1
		ORDER BY dispensed_at`
	rows, err := r.db.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("repository.ListUnacknowledged.Query: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.ListUnacknowledged.Scan: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ListUnacknowledged.Rows: %w", err)
	}
	return orders, nil
}

func (r *Repository) InsertDispensedSale(ctx context.Context, order *models.Order, items []models.LineItem) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		const insertOrder = `
			INSERT INTO orders (id, machine_id, payment_status, payment_method, amount,
				dispensed, dispensed_at, dispense_acked_at, paid_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		if _, err := tx.Exec(ctx, insertOrder,
			order.ID, order.MachineID, order.PaymentStatus, order.PaymentMethod, order.Amount,
			order.Dispensed, order.DispensedAt, order.DispenseAckedAt, order.PaidAt, order.CreatedAt,
		); err != nil {
			return err
		}

		const insertItem = `
			INSERT INTO order_items (order_id, position, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`
		batch := &pgx.Batch{}
		for _, it := range items {
			batch.Queue(insertItem, order.ID, it.Position, it.ProductID, it.Quantity, it.UnitPrice)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("repository.InsertDispensedSale: %w", err)
	}
	return nil
}
