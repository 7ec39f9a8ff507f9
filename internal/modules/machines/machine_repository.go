package machines

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vending-dispatch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface lists the machine-table operations the registry needs.
type RepositoryInterface interface {
	// FindByHardwareAddress matches hardware_address case-insensitively.
	// Returns models.ErrConflict when more than one machine carries the address.
	FindByHardwareAddress(ctx context.Context, mac string) (*models.Machine, error)
	FindByLogicalCode(ctx context.Context, code string) (*models.Machine, error)
	// Touch marks the machine online at now and applies the non-nil telemetry fields.
	Touch(ctx context.Context, machineID string, upd models.TelemetryUpdate, now time.Time) error
	ListMachines(ctx context.Context) ([]*models.Machine, error)
	// MarkStaleOffline flips machines not heard from since before to offline,
	// stamping updated_at with now.
	MarkStaleOffline(ctx context.Context, before, now time.Time) (int64, error)
}

// Repository implements RepositoryInterface on PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const machineColumns = `id, hardware_address, logical_code, name, online, last_contact_at,
	firmware_version, wifi_rssi, free_heap, uptime_seconds, stock_level, created_at, updated_at`

func scanMachine(row pgx.Row) (*models.Machine, error) {
	m := &models.Machine{}
	if err := row.Scan(
		&m.ID, &m.HardwareAddress, &m.LogicalCode, &m.Name, &m.Online, &m.LastContactAt,
		&m.FirmwareVersion, &m.WifiRSSI, &m.FreeHeap, &m.UptimeSeconds, &m.StockLevel,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return m, nil
}

// findOne runs a lookup limited to two rows so duplicates surface as a conflict.
func (r *Repository) findOne(ctx context.Context, query string, arg string) (*models.Machine, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*models.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, models.ErrNotFound
	case 1:
		return found[0], nil
	default:
		return nil, models.ErrConflict
	}
}

func (r *Repository) FindByHardwareAddress(ctx context.Context, mac string) (*models.Machine, error) {
	query := `SELECT ` + machineColumns + `
		FROM machines
		WHERE lower(hardware_address) = lower($1)
		LIMIT 2`
	m, err := r.findOne(ctx, query, mac)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("repository.FindByHardwareAddress: %w", err)
	}
	return m, nil
}

func (r *Repository) FindByLogicalCode(ctx context.Context, code string) (*models.Machine, error) {
	query := `SELECT ` + machineColumns + `
		FROM machines
		WHERE logical_code = $1
		LIMIT 2`
	m, err := r.findOne(ctx, query, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("repository.FindByLogicalCode: %w", err)
	}
	return m, nil
}

// Touch never writes NULL over a stored telemetry value: absent fields go
// through COALESCE and keep the column as it was.
func (r *Repository) Touch(ctx context.Context, machineID string, upd models.TelemetryUpdate, now time.Time) error {
	const query = `
		UPDATE machines
		SET online = true,
			last_contact_at = $2,
			firmware_version = COALESCE($3::text, firmware_version),
			wifi_rssi = COALESCE($4::integer, wifi_rssi),
			free_heap = COALESCE($5::bigint, free_heap),
			uptime_seconds = COALESCE($6::bigint, uptime_seconds),
			stock_level = COALESCE($7::integer, stock_level),
			updated_at = $2
		WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, machineID, now,
		upd.FirmwareVersion, upd.WifiRSSI, upd.FreeHeap, upd.UptimeSeconds, upd.StockLevel)
	if err != nil {
		return fmt.Errorf("repository.Touch: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) ListMachines(ctx context.Context) ([]*models.Machine, error) {
	query := `SELECT ` + machineColumns + `
		FROM machines
		ORDER BY created_at`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository.ListMachines: %w", err)
	}
	defer rows.Close()

	var machines []*models.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.ListMachines.Scan: %w", err)
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ListMachines.Rows: %w", err)
	}
	return machines, nil
}

func (r *Repository) MarkStaleOffline(ctx context.Context, before, now time.Time) (int64, error) {
	const query = `
		UPDATE machines
		SET online = false, updated_at = $2
		WHERE online = true
		  AND (last_contact_at IS NULL OR last_contact_at < $1)`
	cmd, err := r.db.Exec(ctx, query, before, now)
	if err != nil {
		return 0, fmt.Errorf("repository.MarkStaleOffline: %w", err)
	}
	return cmd.RowsAffected(), nil
}
