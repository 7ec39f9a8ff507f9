package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vending-dispatch/internal/models"
)

// MachineRepository implements machines.RepositoryInterface.
type MachineRepository struct {
	db *sql.DB
}

const machineColumns = `id, hardware_address, logical_code, name, online, last_contact_at,
	firmware_version, wifi_rssi, free_heap, uptime_seconds, stock_level, created_at, updated_at`

func scanMachine(row scanner) (*models.Machine, error) {
	var (
		m                     models.Machine
		online                int
		lastContact           sql.NullInt64
		firmware              sql.NullString
		rssi, heap, up, stock sql.NullInt64
		createdAt, updatedAt  int64
	)
	if err := row.Scan(&m.ID, &m.HardwareAddress, &m.LogicalCode, &m.Name, &online, &lastContact,
		&firmware, &rssi, &heap, &up, &stock, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.Online = online != 0
	m.LastContactAt = timePtr(lastContact)
	m.FirmwareVersion = stringPtr(firmware)
	if rssi.Valid {
		v := int(rssi.Int64)
		m.WifiRSSI = &v
	}
	if heap.Valid {
		m.FreeHeap = &heap.Int64
	}
	if up.Valid {
		m.UptimeSeconds = &up.Int64
	}
	if stock.Valid {
		v := int(stock.Int64)
		m.StockLevel = &v
	}
	m.CreatedAt = fromNanos(createdAt)
	m.UpdatedAt = fromNanos(updatedAt)
	return &m, nil
}

func (r *MachineRepository) findOne(ctx context.Context, query, arg string) (*models.Machine, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
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

func (r *MachineRepository) FindByHardwareAddress(ctx context.Context, mac string) (*models.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE lower(hardware_address) = lower(?) LIMIT 2`
	m, err := r.findOne(ctx, query, mac)
	if err != nil && !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrConflict) {
		return nil, fmt.Errorf("sqlite.FindByHardwareAddress: %w", err)
	}
	return m, err
}

func (r *MachineRepository) FindByLogicalCode(ctx context.Context, code string) (*models.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE logical_code = ? LIMIT 2`
	m, err := r.findOne(ctx, query, code)
	if err != nil && !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrConflict) {
		return nil, fmt.Errorf("sqlite.FindByLogicalCode: %w", err)
	}
	return m, err
}

func (r *MachineRepository) Touch(ctx context.Context, machineID string, upd models.TelemetryUpdate, now time.Time) error {
	const query = `
		UPDATE machines
		SET online = 1,
			last_contact_at = ?2,
			firmware_version = COALESCE(?3, firmware_version),
			wifi_rssi = COALESCE(?4, wifi_rssi),
			free_heap = COALESCE(?5, free_heap),
			uptime_seconds = COALESCE(?6, uptime_seconds),
			stock_level = COALESCE(?7, stock_level),
			updated_at = ?2
		WHERE id = ?1`
	res, err := r.db.ExecContext(ctx, query, machineID, toNanos(now),
		nullString(upd.FirmwareVersion), nullInt(upd.WifiRSSI), nullInt(upd.FreeHeap),
		nullInt(upd.UptimeSeconds), nullInt(upd.StockLevel))
	if err != nil {
		return fmt.Errorf("sqlite.Touch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite.Touch: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *MachineRepository) ListMachines(ctx context.Context) ([]*models.Machine, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+machineColumns+` FROM machines ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListMachines: %w", err)
	}
	defer rows.Close()

	var machines []*models.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite.ListMachines.Scan: %w", err)
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

func (r *MachineRepository) MarkStaleOffline(ctx context.Context, before, now time.Time) (int64, error) {
	const query = `
		UPDATE machines
		SET online = 0, updated_at = ?2
		WHERE online = 1
		  AND (last_contact_at IS NULL OR last_contact_at < ?1)`
	res, err := r.db.ExecContext(ctx, query, toNanos(before), toNanos(now))
	if err != nil {
		return 0, fmt.Errorf("sqlite.MarkStaleOffline: %w", err)
	}
	return res.RowsAffected()
}
