// internal/infra/database/postgres_device_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"restaurant_asset_tracker/internal/domain/device"
)

// PostgresDeviceRepository reads device snapshots from the inventory tables.
// It never writes device fields.
type PostgresDeviceRepository struct {
	db *sql.DB
}

func NewPostgresDeviceRepository(db *sql.DB) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

const listMaintainableDevicesQuery = `SELECT d.id, d.name, r.name, d.last_maintenance_at, c.maintenance_interval_days
               FROM devices d
               JOIN device_categories c ON c.id = d.category_id
               LEFT JOIN restaurants r ON r.id = d.restaurant_id
               WHERE d.retired_at IS NULL OR d.retired_at > $1
               ORDER BY d.id`

func (r *PostgresDeviceRepository) ListMaintainableDevices(ctx context.Context, now time.Time) (device.Listing, error) {
	rows, err := r.db.QueryContext(ctx, listMaintainableDevicesQuery, now)
	if err != nil {
		return device.Listing{}, fmt.Errorf("error querying maintainable devices: %w", err)
	}
	defer rows.Close()

	var listing device.Listing
	for rows.Next() {
		var row deviceRow
		if err := rows.Scan(&row.id, &row.name, &row.restaurant, &row.lastMaintenanceAt, &row.intervalDays); err != nil {
			listing.Failures = append(listing.Failures, device.FetchFailure{Err: fmt.Errorf("error scanning device row: %w", err)})
			continue
		}
		snap, err := row.toSnapshot()
		if err != nil {
			listing.Failures = append(listing.Failures, device.FetchFailure{DeviceID: row.id.String, Err: err})
			continue
		}
		listing.Snapshots = append(listing.Snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return device.Listing{}, fmt.Errorf("error iterating device rows: %w", err)
	}
	return listing, nil
}

type deviceRow struct {
	id                sql.NullString
	name              sql.NullString
	restaurant        sql.NullString
	lastMaintenanceAt sql.NullTime
	intervalDays      sql.NullInt64
}

func (row deviceRow) toSnapshot() (device.Snapshot, error) {
	if !row.id.Valid || strings.TrimSpace(row.id.String) == "" {
		return device.Snapshot{}, fmt.Errorf("device row has no id")
	}
	snap := device.Snapshot{
		DeviceID:       row.id.String,
		DeviceName:     row.name.String,
		RestaurantName: row.restaurant.String,
	}
	if row.lastMaintenanceAt.Valid {
		t := row.lastMaintenanceAt.Time
		snap.LastMaintenanceAt = &t
	}
	// A NULL interval means the category is not scheduled; a non-positive one
	// is passed through for the scheduler to reject.
	if row.intervalDays.Valid {
		snap.IntervalDays = int(row.intervalDays.Int64)
		snap.HasInterval = true
	}
	return snap, nil
}
