// internal/infra/database/postgres_reminder_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"restaurant_asset_tracker/internal/domain/maintenance"
	"restaurant_asset_tracker/internal/domain/reminder"

	"github.com/lib/pq"
)

// PostgresReminderRepository stores the reminder ledger, one row per device.
type PostgresReminderRepository struct {
	db *sql.DB
}

func NewPostgresReminderRepository(db *sql.DB) *PostgresReminderRepository {
	return &PostgresReminderRepository{db: db}
}

func (r *PostgresReminderRepository) Get(ctx context.Context, deviceID string) (*reminder.Entry, error) {
	query := `SELECT device_id, last_reminder_sent_at, last_reminder_kind, updated_at
               FROM reminder_ledger WHERE device_id = $1`
	e := reminder.Entry{}
	var kind string
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(&e.DeviceID, &e.LastReminderSentAt, &kind, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reminder.ErrEntryNotFound
		}
		return nil, fmt.Errorf("error getting reminder ledger entry: %w", err)
	}
	e.LastReminderKind = maintenance.State(kind)
	return &e, nil
}

func (r *PostgresReminderRepository) Upsert(ctx context.Context, e *reminder.Entry) error {
	query := `INSERT INTO reminder_ledger (device_id, last_reminder_sent_at, last_reminder_kind, updated_at)
               VALUES ($1, $2, $3, NOW())
               ON CONFLICT (device_id) DO UPDATE
               SET last_reminder_sent_at = EXCLUDED.last_reminder_sent_at,
                   last_reminder_kind = EXCLUDED.last_reminder_kind,
                   updated_at = NOW()
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, e.DeviceID, e.LastReminderSentAt, string(e.LastReminderKind)).Scan(&e.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "check_violation" {
			return fmt.Errorf("invalid reminder kind %q for device %s: %w", e.LastReminderKind, e.DeviceID, err)
		}
		return fmt.Errorf("error upserting reminder ledger entry: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) List(ctx context.Context) ([]*reminder.Entry, error) {
	query := `SELECT device_id, last_reminder_sent_at, last_reminder_kind, updated_at
               FROM reminder_ledger ORDER BY device_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying reminder ledger: %w", err)
	}
	defer rows.Close()

	entries := make([]*reminder.Entry, 0)
	for rows.Next() {
		e := reminder.Entry{}
		var kind string
		if err := rows.Scan(&e.DeviceID, &e.LastReminderSentAt, &kind, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning reminder ledger row: %w", err)
		}
		e.LastReminderKind = maintenance.State(kind)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder ledger rows: %w", err)
	}
	return entries, nil
}
