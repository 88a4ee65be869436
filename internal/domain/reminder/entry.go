// internal/domain/reminder/entry.go
package reminder

import (
	"time"

	"restaurant_asset_tracker/internal/domain/maintenance"
)

// Cool-down policy per reminder kind.
const (
	UpcomingCooldown = 7 * 24 * time.Hour
	OverdueCooldown  = 3 * 24 * time.Hour
)

// Entry records the most recent reminder dispatched for a device.
// Corresponds to the 'reminder_ledger' table.
type Entry struct {
	DeviceID           string
	LastReminderSentAt time.Time
	LastReminderKind   maintenance.State // StateUpcoming or StateOverdue
	UpdatedAt          time.Time
}
