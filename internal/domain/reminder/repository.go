// internal/domain/reminder/repository.go
package reminder

import (
	"context"
	"fmt"
)

// ErrEntryNotFound is returned when a device has no ledger entry yet.
var ErrEntryNotFound = fmt.Errorf("reminder ledger entry not found")

// Repository is the keyed store behind the reminder ledger.
type Repository interface {
	Get(ctx context.Context, deviceID string) (*Entry, error)
	// Upsert creates or overwrites the entry for entry.DeviceID.
	Upsert(ctx context.Context, entry *Entry) error
	List(ctx context.Context) ([]*Entry, error)
}
